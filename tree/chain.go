package tree

import (
	"sort"

	"github.com/eth2030/chaintree/types"
)

// SealedBlock is the minimal view of a validated block the index needs:
// its own identity and the hash of its parent. Block bodies, receipts,
// and state are owned elsewhere (the executor / persistent store).
type SealedBlock struct {
	Number     types.BlockNumber
	Hash       types.Hash
	ParentHash types.Hash
}

// Chain is a contiguous side-chain segment: an ordered run of blocks plus
// the hash it forks from. Chain is a plain value object owned by whichever
// BlockchainTree mints its ChainID; BlockIndices only ever reads it.
type Chain struct {
	blocks  map[types.BlockNumber]SealedBlock
	numbers []types.BlockNumber // kept sorted ascending
}

// NewChain builds a Chain from a set of blocks. The blocks need not be
// supplied in order; NewChain establishes the ascending iteration order
// itself. The caller is responsible for ensuring the blocks are actually
// contiguous and parent-linked -- the index does not validate this either,
// trusting that blocks originate from an already-validating executor.
func NewChain(blocks ...SealedBlock) *Chain {
	c := &Chain{blocks: make(map[types.BlockNumber]SealedBlock, len(blocks))}
	for _, b := range blocks {
		c.blocks[b.Number] = b
	}
	c.reindex()
	return c
}

func (c *Chain) reindex() {
	c.numbers = c.numbers[:0]
	for n := range c.blocks {
		c.numbers = append(c.numbers, n)
	}
	sort.Slice(c.numbers, func(i, j int) bool { return c.numbers[i] < c.numbers[j] })
}

// Blocks returns the chain's blocks in ascending order by number.
func (c *Chain) Blocks() []SealedBlock {
	out := make([]SealedBlock, len(c.numbers))
	for i, n := range c.numbers {
		out[i] = c.blocks[n]
	}
	return out
}

// First returns the lowest-numbered block in the chain, exposing the
// fork point: First().ParentHash is the hash the chain attaches to.
func (c *Chain) First() SealedBlock {
	return c.blocks[c.numbers[0]]
}

// Len returns the number of blocks in the chain.
func (c *Chain) Len() int { return len(c.numbers) }
