package tree

import (
	"github.com/eth2030/chaintree/log"
	"github.com/eth2030/chaintree/types"
)

// BlockchainTree is the external owner of a BlockIndices and the set of
// Chains it references: it mints ChainIDs, stores Chain values, and
// performs the repeated RemoveChain cascade that BlockIndices leaves to its
// caller, since the index itself performs only one cascade level per
// invocation.
//
// Like BlockIndices itself, BlockchainTree is not safe for concurrent use.
type BlockchainTree struct {
	log    *log.Logger
	idx    *BlockIndices
	chains map[types.ChainID]*Chain
	nextID types.ChainID
}

// NewBlockchainTree constructs a BlockchainTree backed by a freshly seeded
// BlockIndices.
func NewBlockchainTree(cfg Config) (*BlockchainTree, error) {
	idx, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return &BlockchainTree{
		log:    log.Default().Module("blockchain_tree"),
		idx:    idx,
		chains: make(map[types.ChainID]*Chain),
	}, nil
}

// Index returns the underlying BlockIndices for read-only inspection.
func (bt *BlockchainTree) Index() *BlockIndices { return bt.idx }

// InsertChain mints a fresh ChainID, records chain in both the tree's chain
// store and the index, and returns the minted ID.
func (bt *BlockchainTree) InsertChain(chain *Chain) types.ChainID {
	id := bt.nextID
	bt.nextID++
	bt.chains[id] = chain
	bt.idx.InsertChain(id, chain)
	bt.log.Debug("tree: tracking new chain", "chain", id, "blocks", chain.Len())
	return id
}

// CanonicalizeChain promotes chain (previously inserted under id) to
// canonical status and stops tracking it as a side chain.
func (bt *BlockchainTree) CanonicalizeChain(id types.ChainID) {
	chain, ok := bt.chains[id]
	if !ok {
		return
	}
	bt.idx.CanonicalizeBlocks(chain.Blocks())
	delete(bt.chains, id)
	bt.log.Info("tree: canonicalized chain", "chain", id)
}

// Finalize advances the finalization horizon and drops every chain
// transitively orphaned as a result.
func (bt *BlockchainTree) Finalize(newFinalized types.BlockNumber) []types.ChainID {
	return bt.cascade(bt.idx.FinalizeCanonicalBlocks(newFinalized))
}

// UpdateCanonicalHashes reconciles the canonical chain against an
// externally-sourced replacement and drops every chain transitively
// orphaned as a result.
func (bt *BlockchainTree) UpdateCanonicalHashes(newCanonical map[types.BlockNumber]types.Hash) []types.ChainID {
	return bt.cascade(bt.idx.UpdateBlockHashes(newCanonical))
}

// cascade repeatedly calls RemoveChain on every chain dropped so far until
// no new chain IDs are produced. It returns every chain ID dropped, one
// cascade level after another; the order within a level is not defined.
func (bt *BlockchainTree) cascade(initial ChainIDSet) []types.ChainID {
	var dropped []types.ChainID
	frontier := initial
	for len(frontier) > 0 {
		next := newChainIDSet()
		for id := range frontier {
			chain, ok := bt.chains[id]
			if !ok {
				continue
			}
			delete(bt.chains, id)
			dropped = append(dropped, id)
			next.union(bt.idx.RemoveChain(chain))
		}
		frontier = next
	}
	if len(dropped) > 0 {
		bt.log.Info("tree: dropped orphaned chains", "count", len(dropped))
	}
	return dropped
}
