// Package tree implements the in-memory bookkeeping layer of an
// Ethereum-style execution client's blockchain tree: it tracks every known
// block beyond finalization, partitions them into the canonical chain and
// a forest of side chains, and drives reorganization, finalization, and
// chain-pruning decisions. It does not execute transactions, store block
// bodies, or touch persistent storage -- it is a pure data-structure layer
// over immutable block identifiers supplied by an already-validating
// executor.
package tree

import (
	"github.com/eth2030/chaintree/log"
	"github.com/eth2030/chaintree/metrics"
	"github.com/eth2030/chaintree/types"
)

// BlockIndices is the main connection between blocks, chains, and the
// canonical chain. It is not safe for concurrent use: callers must
// serialize access at a higher layer. The owning BlockchainTree adds no
// locking of its own, so concurrent users of the tree must serialize too.
// No operation suspends or performs I/O.
type BlockIndices struct {
	log *log.Logger
	met *treeMetrics

	lastFinalizedBlock       types.BlockNumber
	additionalCanonicalHashes uint64

	// canonicalChain covers [last_finalized-additional, tip]. Always
	// non-empty and contiguous in block number (invariant 1/6).
	canonicalChain map[types.BlockNumber]types.Hash
	canonicalMin   types.BlockNumber
	canonicalMax   types.BlockNumber

	// forkToChild: parent hash -> set of first-block hashes of chains that
	// branch from it. Only fork-point parents appear as keys (invariant 4/5).
	forkToChild map[types.Hash]map[types.Hash]struct{}

	// blocksToChain: every side-chain block hash -> its owning chain.
	// Canonical blocks are never present here (invariant 2).
	blocksToChain map[types.Hash]types.ChainID

	// numberToBlock: all side-chain block hashes at a given height
	// (invariant 3/5).
	numberToBlock map[types.BlockNumber]map[types.Hash]struct{}
}

// New constructs a BlockIndices seeded with a canonical chain loaded from
// the persistent store. All derived sub-indices start empty.
func New(cfg Config) (*BlockIndices, error) {
	if len(cfg.SeedCanonicalChain) == 0 {
		return nil, ErrEmptySeedChain
	}

	var min, max types.BlockNumber
	first := true
	for n := range cfg.SeedCanonicalChain {
		if first {
			min, max = n, n
			first = false
			continue
		}
		if n < min {
			min = n
		}
		if n > max {
			max = n
		}
	}
	if uint64(max-min)+1 != uint64(len(cfg.SeedCanonicalChain)) {
		return nil, ErrNonContiguousSeedChain
	}

	canonical := make(map[types.BlockNumber]types.Hash, len(cfg.SeedCanonicalChain))
	for n, h := range cfg.SeedCanonicalChain {
		canonical[n] = h
	}

	bi := &BlockIndices{
		log:                       log.Default().Module("tree"),
		met:                       newTreeMetrics(metrics.DefaultRegistry),
		lastFinalizedBlock:        cfg.LastFinalizedBlock,
		additionalCanonicalHashes: cfg.AdditionalCanonicalHashes,
		canonicalChain:            canonical,
		canonicalMin:              min,
		canonicalMax:              max,
		forkToChild:               make(map[types.Hash]map[types.Hash]struct{}),
		blocksToChain:             make(map[types.Hash]types.ChainID),
		numberToBlock:             make(map[types.BlockNumber]map[types.Hash]struct{}),
	}
	bi.met.canonicalHeight.Set(int64(max))
	return bi, nil
}

// ---------------------------------------------------------------------------
// Read accessors (§4.1)
// ---------------------------------------------------------------------------

// CanonicalHash looks up the canonical hash at number.
func (bi *BlockIndices) CanonicalHash(number types.BlockNumber) (types.Hash, bool) {
	h, ok := bi.canonicalChain[number]
	return h, ok
}

// CanonicalTip returns the last entry of the canonical chain. The contract
// requires the canonical chain to be non-empty, so this always succeeds.
func (bi *BlockIndices) CanonicalTip() types.ForkBlock {
	return types.ForkBlock{Number: bi.canonicalMax, Hash: bi.canonicalChain[bi.canonicalMax]}
}

// IsBlockHashCanonical scans the canonical chain from last_finalized_block
// upward. Entries below finalization are deliberately excluded: they are
// retained only for the BLOCKHASH opcode, not as "is this block canonical".
func (bi *BlockIndices) IsBlockHashCanonical(hash types.Hash) bool {
	start := bi.lastFinalizedBlock
	if start < bi.canonicalMin {
		start = bi.canonicalMin
	}
	for n := start; n <= bi.canonicalMax; n++ {
		if h, ok := bi.canonicalChain[n]; ok && h == hash {
			return true
		}
	}
	return false
}

// ContainsPendingBlockHash reports whether hash is tracked as a side-chain block.
func (bi *BlockIndices) ContainsPendingBlockHash(hash types.Hash) bool {
	_, ok := bi.blocksToChain[hash]
	return ok
}

// GetBlocksChainID returns the chain ID hash belongs to, if any.
func (bi *BlockIndices) GetBlocksChainID(hash types.Hash) (types.ChainID, bool) {
	id, ok := bi.blocksToChain[hash]
	return id, ok
}

// LastFinalizedBlock returns the highest finalized height.
func (bi *BlockIndices) LastFinalizedBlock() types.BlockNumber { return bi.lastFinalizedBlock }

// NumOfAdditionalCanonicalBlockHashes returns the configured retention window.
func (bi *BlockIndices) NumOfAdditionalCanonicalBlockHashes() uint64 {
	return bi.additionalCanonicalHashes
}

// InsertRate returns the 1-minute EWMA rate of InsertChain calls per second.
func (bi *BlockIndices) InsertRate() float64 { return bi.met.insertMeter.Rate1() }

// FinalizeRate returns the 1-minute EWMA rate of FinalizeCanonicalBlocks
// calls per second.
func (bi *BlockIndices) FinalizeRate() float64 { return bi.met.finalizeMeter.Rate1() }

// OrphanRate returns the 1-minute EWMA rate of chains orphaned per second,
// across both reorg- and finalization-driven removal.
func (bi *BlockIndices) OrphanRate() float64 { return bi.met.orphanMeter.Rate1() }

// CanonicalChain returns a copy of the canonical number->hash mapping.
func (bi *BlockIndices) CanonicalChain() map[types.BlockNumber]types.Hash {
	out := make(map[types.BlockNumber]types.Hash, len(bi.canonicalChain))
	for n, h := range bi.canonicalChain {
		out[n] = h
	}
	return out
}

// ForkToChild returns a copy of the fork-point reverse adjacency.
func (bi *BlockIndices) ForkToChild() map[types.Hash][]types.Hash {
	out := make(map[types.Hash][]types.Hash, len(bi.forkToChild))
	for parent, children := range bi.forkToChild {
		for child := range children {
			out[parent] = append(out[parent], child)
		}
	}
	return out
}

// BlocksToChain returns a copy of the block-hash -> chain-id mapping.
func (bi *BlockIndices) BlocksToChain() map[types.Hash]types.ChainID {
	out := make(map[types.Hash]types.ChainID, len(bi.blocksToChain))
	for h, id := range bi.blocksToChain {
		out[h] = id
	}
	return out
}

// NumberToBlock returns a copy of the height -> pending-block-hashes mapping.
func (bi *BlockIndices) NumberToBlock() map[types.BlockNumber][]types.Hash {
	out := make(map[types.BlockNumber][]types.Hash, len(bi.numberToBlock))
	for n, hashes := range bi.numberToBlock {
		for h := range hashes {
			out[n] = append(out[n], h)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Side-chain insertion (§4.2)
// ---------------------------------------------------------------------------

// InsertChain records chain's blocks and its fork point. It does not update
// canonical state.
func (bi *BlockIndices) InsertChain(chainID types.ChainID, chain *Chain) {
	for _, b := range chain.Blocks() {
		bi.blocksToChain[b.Hash] = chainID
		bi.addNumberToBlock(b.Number, b.Hash)
	}
	first := chain.First()
	bi.addForkChild(first.ParentHash, first.Hash)

	bi.log.Debug("inserted side chain", "chain", chainID, "blocks", chain.Len(), "fork", first.ParentHash)
	bi.met.chainsTracked.Inc()
	bi.met.insertMeter.Mark(1)
	bi.met.sideChainBlocksPending.Set(int64(len(bi.blocksToChain)))
}

// InsertNonForkBlock registers a single appended block to an
// already-tracked chain. No fork-point entry is added since the chain's
// fork point already exists.
func (bi *BlockIndices) InsertNonForkBlock(number types.BlockNumber, hash types.Hash, chainID types.ChainID) {
	bi.addNumberToBlock(number, hash)
	bi.blocksToChain[hash] = chainID
	bi.met.sideChainBlocksPending.Set(int64(len(bi.blocksToChain)))
}

func (bi *BlockIndices) addNumberToBlock(number types.BlockNumber, hash types.Hash) {
	set, ok := bi.numberToBlock[number]
	if !ok {
		set = make(map[types.Hash]struct{})
		bi.numberToBlock[number] = set
	}
	set[hash] = struct{}{}
}

func (bi *BlockIndices) addForkChild(parent, child types.Hash) {
	set, ok := bi.forkToChild[parent]
	if !ok {
		set = make(map[types.Hash]struct{})
		bi.forkToChild[parent] = set
	}
	set[child] = struct{}{}
}

// ---------------------------------------------------------------------------
// Canonicalization (§4.3)
// ---------------------------------------------------------------------------

// CanonicalizeBlocks promotes a contiguous set of side-chain blocks, ordered
// by number, to canonical status. The operation is atomic from the caller's
// perspective. Callers are responsible for arranging that blocks form a
// consistent continuation; the index does not validate parent linkage here.
func (bi *BlockIndices) CanonicalizeBlocks(blocks []SealedBlock) {
	if len(blocks) == 0 {
		return
	}

	firstNumber := blocks[0].Number
	for _, b := range blocks {
		if b.Number < firstNumber {
			firstNumber = b.Number
		}
	}

	// Drop all canonical entries with number >= firstNumber: they are
	// superseded, either by the new blocks themselves or because the
	// previous canonical continuation is no longer valid.
	for n := range bi.canonicalChain {
		if n >= firstNumber {
			delete(bi.canonicalChain, n)
		}
	}

	for _, b := range blocks {
		bi.removeFromSideChainIndices(b.Number, b.Hash, b.ParentHash)
		bi.canonicalChain[b.Number] = b.Hash
	}

	bi.recomputeCanonicalBounds()
	bi.log.Debug("canonicalized blocks", "count", len(blocks), "from", firstNumber)
	bi.met.canonicalHeight.Set(int64(bi.canonicalMax))
	bi.met.sideChainBlocksPending.Set(int64(len(bi.blocksToChain)))
}

// removeFromSideChainIndices strips a single block from the side-chain
// bookkeeping (blocks_to_chain, number_to_block, fork_to_child) because it
// is graduating to canonical status.
func (bi *BlockIndices) removeFromSideChainIndices(number types.BlockNumber, hash, parentHash types.Hash) {
	delete(bi.blocksToChain, hash)

	if set, ok := bi.numberToBlock[number]; ok {
		delete(set, hash)
		if len(set) == 0 {
			delete(bi.numberToBlock, number)
		}
	}

	if set, ok := bi.forkToChild[parentHash]; ok {
		delete(set, hash)
		if len(set) == 0 {
			delete(bi.forkToChild, parentHash)
		}
	}
}

func (bi *BlockIndices) recomputeCanonicalBounds() {
	first := true
	for n := range bi.canonicalChain {
		if first {
			bi.canonicalMin, bi.canonicalMax = n, n
			first = false
			continue
		}
		if n < bi.canonicalMin {
			bi.canonicalMin = n
		}
		if n > bi.canonicalMax {
			bi.canonicalMax = n
		}
	}
}

// ---------------------------------------------------------------------------
// Canonical-hash reconciliation (§4.4)
// ---------------------------------------------------------------------------

// UpdateBlockHashes accepts a complete replacement canonical map (possibly
// from an external reorg source) and returns the set of chain IDs now
// orphaned. It is a linear merge-diff of the old and new sequences by
// block number.
//
// When new.number < old.number the walk advances new without recording any
// action: the index neither backfills its own maps from the replacement nor
// validates that the replacement is contiguous with prior state. This is a
// caller-responsibility assumption, not a guarded precondition.
func (bi *BlockIndices) UpdateBlockHashes(newCanonical map[types.BlockNumber]types.Hash) ChainIDSet {
	oldSorted := bi.sortedCanonicalEntries()
	newSorted := sortedEntries(newCanonical)

	var remove []types.ForkBlock
	i, j := 0, 0
	for {
		if i >= len(oldSorted) {
			// Old exhausted, new may still have entries: no coverage gap to act on.
			break
		}
		if j >= len(newSorted) {
			// New exhausted: mark all remaining old entries for removal.
			remove = append(remove, oldSorted[i:]...)
			break
		}
		oldEntry, newEntry := oldSorted[i], newSorted[j]
		switch {
		case newEntry.Number < oldEntry.Number:
			j++
		case newEntry.Number == oldEntry.Number:
			if newEntry.Hash != oldEntry.Hash {
				remove = append(remove, oldEntry)
			}
			i++
			j++
		default: // newEntry.Number > oldEntry.Number
			remove = append(remove, oldEntry)
			i++
		}
	}

	bi.canonicalChain = make(map[types.BlockNumber]types.Hash, len(newCanonical))
	for n, h := range newCanonical {
		bi.canonicalChain[n] = h
	}
	if len(bi.canonicalChain) > 0 {
		bi.recomputeCanonicalBounds()
	}

	orphaned := newChainIDSet()
	for _, fb := range remove {
		orphaned.union(bi.removeBlock(fb.Number, fb.Hash))
	}

	if len(orphaned) > 0 {
		bi.log.Info("canonical hashes updated", "removed_entries", len(remove), "orphaned_chains", len(orphaned))
		bi.met.orphanMeter.Mark(int64(len(orphaned)))
	}
	bi.met.reorgsOrphaned.Add(int64(len(orphaned)))
	bi.met.canonicalHeight.Set(int64(bi.canonicalMax))
	return orphaned
}

func (bi *BlockIndices) sortedCanonicalEntries() []types.ForkBlock {
	return sortedEntries(bi.canonicalChain)
}

func sortedEntries(m map[types.BlockNumber]types.Hash) []types.ForkBlock {
	out := make([]types.ForkBlock, 0, len(m))
	for n, h := range m {
		out = append(out, types.ForkBlock{Number: n, Hash: h})
	}
	for i := 1; i < len(out); i++ {
		for k := i; k > 0 && out[k-1].Number > out[k].Number; k-- {
			out[k-1], out[k] = out[k], out[k-1]
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Block removal and cascade (§4.5)
// ---------------------------------------------------------------------------

// removeBlock removes a single block from number_to_block and
// blocks_to_chain, then pops its fork_to_child entry and removes each
// child's own blocks_to_chain entry, returning their chain IDs. This
// performs exactly one cascade level; deeper cascades flow through
// repeated RemoveChain calls from the caller.
func (bi *BlockIndices) removeBlock(number types.BlockNumber, hash types.Hash) ChainIDSet {
	if set, ok := bi.numberToBlock[number]; ok {
		delete(set, hash)
		if len(set) == 0 {
			delete(bi.numberToBlock, number)
		}
	}

	delete(bi.blocksToChain, hash)

	orphaned := newChainIDSet()
	children, ok := bi.forkToChild[hash]
	if !ok {
		return orphaned
	}
	delete(bi.forkToChild, hash)
	for child := range children {
		if id, ok := bi.blocksToChain[child]; ok {
			delete(bi.blocksToChain, child)
			orphaned.add(id)
		}
	}
	return orphaned
}

// RemoveChain removes every block of chain from the index and returns the
// set of chains transitively orphaned (one cascade level; the caller loops
// until no new chain IDs are produced).
func (bi *BlockIndices) RemoveChain(chain *Chain) ChainIDSet {
	orphaned := newChainIDSet()
	for _, b := range chain.Blocks() {
		orphaned.union(bi.removeBlock(b.Number, b.Hash))
	}
	bi.met.sideChainBlocksPending.Set(int64(len(bi.blocksToChain)))
	return orphaned
}

// ---------------------------------------------------------------------------
// Finalization (§4.6)
// ---------------------------------------------------------------------------

// FinalizeCanonicalBlocks advances the finalization horizon to newFinalized
// and returns the set of chain IDs whose fork point is now buried by
// finalization -- not chains whose entire content was finalized.
func (bi *BlockIndices) FinalizeCanonicalBlocks(newFinalized types.BlockNumber) ChainIDSet {
	// Collect hashes in [last_finalized, new_finalized). Half-open: the new
	// finalized block itself is retained, a side chain may still need it as
	// a fork point to resolve against.
	var finalizedHashes []types.Hash
	for n := bi.lastFinalizedBlock; n < newFinalized; n++ {
		if h, ok := bi.canonicalChain[n]; ok {
			finalizedHashes = append(finalizedHashes, h)
		}
	}

	removeUntil := saturatingSub(newFinalized, bi.additionalCanonicalHashes)
	for n := range bi.canonicalChain {
		if n < removeUntil {
			delete(bi.canonicalChain, n)
		}
	}
	if len(bi.canonicalChain) > 0 {
		bi.recomputeCanonicalBounds()
	}

	orphaned := newChainIDSet()
	for _, h := range finalizedHashes {
		children, ok := bi.forkToChild[h]
		if !ok {
			continue
		}
		delete(bi.forkToChild, h)
		for child := range children {
			if id, ok := bi.blocksToChain[child]; ok {
				delete(bi.blocksToChain, child)
				orphaned.add(id)
			}
		}
	}

	bi.lastFinalizedBlock = newFinalized

	bi.log.Info("finalized canonical blocks", "finalized", newFinalized, "orphaned_chains", len(orphaned))
	bi.met.finalizationsProcessed.Inc()
	bi.met.finalizeMeter.Mark(1)
	bi.met.reorgsOrphaned.Add(int64(len(orphaned)))
	if len(orphaned) > 0 {
		bi.met.orphanMeter.Mark(int64(len(orphaned)))
	}
	bi.met.sideChainBlocksPending.Set(int64(len(bi.blocksToChain)))
	return orphaned
}

func saturatingSub(a types.BlockNumber, b uint64) types.BlockNumber {
	if uint64(a) < b {
		return 0
	}
	return a - types.BlockNumber(b)
}
