package metrics

// Pre-defined metrics for the blockchain tree index. All metrics live in
// DefaultRegistry so they are globally accessible without passing a
// registry around. BlockIndices looks up the tree.* instruments by the same
// names in DefaultRegistry (see tree.newTreeMetrics), so every index in one
// process reports into these shared instances. The index reports its tip
// height under the separate gauge "tree.canonical_height"; nothing in this
// module sets ChainHeight or FinalizedHeight.

var (
	// ---- Canonical chain metrics ----

	// ChainHeight tracks the current canonical tip's block number.
	ChainHeight = DefaultRegistry.Gauge("chain.height")
	// FinalizedHeight tracks the last finalized block number.
	FinalizedHeight = DefaultRegistry.Gauge("chain.finalized_height")

	// ---- Blockchain tree metrics ----

	// ChainsTracked counts side chains inserted into the tree.
	ChainsTracked = DefaultRegistry.Counter("tree.chains_tracked")
	// SideChainBlocksPending tracks the number of side-chain blocks
	// currently held in the index (not yet canonical, not yet removed).
	SideChainBlocksPending = DefaultRegistry.Gauge("tree.side_chain_blocks_pending")
	// ReorgsOrphanedChains counts side chains orphaned by a reorg-driven
	// canonical-hash update or by finalization.
	ReorgsOrphanedChains = DefaultRegistry.Counter("tree.reorgs_orphaned_chains")
	// FinalizationsProcessed counts calls to FinalizeCanonicalBlocks.
	FinalizationsProcessed = DefaultRegistry.Counter("tree.finalizations_processed")
)
