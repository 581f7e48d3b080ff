package tree

import "github.com/eth2030/chaintree/metrics"

// treeMetrics bundles the instruments a BlockIndices reports to on every
// mutating call: cumulative counters/gauges in the registry, plus meters
// tracking the rate of the three event classes that drive tree churn.
type treeMetrics struct {
	chainsTracked          *metrics.Counter
	sideChainBlocksPending *metrics.Gauge
	reorgsOrphaned         *metrics.Counter
	finalizationsProcessed *metrics.Counter
	canonicalHeight        *metrics.Gauge

	insertMeter   *metrics.Meter
	finalizeMeter *metrics.Meter
	orphanMeter   *metrics.Meter
}

func newTreeMetrics(r *metrics.Registry) *treeMetrics {
	return &treeMetrics{
		chainsTracked:          r.Counter("tree.chains_tracked"),
		sideChainBlocksPending: r.Gauge("tree.side_chain_blocks_pending"),
		reorgsOrphaned:         r.Counter("tree.reorgs_orphaned_chains"),
		finalizationsProcessed: r.Counter("tree.finalizations_processed"),
		canonicalHeight:        r.Gauge("tree.canonical_height"),

		insertMeter:   metrics.NewMeter(),
		finalizeMeter: metrics.NewMeter(),
		orphanMeter:   metrics.NewMeter(),
	}
}
