// Command blocktreectl inspects and exercises a blockchain tree index
// outside of a running node.
//
// Usage:
//
//	blocktreectl replay --scenario path/to/scenario.json
//	blocktreectl serve --addr :9600
//
// Flags (replay):
//
//	--scenario    Path to a JSON scenario file (required)
//	--additional  Override the scenario's additional-canonical-hashes window (uint64, default: use the scenario's own value)
//
// Flags (serve):
//
//	--addr            Listen address for the Prometheus /metrics endpoint (default :9600)
//	--namespace       Metric name prefix (default CHAINTREE)
//	--report-interval Interval between log dumps of the metrics registry (default 30s)
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/eth2030/chaintree/log"
	"github.com/eth2030/chaintree/metrics"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: blocktreectl <replay|serve> [flags]")
		return 2
	}

	switch args[0] {
	case "replay":
		return runReplay(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", args[0])
		return 2
	}
}

func runReplay(args []string) int {
	fs := newCustomFlagSet("blocktreectl replay")
	scenarioPath := fs.String("scenario", "", "path to a JSON scenario file")
	var additionalOverride uint64
	fs.Uint64Var(&additionalOverride, "additional", 0, "override the scenario's additional-canonical-hashes window (0 = use the scenario's own value)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	if *scenarioPath == "" {
		fmt.Fprintln(os.Stderr, "Error: --scenario is required")
		return 2
	}

	data, err := os.ReadFile(*scenarioPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	sf, err := loadScenario(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if additionalOverride != 0 {
		sf.AdditionalCanonicalHashes = additionalOverride
	}

	mc := metrics.NewMetricsCollector(metrics.CollectorConfig{EnableHistograms: true})
	bt, opLog, err := replay(sf, mc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	for _, line := range opLog {
		fmt.Println(line)
	}
	tip := bt.Index().CanonicalTip()
	fmt.Printf("final tip: %s\n", tip)
	fmt.Printf("last finalized: %d\n", bt.Index().LastFinalizedBlock())
	fmt.Printf("operations replayed: %d\n", mc.MetricCount())
	fmt.Printf("insert rate: %.4f/s, finalize rate: %.4f/s, orphan rate: %.4f/s\n",
		bt.Index().InsertRate(), bt.Index().FinalizeRate(), bt.Index().OrphanRate())
	return 0
}

func runServe(args []string) int {
	fs := newCustomFlagSet("blocktreectl serve")
	addr := fs.String("addr", ":9600", "listen address for the metrics endpoint")
	namespace := fs.String("namespace", "CHAINTREE", "metric name prefix")
	scenarioPath := fs.String("scenario", "", "optional scenario file to replay before serving, so chain.height tracks its result")
	reportInterval := fs.Duration("report-interval", 30*time.Second, "interval between log dumps of the metrics registry")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	sysMetrics := metrics.NewSystemMetrics()
	if *scenarioPath != "" {
		data, err := os.ReadFile(*scenarioPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		sf, err := loadScenario(data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		bt, _, err := replay(sf, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		sysMetrics.SetBlockHeightFunc(func() uint64 { return bt.Index().CanonicalTip().Number })
	}

	cfg := metrics.DefaultPrometheusConfig()
	cfg.Namespace = *namespace
	exporter := metrics.NewPrometheusExporter(metrics.DefaultRegistry, cfg)
	exporter.RegisterCollector("system", systemCollector{sysMetrics})

	reporter := metrics.NewMetricsReporter(*reportInterval)
	reporter.RegisterBackend("log", logReportBackend{log: log.Default().Module("metrics")})
	reporter.Start()
	defer reporter.Stop()
	go scrapeRegistryLoop(reporter, metrics.DefaultRegistry, *reportInterval)

	fmt.Printf("serving metrics on %s%s\n", *addr, cfg.Path)
	if err := http.ListenAndServe(*addr, exporter.Handler()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// scrapeRegistryLoop periodically copies every int64-valued counter and
// gauge out of reg into r, so the reporter's backends see the same numbers
// the Prometheus endpoint exposes. Histogram entries are skipped; they
// snapshot as nested maps, not single values.
func scrapeRegistryLoop(r *metrics.MetricsReporter, reg *metrics.Registry, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		for name, v := range reg.Snapshot() {
			if n, ok := v.(int64); ok {
				r.RecordMetric(name, float64(n))
			}
		}
	}
}

// logReportBackend implements metrics.ReportBackend by writing each report
// as a structured log line.
type logReportBackend struct {
	log *log.Logger
}

func (b logReportBackend) Report(m map[string]float64) error {
	args := make([]any, 0, len(m)*2)
	for name, value := range m {
		args = append(args, name, value)
	}
	b.log.Info("metrics report", args...)
	return nil
}

// systemCollector adapts *metrics.SystemMetrics to the Prometheus exporter's
// CustomCollector interface.
type systemCollector struct {
	sm *metrics.SystemMetrics
}

func (c systemCollector) Collect() []metrics.MetricLine {
	c.sm.Collect()
	return []metrics.MetricLine{
		{Name: "system.goroutines", Value: float64(c.sm.GoRoutineCount())},
		{Name: "system.heap_alloc_bytes", Value: float64(c.sm.MemoryUsage().HeapAlloc)},
		{Name: "system.uptime_seconds", Value: c.sm.UptimeSeconds()},
		{Name: "chain.height", Value: float64(c.sm.BlockHeight())},
	}
}
