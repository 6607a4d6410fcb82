// Package profiler collects per-frame tracking metrics and operation timings
// and reports rolling summaries through a logr.Logger.
package profiler

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"gonum.org/v1/gonum/stat"
)

// MetricsCollector defines the interface for collecting custom metrics.
// tracker.Tracker and tracker.Registry implement it.
type MetricsCollector interface {
	CollectMetrics() map[string]float64
}

// Options configures the profiler.
type Options struct {
	// ReportInterval specifies how often to emit status reports (default: 2s)
	ReportInterval time.Duration
	// SampleInterval specifies how often collectors are polled (default: 100ms)
	SampleInterval time.Duration
	// MaxSamples specifies how many samples each series keeps (default: 600)
	MaxSamples int
	// Logger receives the reports (default: logr.Discard())
	Logger logr.Logger
}

// Summary describes a window of samples.
type Summary struct {
	Mean    float64
	Min     float64
	Max     float64
	P95     float64
	Samples int
}

// Stats is a snapshot of everything the profiler tracks.
type Stats struct {
	Uptime     time.Duration
	Goroutines int
	HeapAlloc  uint64
	// Metrics holds recorded and collected values by name.
	Metrics map[string]Summary
	// Operations holds operation durations in milliseconds by name.
	Operations map[string]Summary
}

// series is a bounded window of samples.
type series struct {
	values []float64
	max    int
}

func (s *series) add(v float64) {
	s.values = append(s.values, v)
	if len(s.values) > s.max {
		s.values = s.values[1:]
	}
}

func (s *series) summary() Summary {
	if len(s.values) == 0 {
		return Summary{}
	}
	sorted := make([]float64, len(s.values))
	copy(sorted, s.values)
	sort.Float64s(sorted)
	return Summary{
		Mean:    stat.Mean(sorted, nil),
		Min:     sorted[0],
		Max:     sorted[len(sorted)-1],
		P95:     stat.Quantile(0.95, stat.Empirical, sorted, nil),
		Samples: len(sorted),
	}
}

// Profiler tracks custom metrics and operation timings. It is safe for
// concurrent use.
type Profiler struct {
	opts Options

	mu         sync.Mutex
	wg         sync.WaitGroup
	cancel     context.CancelFunc
	startTime  time.Time
	running    bool
	metrics    map[string]*series
	operations map[string]*series
	collectors []MetricsCollector
}

// New creates a profiler with the specified options.
//
// Arguments:
//   - opts: Configuration options; zero values select the defaults.
//
// Returns:
//   - *Profiler: A profiler that is not yet started.
//
// @example
// prof := profiler.New(profiler.Options{Logger: logger})
// prof.AddCollector(t)
// prof.Start(ctx)
// defer prof.Stop()
func New(opts Options) *Profiler {
	if opts.ReportInterval == 0 {
		opts.ReportInterval = 2 * time.Second
	}
	if opts.SampleInterval == 0 {
		opts.SampleInterval = 100 * time.Millisecond
	}
	if opts.MaxSamples == 0 {
		opts.MaxSamples = 600
	}
	if opts.Logger.GetSink() == nil {
		opts.Logger = logr.Discard()
	}

	return &Profiler{
		opts:       opts,
		startTime:  time.Now(),
		metrics:    make(map[string]*series),
		operations: make(map[string]*series),
	}
}

// Start begins polling collectors and emitting periodic reports until ctx is
// done or Stop is called. Calling Start on a running profiler does nothing.
func (p *Profiler) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.running = true
	p.startTime = time.Now()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		sample := time.NewTicker(p.opts.SampleInterval)
		defer sample.Stop()
		report := time.NewTicker(p.opts.ReportInterval)
		defer report.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-sample.C:
				p.Collect()
			case <-report.C:
				p.Report()
			}
		}
	}()
}

// Stop stops the background goroutine and waits for it to exit.
func (p *Profiler) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	cancel := p.cancel
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
}

// AddCollector registers a collector that is polled on every sample tick.
func (p *Profiler) AddCollector(c MetricsCollector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.collectors = append(p.collectors, c)
}

// RecordMetric records a custom metric value.
func (p *Profiler) RecordMetric(name string, value float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.record(p.metrics, name, value)
}

// StartOperation begins timing an operation.
//
// Returns:
//   - func(): Call it when the operation completes.
//
// @example
// done := prof.StartOperation("track")
// res, err := t.Track(frame, set)
// done()
func (p *Profiler) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		elapsed := time.Since(start)
		p.mu.Lock()
		defer p.mu.Unlock()
		p.record(p.operations, name, float64(elapsed)/float64(time.Millisecond))
	}
}

// Collect polls every registered collector once.
func (p *Profiler) Collect() {
	p.mu.Lock()
	collectors := make([]MetricsCollector, len(p.collectors))
	copy(collectors, p.collectors)
	p.mu.Unlock()

	// Collectors take their own locks; do not hold ours while calling them.
	for _, c := range collectors {
		values := c.CollectMetrics()
		p.mu.Lock()
		for name, v := range values {
			p.record(p.metrics, name, v)
		}
		p.mu.Unlock()
	}
}

func (p *Profiler) record(into map[string]*series, name string, value float64) {
	s, ok := into[name]
	if !ok {
		s = &series{max: p.opts.MaxSamples}
		into[name] = s
	}
	s.add(value)
}

// Snapshot returns the current statistics.
func (p *Profiler) Snapshot() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	stats := Stats{
		Uptime:     time.Since(p.startTime),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  mem.HeapAlloc,
		Metrics:    make(map[string]Summary, len(p.metrics)),
		Operations: make(map[string]Summary, len(p.operations)),
	}
	for name, s := range p.metrics {
		stats.Metrics[name] = s.summary()
	}
	for name, s := range p.operations {
		stats.Operations[name] = s.summary()
	}
	return stats
}

// Report logs the current statistics, one line per series in name order.
func (p *Profiler) Report() {
	stats := p.Snapshot()
	log := p.opts.Logger

	log.Info("profiler status",
		"uptime", stats.Uptime.Truncate(time.Millisecond).String(),
		"goroutines", stats.Goroutines,
		"heap", formatBytes(stats.HeapAlloc))

	for _, name := range sortedKeys(stats.Metrics) {
		s := stats.Metrics[name]
		log.Info("metric", "name", name, "avg", s.Mean, "min", s.Min, "max", s.Max, "p95", s.P95, "samples", s.Samples)
	}
	for _, name := range sortedKeys(stats.Operations) {
		s := stats.Operations[name]
		log.Info("operation", "name", name, "avg_ms", s.Mean, "max_ms", s.Max, "p95_ms", s.P95, "count", s.Samples)
	}
}

func sortedKeys(m map[string]Summary) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
