package profiler

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr/funcr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCollector struct {
	mu    sync.Mutex
	calls int
}

func (c *staticCollector) CollectMetrics() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return map[string]float64{"tracker.matched": float64(c.calls)}
}

func TestRecordMetricSummary(t *testing.T) {
	p := New(Options{MaxSamples: 4})
	for _, v := range []float64{10, 1, 2, 3, 4} {
		p.RecordMetric("inliers", v)
	}

	s := p.Snapshot().Metrics["inliers"]
	// The oldest sample was evicted.
	assert.Equal(t, 4, s.Samples)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 4.0, s.Max)
	assert.Equal(t, 2.5, s.Mean)
	assert.Equal(t, 4.0, s.P95)
}

func TestStartOperation(t *testing.T) {
	p := New(Options{})
	done := p.StartOperation("track")
	time.Sleep(2 * time.Millisecond)
	done()

	s, ok := p.Snapshot().Operations["track"]
	require.True(t, ok)
	assert.Equal(t, 1, s.Samples)
	assert.GreaterOrEqual(t, s.Max, 2.0)
}

func TestCollect(t *testing.T) {
	p := New(Options{})
	c := &staticCollector{}
	p.AddCollector(c)

	p.Collect()
	p.Collect()

	s := p.Snapshot().Metrics["tracker.matched"]
	assert.Equal(t, 2, s.Samples)
	assert.Equal(t, 1.5, s.Mean)
}

func TestReportLogs(t *testing.T) {
	var (
		mu    sync.Mutex
		lines []string
	)
	logger := funcr.New(func(_, args string) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, args)
	}, funcr.Options{})

	p := New(Options{Logger: logger})
	p.RecordMetric("b", 1)
	p.RecordMetric("a", 2)
	p.StartOperation("track")()
	p.Report()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], `"msg"="profiler status"`)
	assert.Contains(t, lines[1], `"name"="a"`)
	assert.Contains(t, lines[2], `"name"="b"`)
	assert.True(t, strings.Contains(lines[3], `"name"="track"`))
}

func TestStartStop(t *testing.T) {
	c := &staticCollector{}
	p := New(Options{SampleInterval: time.Millisecond, ReportInterval: time.Hour})
	p.AddCollector(c)

	p.Start(context.Background())
	p.Start(context.Background())
	assert.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.calls >= 3
	}, time.Second, time.Millisecond)
	p.Stop()
	p.Stop()

	c.mu.Lock()
	calls := c.calls
	c.mu.Unlock()
	time.Sleep(5 * time.Millisecond)
	c.mu.Lock()
	defer c.mu.Unlock()
	assert.Equal(t, calls, c.calls)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "2.0 MB", formatBytes(2*1024*1024))
}
