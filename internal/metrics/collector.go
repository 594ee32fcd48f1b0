package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Latencies are tracked in nanoseconds from 1ns up to 10s with 3 significant figures.
const (
	lowestTrackable  = 1
	highestTrackable = int64(10 * time.Second)
	sigFigs          = 3
)

// LatencyStats keeps running count, min, max and sum of per-message processing
// latency, plus a histogram for percentiles. Memory use is fixed regardless of
// how many samples are observed.
type LatencyStats struct {
	mu    sync.Mutex
	hist  *hdrhistogram.Histogram
	count int64
	min   time.Duration
	max   time.Duration
	sum   time.Duration
}

// LatencySnapshot is a point-in-time copy of LatencyStats.
type LatencySnapshot struct {
	Count      int64         `json:"count" yaml:"count"`
	HasLatency bool          `json:"has_latency" yaml:"has_latency"`
	Min        time.Duration `json:"-" yaml:"-"`
	Max        time.Duration `json:"-" yaml:"-"`
	Mean       time.Duration `json:"-" yaml:"-"`
	P50        time.Duration `json:"-" yaml:"-"`
	P90        time.Duration `json:"-" yaml:"-"`
	P99        time.Duration `json:"-" yaml:"-"`

	// JSON-friendly millisecond fields, zero when HasLatency is false.
	MinMs  float64 `json:"min_ms" yaml:"min_ms"`
	MaxMs  float64 `json:"max_ms" yaml:"max_ms"`
	MeanMs float64 `json:"mean_ms" yaml:"mean_ms"`
	P50Ms  float64 `json:"p50_ms" yaml:"p50_ms"`
	P90Ms  float64 `json:"p90_ms" yaml:"p90_ms"`
	P99Ms  float64 `json:"p99_ms" yaml:"p99_ms"`
}

func NewLatencyStats() *LatencyStats {
	return &LatencyStats{
		hist: hdrhistogram.New(lowestTrackable, highestTrackable, sigFigs),
	}
}

// Observe records one processing latency.
func (s *LatencyStats) Observe(latency time.Duration) {
	if latency < 0 {
		latency = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	v := int64(latency)
	if v < s.hist.LowestTrackableValue() {
		v = s.hist.LowestTrackableValue()
	}
	if v > s.hist.HighestTrackableValue() {
		v = s.hist.HighestTrackableValue()
	}
	_ = s.hist.RecordValue(v)

	if s.count == 0 || latency < s.min {
		s.min = latency
	}
	if s.count == 0 || latency > s.max {
		s.max = latency
	}
	s.sum += latency
	s.count++
}

func (s *LatencyStats) Count() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Min returns the smallest observed latency. ok is false before the first sample.
func (s *LatencyStats) Min() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.min, s.count > 0
}

// Max returns the largest observed latency. ok is false before the first sample.
func (s *LatencyStats) Max() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.max, s.count > 0
}

func (s *LatencyStats) Mean() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 {
		return 0, false
	}
	return time.Duration(int64(s.sum) / s.count), true
}

// Percentile returns the latency at quantile q (0-100).
func (s *LatencyStats) Percentile(q float64) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.count == 0 {
		return 0, false
	}
	return s.clamp(time.Duration(s.hist.ValueAtQuantile(q))), true
}

// Snapshot copies the current statistics.
func (s *LatencyStats) Snapshot() LatencySnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := LatencySnapshot{Count: s.count}
	if s.count == 0 {
		return snap
	}

	snap.HasLatency = true
	snap.Min = s.min
	snap.Max = s.max
	snap.Mean = time.Duration(int64(s.sum) / s.count)
	snap.P50 = s.clamp(time.Duration(s.hist.ValueAtQuantile(50)))
	snap.P90 = s.clamp(time.Duration(s.hist.ValueAtQuantile(90)))
	snap.P99 = s.clamp(time.Duration(s.hist.ValueAtQuantile(99)))

	snap.MinMs = toMs(snap.Min)
	snap.MaxMs = toMs(snap.Max)
	snap.MeanMs = toMs(snap.Mean)
	snap.P50Ms = toMs(snap.P50)
	snap.P90Ms = toMs(snap.P90)
	snap.P99Ms = toMs(snap.P99)
	return snap
}

// clamp keeps histogram-derived values inside the exact observed range, since
// bucket equivalence can push them slightly past min or max.
func (s *LatencyStats) clamp(d time.Duration) time.Duration {
	if d < s.min {
		return s.min
	}
	if d > s.max {
		return s.max
	}
	return d
}

func toMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
