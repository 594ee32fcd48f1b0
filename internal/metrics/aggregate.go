package metrics

import (
	"time"

	"github.com/torosent/spamfire/internal/protocol"
)

// Aggregate folds consumer completion reports into one run measurement.
// It is owned by the coordinator and is not safe for concurrent use.
type Aggregate struct {
	start      time.Time
	reports    int
	total      int64
	min        time.Duration
	max        time.Duration
	hasLatency bool
}

// ConsumerSummary describes a single consumer's outcome.
type ConsumerSummary struct {
	Name      string          `json:"name" yaml:"name"`
	Priority  bool            `json:"priority,omitempty" yaml:"priority,omitempty"`
	Processed int             `json:"processed" yaml:"processed"`
	PerSender map[string]int  `json:"per_sender,omitempty" yaml:"per_sender,omitempty"`
	Latency   LatencySnapshot `json:"latency" yaml:"latency"`
}

// Summary is the final result of a run.
type Summary struct {
	RunID         string        `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Elapsed       time.Duration `json:"-" yaml:"-"`
	TotalMessages int64         `json:"total_messages" yaml:"total_messages"`
	Reports       int           `json:"reports" yaml:"reports"`
	Expected      int           `json:"expected_reports" yaml:"expected_reports"`
	Average       time.Duration `json:"-" yaml:"-"`
	MinLatency    time.Duration `json:"-" yaml:"-"`
	MaxLatency    time.Duration `json:"-" yaml:"-"`
	// HasAverage is false when no messages were processed.
	HasAverage bool `json:"has_average" yaml:"has_average"`
	// HasLatency is false when no report carried latency extremes.
	HasLatency bool `json:"has_latency" yaml:"has_latency"`

	ElapsedMs    float64 `json:"elapsed_ms" yaml:"elapsed_ms"`
	AverageMs    float64 `json:"average_ms" yaml:"average_ms"`
	MinLatencyMs float64 `json:"min_latency_ms" yaml:"min_latency_ms"`
	MaxLatencyMs float64 `json:"max_latency_ms" yaml:"max_latency_ms"`

	Consumers []ConsumerSummary `json:"consumers,omitempty" yaml:"consumers,omitempty"`
}

// NewAggregate starts an aggregate at the moment START was broadcast.
func NewAggregate(start time.Time) *Aggregate {
	return &Aggregate{start: start}
}

// Fold adds one consumer's report.
func (a *Aggregate) Fold(r protocol.Report) {
	a.reports++
	a.total += int64(r.Processed)
	if !r.HasLatency {
		return
	}
	if !a.hasLatency || r.Min < a.min {
		a.min = r.Min
	}
	if !a.hasLatency || r.Max > a.max {
		a.max = r.Max
	}
	a.hasLatency = true
}

func (a *Aggregate) Reports() int { return a.reports }

func (a *Aggregate) TotalMessages() int64 { return a.total }

func (a *Aggregate) Start() time.Time { return a.start }

// Complete reports whether every expected consumer has reported.
func (a *Aggregate) Complete(expected int) bool {
	return a.reports == expected
}

// Finalize computes the summary at end.
func (a *Aggregate) Finalize(end time.Time, expected int) Summary {
	elapsed := end.Sub(a.start)
	if elapsed < 0 {
		elapsed = 0
	}

	s := Summary{
		Elapsed:       elapsed,
		ElapsedMs:     toMs(elapsed),
		TotalMessages: a.total,
		Reports:       a.reports,
		Expected:      expected,
		HasLatency:    a.hasLatency,
	}
	if a.total > 0 {
		s.HasAverage = true
		s.Average = time.Duration(int64(elapsed) / a.total)
		s.AverageMs = s.ElapsedMs / float64(a.total)
	}
	if a.hasLatency {
		s.MinLatency = a.min
		s.MaxLatency = a.max
		s.MinLatencyMs = toMs(a.min)
		s.MaxLatencyMs = toMs(a.max)
	}
	return s
}
