package output

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/torosent/spamfire/internal/experiment"
)

// Source supplies live progress snapshots.
type Source interface {
	Progress() experiment.Progress
}

// Sample is one point of recorded progress history.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	ElapsedMs float64   `json:"elapsed_ms"`
	Processed int64     `json:"processed"`
	Delivered int64     `json:"delivered"`
	Buffered  int64     `json:"buffered"`
	Reports   int       `json:"reports"`
	// Rate is messages processed per second since the previous sample.
	Rate float64 `json:"rate"`
}

// ProgressReporter displays real-time progress updates and records a
// history of samples for the HTML report.
type ProgressReporter struct {
	source   Source
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32

	mu      sync.Mutex
	history []Sample
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
func NewProgressReporter(source Source, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		source:   source,
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates and takes a final sample.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		p.record(time.Now())
	}
}

// History returns a copy of the recorded samples.
func (p *ProgressReporter) History() []Sample {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Sample(nil), p.history...)
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case now := <-p.ticker.C:
			s, prog := p.record(now)
			fmt.Fprint(p.writer, FormatProgress(prog, s.Rate))
		case <-p.done:
			return
		}
	}
}

func (p *ProgressReporter) record(now time.Time) (Sample, experiment.Progress) {
	prog := p.source.Progress()
	s := Sample{
		Timestamp: now,
		ElapsedMs: float64(prog.Elapsed) / float64(time.Millisecond),
		Delivered: prog.Delivered,
		Reports:   prog.Reports,
	}
	for _, c := range prog.Consumers {
		s.Processed += c.Processed
		s.Buffered += c.Buffered
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.history); n > 0 {
		prev := p.history[n-1]
		if dt := now.Sub(prev.Timestamp).Seconds(); dt > 0 {
			s.Rate = float64(s.Processed-prev.Processed) / dt
		}
	} else if prog.Elapsed > 0 {
		s.Rate = float64(s.Processed) / prog.Elapsed.Seconds()
	}
	p.history = append(p.history, s)
	return s, prog
}

// FormatProgress renders a single carriage-return prefixed status line.
func FormatProgress(prog experiment.Progress, rate float64) string {
	var processed, buffered int64
	for _, c := range prog.Consumers {
		processed += c.Processed
		buffered += c.Buffered
	}
	line := fmt.Sprintf("\rProcessed: %d/%d | Sent: %d | Delivered: %d | Reports: %d/%d | Rate: %.1f msg/s",
		processed, prog.Target, prog.Sent, prog.Delivered, prog.Reports, prog.Expected, rate)
	if buffered > 0 {
		line += fmt.Sprintf(" | Buffered: %d", buffered)
	}
	return line
}
