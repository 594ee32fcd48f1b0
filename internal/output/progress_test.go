package output

import (
	"bytes"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/torosent/spamfire/internal/experiment"
)

type fakeSource struct {
	calls atomic.Int64
}

func (f *fakeSource) Progress() experiment.Progress {
	n := f.calls.Add(1)
	return experiment.Progress{
		Elapsed:   time.Duration(n) * 10 * time.Millisecond,
		Started:   true,
		Sent:      n * 10,
		Delivered: n * 10,
		Target:    100,
		Expected:  2,
		Consumers: []experiment.ConsumerProgress{
			{Name: "Consumer1", Processed: n * 4},
			{Name: "PriorityConsumer1", Priority: true, Processed: n, Buffered: 2},
		},
	}
}

// syncBuffer guards a bytes.Buffer written by the reporter goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestFormatProgress(t *testing.T) {
	prog := experiment.Progress{
		Sent: 30, Delivered: 28, Target: 40, Reports: 1, Expected: 2,
		Consumers: []experiment.ConsumerProgress{{Processed: 10}, {Processed: 15, Buffered: 3}},
	}
	got := FormatProgress(prog, 12.34)
	want := "\rProcessed: 25/40 | Sent: 30 | Delivered: 28 | Reports: 1/2 | Rate: 12.3 msg/s | Buffered: 3"
	if got != want {
		t.Errorf("FormatProgress() = %q, want %q", got, want)
	}

	prog.Consumers[1].Buffered = 0
	if strings.Contains(FormatProgress(prog, 0), "Buffered") {
		t.Error("empty buffers should not be shown")
	}
}

func TestProgressReporterBasic(t *testing.T) {
	reporter := NewProgressReporter(&fakeSource{}, 100*time.Millisecond, nil)
	if reporter == nil {
		t.Fatal("Expected non-nil reporter")
	}
	// Stop before Start is a no-op.
	reporter.Stop()
	if len(reporter.History()) != 0 {
		t.Error("stopped reporter should not record")
	}
}

func TestProgressReporterFormatting(t *testing.T) {
	src := &fakeSource{}
	var buf syncBuffer
	reporter := NewProgressReporter(src, 20*time.Millisecond, &buf)
	reporter.Start()
	reporter.Start() // second Start is ignored

	time.Sleep(100 * time.Millisecond)
	reporter.Stop()
	reporter.Stop()

	if !strings.Contains(buf.String(), "Processed:") {
		t.Errorf("Expected 'Processed:' in progress output, got %q", buf.String())
	}

	history := reporter.History()
	if len(history) < 2 {
		t.Fatalf("history has %d samples, want at least 2", len(history))
	}
	last := history[len(history)-1]
	if last.Processed != 5*src.calls.Load() || last.Buffered != 2 {
		t.Errorf("last sample = %+v", last)
	}
	for i := 1; i < len(history); i++ {
		if history[i].Processed < history[i-1].Processed {
			t.Errorf("processed went backwards at sample %d", i)
		}
		if history[i].Rate < 0 {
			t.Errorf("negative rate at sample %d", i)
		}
	}
}
