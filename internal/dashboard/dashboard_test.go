package dashboard

import (
	"strings"
	"testing"
	"time"

	"github.com/torosent/spamfire/internal/experiment"
)

func sampleProgress() experiment.Progress {
	return experiment.Progress{
		RunID:     "01HZY",
		Elapsed:   1500 * time.Millisecond,
		Started:   true,
		Sent:      90,
		Delivered: 88,
		Produced:  90,
		Target:    160,
		Reports:   1,
		Expected:  2,
		Consumers: []experiment.ConsumerProgress{
			{Name: "Consumer1", Processed: 80, Reported: true},
			{Name: "PriorityConsumer1", Priority: true, Processed: 8, Buffered: 3, Pending: 2},
		},
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		part, total int64
		want        int
	}{
		{0, 0, 0},
		{5, 0, 0},
		{1, 4, 25},
		{4, 4, 100},
		{9, 4, 100},
	}
	for _, tt := range tests {
		if got := percent(tt.part, tt.total); got != tt.want {
			t.Errorf("percent(%d, %d) = %d, want %d", tt.part, tt.total, got, tt.want)
		}
	}
}

func TestRateTracker(t *testing.T) {
	r := newRateTracker(3)
	start := time.Now()

	if got := r.observe(start, 0); got != 0 {
		t.Errorf("first observation = %v, want 0", got)
	}
	if h := r.history(); len(h) != 1 || h[0] != 0 {
		t.Errorf("empty history = %v, want [0]", h)
	}
	if got := r.observe(start.Add(time.Second), 100); got != 100 {
		t.Errorf("rate = %v, want 100", got)
	}
	if got := r.observe(start.Add(1500*time.Millisecond), 110); got != 20 {
		t.Errorf("rate = %v, want 20", got)
	}
	r.observe(start.Add(2*time.Second), 160)
	r.observe(start.Add(3*time.Second), 160)

	if h := r.history(); len(h) != 3 {
		t.Errorf("history length = %d, want capped at 3", len(h))
	}
	if r.peak != 100 {
		t.Errorf("peak = %v, want 100", r.peak)
	}
	if got := r.observe(start.Add(3*time.Second), 200); got != 0 {
		t.Errorf("zero interval rate = %v, want 0", got)
	}
}

func TestFormatSummary(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*experiment.Progress)
		want   string
	}{
		{"running", func(*experiment.Progress) {}, "State: running"},
		{"waiting", func(p *experiment.Progress) { p.Started = false }, "State: waiting for START"},
		{"complete", func(p *experiment.Progress) { p.Reports = 2 }, "State: complete"},
		{"no run id", func(p *experiment.Progress) { p.RunID = "" }, "Run: - |"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := sampleProgress()
			tt.mutate(&p)
			if got := formatSummary(p, RunConfig{}); !strings.Contains(got, tt.want) {
				t.Errorf("formatSummary() = %q, want substring %q", got, tt.want)
			}
		})
	}
}

func TestFormatRunParams(t *testing.T) {
	got := formatRunParams(RunConfig{
		Producers: 2, Consumers: 1, PriorityConsumers: 1, Messages: 20,
		PrioritySender: "Spammer1", Rate: 12.5, Timeout: time.Minute, ConfigFile: "run.yaml",
	})
	for _, want := range []string{"Producers: 2", "Priority: 1 (sender Spammer1)", "Rate: 12.5/s", "Timeout: 1m0s", "Config: run.yaml"} {
		if !strings.Contains(got, want) {
			t.Errorf("formatRunParams() = %q, missing %q", got, want)
		}
	}
	if got := formatRunParams(RunConfig{}); !strings.Contains(got, "Rate: unlimited") || strings.Contains(got, "Priority") {
		t.Errorf("formatRunParams(zero) = %q", got)
	}
}

func TestFormatTransport(t *testing.T) {
	got := formatTransport(sampleProgress())
	for _, want := range []string{"Sent:       90", "Delivered:  88", "In mailbox: 2", "Buffered:   3"} {
		if !strings.Contains(got, want) {
			t.Errorf("formatTransport() = %q, missing %q", got, want)
		}
	}
}

func TestConsumerRows(t *testing.T) {
	rows := consumerRows(sampleProgress())
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if !strings.Contains(rows[0], "[Consumer1](fg:cyan)") || !strings.Contains(rows[0], "reported") {
		t.Errorf("row[0] = %q", rows[0])
	}
	if !strings.Contains(rows[1], "fg:magenta") || !strings.Contains(rows[1], "running") {
		t.Errorf("priority row = %q", rows[1])
	}

	if rows := consumerRows(experiment.Progress{}); len(rows) != 1 || !strings.Contains(rows[0], "No consumers") {
		t.Errorf("empty rows = %v", rows)
	}
}

func TestTotalProcessed(t *testing.T) {
	if got := totalProcessed(sampleProgress()); got != 88 {
		t.Errorf("totalProcessed() = %d, want 88", got)
	}
}
