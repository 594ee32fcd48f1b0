package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/spamfire/internal/experiment"
)

const historyLimit = 100

// Source supplies live experiment snapshots.
type Source interface {
	Progress() experiment.Progress
}

// RunConfig holds experiment parameters for display.
type RunConfig struct {
	Producers         int
	Consumers         int
	PriorityConsumers int
	Messages          int     // per producer per consumer
	Rate              float64 // per producer, 0 = unlimited
	PrioritySender    string
	Timeout           time.Duration
	ConfigFile        string
}

// Dashboard renders a live terminal UI for an experiment.
type Dashboard struct {
	source       Source
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	grid          *ui.Grid
	summaryPara   *widgets.Paragraph
	progressGauge *widgets.Gauge
	reportsGauge  *widgets.Gauge
	rateSparkline *widgets.SparklineGroup
	transportPara *widgets.Paragraph
	consumerList  *widgets.List

	rates      *rateTracker
	runConfig  RunConfig
	lastUpdate experiment.Progress
}

// New creates a new Dashboard. shutdownFunc is invoked when the operator
// presses q or Ctrl-C.
func New(source Source, cfg RunConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dashboard{
		source:       source,
		ctx:          ctx,
		cancel:       cancel,
		shutdownFunc: shutdownFunc,
		rates:        newRateTracker(historyLimit),
		runConfig:    cfg,
	}

	d.initWidgets()
	d.setupGrid()

	return d, nil
}

func (d *Dashboard) initWidgets() {
	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Experiment"
	d.summaryPara.Text = "Waiting for agents..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.progressGauge = widgets.NewGauge()
	d.progressGauge.Title = "Spam Processed"
	d.progressGauge.BarColor = ui.ColorRed
	d.progressGauge.BorderStyle.Fg = ui.ColorCyan
	d.progressGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.reportsGauge = widgets.NewGauge()
	d.reportsGauge.Title = "Reports Collected"
	d.reportsGauge.BarColor = ui.ColorGreen
	d.reportsGauge.BorderStyle.Fg = ui.ColorCyan
	d.reportsGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	sparkline := widgets.NewSparkline()
	sparkline.Title = "msg/s"
	sparkline.LineColor = ui.ColorYellow
	sparkline.Data = []float64{0}
	d.rateSparkline = widgets.NewSparklineGroup(sparkline)
	d.rateSparkline.Title = "Throughput"
	d.rateSparkline.BorderStyle.Fg = ui.ColorCyan

	d.transportPara = widgets.NewParagraph()
	d.transportPara.Title = "Transport"
	d.transportPara.BorderStyle.Fg = ui.ColorCyan

	d.consumerList = widgets.NewList()
	d.consumerList.Title = "Consumers"
	d.consumerList.Rows = []string{"Awaiting data"}
	d.consumerList.TextStyle = ui.NewStyle(ui.ColorCyan)
	d.consumerList.BorderStyle.Fg = ui.ColorCyan
}

func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.16,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.14,
			ui.NewCol(0.6, d.progressGauge),
			ui.NewCol(0.4, d.reportsGauge),
		),
		ui.NewRow(0.28,
			ui.NewCol(0.65, d.rateSparkline),
			ui.NewCol(0.35, d.transportPara),
		),
		ui.NewRow(0.42,
			ui.NewCol(1.0, d.consumerList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

// Last returns the most recent snapshot the dashboard rendered.
func (d *Dashboard) Last() experiment.Progress {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastUpdate
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Stop cancels ctx once the experiment unwinds.
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				d.render()
			}
		case now := <-ticker.C:
			d.update(now)
			d.render()
		}
	}
}

func (d *Dashboard) update(now time.Time) {
	prog := d.source.Progress()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastUpdate = prog

	processed := totalProcessed(prog)
	rate := d.rates.observe(now, processed)
	d.rateSparkline.Sparklines[0].Data = d.rates.history()
	d.rateSparkline.Title = fmt.Sprintf("Throughput | Current: %.0f msg/s | Peak: %.0f msg/s", rate, d.rates.peak)

	d.progressGauge.Percent = percent(processed, prog.Target)
	d.progressGauge.Label = fmt.Sprintf("%d / %d", processed, prog.Target)
	d.reportsGauge.Percent = percent(int64(prog.Reports), int64(prog.Expected))
	d.reportsGauge.Label = fmt.Sprintf("%d / %d", prog.Reports, prog.Expected)

	d.summaryPara.Text = formatSummary(prog, d.runConfig)
	d.transportPara.Text = formatTransport(prog)
	d.consumerList.Rows = consumerRows(prog)
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

// rateTracker turns cumulative processed counts into a bounded history of
// per-second rates.
type rateTracker struct {
	limit   int
	rates   []float64
	peak    float64
	last    time.Time
	lastVal int64
}

func newRateTracker(limit int) *rateTracker {
	return &rateTracker{limit: limit, rates: make([]float64, 0, limit)}
}

func (r *rateTracker) observe(now time.Time, processed int64) float64 {
	if r.last.IsZero() {
		r.last, r.lastVal = now, processed
		return 0
	}
	dt := now.Sub(r.last).Seconds()
	if dt <= 0 {
		return 0
	}
	rate := float64(processed-r.lastVal) / dt
	r.last, r.lastVal = now, processed

	r.rates = append(r.rates, rate)
	if len(r.rates) > r.limit {
		r.rates = r.rates[1:]
	}
	r.peak = max(r.peak, rate)
	return rate
}

func (r *rateTracker) history() []float64 {
	if len(r.rates) == 0 {
		return []float64{0}
	}
	return r.rates
}

func totalProcessed(prog experiment.Progress) int64 {
	var n int64
	for _, c := range prog.Consumers {
		n += c.Processed
	}
	return n
}

func percent(part, total int64) int {
	if total <= 0 {
		return 0
	}
	return min(int(part*100/total), 100)
}

func formatSummary(prog experiment.Progress, cfg RunConfig) string {
	state := "waiting for START"
	switch {
	case prog.Expected > 0 && prog.Reports == prog.Expected:
		state = "complete"
	case prog.Started:
		state = "running"
	}
	run := prog.RunID
	if run == "" {
		run = "-"
	}
	return fmt.Sprintf("Run: %s | State: %s | Elapsed: %s\n%s",
		run, state, prog.Elapsed.Round(100*time.Millisecond), formatRunParams(cfg))
}

func formatRunParams(cfg RunConfig) string {
	parts := []string{
		fmt.Sprintf("Producers: %d", cfg.Producers),
		fmt.Sprintf("Consumers: %d", cfg.Consumers),
	}
	if cfg.PriorityConsumers > 0 {
		parts = append(parts, fmt.Sprintf("Priority: %d (sender %s)", cfg.PriorityConsumers, cfg.PrioritySender))
	}
	parts = append(parts, fmt.Sprintf("Messages: %d", cfg.Messages))
	if cfg.Rate > 0 {
		parts = append(parts, fmt.Sprintf("Rate: %g/s", cfg.Rate))
	} else {
		parts = append(parts, "Rate: unlimited")
	}
	if cfg.Timeout > 0 {
		parts = append(parts, fmt.Sprintf("Timeout: %s", cfg.Timeout))
	}
	if cfg.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", cfg.ConfigFile))
	}
	return strings.Join(parts, " | ")
}

func formatTransport(prog experiment.Progress) string {
	var pending int
	var buffered int64
	for _, c := range prog.Consumers {
		pending += c.Pending
		buffered += c.Buffered
	}
	return fmt.Sprintf(
		"Produced:   %d\nSent:       %d\nDelivered:  %d\nIn mailbox: %d\nBuffered:   %d",
		prog.Produced, prog.Sent, prog.Delivered, pending, buffered,
	)
}

func consumerRows(prog experiment.Progress) []string {
	if len(prog.Consumers) == 0 {
		return []string{"[No consumers](fg:yellow)"}
	}
	rows := make([]string, 0, len(prog.Consumers))
	for _, c := range prog.Consumers {
		name := fmt.Sprintf("[%s](fg:cyan)", c.Name)
		if c.Priority {
			name = fmt.Sprintf("[%s](fg:magenta)", c.Name)
		}
		status := "[running](fg:yellow)"
		if c.Reported {
			status = "[reported](fg:green)"
		}
		rows = append(rows, fmt.Sprintf("%s | processed %6d | buffered %5d | mailbox %5d | %s",
			name, c.Processed, c.Buffered, c.Pending, status))
	}
	return rows
}
