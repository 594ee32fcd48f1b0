package output

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/torosent/spamfire/internal/experiment"
	"github.com/torosent/spamfire/internal/threshold"
)

// HTMLReportData contains all data needed for the HTML report template.
type HTMLReportData struct {
	GeneratedAt      string
	Result           experiment.Result
	History          []Sample
	ThresholdSummary *ThresholdSummary
	HistoryJSON      string
	Metadata         ReportMetadata
}

// ReportMetadata describes the experiment setup.
type ReportMetadata struct {
	Producers         int
	Consumers         int
	PriorityConsumers int
	Messages          int
	PayloadSize       int
	Rate              float64
	PrioritySender    string
	Coordinator       string
}

// MetadataFromOptions copies the report-relevant fields of normalized options.
func MetadataFromOptions(opt experiment.Options) ReportMetadata {
	md := ReportMetadata{
		Producers:         opt.Producers,
		Consumers:         opt.Consumers,
		PriorityConsumers: opt.PriorityConsumers,
		Messages:          opt.Messages,
		PayloadSize:       opt.PayloadSize,
		Rate:              float64(opt.Rate),
		Coordinator:       opt.Coordinator,
	}
	if opt.PriorityConsumers > 0 {
		md.PrioritySender = opt.PrioritySender
	}
	return md
}

// GenerateHTMLReport generates a standalone HTML report with embedded charts.
func GenerateHTMLReport(w io.Writer, res experiment.Result, history []Sample, thresholdResults []threshold.Result, metadata ReportMetadata) error {
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to marshal history: %w", err)
	}

	data := HTMLReportData{
		GeneratedAt:      time.Now().Format(time.RFC3339),
		Result:           res,
		History:          history,
		ThresholdSummary: SummarizeThresholds(thresholdResults),
		HistoryJSON:      string(historyJSON),
		Metadata:         metadata,
	}

	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"ms":         formatMs,
		"optionalMs": optionalMs,
		"formatFloat": func(f float64) string {
			return fmt.Sprintf("%.2f", f)
		},
	}).Parse(htmlTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}
	return nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Spamfire Experiment Report</title>
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif;
            background: #f4f6f8;
            color: #1f2933;
            line-height: 1.6;
            padding: 20px;
        }
        .container { max-width: 1200px; margin: 0 auto; background: #fff; border-radius: 8px; overflow: hidden; }
        header { background: #b83232; color: #fff; padding: 28px 36px; }
        header h1 { font-size: 1.8rem; margin-bottom: 8px; }
        header .meta { opacity: 0.9; font-size: 0.9rem; }
        .content { padding: 36px; }
        .grid { display: grid; grid-template-columns: repeat(auto-fit, minmax(220px, 1fr)); gap: 18px; margin-bottom: 36px; }
        .card { background: #f8f9fa; border-radius: 8px; padding: 18px; border-left: 4px solid #b83232; }
        .card h3 { font-size: 0.85rem; color: #616e7c; text-transform: uppercase; margin-bottom: 8px; }
        .card .value { font-size: 1.8rem; font-weight: bold; }
        .card.warning { border-left-color: #f59e0b; }
        .section { margin-bottom: 36px; }
        .section h2 { font-size: 1.4rem; margin-bottom: 16px; padding-bottom: 8px; border-bottom: 2px solid #e4e7eb; }
        .chart { width: 100%; height: 300px; margin-bottom: 24px; }
        table { width: 100%; border-collapse: collapse; }
        th, td { text-align: left; padding: 10px; border-bottom: 1px solid #e4e7eb; }
        th { background: #f8f9fa; font-size: 0.85rem; text-transform: uppercase; color: #52606d; }
        .badge { display: inline-block; padding: 3px 10px; border-radius: 10px; font-size: 0.85rem; font-weight: 600; }
        .badge-success { background: #d1fae5; color: #065f46; }
        .badge-error { background: #fee2e2; color: #991b1b; }
    </style>
    <script src="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.iife.min.js"></script>
    <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/uplot@1.6.24/dist/uPlot.min.css">
</head>
<body>
    <div class="container">
        <header>
            <h1>Spamfire Experiment Report</h1>
            <div class="meta">Generated: {{.GeneratedAt}}{{with .Result.Summary.RunID}} | Run: {{.}}{{end}}</div>
            <div class="meta">{{.Metadata.Producers}} producers, {{.Metadata.Consumers}} consumers, {{.Metadata.PriorityConsumers}} priority consumers, {{.Metadata.Messages}} messages each{{with .Metadata.PrioritySender}} | Priority sender: {{.}}{{end}}</div>
        </header>

        <div class="content">
            {{$s := .Result.Summary}}
            <div class="grid">
                <div class="card">
                    <h3>Execution Time</h3>
                    <div class="value">{{ms $s.ElapsedMs}} ms</div>
                </div>
                <div class="card">
                    <h3>Messages Processed</h3>
                    <div class="value">{{$s.TotalMessages}}</div>
                </div>
                <div class="card">
                    <h3>Average per Message</h3>
                    <div class="value">{{optionalMs $s.AverageMs $s.HasAverage}} ms</div>
                </div>
                <div class="card{{if not .Result.Completed}} warning{{end}}">
                    <h3>Reports</h3>
                    <div class="value">{{$s.Reports}}/{{$s.Expected}}</div>
                </div>
                <div class="card">
                    <h3>Shortest</h3>
                    <div class="value">{{optionalMs $s.MinLatencyMs $s.HasLatency}} ms</div>
                </div>
                <div class="card">
                    <h3>Longest</h3>
                    <div class="value">{{optionalMs $s.MaxLatencyMs $s.HasLatency}} ms</div>
                </div>
            </div>

            {{if .History}}
            <div class="section">
                <h2>Throughput Over Time</h2>
                <div id="rate-chart" class="chart"></div>
                <div id="processed-chart" class="chart"></div>
            </div>
            {{end}}

            {{if .ThresholdSummary}}
            <div class="section">
                <h2>Thresholds ({{.ThresholdSummary.Passed}}/{{.ThresholdSummary.Total}} Passed)</h2>
                <table>
                    <thead>
                        <tr><th>Threshold</th><th>Metric</th><th>Expected</th><th>Actual</th><th>Status</th></tr>
                    </thead>
                    <tbody>
                        {{range .ThresholdSummary.Results}}
                        <tr>
                            <td>{{.Threshold}}</td>
                            <td>{{.Metric}} ({{.Aggregate}})</td>
                            <td>{{.Operator}} {{formatFloat .Expected}}</td>
                            <td>{{formatFloat .Actual}}</td>
                            <td>{{if .Pass}}<span class="badge badge-success">PASS</span>{{else}}<span class="badge badge-error">FAIL</span>{{end}}</td>
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            {{if $s.Consumers}}
            <div class="section">
                <h2>Consumer Breakdown</h2>
                <table>
                    <thead>
                        <tr><th>Consumer</th><th>Processed</th><th>Min</th><th>Max</th><th>Mean</th><th>P50</th><th>P99</th></tr>
                    </thead>
                    <tbody>
                        {{range $s.Consumers}}
                        <tr>
                            <td><strong>{{.Name}}</strong>{{if .Priority}} <span class="badge">priority</span>{{end}}</td>
                            <td>{{.Processed}}</td>
                            {{if .Latency.HasLatency}}
                            <td>{{ms .Latency.MinMs}} ms</td>
                            <td>{{ms .Latency.MaxMs}} ms</td>
                            <td>{{ms .Latency.MeanMs}} ms</td>
                            <td>{{ms .Latency.P50Ms}} ms</td>
                            <td>{{ms .Latency.P99Ms}} ms</td>
                            {{else}}
                            <td colspan="5">undefined</td>
                            {{end}}
                        </tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}

            {{if .Result.Producers}}
            <div class="section">
                <h2>Producer Breakdown</h2>
                <table>
                    <thead>
                        <tr><th>Producer</th><th>Sent</th><th>Targets</th></tr>
                    </thead>
                    <tbody>
                        {{range .Result.Producers}}
                        <tr><td><strong>{{.Name}}</strong></td><td>{{.Sent}}</td><td>{{.Targets}}</td></tr>
                        {{end}}
                    </tbody>
                </table>
            </div>
            {{end}}
        </div>
    </div>

    {{if .History}}
    <script>
        const history = JSON.parse({{.HistoryJSON}});
        if (history && history.length > 0) {
            const seconds = history.map(d => d.elapsed_ms / 1000);
            new uPlot({
                title: "Messages Processed Per Second",
                width: document.getElementById('rate-chart').offsetWidth,
                height: 300,
                scales: { x: { time: false } },
                series: [
                    { label: "Time (s)" },
                    { label: "msg/s", stroke: "#b83232", fill: "rgba(184, 50, 50, 0.1)", width: 2 }
                ]
            }, [seconds, history.map(d => d.rate)], document.getElementById('rate-chart'));
            new uPlot({
                title: "Delivered vs Processed",
                width: document.getElementById('processed-chart').offsetWidth,
                height: 300,
                scales: { x: { time: false } },
                series: [
                    { label: "Time (s)" },
                    { label: "Delivered", stroke: "#3e4c59", width: 2 },
                    { label: "Processed", stroke: "#10b981", width: 2 },
                    { label: "Buffered", stroke: "#f59e0b", width: 2 }
                ]
            }, [seconds, history.map(d => d.delivered), history.map(d => d.processed), history.map(d => d.buffered)],
               document.getElementById('processed-chart'));
        }
    </script>
    {{end}}
</body>
</html>
`
