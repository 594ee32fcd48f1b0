package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/torosent/spamfire/internal/experiment"
	"github.com/torosent/spamfire/internal/metrics"
	"github.com/torosent/spamfire/internal/threshold"
)

const undefined = "undefined"

// PrintSummary writes the coordinator's end-of-run lines.
func PrintSummary(w io.Writer, s metrics.Summary) {
	fmt.Fprintf(w, "Execution time: %sms\n", formatMs(s.ElapsedMs))
	fmt.Fprintf(w, "Num of Messages: %d Average time to process 1 spam msg: %sms\n",
		s.TotalMessages, optionalMs(s.AverageMs, s.HasAverage))
	fmt.Fprintf(w, "Shortest time to process 1 spam msg: %sms\n", optionalMs(s.MinLatencyMs, s.HasLatency))
	fmt.Fprintf(w, "Longest time to process 1 spam msg: %sms\n", optionalMs(s.MaxLatencyMs, s.HasLatency))
}

// PrintReport outputs a human-readable report: the summary lines followed by
// per-consumer, per-producer and transport breakdowns.
func PrintReport(w io.Writer, res experiment.Result) {
	s := res.Summary
	fmt.Fprintln(w, "\n--- Experiment Results ---")
	if s.RunID != "" {
		fmt.Fprintf(w, "Run:               %s\n", s.RunID)
	}
	fmt.Fprintf(w, "Reports:           %d/%d\n", s.Reports, s.Expected)
	if !res.Completed {
		fmt.Fprintln(w, "Status:            incomplete")
	}
	PrintSummary(w, s)

	if len(s.Consumers) > 0 {
		fmt.Fprintln(w, "\nConsumer Breakdown:")
		for _, c := range s.Consumers {
			kind := ""
			if c.Priority {
				kind = " (priority)"
			}
			fmt.Fprintf(w, "  - %s%s: processed=%d", c.Name, kind, c.Processed)
			if c.Latency.HasLatency {
				fmt.Fprintf(w, ", min=%sms, max=%sms, mean=%sms, p50=%sms, p99=%sms",
					formatMs(c.Latency.MinMs), formatMs(c.Latency.MaxMs), formatMs(c.Latency.MeanMs),
					formatMs(c.Latency.P50Ms), formatMs(c.Latency.P99Ms))
			}
			fmt.Fprintln(w)
			if len(c.PerSender) > 0 {
				senders := make([]string, 0, len(c.PerSender))
				for name := range c.PerSender {
					senders = append(senders, name)
				}
				sort.Strings(senders)
				for _, name := range senders {
					fmt.Fprintf(w, "      %s: %d\n", name, c.PerSender[name])
				}
			}
		}
	}

	if len(res.Producers) > 0 {
		fmt.Fprintln(w, "\nProducer Breakdown:")
		for _, p := range res.Producers {
			fmt.Fprintf(w, "  - %s: sent=%d, targets=%d\n", p.Name, p.Sent, p.Targets)
		}
	}

	t := res.Transport
	fmt.Fprintln(w, "\nTransport:")
	fmt.Fprintf(w, "  Sent:            %d\n", t.MessagesSent)
	fmt.Fprintf(w, "  Delivered:       %d\n", t.MessagesDelivered)
	if t.MessagesDropped > 0 {
		fmt.Fprintf(w, "  Dropped:         %d\n", t.MessagesDropped)
	}
}

// PrintThresholds outputs one line per evaluated threshold.
func PrintThresholds(w io.Writer, results []threshold.Result) {
	if len(results) == 0 {
		return
	}
	summary := SummarizeThresholds(results)
	fmt.Fprintf(w, "\nThresholds (%d/%d passed):\n", summary.Passed, summary.Total)
	for _, r := range results {
		fmt.Fprintf(w, "  %s\n", r.Message)
	}
}

// JSONReport is the machine-readable report body.
type JSONReport struct {
	Result     experiment.Result `json:"result" yaml:"result"`
	Thresholds *ThresholdSummary `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, res experiment.Result, results []threshold.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(JSONReport{Result: res, Thresholds: SummarizeThresholds(results)})
}

// PrintYAMLReport outputs the same document as PrintJSONReport in YAML.
func PrintYAMLReport(w io.Writer, res experiment.Result, results []threshold.Result) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(JSONReport{Result: res, Thresholds: SummarizeThresholds(results)}); err != nil {
		return err
	}
	return enc.Close()
}

// ThresholdSummary counts passes and failures.
type ThresholdSummary struct {
	Total   int                   `json:"total" yaml:"total"`
	Passed  int                   `json:"passed" yaml:"passed"`
	Failed  int                   `json:"failed" yaml:"failed"`
	Results []ThresholdResultJSON `json:"results" yaml:"results"`
}

// ThresholdResultJSON is the serialized form of a threshold.Result.
type ThresholdResultJSON struct {
	Threshold string  `json:"threshold" yaml:"threshold"`
	Metric    string  `json:"metric" yaml:"metric"`
	Aggregate string  `json:"aggregate" yaml:"aggregate"`
	Operator  string  `json:"operator" yaml:"operator"`
	Expected  float64 `json:"expected" yaml:"expected"`
	Actual    float64 `json:"actual" yaml:"actual"`
	Pass      bool    `json:"pass" yaml:"pass"`
}

// SummarizeThresholds returns nil when there are no results.
func SummarizeThresholds(results []threshold.Result) *ThresholdSummary {
	if len(results) == 0 {
		return nil
	}
	summary := &ThresholdSummary{
		Total:   len(results),
		Results: make([]ThresholdResultJSON, len(results)),
	}
	for i, tr := range results {
		summary.Results[i] = ThresholdResultJSON{
			Threshold: tr.Threshold.Raw,
			Metric:    tr.Threshold.Metric,
			Aggregate: tr.Threshold.Aggregate,
			Operator:  tr.Threshold.Operator,
			Expected:  tr.Threshold.Value,
			Actual:    tr.Actual,
			Pass:      tr.Pass,
		}
		if tr.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}
	return summary
}

func formatMs(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func optionalMs(v float64, ok bool) string {
	if !ok {
		return undefined
	}
	return formatMs(v)
}
