package threshold

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/torosent/spamfire/internal/metrics"
)

// Threshold represents a pass/fail assertion over a run summary.
type Threshold struct {
	Metric    string  // e.g. "spam_latency", "run_duration"
	Aggregate string  // e.g. "max", "avg", "count", "p99"
	Operator  string  // e.g. "<", "<=", ">", ">=", "=="
	Value     float64 // The threshold value to compare against
	Raw       string  // Original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

// Evaluator evaluates thresholds against a run summary.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks all thresholds against the provided summary.
func (e *Evaluator) Evaluate(summary metrics.Summary) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, e.evaluateOne(t, summary))
	}
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func (e *Evaluator) evaluateOne(t Threshold, summary metrics.Summary) Result {
	actual, err := extractMetricValue(t, summary)
	if err != nil {
		return Result{
			Threshold: t,
			Pass:      false,
			Message:   fmt.Sprintf("✗ %s: %v", t.Raw, err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	message := fmt.Sprintf("%s %s: %.3f %s %.3f", status, t.Raw, actual, t.Operator, t.Value)
	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   message,
	}
}

var thresholdPattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

var (
	validMetrics    = []string{"run_duration", "spam_messages", "spam_latency", "reports"}
	validAggregates = []string{"p50", "p90", "p99", "avg", "min", "max", "rate", "count", "ms"}
	validOperators  = []string{"<", "<=", ">", ">=", "=="}
)

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
// - "run_duration:ms < 2000"      (elapsed wall-clock time)
// - "spam_messages:count == 400"  (messages processed by all consumers)
// - "spam_messages:rate > 10000"  (messages per second)
// - "spam_latency:max < 5"        (slowest single message in ms; also min, avg, p50, p90, p99)
// - "reports:count == 4"          (completion reports collected)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric:aggregate operator value, e.g., 'spam_latency:max < 5')", s)
	}

	metric := matches[1]
	aggregate := matches[2]
	operator := matches[3]
	valueStr := matches[4]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	if !slices.Contains(validMetrics, metric) {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: %s)", metric, strings.Join(validMetrics, ", "))
	}
	if !slices.Contains(validAggregates, aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate: %q (supported: %s)", aggregate, strings.Join(validAggregates, ", "))
	}
	if !slices.Contains(validOperators, operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errs []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errs = append(errs, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errs, "; "))
	}

	return result, nil
}

func extractMetricValue(t Threshold, s metrics.Summary) (float64, error) {
	switch t.Metric {
	case "run_duration":
		if t.Aggregate != "ms" {
			return 0, fmt.Errorf("unsupported aggregate %q for run_duration (use 'ms')", t.Aggregate)
		}
		return s.ElapsedMs, nil
	case "spam_messages":
		return extractMessageMetric(t.Aggregate, s)
	case "spam_latency":
		return extractLatencyMetric(t.Aggregate, s)
	case "reports":
		if t.Aggregate != "count" {
			return 0, fmt.Errorf("unsupported aggregate %q for reports (use 'count')", t.Aggregate)
		}
		return float64(s.Reports), nil
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

func extractMessageMetric(aggregate string, s metrics.Summary) (float64, error) {
	switch aggregate {
	case "count":
		return float64(s.TotalMessages), nil
	case "rate":
		if s.ElapsedMs <= 0 {
			return 0, fmt.Errorf("rate undefined for a zero-length run")
		}
		return float64(s.TotalMessages) / (s.ElapsedMs / 1000), nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for spam_messages (use 'count' or 'rate')", aggregate)
	}
}

// extractLatencyMetric reads run-wide latency in milliseconds. Percentiles
// are the worst value across consumers.
func extractLatencyMetric(aggregate string, s metrics.Summary) (float64, error) {
	switch aggregate {
	case "avg":
		if !s.HasAverage {
			return 0, fmt.Errorf("average undefined: no messages processed")
		}
		return s.AverageMs, nil
	case "min", "max":
		if !s.HasLatency {
			return 0, fmt.Errorf("latency undefined: no consumer reported statistics")
		}
		if aggregate == "min" {
			return s.MinLatencyMs, nil
		}
		return s.MaxLatencyMs, nil
	case "p50", "p90", "p99":
		worst, ok := 0.0, false
		for _, c := range s.Consumers {
			if !c.Latency.HasLatency {
				continue
			}
			worst, ok = math.Max(worst, percentileMs(aggregate, c.Latency)), true
		}
		if !ok {
			return 0, fmt.Errorf("%s undefined: no per-consumer latency available", aggregate)
		}
		return worst, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for spam_latency", aggregate)
	}
}

func percentileMs(aggregate string, l metrics.LatencySnapshot) float64 {
	switch aggregate {
	case "p50":
		return l.P50Ms
	case "p90":
		return l.P90Ms
	default:
		return l.P99Ms
	}
}

func compareValues(actual float64, operator string, expected float64) bool {
	// Handle floating point comparison with small epsilon
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
