// Package protocol defines the wire content exchanged between spamfire agents:
// the START trigger, the spam tag, and the completion report encoding.
package protocol

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	// ContentStart is sent by the coordinator to every producer.
	ContentStart = "start"
	// ContentDone prefixes every completion report.
	ContentDone = "done"
	// TagSpam marks payload messages.
	TagSpam = "spam"

	// DefaultCoordinator is the coordinator name used when none is configured.
	DefaultCoordinator = "ExperimentMasterAgent"

	// CapabilityProducer and CapabilityConsumer are the directory capabilities
	// agents register under.
	CapabilityProducer = "producer"
	CapabilityConsumer = "consumer"

	fieldSep    = "_"
	undefinedMs = "NaN"
)

// ErrMalformedReport is returned when report content cannot be decoded.
var ErrMalformedReport = errors.New("malformed completion report")

// Report is the content of a consumer's completion message.
type Report struct {
	Processed  int
	Min        time.Duration
	Max        time.Duration
	HasLatency bool
	// Bare reports carry no statistics.
	Bare bool
}

// EncodeReport renders r as "done_<n>_<minMs>_<maxMs>", or "done" for a bare report.
// Latency extremes are undefined when HasLatency is false and encode as NaN.
func EncodeReport(r Report) string {
	if r.Bare {
		return ContentDone
	}
	minMs, maxMs := undefinedMs, undefinedMs
	if r.HasLatency {
		minMs = formatMs(r.Min)
		maxMs = formatMs(r.Max)
	}
	return strings.Join([]string{ContentDone, strconv.Itoa(r.Processed), minMs, maxMs}, fieldSep)
}

// IsReport reports whether content is a completion report, bare or with
// statistics.
func IsReport(content string) bool {
	return content == ContentDone || strings.HasPrefix(content, ContentDone+fieldSep)
}

// DecodeReport parses report content produced by EncodeReport.
func DecodeReport(content string) (Report, error) {
	if content == ContentDone {
		return Report{Bare: true}, nil
	}

	parts := strings.Split(content, fieldSep)
	if len(parts) != 4 || parts[0] != ContentDone {
		return Report{}, fmt.Errorf("%w: %q", ErrMalformedReport, content)
	}

	processed, err := strconv.Atoi(parts[1])
	if err != nil || processed < 0 {
		return Report{}, fmt.Errorf("%w: processed count %q", ErrMalformedReport, parts[1])
	}

	minMs, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return Report{}, fmt.Errorf("%w: min latency %q", ErrMalformedReport, parts[2])
	}
	maxMs, err := strconv.ParseFloat(parts[3], 64)
	if err != nil {
		return Report{}, fmt.Errorf("%w: max latency %q", ErrMalformedReport, parts[3])
	}

	r := Report{Processed: processed}
	switch {
	case math.IsNaN(minMs) && math.IsNaN(maxMs):
		return r, nil
	case math.IsNaN(minMs) || math.IsNaN(maxMs):
		return Report{}, fmt.Errorf("%w: partially undefined latency in %q", ErrMalformedReport, content)
	case math.IsInf(minMs, 0) || math.IsInf(maxMs, 0) || minMs < 0 || maxMs < minMs:
		return Report{}, fmt.Errorf("%w: latency range [%s, %s]", ErrMalformedReport, parts[2], parts[3])
	}

	r.Min = parseMs(minMs)
	r.Max = parseMs(maxMs)
	r.HasLatency = true
	return r, nil
}

func formatMs(d time.Duration) string {
	return strconv.FormatFloat(float64(d)/float64(time.Millisecond), 'f', -1, 64)
}

func parseMs(ms float64) time.Duration {
	return time.Duration(math.Round(ms * float64(time.Millisecond)))
}
