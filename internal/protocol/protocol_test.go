package protocol

import (
	"errors"
	"testing"
	"time"
)

func TestEncodeReport(t *testing.T) {
	tests := []struct {
		name   string
		report Report
		want   string
	}{
		{
			name:   "with latency",
			report: Report{Processed: 10, Min: 1500 * time.Microsecond, Max: 3 * time.Millisecond, HasLatency: true},
			want:   "done_10_1.5_3",
		},
		{
			name:   "no messages",
			report: Report{},
			want:   "done_0_NaN_NaN",
		},
		{
			name:   "bare",
			report: Report{Processed: 4, Bare: true},
			want:   "done",
		},
		{
			name:   "sub-millisecond",
			report: Report{Processed: 1, Min: 250 * time.Microsecond, Max: 250 * time.Microsecond, HasLatency: true},
			want:   "done_1_0.25_0.25",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodeReport(tt.report); got != tt.want {
				t.Errorf("EncodeReport() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeReport(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    Report
		wantErr bool
	}{
		{
			name:    "statistics",
			content: "done_10_1.5_3",
			want:    Report{Processed: 10, Min: 1500 * time.Microsecond, Max: 3 * time.Millisecond, HasLatency: true},
		},
		{
			name:    "undefined latency",
			content: "done_0_NaN_NaN",
			want:    Report{},
		},
		{
			name:    "bare",
			content: "done",
			want:    Report{Bare: true},
		},
		{name: "too few fields", content: "done_10_1.5", wantErr: true},
		{name: "too many fields", content: "done_10_1_2_3", wantErr: true},
		{name: "wrong prefix", content: "finished_1_1_1", wantErr: true},
		{name: "bad count", content: "done_x_1_2", wantErr: true},
		{name: "negative count", content: "done_-1_1_2", wantErr: true},
		{name: "bad min", content: "done_1_a_2", wantErr: true},
		{name: "min above max", content: "done_1_3_2", wantErr: true},
		{name: "half undefined", content: "done_1_NaN_2", wantErr: true},
		{name: "empty", content: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeReport(tt.content)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedReport) {
					t.Fatalf("DecodeReport(%q) error = %v, want ErrMalformedReport", tt.content, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeReport(%q) error = %v", tt.content, err)
			}
			if got != tt.want {
				t.Errorf("DecodeReport(%q) = %+v, want %+v", tt.content, got, tt.want)
			}
		})
	}
}

func TestReportRoundTripPreservesExtremes(t *testing.T) {
	in := Report{Processed: 3, Min: 1234567 * time.Nanosecond, Max: 7654321 * time.Nanosecond, HasLatency: true}
	out, err := DecodeReport(EncodeReport(in))
	if err != nil {
		t.Fatalf("DecodeReport() error = %v", err)
	}
	if out != in {
		t.Errorf("round trip = %+v, want %+v", out, in)
	}
}

func TestIsReport(t *testing.T) {
	tests := []struct {
		content string
		want    bool
	}{
		{"done", true},
		{"done_1_1_1", true},
		{"done_0_NaN_NaN", true},
		{ContentStart, false},
		{"undone", false},
		{"abandoned_1", false},
		{"doneness", false},
	}
	for _, tt := range tests {
		if got := IsReport(tt.content); got != tt.want {
			t.Errorf("IsReport(%q) = %v, want %v", tt.content, got, tt.want)
		}
	}
}
