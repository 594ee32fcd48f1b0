package config

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

func TestAsInt(t *testing.T) {
	tests := []struct {
		input any
		want  int
	}{
		{123, 123},
		{" 456 ", 456},
		{int64(789), 789},
		{float64(10.0), 10},
		{"", 0},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asInt(tt.input)
		if err != nil {
			t.Errorf("asInt(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asInt(%v) = %d, want %d", tt.input, got, tt.want)
		}
	}

	if _, err := asInt("ten"); err == nil {
		t.Error("asInt(\"ten\") should fail")
	}
	if _, err := asInt([]int{1}); err == nil {
		t.Error("asInt([]int) should fail")
	}
}

func TestAsBool(t *testing.T) {
	tests := []struct {
		input any
		want  bool
	}{
		{true, true},
		{"true", true},
		{"1", true},
		{false, false},
		{"0", false},
		{nil, false},
	}

	for _, tt := range tests {
		got, err := asBool(tt.input)
		if err != nil {
			t.Errorf("asBool(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asBool(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsDuration(t *testing.T) {
	tests := []struct {
		input any
		want  time.Duration
	}{
		{time.Second, time.Second},
		{"1m", time.Minute},
		{10, 10 * time.Second}, // bare numbers are seconds
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asDuration(tt.input)
		if err != nil {
			t.Errorf("asDuration(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asDuration(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsStringSlice(t *testing.T) {
	got, err := asStringSlice([]any{"a", 2, true})
	if err != nil {
		t.Fatalf("asStringSlice() error = %v", err)
	}
	if len(got) != 3 || got[0] != "a" || got[1] != "2" || got[2] != "true" {
		t.Errorf("asStringSlice() = %v", got)
	}
	if got, _ := asStringSlice("single"); len(got) != 1 || got[0] != "single" {
		t.Errorf("asStringSlice(string) = %v", got)
	}
}

func TestApplyConfigSettings(t *testing.T) {
	cfg := Defaults()
	settings := map[string]any{
		"producers":          3,
		"priority_consumers": "1",
		"payload-size":       64,
		"timeout":            "5s",
		"bare_report":        true,
		"role":               "consumer",
		"args":               "5,Spammer1",
		"thresholds":         []any{"spam_latency:max < 10"},
		"tracing": map[string]any{
			"Endpoint":    "localhost:4317",
			"sample_rate": 0.5,
			"propagate":   true,
		},
	}

	if err := applyConfigSettings(&cfg, settings); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}

	if cfg.Producers != 3 || cfg.PriorityConsumers != 1 || cfg.PayloadSize != 64 {
		t.Errorf("counts not applied: %+v", cfg)
	}
	if cfg.Consumers != Defaults().Consumers {
		t.Errorf("Consumers = %d, want default kept", cfg.Consumers)
	}
	if cfg.Timeout != 5*time.Second || !cfg.BareReport || cfg.Role != RoleConsumer {
		t.Errorf("scalars not applied: %+v", cfg)
	}
	if len(cfg.Args) != 2 || cfg.Args[0] != "5" || cfg.Args[1] != "Spammer1" {
		t.Errorf("Args = %v, want [5 Spammer1]", cfg.Args)
	}
	if len(cfg.Thresholds) != 1 {
		t.Errorf("Thresholds = %v", cfg.Thresholds)
	}
	if cfg.Tracing.Endpoint != "localhost:4317" || cfg.Tracing.SampleRate != 0.5 || !cfg.Tracing.Propagate {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if cfg.Tracing.Protocol != "grpc" {
		t.Errorf("Tracing.Protocol = %q, want default grpc kept", cfg.Tracing.Protocol)
	}
}

func TestApplyConfigSettingsRejectsBadTypes(t *testing.T) {
	tests := map[string]map[string]any{
		"int":      {"messages": "many"},
		"bool":     {"dashboard": "sometimes"},
		"duration": {"timeout": "soon"},
		"tracing":  {"tracing": "on"},
	}
	for name, settings := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Defaults()
			if err := applyConfigSettings(&cfg, settings); err == nil {
				t.Error("applyConfigSettings() succeeded, want error")
			}
		})
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := Defaults()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)

	args := []string{
		"--consumers=5",
		"-n", "42",
		"--role=priority-consumer",
		"--args=10,Spammer2",
		"--tracing-sample-rate=0.25",
		"--json-output",
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := applyFlagOverrides(&cfg, fs); err != nil {
		t.Fatalf("applyFlagOverrides() error = %v", err)
	}

	if cfg.Consumers != 5 || cfg.Messages != 42 {
		t.Errorf("counts = %d/%d, want 5/42", cfg.Consumers, cfg.Messages)
	}
	if cfg.Producers != Defaults().Producers {
		t.Errorf("unchanged flag overrode Producers: %d", cfg.Producers)
	}
	if cfg.Role != RolePriorityConsumer || len(cfg.Args) != 2 || cfg.Args[1] != "Spammer2" {
		t.Errorf("role/args = %q %v", cfg.Role, cfg.Args)
	}
	if cfg.Tracing.SampleRate != 0.25 || !cfg.JSONOutput {
		t.Errorf("tracing/json not applied: %+v", cfg)
	}
}

func TestRegisterFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "bench"}
	RegisterFlags(cmd)
	for _, name := range []string{"producers", "consumers", "priority-consumers", "messages", "role", "hub-url", "threshold", "tracing-propagate"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("flag %q not registered", name)
		}
	}
	if err := cmd.Flags().Parse([]string{"--producers", "7"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	cfg := Defaults()
	if err := applyFlagOverrides(&cfg, cmd.Flags()); err != nil {
		t.Fatalf("applyFlagOverrides() error = %v", err)
	}
	if cfg.Producers != 7 {
		t.Errorf("Producers = %d, want 7", cfg.Producers)
	}
}
