package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Role selects what a spamfire process runs.
type Role string

const (
	// RoleAll runs a complete experiment in one process.
	RoleAll Role = "all"
	// RoleHub serves the message hub and directory over websocket.
	RoleHub Role = "hub"
	// The remaining roles run one agent attached to a remote hub.
	RoleProducer         Role = "producer"
	RoleConsumer         Role = "consumer"
	RolePriorityConsumer Role = "priority-consumer"
	RoleMaster           Role = "master"
)

// Remote reports whether r runs a single agent against a remote hub.
func (r Role) Remote() bool {
	switch r {
	case RoleProducer, RoleConsumer, RolePriorityConsumer, RoleMaster:
		return true
	default:
		return false
	}
}

type Config struct {
	Producers         int           `mapstructure:"producers"`
	Consumers         int           `mapstructure:"consumers"`
	PriorityConsumers int           `mapstructure:"priority_consumers"`
	Messages          int           `mapstructure:"messages"`
	PayloadSize       int           `mapstructure:"payload_size"`
	Rate              int           `mapstructure:"rate"`
	PrioritySender    string        `mapstructure:"priority_sender"`
	Coordinator       string        `mapstructure:"coordinator"`
	BareReport        bool          `mapstructure:"bare_report"`
	MailboxCapacity   int           `mapstructure:"mailbox_capacity"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Role              Role          `mapstructure:"role"`
	Name              string        `mapstructure:"name"`
	Args              []string      `mapstructure:"args"`
	Listen            string        `mapstructure:"listen"`
	HubURL            string        `mapstructure:"hub_url"`
	JSONOutput        bool          `mapstructure:"json_output"`
	YAMLOutput        bool          `mapstructure:"yaml_output"`
	HTMLOutput        string        `mapstructure:"html_output"`
	Dashboard         bool          `mapstructure:"dashboard"`
	Progress          bool          `mapstructure:"progress"`
	LogLevel          string        `mapstructure:"log_level"`
	LogFormat         string        `mapstructure:"log_format"`
	Thresholds        []string      `mapstructure:"thresholds"`
	Tracing           TracingConfig `mapstructure:"tracing"`
	ConfigFile        string        `mapstructure:"-"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   bool    `mapstructure:"propagate"` // carry trace context across the websocket bridge
}

// Enabled reports whether any tracing feature is configured.
func (t TracingConfig) Enabled() bool {
	return t.Endpoint != "" || t.Propagate || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate reports whether trace context is injected into bridged frames.
func (t TracingConfig) ShouldPropagate() bool {
	return t.Propagate
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// heavyRun is the per-run delivery count above which a warning is printed.
const heavyRun = 10_000_000

func (c Config) Validate() error {
	var issues []string

	if c.Producers < 0 {
		issues = append(issues, "producers must be >= 0")
	}
	if c.Consumers < 0 {
		issues = append(issues, "consumers must be >= 0")
	}
	if c.PriorityConsumers < 0 {
		issues = append(issues, "priority_consumers must be >= 0")
	}
	if c.Messages < 1 {
		issues = append(issues, "messages must be >= 1")
	}
	if c.PayloadSize < 0 {
		issues = append(issues, "payload_size must be >= 0")
	}
	if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	if c.MailboxCapacity < 0 {
		issues = append(issues, "mailbox_capacity must be >= 0")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if strings.TrimSpace(c.Coordinator) == "" {
		issues = append(issues, "coordinator name is required")
	}
	if c.Dashboard && c.JSONOutput {
		issues = append(issues, "dashboard and json-output are mutually exclusive")
	}
	if c.JSONOutput && c.YAMLOutput {
		issues = append(issues, "json-output and yaml-output are mutually exclusive")
	}

	issues = append(issues, validateRole(c)...)
	issues = append(issues, validateLogging(c.LogLevel, c.LogFormat)...)
	issues = append(issues, validateTracingConfig(c.Tracing)...)

	total := int64(c.Producers) * int64(c.Consumers+c.PriorityConsumers) * int64(c.Messages)
	if c.Role == RoleAll && total > heavyRun {
		fmt.Fprintf(os.Stderr, "WARNING: %d spam messages per run configured. Expect high memory use with unbounded mailboxes.\n", total)
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateRole(c Config) []string {
	var issues []string
	switch c.Role {
	case RoleAll:
	case RoleHub:
		if strings.TrimSpace(c.Listen) == "" {
			issues = append(issues, "hub: listen address is required")
		}
	case RoleProducer, RoleConsumer, RolePriorityConsumer, RoleMaster:
		if strings.TrimSpace(c.HubURL) == "" {
			issues = append(issues, fmt.Sprintf("%s: hub_url is required", c.Role))
		}
		if c.Role != RoleMaster && strings.TrimSpace(c.Name) == "" {
			issues = append(issues, fmt.Sprintf("%s: name is required", c.Role))
		}
	default:
		issues = append(issues, fmt.Sprintf("role: must be one of all, hub, producer, consumer, priority-consumer, master; got %q", c.Role))
	}
	if c.Dashboard && c.Role != RoleAll {
		issues = append(issues, "dashboard is only available with role all")
	}
	return issues
}

func validateLogging(level, format string) []string {
	var issues []string
	switch strings.ToLower(level) {
	case "", "debug", "info", "warn", "error":
	default:
		issues = append(issues, fmt.Sprintf("log_level: must be debug, info, warn or error, got %q", level))
	}
	switch strings.ToLower(format) {
	case "", "text", "json":
	default:
		issues = append(issues, fmt.Sprintf("log_format: must be text or json, got %q", format))
	}
	return issues
}

func validateTracingConfig(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing: sample_rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	if t.Insecure && t.Endpoint != "" {
		fmt.Fprintln(os.Stderr, "WARNING: OTLP export without TLS (insecure: true). Use only on trusted networks.")
	}
	return issues
}
