package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/torosent/spamfire/internal/protocol"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "spamfire",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	d := Defaults()

	// Experiment shape
	flags.IntP("producers", "p", d.Producers, "Number of spamming producers")
	flags.IntP("consumers", "c", d.Consumers, "Number of baseline consumers")
	flags.Int("priority-consumers", 0, "Number of priority consumers")
	flags.IntP("messages", "n", d.Messages, "Messages each producer sends to each consumer")
	flags.Int("payload-size", d.PayloadSize, "Payload size in bytes")
	flags.IntP("rate", "r", 0, "Per-producer messages per second (0 means unlimited)")
	flags.String("priority-sender", "", "Producer served first by priority consumers (default: first producer)")
	flags.String("coordinator", protocol.DefaultCoordinator, "Coordinator agent name shared by every agent")
	flags.Bool("bare-report", false, "Consumers report a bare \"done\" without statistics")
	flags.Int("mailbox-capacity", 0, "Per-agent mailbox bound (0 means unbounded)")
	flags.Duration("timeout", 0, "Abort the run after this long (0 means no limit)")

	// Deployment
	flags.String("role", string(d.Role), "Process role: all, hub, producer, consumer, priority-consumer, master")
	flags.String("name", "", "Agent name for single-agent roles")
	flags.StringSlice("args", nil, "Agent arguments as comma-separated values (e.g. 5,Spammer1)")
	flags.String("listen", d.Listen, "Listen address for the hub role")
	flags.String("hub-url", "", "Hub websocket URL for single-agent roles (e.g. ws://127.0.0.1:7070/bus)")

	// Output flags
	flags.Bool("json-output", false, "Emit JSON formatted output")
	flags.Bool("yaml-output", false, "Emit YAML formatted output")
	flags.String("html-output", "", "Generate HTML report to the specified file path")
	flags.Bool("dashboard", false, "Show live terminal dashboard")
	flags.Bool("progress", false, "Print progress to stderr while running")
	flags.String("log-level", d.LogLevel, "Log level: debug, info, warn, error")
	flags.String("log-format", d.LogFormat, "Log format: text or json")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Threshold flags
	flags.StringSlice("threshold", nil, "Pass/fail thresholds (repeatable, e.g. 'spam_latency:max < 5')")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint (host:port)")
	flags.String("tracing-protocol", d.Tracing.Protocol, "OTLP protocol: grpc or http")
	flags.String("tracing-service-name", "", "Service name reported to the collector")
	flags.Float64("tracing-sample-rate", d.Tracing.SampleRate, "Trace sampling ratio between 0.0 and 1.0")
	flags.Bool("tracing-insecure", false, "Disable TLS for OTLP export")
	flags.Bool("tracing-propagate", false, "Carry trace context across the websocket bridge")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	ints := map[string]*int{
		"producers":          &cfg.Producers,
		"consumers":          &cfg.Consumers,
		"priority-consumers": &cfg.PriorityConsumers,
		"messages":           &cfg.Messages,
		"payload-size":       &cfg.PayloadSize,
		"rate":               &cfg.Rate,
		"mailbox-capacity":   &cfg.MailboxCapacity,
	}
	for name, dst := range ints {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetInt(name)
		if err != nil {
			return err
		}
		*dst = val
	}

	strs := map[string]*string{
		"priority-sender":      &cfg.PrioritySender,
		"coordinator":          &cfg.Coordinator,
		"name":                 &cfg.Name,
		"listen":               &cfg.Listen,
		"hub-url":              &cfg.HubURL,
		"html-output":          &cfg.HTMLOutput,
		"log-level":            &cfg.LogLevel,
		"log-format":           &cfg.LogFormat,
		"tracing-endpoint":     &cfg.Tracing.Endpoint,
		"tracing-protocol":     &cfg.Tracing.Protocol,
		"tracing-service-name": &cfg.Tracing.ServiceName,
	}
	for name, dst := range strs {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = strings.TrimSpace(val)
	}

	bools := map[string]*bool{
		"bare-report":       &cfg.BareReport,
		"json-output":       &cfg.JSONOutput,
		"yaml-output":       &cfg.YAMLOutput,
		"dashboard":         &cfg.Dashboard,
		"progress":          &cfg.Progress,
		"tracing-insecure":  &cfg.Tracing.Insecure,
		"tracing-propagate": &cfg.Tracing.Propagate,
	}
	for name, dst := range bools {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetBool(name)
		if err != nil {
			return err
		}
		*dst = val
	}

	if fs.Changed("timeout") {
		val, err := fs.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.Timeout = val
	}
	if fs.Changed("role") {
		val, err := fs.GetString("role")
		if err != nil {
			return err
		}
		cfg.Role = Role(val)
	}
	if fs.Changed("args") {
		val, err := fs.GetStringSlice("args")
		if err != nil {
			return err
		}
		cfg.Args = val
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}

	return nil
}
