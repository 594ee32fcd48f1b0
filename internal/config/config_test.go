package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/torosent/spamfire/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.NewLoader().Load([]string{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Producers != 2 || cfg.Consumers != 2 || cfg.PriorityConsumers != 0 {
		t.Errorf("agent counts = %d/%d/%d, want 2/2/0", cfg.Producers, cfg.Consumers, cfg.PriorityConsumers)
	}
	if cfg.Messages != 100 || cfg.PayloadSize != 3 {
		t.Errorf("Messages/PayloadSize = %d/%d, want 100/3", cfg.Messages, cfg.PayloadSize)
	}
	if cfg.Coordinator != "ExperimentMasterAgent" {
		t.Errorf("Coordinator = %q", cfg.Coordinator)
	}
	if cfg.Role != config.RoleAll {
		t.Errorf("Role = %q, want all", cfg.Role)
	}
	if cfg.Timeout != 0 || cfg.Rate != 0 || cfg.MailboxCapacity != 0 {
		t.Errorf("limits should default to zero: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadHelp(t *testing.T) {
	_, err := config.NewLoader().Load([]string{"--help"})
	if !errors.Is(err, config.ErrHelpRequested) {
		t.Fatalf("Load(--help) error = %v, want ErrHelpRequested", err)
	}
}

func TestLoadUnknownFlag(t *testing.T) {
	if _, err := config.NewLoader().Load([]string{"--target=http://x"}); err == nil {
		t.Fatal("Load() accepted an unknown flag")
	}
}

func TestLoadConfigFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spamfire.yaml")
	content := `
producers: 4
consumers: 1
priority_consumers: 2
messages: 250
payload_size: 16
priority_sender: Spammer3
mailbox_capacity: 64
timeout: 30s
thresholds:
  - "spam_latency:max < 5"
  - "reports:count == 3"
tracing:
  endpoint: collector:4318
  protocol: http
  insecure: true
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.NewLoader().Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ConfigFile != path {
		t.Errorf("ConfigFile = %q", cfg.ConfigFile)
	}
	if cfg.Producers != 4 || cfg.Consumers != 1 || cfg.PriorityConsumers != 2 {
		t.Errorf("agent counts = %d/%d/%d", cfg.Producers, cfg.Consumers, cfg.PriorityConsumers)
	}
	if cfg.Messages != 250 || cfg.PayloadSize != 16 || cfg.MailboxCapacity != 64 {
		t.Errorf("sizes = %+v", cfg)
	}
	if cfg.PrioritySender != "Spammer3" || cfg.Timeout != 30*time.Second {
		t.Errorf("PrioritySender/Timeout = %q/%s", cfg.PrioritySender, cfg.Timeout)
	}
	if len(cfg.Thresholds) != 2 {
		t.Errorf("Thresholds = %v", cfg.Thresholds)
	}
	if cfg.Tracing.Endpoint != "collector:4318" || cfg.Tracing.Protocol != "http" || !cfg.Tracing.Insecure {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if !cfg.Tracing.Enabled() {
		t.Error("tracing with an endpoint should be enabled")
	}
}

func TestLoadFlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spamfire.json")
	if err := os.WriteFile(path, []byte(`{"producers": 5, "messages": 10, "role": "all"}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.NewLoader().Load([]string{"--config", path, "--messages=20", "--role", " HUB "})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Producers != 5 {
		t.Errorf("Producers = %d, want 5 from file", cfg.Producers)
	}
	if cfg.Messages != 20 {
		t.Errorf("Messages = %d, want 20 from flag", cfg.Messages)
	}
	if cfg.Role != config.RoleHub {
		t.Errorf("Role = %q, want normalized hub", cfg.Role)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	if _, err := config.NewLoader().Load([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Fatal("Load() succeeded with a missing config file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() config.Config {
		return config.Defaults()
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"negative producers", func(c *config.Config) { c.Producers = -1 }, "producers must be >= 0"},
		{"zero messages", func(c *config.Config) { c.Messages = 0 }, "messages must be >= 1"},
		{"negative payload", func(c *config.Config) { c.PayloadSize = -1 }, "payload_size must be >= 0"},
		{"negative rate", func(c *config.Config) { c.Rate = -5 }, "rate must be >= 0"},
		{"negative timeout", func(c *config.Config) { c.Timeout = -time.Second }, "timeout must be >= 0"},
		{"empty coordinator", func(c *config.Config) { c.Coordinator = " " }, "coordinator name is required"},
		{"dashboard and json", func(c *config.Config) { c.Dashboard, c.JSONOutput = true, true }, "mutually exclusive"},
		{"unknown role", func(c *config.Config) { c.Role = "observer" }, "role: must be one of"},
		{"hub without listen", func(c *config.Config) { c.Role, c.Listen = config.RoleHub, "" }, "listen address is required"},
		{"consumer without hub", func(c *config.Config) { c.Role, c.Name = config.RoleConsumer, "Consumer1" }, "hub_url is required"},
		{"producer without name", func(c *config.Config) { c.Role, c.HubURL = config.RoleProducer, "ws://x" }, "name is required"},
		{"remote dashboard", func(c *config.Config) {
			c.Role, c.HubURL, c.Dashboard = config.RoleMaster, "ws://x", true
		}, "dashboard is only available"},
		{"log level", func(c *config.Config) { c.LogLevel = "trace" }, "log_level"},
		{"log format", func(c *config.Config) { c.LogFormat = "xml" }, "log_format"},
		{"tracing protocol", func(c *config.Config) { c.Tracing.Protocol = "udp" }, "tracing: protocol"},
		{"sample rate", func(c *config.Config) { c.Tracing.SampleRate = 2 }, "sample_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			var verr config.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error = %v, want ValidationError", err)
			}
			if !strings.Contains(strings.Join(verr.Issues(), "; "), tt.want) {
				t.Errorf("issues %v do not mention %q", verr.Issues(), tt.want)
			}
		})
	}
}

func TestValidateMasterNeedsNoName(t *testing.T) {
	cfg := config.Defaults()
	cfg.Role = config.RoleMaster
	cfg.HubURL = "ws://127.0.0.1:7070/bus"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if !cfg.Role.Remote() || config.RoleAll.Remote() || config.RoleHub.Remote() {
		t.Error("Remote() misclassifies roles")
	}
}
