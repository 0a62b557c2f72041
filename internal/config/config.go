// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"icc.tech/pktbridge/internal/log"
	"icc.tech/pktbridge/internal/rules"
)

// Config is the top-level static configuration.
// Maps to the `pktbridge:` root key in YAML.
type Config struct {
	Control       ControlConfig     `mapstructure:"control"`
	Interfaces    []InterfaceConfig `mapstructure:"interfaces"`
	Rules         []rules.Spec      `mapstructure:"rules"`
	RulesFile     string            `mapstructure:"rules_file"` // Optional standalone rules file, appended after inline rules
	DefaultAction string            `mapstructure:"default_action"`
	Engine        EngineConfig      `mapstructure:"engine"`
	FlowTable     FlowTableConfig   `mapstructure:"flow_table"`
	Metrics       MetricsConfig     `mapstructure:"metrics"`
	Log           log.Config        `mapstructure:"log"`
}

// ControlConfig contains local control plane settings.
type ControlConfig struct {
	Socket  string `mapstructure:"socket"`
	PIDFile string `mapstructure:"pid_file"`
}

// Interface roles.
const (
	RoleIngress = "ingress"
	RoleEgress  = "egress"
)

// InterfaceConfig describes one attached network interface.
type InterfaceConfig struct {
	Name         string   `mapstructure:"name"`
	Backend      string   `mapstructure:"backend"` // afpacket | pcap
	Roles        []string `mapstructure:"roles"`   // ingress and/or egress
	Promiscuous  bool     `mapstructure:"promiscuous"`
	SnapLen      int      `mapstructure:"snaplen"`
	BufferSizeMB int      `mapstructure:"buffer_size_mb"` // Capture ring size (afpacket)
	BPF          string   `mapstructure:"bpf"`            // Optional kernel prefilter expression
}

// IsIngress reports whether the interface receives frames.
func (ic *InterfaceConfig) IsIngress() bool { return hasRole(ic.Roles, RoleIngress) }

// IsEgress reports whether the interface can be a forwarding target.
func (ic *InterfaceConfig) IsEgress() bool { return hasRole(ic.Roles, RoleEgress) }

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// EngineConfig tunes the forwarding data path.
type EngineConfig struct {
	QueueDepth      int           `mapstructure:"queue_depth"`      // Per-egress queue capacity
	SendRetries     int           `mapstructure:"send_retries"`     // Bounded retries on a full device queue
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`    // Pause between send retries
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"` // Drain budget on stop
	PollTimeout     time.Duration `mapstructure:"poll_timeout"`     // Receive poll interval per ingress worker
}

// FlowTableConfig sizes the per-flow decision cache. Capacity 0 disables it.
type FlowTableConfig struct {
	Capacity int `mapstructure:"capacity"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// configRoot is the top-level wrapper matching the YAML structure `pktbridge: ...`.
type configRoot struct {
	PktBridge Config `mapstructure:"pktbridge"`
}

// Load loads configuration from file.
// The YAML file uses `pktbridge:` as root key; env vars override via the
// key replacer (e.g. key "pktbridge.log.level" → env "PKTBRIDGE_LOG_LEVEL").
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.PktBridge

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use the "pktbridge." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Control defaults
	v.SetDefault("pktbridge.control.socket", "/var/run/pktbridge.sock")
	v.SetDefault("pktbridge.control.pid_file", "/var/run/pktbridge.pid")

	// Engine defaults
	v.SetDefault("pktbridge.engine.queue_depth", 1024)
	v.SetDefault("pktbridge.engine.send_retries", 3)
	v.SetDefault("pktbridge.engine.retry_backoff", "1ms")
	v.SetDefault("pktbridge.engine.shutdown_timeout", "5s")
	v.SetDefault("pktbridge.engine.poll_timeout", "100ms")

	// Flow table defaults
	v.SetDefault("pktbridge.flow_table.capacity", 8192)

	// Metrics defaults
	v.SetDefault("pktbridge.metrics.enabled", true)
	v.SetDefault("pktbridge.metrics.listen", ":9091")
	v.SetDefault("pktbridge.metrics.path", "/metrics")

	// Log defaults
	v.SetDefault("pktbridge.log.level", "info")
	v.SetDefault("pktbridge.log.format", "json")
	v.SetDefault("pktbridge.log.file.enabled", false)
	v.SetDefault("pktbridge.log.file.path", "/var/log/pktbridge/pktbridge.log")
	v.SetDefault("pktbridge.log.file.max_size_mb", 100)
	v.SetDefault("pktbridge.log.file.max_age_days", 30)
	v.SetDefault("pktbridge.log.file.max_backups", 5)
	v.SetDefault("pktbridge.log.file.compress", true)
}

// ValidateAndApplyDefaults validates configuration and applies runtime
// defaults. Rule semantics are validated later by rules.Compile; this
// catches topology and tuning errors.
func (cfg *Config) ValidateAndApplyDefaults() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}

	if len(cfg.Interfaces) == 0 {
		return fmt.Errorf("at least one interface is required")
	}

	seen := make(map[string]bool, len(cfg.Interfaces))
	anyIngress, anyEgress := false, false
	for i := range cfg.Interfaces {
		ic := &cfg.Interfaces[i]
		if ic.Name == "" {
			return fmt.Errorf("interfaces[%d]: name is required", i)
		}
		if seen[ic.Name] {
			return fmt.Errorf("interface %q configured twice", ic.Name)
		}
		seen[ic.Name] = true

		switch ic.Backend {
		case "":
			ic.Backend = "afpacket"
		case "afpacket", "pcap":
		default:
			return fmt.Errorf("interface %q: unknown backend %q (must be afpacket/pcap)", ic.Name, ic.Backend)
		}

		if len(ic.Roles) == 0 {
			ic.Roles = []string{RoleIngress, RoleEgress}
		}
		for _, role := range ic.Roles {
			if role != RoleIngress && role != RoleEgress {
				return fmt.Errorf("interface %q: unknown role %q (must be ingress/egress)", ic.Name, role)
			}
		}
		anyIngress = anyIngress || ic.IsIngress()
		anyEgress = anyEgress || ic.IsEgress()

		if ic.SnapLen == 0 {
			ic.SnapLen = 65535
		}
		if ic.BufferSizeMB == 0 {
			ic.BufferSizeMB = 8
		}
	}
	if !anyIngress {
		return fmt.Errorf("no interface has the ingress role")
	}
	if !anyEgress {
		return fmt.Errorf("no interface has the egress role")
	}

	if cfg.DefaultAction == "" {
		return fmt.Errorf("default_action must be set explicitly (drop or forward-all)")
	}
	if cfg.DefaultAction != rules.DefaultDrop && cfg.DefaultAction != rules.DefaultForwardAll {
		return fmt.Errorf("invalid default_action: %s (must be drop/forward-all)", cfg.DefaultAction)
	}

	if cfg.Engine.QueueDepth <= 0 {
		return fmt.Errorf("engine.queue_depth must be positive")
	}
	if cfg.Engine.SendRetries < 0 {
		return fmt.Errorf("engine.send_retries must not be negative")
	}
	if cfg.FlowTable.Capacity < 0 {
		return fmt.Errorf("flow_table.capacity must not be negative")
	}

	return nil
}

// Topology returns the interface map rule compilation runs against.
func (cfg *Config) Topology() rules.Interfaces {
	ifaces := make(rules.Interfaces, len(cfg.Interfaces))
	for i := range cfg.Interfaces {
		ifaces[cfg.Interfaces[i].Name] = cfg.Interfaces[i].IsEgress()
	}
	return ifaces
}

// InterfaceNames returns all configured interface names.
func (cfg *Config) InterfaceNames() []string {
	names := make([]string, 0, len(cfg.Interfaces))
	for i := range cfg.Interfaces {
		names = append(names, cfg.Interfaces[i].Name)
	}
	return names
}

// EffectiveRules returns the inline rules plus, when rules_file is set,
// the rules loaded from that file appended in order.
func (cfg *Config) EffectiveRules() ([]rules.Spec, error) {
	specs := make([]rules.Spec, len(cfg.Rules))
	copy(specs, cfg.Rules)

	if cfg.RulesFile != "" {
		fileSpecs, err := LoadRulesFile(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		specs = append(specs, fileSpecs...)
	}
	return specs, nil
}
