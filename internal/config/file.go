package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/buppyai/puppy-station/internal/store"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config file names, tried in order inside the home directory.
var FileNames = []string{"config.yaml", "config.yml", "config.toml"}

// Duration is a time.Duration that reads and writes Go duration strings ("500ms", "30s").
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) { return d.String(), nil }

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	return d.UnmarshalText([]byte(n.Value))
}

type ServerConfig struct {
	Port     int    `yaml:"port" toml:"port"`
	Dev      bool   `yaml:"dev" toml:"dev"`
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr"`
	Otel     bool   `yaml:"otel" toml:"otel"`
	Pprof    string `yaml:"pprof,omitempty" toml:"pprof,omitempty"`
}

type StoreConfig struct {
	Driver            string `yaml:"driver" toml:"driver"`
	DSN               string `yaml:"dsn,omitempty" toml:"dsn,omitempty"`
	PerAgentRetention int    `yaml:"per_agent_retention" toml:"per_agent_retention"`
	GlobalRetention   int    `yaml:"global_retention" toml:"global_retention"`
	DefaultLimit      int    `yaml:"default_limit" toml:"default_limit"`
}

// Options converts the retention settings for the store.
func (s StoreConfig) Options() store.Options {
	return store.Options{
		PerAgentRetention: s.PerAgentRetention,
		GlobalRetention:   s.GlobalRetention,
		DefaultLimit:      s.DefaultLimit,
	}.WithDefaults()
}

type FleetConfig struct {
	// Seed replaces the built-in fleet when non-empty.
	Seed []store.NewAgent `yaml:"seed,omitempty" toml:"seed,omitempty"`
}

// WatchRule maps a changed path containing Match to an agent and activity type.
type WatchRule struct {
	Match string `yaml:"match" toml:"match"`
	Agent string `yaml:"agent" toml:"agent"`
	Type  string `yaml:"type" toml:"type"`
}

type WatchConfig struct {
	Paths    []string    `yaml:"paths,omitempty" toml:"paths,omitempty"`
	Rules    []WatchRule `yaml:"rules,omitempty" toml:"rules,omitempty"`
	Debounce Duration    `yaml:"debounce" toml:"debounce"`
}

type SimulatorConfig struct {
	Enabled  bool     `yaml:"enabled" toml:"enabled"`
	Interval Duration `yaml:"interval" toml:"interval"`
}

type MetricsConfig struct {
	Enabled  bool     `yaml:"enabled" toml:"enabled"`
	Interval Duration `yaml:"interval" toml:"interval"`
}

type NotifyConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url,omitempty" toml:"slack_webhook_url,omitempty"`
	// MinPriority is the lowest review priority that triggers an alert (default high).
	MinPriority string `yaml:"min_priority" toml:"min_priority"`
}

// Config is the daemon configuration. Load starts from Default and overlays the file.
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Store     StoreConfig     `yaml:"store" toml:"store"`
	Fleet     FleetConfig     `yaml:"fleet" toml:"fleet"`
	Watch     WatchConfig     `yaml:"watch" toml:"watch"`
	Simulator SimulatorConfig `yaml:"simulator" toml:"simulator"`
	Metrics   MetricsConfig   `yaml:"metrics" toml:"metrics"`
	Notify    NotifyConfig    `yaml:"notify" toml:"notify"`

	// Path is the file the config was read from; empty when defaults were used.
	Path string `yaml:"-" toml:"-"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{Port: 3548, GRPCAddr: "127.0.0.1:3549", Otel: true},
		Store: StoreConfig{
			Driver:            "sqlite",
			PerAgentRetention: store.DefaultPerAgentRetention,
			GlobalRetention:   store.DefaultGlobalRetention,
			DefaultLimit:      store.DefaultLimit,
		},
		Watch:     WatchConfig{Debounce: Duration(500 * time.Millisecond)},
		Simulator: SimulatorConfig{Enabled: true, Interval: Duration(30 * time.Second)},
		Metrics:   MetricsConfig{Enabled: true, Interval: Duration(5 * time.Second)},
		Notify:    NotifyConfig{MinPriority: string(store.PriorityHigh)},
	}
}

// Load reads the first config file found in home. A missing file yields Default().
func Load(home string) (Config, error) {
	cfg := Default()
	for _, name := range FileNames {
		path := filepath.Join(home, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return cfg, err
		}
		if err := decode(path, data, &cfg); err != nil {
			return cfg, fmt.Errorf("config %s: %w", path, err)
		}
		cfg.Path = path
		break
	}
	return cfg, cfg.Validate()
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.HasSuffix(path, ".toml") {
		return toml.Unmarshal(data, cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate rejects settings the daemon cannot start with.
func (c Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("store.driver must be sqlite or postgres (got %q)", c.Store.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if _, err := store.ParsePriority(c.Notify.MinPriority); err != nil {
		return fmt.Errorf("notify.min_priority: %w", err)
	}
	for i, r := range c.Watch.Rules {
		if r.Match == "" || r.Agent == "" {
			return fmt.Errorf("watch.rules[%d]: match and agent are required", i)
		}
	}
	return nil
}

// YAML renders the effective configuration.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
