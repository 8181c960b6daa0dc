package daemon

import "github.com/buppyai/puppy-station/internal/config"

// StartOptions configures the daemon. Zero-valued overrides leave the config file (or the
// built-in default) in effect.
type StartOptions struct {
	Home        string
	Port        int
	Dev         bool
	PprofAddr   string
	DBDriver    string // "sqlite" or "postgres"
	DBURL       string // for postgres: connection string (or DATABASE_URL env)
	GRPCAddr    string // push stream listen address; "off" disables it
	DisableOtel bool   // serve without OpenTelemetry metrics and /metrics
	NoSimulator bool   // disable synthetic activity
	WatchPaths  []string
}

// Resolve loads the config file from Home and applies the overrides.
func (o StartOptions) Resolve() (config.Config, error) {
	cfg, err := config.Load(o.Home)
	if err != nil {
		return cfg, err
	}
	if o.Port != 0 {
		cfg.Server.Port = o.Port
	}
	if o.Dev {
		cfg.Server.Dev = true
	}
	if o.PprofAddr != "" {
		cfg.Server.Pprof = o.PprofAddr
	}
	if o.DBDriver != "" {
		cfg.Store.Driver = o.DBDriver
	}
	if o.DBURL != "" {
		cfg.Store.DSN = o.DBURL
	}
	switch o.GRPCAddr {
	case "":
	case "off":
		cfg.Server.GRPCAddr = ""
	default:
		cfg.Server.GRPCAddr = o.GRPCAddr
	}
	if o.DisableOtel {
		cfg.Server.Otel = false
	}
	if o.NoSimulator {
		cfg.Simulator.Enabled = false
	}
	if len(o.WatchPaths) > 0 {
		cfg.Watch.Paths = append(cfg.Watch.Paths, o.WatchPaths...)
	}
	return cfg, cfg.Validate()
}

// StatusInfo is the result of Status (running or not, PID, listen addresses).
type StatusInfo struct {
	Running  bool
	PID      int
	Addr     string
	GRPCAddr string
}
