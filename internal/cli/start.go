package cli

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/buppyai/puppy-station/internal/config"
	"github.com/buppyai/puppy-station/internal/daemon"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// startFlags are shared by start and the hidden daemon command, so backgrounding
// round-trips every override.
type startFlags struct {
	opts daemon.StartOptions
	otel bool
}

func (f *startFlags) bind(fs *pflag.FlagSet) {
	fs.IntVar(&f.opts.Port, "port", 0, "Port for the web UI and API (default: config server.port, 3548)")
	fs.BoolVar(&f.opts.Dev, "dev", false, "Enable dev mode (serve UI from disk)")
	fs.StringVar(&f.opts.PprofAddr, "pprof", "", "Enable pprof on address (e.g. 127.0.0.1:6060)")
	fs.StringVar(&f.opts.DBDriver, "db-driver", "", "Store driver: sqlite or postgres (default: config store.driver)")
	fs.StringVar(&f.opts.DBURL, "db-url", "", "DB connection string (for postgres; or set DATABASE_URL)")
	fs.StringVar(&f.opts.GRPCAddr, "grpc-addr", "", `gRPC push stream listen address ("off" disables)`)
	fs.BoolVar(&f.otel, "otel", true, "Enable OpenTelemetry metrics (Prometheus exporter at /metrics)")
	fs.BoolVar(&f.opts.NoSimulator, "no-simulator", false, "Disable synthetic activity")
	fs.StringArrayVar(&f.opts.WatchPaths, "watch", nil, "Watch a directory for file changes (repeatable)")
}

func (f *startFlags) options(home string) daemon.StartOptions {
	opts := f.opts
	opts.Home = home
	opts.DisableOtel = !f.otel
	if opts.DBURL == "" && opts.DBDriver == "postgres" {
		opts.DBURL = os.Getenv("DATABASE_URL")
	}
	return opts
}

func newStartCmd() *cobra.Command {
	var (
		flags      startFlags
		foreground bool
		envFile    string
		noBrowser  bool
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start puppy-station (web dashboard, API, and producers)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := loadEnvFile(envFile); err != nil {
					return err
				}
			}
			home := config.MustHomeFrom(cmd.Context())
			opts := flags.options(home)
			cfg, err := opts.Resolve()
			if err != nil {
				return err
			}

			ui := (&url.URL{Scheme: "http", Host: fmt.Sprintf("localhost:%d", cfg.Server.Port)}).String()

			if foreground {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Starting puppy-station in foreground on %s\n", ui)
				return daemon.StartForeground(cmd.Context(), opts)
			}

			pid, err := daemon.StartBackground(cmd.Context(), opts)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "puppy-station started (pid %d)\n", pid)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "UI: %s\n", ui)
			if cfg.Server.GRPCAddr != "" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "gRPC stream: %s\n", cfg.Server.GRPCAddr)
			}

			if !noBrowser {
				// Best-effort open browser (Linux: xdg-open, macOS: open, Windows: start).
				_ = openBrowser(ui)
			}
			return nil
		},
	}

	flags.bind(cmd.Flags())
	cmd.Flags().BoolVar(&foreground, "foreground", false, "Run in foreground (do not daemonize)")
	cmd.Flags().StringVar(&envFile, "env-file", "", "Load env vars from file (KEY=VALUE per line) before starting")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Do not open the dashboard in a browser")

	return cmd
}

func loadEnvFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		i := strings.Index(line, "=")
		if i <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:i])
		value := strings.TrimSpace(line[i+1:])
		if key != "" {
			_ = os.Setenv(key, value)
		}
	}
	return sc.Err()
}

func openBrowser(u string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", u).Start()
	case "windows":
		return exec.Command("cmd", "/c", "start", u).Start()
	default:
		// Linux and others
		if _, err := exec.LookPath("xdg-open"); err != nil {
			return err
		}
		return exec.Command("xdg-open", u).Start()
	}
}
