package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/buppyai/puppy-station/internal/broadcast"
	"github.com/buppyai/puppy-station/internal/config"
	"github.com/buppyai/puppy-station/internal/fleet"
	"github.com/buppyai/puppy-station/internal/grpcstream"
	"github.com/buppyai/puppy-station/internal/httpapi"
	"github.com/buppyai/puppy-station/internal/notify"
	"github.com/buppyai/puppy-station/internal/otel"
	"github.com/buppyai/puppy-station/internal/store"
	"github.com/buppyai/puppy-station/internal/store/postgres"
	"google.golang.org/grpc"
)

var errNotRunning = errors.New("puppy-station is not running")

// Daemon is the assembled server: store, fleet service, hub, and its transports.
type Daemon struct {
	Home   string
	Config config.Config
	Store  store.Store
	Fleet  *fleet.Service
	Hub    *broadcast.Hub
	App    *httpapi.App
	GRPC   *grpc.Server

	alerts  *notify.ReviewAlerts
	metrics *otel.Exporter
}

func openStore(home string, cfg config.StoreConfig) (store.Store, error) {
	if cfg.Driver == "postgres" {
		return postgres.Open(cfg.DSN, cfg.Options())
	}
	opts := store.OpenOptions{Driver: "sqlite", Options: cfg.Options()}
	if cfg.DSN != "" {
		opts.DSN = cfg.DSN
	} else {
		opts.Home = home
	}
	return store.OpenWithOptions(opts)
}

// Build opens the store, seeds the fleet, and wires every listener and transport. Nothing is
// listening yet; StartForeground does that.
func Build(ctx context.Context, home string, cfg config.Config) (*Daemon, error) {
	st, err := openStore(home, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}
	d := &Daemon{Home: home, Config: cfg, Store: st}
	d.Fleet = fleet.New(st, slog.Default())
	d.Hub = broadcast.NewHub(0, slog.Default())
	d.Fleet.AddListener(fleet.PublishTo(d.Hub))

	if cfg.Notify.SlackWebhookURL != "" {
		d.alerts = notify.NewReviewAlerts(notify.SlackWebhook{WebhookURL: cfg.Notify.SlackWebhookURL, Username: "puppy-station"},
			store.Priority(cfg.Notify.MinPriority), slog.Default())
		d.Fleet.AddListener(d.alerts)
	}

	seed := cfg.Fleet.Seed
	if len(seed) == 0 {
		seed = fleet.DefaultFleet
	}
	if err := d.Fleet.SeedFleet(ctx, seed); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("seed fleet: %w", err)
	}

	srvOpts := httpapi.ServerOptions{
		Addr:          fmt.Sprintf("0.0.0.0:%d", cfg.Server.Port),
		Dev:           cfg.Server.Dev,
		Driver:        cfg.Store.Driver,
		Fleet:         d.Fleet,
		Hub:           d.Hub,
		ActivityLimit: cfg.Store.DefaultLimit,
	}
	if cfg.Server.Otel {
		exp, err := otel.Setup(ctx, "puppy-station", "")
		if err != nil {
			slog.Warn("otel init failed, serving without /metrics", "err", err)
		} else {
			d.metrics = exp
			srvOpts.MetricsHandler = exp.Handler
			srvOpts.UseOtelHTTP = true
			if err := otel.InitMetricsWithFleetCount(ctx, d.Fleet.Counts); err != nil {
				slog.Warn("otel instruments failed", "err", err)
			}
		}
	}
	d.App, err = httpapi.NewApp(srvOpts)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	if cfg.Server.GRPCAddr != "" {
		d.GRPC = grpc.NewServer()
		grpcstream.Register(d.GRPC, &grpcstream.Server{
			Fleet:         d.Fleet,
			Hub:           d.Hub,
			ActivityLimit: cfg.Store.DefaultLimit,
			Log:           slog.Default(),
		})
	}
	return d, nil
}

// Close stops the meter provider and releases the store.
func (d *Daemon) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.metrics.Shutdown(ctx); err != nil {
		slog.Warn("otel shutdown", "err", err)
	}
	return d.Store.Close()
}

func StartForeground(ctx context.Context, opts StartOptions) error {
	if opts.Home == "" {
		return errors.New("home is required")
	}
	cfg, err := opts.Resolve()
	if err != nil {
		return err
	}

	// Ensure dirs exist.
	if err := os.MkdirAll(protectedDir(opts.Home), 0o755); err != nil {
		return err
	}

	// Acquire singleton lock (released on exit).
	lock, err := acquireLock(lockPath(opts.Home))
	if err != nil {
		return err
	}
	defer lock.release()

	startPprof(cfg.Server.Pprof)

	// Early port check for clearer error.
	if err := checkPortAvailable(cfg.Server.Port); err != nil {
		return err
	}

	d, err := Build(ctx, opts.Home, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()

	var grpcLis net.Listener
	if d.GRPC != nil {
		grpcLis, err = net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen %s: %w", cfg.Server.GRPCAddr, err)
		}
	}

	// Write PID + addr files.
	pid := os.Getpid()
	if err := os.WriteFile(pidPath(opts.Home), []byte(strconv.Itoa(pid)+"\n"), 0o644); err != nil {
		return err
	}
	_ = os.WriteFile(addrPath(opts.Home), []byte(fmt.Sprintf("127.0.0.1:%d\n", cfg.Server.Port)), 0o644)
	if grpcLis != nil {
		_ = os.WriteFile(grpcAddrPath(opts.Home), []byte(grpcLis.Addr().String()+"\n"), 0o644)
	}
	defer func() {
		_ = os.Remove(pidPath(opts.Home))
		_ = os.Remove(addrPath(opts.Home))
		_ = os.Remove(grpcAddrPath(opts.Home))
	}()

	slog.Info("daemon starting", "addr", d.App.Server.Addr, "grpc", cfg.Server.GRPCAddr, "home", opts.Home, "driver", cfg.Store.Driver)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	waitProducers := d.RunProducers(runCtx)
	defer waitProducers()

	errCh := make(chan error, 2)
	if grpcLis != nil {
		go func() { errCh <- d.GRPC.Serve(grpcLis) }()
	}
	go func() { errCh <- d.App.Server.ListenAndServe() }()

	shutdown := func() {
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 15*time.Second)
		defer done()
		// Shutdown closes the hub, which ends every push stream, so Stop below has nothing to wait for.
		_ = d.App.Server.Shutdown(shutdownCtx)
		if d.GRPC != nil {
			d.GRPC.Stop()
		}
	}

	select {
	case <-ctx.Done():
		shutdown()
		return ctx.Err()
	case err := <-errCh:
		shutdown()
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) ||
			errors.Is(err, http.ErrServerClosed) || errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// backgroundArgs re-encodes opts as flags of the hidden daemon command.
func backgroundArgs(opts StartOptions) []string {
	args := []string{"daemon", "--home", opts.Home}
	if opts.Port != 0 {
		args = append(args, "--port", strconv.Itoa(opts.Port))
	}
	if opts.Dev {
		args = append(args, "--dev")
	}
	if opts.PprofAddr != "" {
		args = append(args, "--pprof", opts.PprofAddr)
	}
	if opts.DBDriver != "" {
		args = append(args, "--db-driver", opts.DBDriver)
	}
	if opts.DBURL != "" {
		args = append(args, "--db-url", opts.DBURL)
	}
	if opts.GRPCAddr != "" {
		args = append(args, "--grpc-addr", opts.GRPCAddr)
	}
	if opts.DisableOtel {
		args = append(args, "--otel=false")
	}
	if opts.NoSimulator {
		args = append(args, "--no-simulator")
	}
	for _, p := range opts.WatchPaths {
		args = append(args, "--watch", p)
	}
	return args
}

func StartBackground(ctx context.Context, opts StartOptions) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, err
	}
	if _, err := opts.Resolve(); err != nil {
		return 0, err
	}

	// Ensure dirs exist before starting.
	if err := os.MkdirAll(protectedDir(opts.Home), 0o755); err != nil {
		return 0, err
	}

	// Best-effort: refuse to start if already running.
	if st, _ := Status(ctx, opts.Home); st.Running {
		return 0, fmt.Errorf("puppy-station already running (pid %d)", st.PID)
	}

	stderr, err := os.OpenFile(logPath(opts.Home), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, err
	}
	// Kept open for child lifetime; closing here may break writes on some platforms.

	cmd := exec.Command(exe, backgroundArgs(opts)...)
	cmd.Stdout = io.Discard
	cmd.Stderr = stderr
	setDaemonSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return 0, err
	}

	// Wait briefly for pid file to appear or process to die.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st, _ := Status(ctx, opts.Home); st.Running {
			return st.PID, nil
		}
		time.Sleep(50 * time.Millisecond)
	}

	// Fallback to started pid even if status isn't ready yet.
	return cmd.Process.Pid, nil
}

// StopResult says how a Stop ended.
type StopResult int

const (
	NotRunning StopResult = iota
	Terminated
	Killed
)

// Stop sends SIGTERM to the running daemon and waits up to grace for it to exit before
// killing it. A non-positive grace waits 15s.
func Stop(ctx context.Context, home string, grace time.Duration) (StopResult, error) {
	st, err := Status(ctx, home)
	if err != nil || !st.Running {
		return NotRunning, err
	}
	proc, err := os.FindProcess(st.PID)
	if err != nil {
		return NotRunning, errNotRunning
	}
	if err := signalTerm(proc); err != nil {
		return NotRunning, fmt.Errorf("signal pid %d: %w", st.PID, err)
	}
	if grace <= 0 {
		grace = 15 * time.Second
	}
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	deadline := time.After(grace)
	for {
		select {
		case <-ctx.Done():
			return Terminated, ctx.Err()
		case <-deadline:
			if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				return Terminated, err
			}
			return Killed, nil
		case <-tick.C:
			if now, _ := Status(ctx, home); !now.Running {
				return Terminated, nil
			}
		}
	}
}

func Status(ctx context.Context, home string) (StatusInfo, error) {
	pid, err := strconv.Atoi(readTrimmed(pidPath(home)))
	if err != nil || pid <= 0 {
		return StatusInfo{Running: false}, nil
	}
	if !processExists(pid) {
		_ = os.Remove(pidPath(home))
		return StatusInfo{Running: false}, nil
	}

	addr := readTrimmed(addrPath(home))
	if addr == "" {
		addr = "unknown"
	}
	return StatusInfo{Running: true, PID: pid, Addr: addr, GRPCAddr: readTrimmed(grpcAddrPath(home))}, nil
}

// ServerAddr returns the HTTP address recorded by a running daemon, or "" if none.
func ServerAddr(home string) string {
	return readTrimmed(addrPath(home))
}

// GRPCAddr returns the push-stream address recorded by a running daemon, or "" if none.
func GRPCAddr(home string) string {
	return readTrimmed(grpcAddrPath(home))
}

// startPprof serves the profiling endpoints on their own listener so they never share the
// public API's address.
func startPprof(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			slog.Info("pprof server stopped", "addr", addr, "err", err)
		}
	}()
}

func checkPortAvailable(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("0.0.0.0:%d", port))
	if err != nil {
		return fmt.Errorf("port %d is already in use", port)
	}
	_ = ln.Close()
	return nil
}
