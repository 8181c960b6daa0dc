package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/buppyai/puppy-station/internal/config"
	"github.com/buppyai/puppy-station/internal/dashboard"
	"github.com/buppyai/puppy-station/internal/grpcstream"
	"github.com/buppyai/puppy-station/pkg/models"
	"github.com/buppyai/puppy-station/pkg/reconciler"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	var (
		plain     bool
		transport string
		grpcAddr  string
		poll      time.Duration
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live fleet dashboard (push stream plus periodic polling)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := apiClient(cmd)
			rcfg := reconciler.Config{
				Poll: func(ctx context.Context) (models.Snapshot, error) {
					return c.Snapshot(ctx, limit)
				},
				PollInterval:  poll,
				ActivityLimit: limit,
			}
			switch transport {
			case "ws":
				rcfg.Dial = func(ctx context.Context) (reconciler.Stream, error) {
					st, err := c.Stream(ctx)
					if err != nil {
						return nil, err
					}
					return st, nil
				}
			case "grpc":
				addr := grpcTarget(cmd, grpcAddr)
				gc, err := grpcstream.Dial(addr)
				if err != nil {
					return err
				}
				defer func() { _ = gc.Close() }()
				rcfg.Dial = func(ctx context.Context) (reconciler.Stream, error) {
					st, err := gc.Subscribe(ctx)
					if err != nil {
						return nil, err
					}
					return st, nil
				}
			case "none":
			default:
				return fmt.Errorf("unknown transport %q (want ws, grpc, or none)", transport)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if plain || !isTerminal(cmd.OutOrStdout()) {
				rcfg.Renderer = dashboard.NewPlain(cmd.OutOrStdout())
				return ignoreCanceled(reconciler.New(rcfg).Run(ctx))
			}

			p := tea.NewProgram(dashboard.New(), tea.WithContext(ctx), tea.WithAltScreen(), tea.WithOutput(cmd.OutOrStdout()))
			rcfg.Renderer = dashboard.Sender(p)
			// The alternate screen owns the terminal; reconnect noise would corrupt it.
			rcfg.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
			done := make(chan struct{})
			go func() {
				defer close(done)
				_ = reconciler.New(rcfg).Run(ctx)
			}()
			_, err := p.Run()
			cancel()
			<-done
			if errors.Is(err, tea.ErrProgramKilled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "Line output even on a terminal")
	cmd.Flags().StringVar(&transport, "transport", "ws", "Push transport: ws, grpc, or none (poll only)")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "gRPC stream address (default: the running daemon's)")
	cmd.Flags().DurationVar(&poll, "poll", reconciler.DefaultPollInterval, "Full-state poll interval")
	cmd.Flags().IntVar(&limit, "limit", models.DefaultActivityLimit, "Activity records to keep on screen")
	return cmd
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// grpcTarget picks --grpc-addr, then the running daemon's recorded address, then the config default.
func grpcTarget(cmd *cobra.Command, flag string) string {
	if flag != "" {
		return flag
	}
	home := config.MustHomeFrom(cmd.Context())
	if addr := daemonGRPCAddr(home); addr != "" {
		return addr
	}
	if cfg, err := config.Load(home); err == nil && cfg.Server.GRPCAddr != "" {
		return cfg.Server.GRPCAddr
	}
	return config.Default().Server.GRPCAddr
}
