package cli

import (
	"fmt"
	"time"

	"github.com/buppyai/puppy-station/internal/config"
	"github.com/buppyai/puppy-station/internal/daemon"
	"github.com/spf13/cobra"
)

func newStopCmd() *cobra.Command {
	var grace time.Duration
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the background station",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := daemon.Stop(cmd.Context(), config.MustHomeFrom(cmd.Context()), grace)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch res {
			case daemon.NotRunning:
				_, _ = fmt.Fprintln(out, "puppy-station is not running")
			case daemon.Killed:
				_, _ = fmt.Fprintf(out, "station ignored SIGTERM for %s; killed\n", grace)
			default:
				_, _ = fmt.Fprintln(out, "stopped")
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&grace, "timeout", 15*time.Second, "How long to wait for a clean shutdown before killing")
	return cmd
}
