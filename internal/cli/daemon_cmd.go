package cli

import (
	"github.com/buppyai/puppy-station/internal/config"
	"github.com/buppyai/puppy-station/internal/daemon"
	"github.com/spf13/cobra"
)

// newDaemonCmd is what `start` re-execs in the background. It takes the same server flags
// as start so backgroundArgs can pass them through unchanged.
func newDaemonCmd() *cobra.Command {
	var sf startFlags
	cmd := &cobra.Command{
		Use:    "daemon",
		Short:  "Run the station in this process (used by start)",
		Hidden: true,
		Args:   cobra.NoArgs,
	}
	sf.bind(cmd.Flags())
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return daemon.StartForeground(cmd.Context(), sf.options(config.MustHomeFrom(cmd.Context())))
	}
	return cmd
}
