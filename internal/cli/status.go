package cli

import (
	"fmt"

	"github.com/buppyai/puppy-station/internal/config"
	"github.com/buppyai/puppy-station/internal/daemon"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show puppy-station daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := config.MustHomeFrom(cmd.Context())
			st, err := daemon.Status(cmd.Context(), home)
			if err != nil {
				return err
			}
			if !st.Running {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "puppy-station not running")
				return nil
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "puppy-station running (pid %d, addr %s)\n", st.PID, st.Addr)
			if st.GRPCAddr != "" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "gRPC stream: %s\n", st.GRPCAddr)
			}
			if h, err := apiClient(cmd).Health(cmd.Context()); err == nil {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "seq %d, %d live subscribers, store %s\n", h.Seq, h.Subscribers, h.Driver)
			}
			return nil
		},
	}
	return cmd
}
