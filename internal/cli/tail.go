package cli

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/buppyai/puppy-station/internal/daemon"
	"github.com/buppyai/puppy-station/internal/grpcstream"
	"github.com/buppyai/puppy-station/pkg/models"
	"github.com/spf13/cobra"
)

var daemonGRPCAddr = daemon.GRPCAddr

func newTailCmd() *cobra.Command {
	var (
		addr   string
		asJSON bool
		skip   bool
	)
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Stream raw state changes over gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			gc, err := grpcstream.Dial(grpcTarget(cmd, addr))
			if err != nil {
				return err
			}
			defer func() { _ = gc.Close() }()

			ctx := cmd.Context()
			st, err := gc.Subscribe(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			for {
				m, err := st.Next(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				if skip && m.Type == models.MsgInit {
					continue
				}
				if asJSON {
					if err := enc.Encode(m); err != nil {
						return err
					}
					continue
				}
				var data bytes.Buffer
				if err := json.Compact(&data, m.Data); err != nil {
					data.Reset()
					data.Write(m.Data)
				}
				_, _ = fmt.Fprintf(out, "%6d %-15s %s\n", m.Seq, m.Type, data.String())
			}
		},
	}
	cmd.Flags().StringVar(&addr, "grpc-addr", "", "gRPC stream address (default: the running daemon's)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "One JSON message per line")
	cmd.Flags().BoolVar(&skip, "skip-init", false, "Do not print the initial snapshot")
	return cmd
}
