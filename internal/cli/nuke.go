package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/buppyai/puppy-station/internal/config"
	"github.com/buppyai/puppy-station/internal/daemon"
	"github.com/spf13/cobra"
)

const nukePhrase = "delete everything"

func newNukeCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "nuke",
		Short: "Delete the station home: database, config, and logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			home := config.MustHomeFrom(cmd.Context())
			if st, _ := daemon.Status(cmd.Context(), home); st.Running {
				return fmt.Errorf("station is running as pid %d; run `puppy-station stop` first", st.PID)
			}
			out := cmd.OutOrStdout()
			if !yes {
				_, _ = fmt.Fprintf(out, "This removes %s and every agent, activity, and review in it.\n", home)
				_, _ = fmt.Fprintf(out, "Type %q to continue: ", nukePhrase)
				sc := bufio.NewScanner(cmd.InOrStdin())
				sc.Scan()
				if err := sc.Err(); err != nil {
					return err
				}
				if strings.TrimSpace(sc.Text()) != nukePhrase {
					_, _ = fmt.Fprintln(out, "aborted")
					return nil
				}
			}
			if err := os.RemoveAll(home); err != nil {
				return fmt.Errorf("remove %s: %w", home, err)
			}
			_, _ = fmt.Fprintf(out, "removed %s\n", home)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}
