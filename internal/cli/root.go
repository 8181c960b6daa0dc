package cli

import (
	"context"
	"os"
	"strings"

	"github.com/buppyai/puppy-station/internal/config"
	"github.com/buppyai/puppy-station/internal/daemon"
	"github.com/buppyai/puppy-station/pkg/client"
	"github.com/spf13/cobra"
)

// ServerEnv overrides the server URL used by client commands.
const ServerEnv = "PUPPY_STATION_URL"

const defaultServerURL = "http://localhost:3548"

type serverKey struct{}

func NewRootCmd(version string) *cobra.Command {
	var (
		homeOverride string
		server       string
	)

	cmd := &cobra.Command{
		Use:          "puppy-station",
		Short:        "puppy-station: live fleet monitoring for autonomous agents",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			home, err := config.ResolveHome(homeOverride)
			if err != nil {
				return err
			}
			ctx := config.WithHome(cmd.Context(), home)
			cmd.SetContext(context.WithValue(ctx, serverKey{}, resolveServerURL(server, home)))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&homeOverride, "home", "", "Override puppy-station home directory (default: ~/.puppy-station, env: "+config.HomeEnv+")")
	cmd.PersistentFlags().StringVar(&server, "server", "", "Server URL for client commands (env: "+ServerEnv+"; default: the running daemon, else "+defaultServerURL+")")

	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newStartCmd())
	cmd.AddCommand(newStopCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newNukeCmd())

	cmd.AddCommand(newAgentCmd())
	cmd.AddCommand(newActivityCmd())
	cmd.AddCommand(newReviewCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newTailCmd())
	cmd.AddCommand(newRunCmd())

	// Hidden internal subcommand used by `puppy-station start` for background mode.
	cmd.AddCommand(newDaemonCmd())

	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.SetVersionTemplate("{{.Version}}\n")
	if version != "" {
		cmd.Version = version
	} else {
		cmd.Version = "dev"
	}

	return cmd
}

// resolveServerURL picks --server, then the env var, then the address the local daemon
// recorded, then the default port.
func resolveServerURL(flag, home string) string {
	u := flag
	if u == "" {
		u = os.Getenv(ServerEnv)
	}
	if u == "" {
		if addr := daemon.ServerAddr(home); addr != "" {
			u = addr
		}
	}
	if u == "" {
		return defaultServerURL
	}
	if !strings.Contains(u, "://") {
		u = "http://" + u
	}
	return strings.TrimRight(u, "/")
}

func serverURL(cmd *cobra.Command) string {
	if u, ok := cmd.Context().Value(serverKey{}).(string); ok && u != "" {
		return u
	}
	return defaultServerURL
}

func apiClient(cmd *cobra.Command) *client.Client {
	return client.New(serverURL(cmd))
}
