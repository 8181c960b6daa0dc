package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/buppyai/puppy-station/internal/agent/runtime"
	"github.com/buppyai/puppy-station/internal/mcp"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		agent   string
		task    string
		dir     string
		timeout time.Duration
		sandbox string
		guard   bool
	)
	cmd := &cobra.Command{
		Use:   "run --agent <id> -- <command> [args...]",
		Short: "Run a command as an agent, relaying its JSON event lines to the station",
		Long: `Run marks the agent busy with the command as its task, relays every stdout line that is a
JSON event ({"type":"file_update","description":"..."}; types task, status and review are
special) and passes other output through. On exit a command activity records the exit code
and the agent goes idle. The command's exit code becomes run's exit code. Destructive commands
are not run; a high-priority review asking for approval is queued instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if agent == "" {
				return errors.New("--agent is required")
			}
			kit := &mcp.Toolkit{API: apiClient(cmd), AgentID: agent}
			res, err := runtime.Subprocess{
				Command: args[0],
				Args:    args[1:],
				Dir:     dir,
				Task:    task,
				Timeout: timeout,
				Sandbox: sandbox,
				Guard:   guard,
				Stdout:  cmd.OutOrStdout(),
				Stderr:  cmd.ErrOrStderr(),
			}.Run(cmd.Context(), kit)
			if err != nil {
				return err
			}
			if res.ExitCode != 0 {
				return &exitError{code: res.ExitCode}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "Agent id to report as")
	cmd.Flags().StringVar(&task, "task", "", "Task description (default: the command line)")
	cmd.Flags().StringVar(&dir, "dir", "", "Working directory")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Kill the command after this long (0 = no limit)")
	cmd.Flags().StringVar(&sandbox, "sandbox", "", "Confine writes to this directory (bubblewrap, Linux)")
	cmd.Flags().BoolVar(&guard, "guard", true, "Refuse destructive commands and queue a high-priority review instead")
	cmd.Flags().SetInterspersed(false)
	return cmd
}

// exitError carries a wrapped command's exit code to the process exit.
type exitError struct{ code int }

func (e *exitError) Error() string { return fmt.Sprintf("command exited %d", e.code) }

// ExitCode is the code the process should exit with for err.
func ExitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

// IsCommandExit reports whether err is only a wrapped command's non-zero exit.
func IsCommandExit(err error) bool {
	var ee *exitError
	return errors.As(err, &ee)
}
