package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/buppyai/puppy-station/internal/config"
	"github.com/buppyai/puppy-station/internal/daemon"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Verify home directory, configuration, and server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			home := config.MustHomeFrom(cmd.Context())
			out := cmd.OutOrStdout()

			var problems []string

			if err := checkWritable(home); err != nil {
				problems = append(problems, fmt.Sprintf("home %s is not writable: %v", home, err))
			}

			cfg, err := config.Load(home)
			if err != nil {
				problems = append(problems, fmt.Sprintf("config: %v", err))
			} else {
				src := "built-in defaults"
				if cfg.Path != "" {
					src = cfg.Path
				}
				_, _ = fmt.Fprintf(out, "config: %s (store %s)\n", src, cfg.Store.Driver)
				for _, p := range cfg.Watch.Paths {
					if fi, err := os.Stat(p); err != nil || !fi.IsDir() {
						problems = append(problems, fmt.Sprintf("watch path %s is not a directory", p))
					}
				}
			}

			if st, _ := daemon.Status(cmd.Context(), home); st.Running {
				h, err := apiClient(cmd).Health(cmd.Context())
				if err != nil {
					problems = append(problems, fmt.Sprintf("daemon pid %d is running but %s is unhealthy: %v", st.PID, serverURL(cmd), err))
				} else {
					_, _ = fmt.Fprintf(out, "server: %s ok (seq %d)\n", serverURL(cmd), h.Seq)
				}
			} else {
				_, _ = fmt.Fprintln(out, "server: not running")
			}

			if len(problems) > 0 {
				for _, p := range problems {
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), p)
				}
				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(out, "ok")
			return nil
		},
	}
	return cmd
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(filepath.Clean(name))
}
