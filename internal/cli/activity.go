package cli

import (
	"fmt"

	"github.com/buppyai/puppy-station/pkg/models"
	"github.com/spf13/cobra"
)

func newActivityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Read and append the activity log",
	}
	cmd.AddCommand(newActivityListCmd())
	cmd.AddCommand(newActivityLogCmd())
	return cmd
}

func newActivityListCmd() *cobra.Command {
	var (
		asJSON bool
		agent  string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent activity, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := apiClient(cmd)
			var (
				acts []models.Activity
				err  error
			)
			if agent != "" {
				acts, err = c.AgentActivities(cmd.Context(), agent, limit)
			} else {
				acts, err = c.RecentActivities(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, acts)
			}
			for _, a := range acts {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), activityLine(a))
			}
			return nil
		},
	}
	addJSONFlag(cmd, &asJSON)
	cmd.Flags().StringVar(&agent, "agent", "", "Only this agent's records")
	cmd.Flags().IntVar(&limit, "limit", 0, "Max records (default: server default)")
	return cmd
}

func newActivityLogCmd() *cobra.Command {
	var (
		typ  string
		meta []string
	)
	cmd := &cobra.Command{
		Use:   "log <agent> <description>",
		Short: "Append an activity record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			md, err := parseMetadata(meta)
			if err != nil {
				return err
			}
			a, err := apiClient(cmd).LogActivity(cmd.Context(), args[0], models.ActivityRequest{
				Type:        typ,
				Description: args[1],
				Metadata:    md,
			})
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Logged activity %d\n", a.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&typ, "type", "command", "Activity type (command, file_update, ...)")
	cmd.Flags().StringArrayVar(&meta, "meta", nil, "Metadata key=value (repeatable)")
	return cmd
}
