package cli

import (
	"errors"
	"fmt"

	"github.com/buppyai/puppy-station/pkg/models"
	"github.com/spf13/cobra"
)

func newAgentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Inspect and update agents",
	}
	cmd.AddCommand(newAgentListCmd())
	cmd.AddCommand(newAgentShowCmd())
	cmd.AddCommand(newAgentAddCmd())
	cmd.AddCommand(newAgentStatusCmd())
	cmd.AddCommand(newAgentTaskCmd())
	return cmd
}

func newAgentListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			agents, err := apiClient(cmd).ListAgents(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, agents)
			}
			if len(agents) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No agents.")
				return nil
			}
			for _, a := range agents {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), agentLine(a))
			}
			return nil
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newAgentShowCmd() *cobra.Command {
	var (
		asJSON bool
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an agent and its recent activity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := apiClient(cmd)
			a, err := c.GetAgent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			acts, err := c.AgentActivities(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, map[string]any{"agent": a, "activities": acts})
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "%s %s (%s)\n", a.Emoji, a.Name, a.ID)
			_, _ = fmt.Fprintf(out, "role:   %s\nmodel:  %s\nstatus: %s\n", a.Role, a.Model, a.Status)
			if a.CurrentTask != nil {
				_, _ = fmt.Fprintf(out, "task:   %s\n", *a.CurrentTask)
			}
			for _, act := range acts {
				_, _ = fmt.Fprintln(out, "  "+activityLine(act))
			}
			return nil
		},
	}
	addJSONFlag(cmd, &asJSON)
	cmd.Flags().IntVar(&limit, "limit", 10, "Activity records to show")
	return cmd
}

func newAgentAddCmd() *cobra.Command {
	var req models.CreateAgentRequest
	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Provision a new agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.ID = args[0]
			if req.Name == "" {
				req.Name = req.ID
			}
			a, err := apiClient(cmd).CreateAgent(cmd.Context(), req)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Added agent %q (%s)\n", a.ID, a.Status)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Name, "name", "", "Display name (default: id)")
	cmd.Flags().StringVar(&req.Emoji, "emoji", "", "Emoji")
	cmd.Flags().StringVar(&req.Role, "role", "", "Role")
	cmd.Flags().StringVar(&req.Model, "model", "", "Model")
	return cmd
}

func newAgentStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status <id> <active|idle|busy>",
		Short: "Set an agent's status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := apiClient(cmd).UpdateStatus(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), agentLine(u.Agent))
			return nil
		},
	}
	return cmd
}

func newAgentTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task <id> <task>",
		Short: "Set an agent's current task (marks it busy)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[1] == "" {
				return errors.New("task must not be empty")
			}
			u, err := apiClient(cmd).UpdateTask(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), agentLine(u.Agent))
			return nil
		},
	}
	return cmd
}
