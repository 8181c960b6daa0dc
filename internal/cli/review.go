package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/buppyai/puppy-station/pkg/client"
	"github.com/spf13/cobra"
)

func newReviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Manage the pending-review queue",
	}
	cmd.AddCommand(newReviewListCmd())
	cmd.AddCommand(newReviewShowCmd())
	cmd.AddCommand(newReviewAddCmd())
	cmd.AddCommand(newReviewResolveCmd())
	return cmd
}

func parseReviewID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("review id must be a positive integer, got %q", s)
	}
	return id, nil
}

func newReviewListCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending reviews, highest priority first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reviews, err := apiClient(cmd).PendingReviews(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, reviews)
			}
			if len(reviews) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No pending reviews.")
				return nil
			}
			for _, r := range reviews {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), reviewLine(r))
			}
			return nil
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newReviewShowCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a review, pending or resolved",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseReviewID(args[0])
			if err != nil {
				return err
			}
			r, err := apiClient(cmd).GetReview(cmd.Context(), id)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd, r)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), reviewLine(*r))
			if r.ResolvedAt != nil {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "resolved at %s\n", r.ResolvedAt.Local().Format(time.DateTime))
			}
			return nil
		},
	}
	addJSONFlag(cmd, &asJSON)
	return cmd
}

func newReviewAddCmd() *cobra.Command {
	var priority string
	cmd := &cobra.Command{
		Use:   "add <agent> <question>",
		Short: "Queue a question for human review",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := apiClient(cmd).AddReview(cmd.Context(), args[0], args[1], priority)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Queued review #%d (%s)\n", r.ID, r.Priority)
			return nil
		},
	}
	cmd.Flags().StringVar(&priority, "priority", "medium", "high, medium, or low")
	return cmd
}

func newReviewResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Resolve a pending review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseReviewID(args[0])
			if err != nil {
				return err
			}
			r, err := apiClient(cmd).ResolveReview(cmd.Context(), id)
			if client.IsNotFound(err) {
				return fmt.Errorf("review #%d is not pending: %w", id, err)
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Resolved review #%d\n", r.ID)
			return nil
		},
	}
	return cmd
}
