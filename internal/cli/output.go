package cli

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/buppyai/puppy-station/pkg/models"
	"github.com/spf13/cobra"
)

func addJSONFlag(cmd *cobra.Command, v *bool) {
	cmd.Flags().BoolVar(v, "json", false, "Print raw JSON")
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func agentLine(a models.Agent) string {
	task := "-"
	if a.CurrentTask != nil {
		task = *a.CurrentTask
	}
	return fmt.Sprintf("%s %-8s %-7s %-16s %s", a.Emoji, a.ID, a.Status, a.Role, task)
}

func activityLine(a models.Activity) string {
	return fmt.Sprintf("%s  %-8s %-15s %s", a.Timestamp.Local().Format(time.DateTime), a.AgentID, a.Type, a.Description)
}

func reviewLine(r models.Review) string {
	return fmt.Sprintf("#%-4d %-6s %-8s %-8s %s", r.ID, r.Priority, r.Status, r.AgentID, r.Question)
}

// parseMetadata turns key=value pairs into activity metadata.
func parseMetadata(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	md := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("metadata %q: want key=value", p)
		}
		md[k] = v
	}
	return md, nil
}
