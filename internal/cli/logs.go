package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newLogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs <workflow_id> <job_source_id>",
		Short: "View the output log of one job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, sourceID := args[0], args[1]

			resp, err := client.Get("/api/v1/workflows/" + id + "/jobs/" + sourceID + "/logs")
			if err != nil {
				return fmt.Errorf("get logs: %w", err)
			}

			var data map[string]string
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "=== %s ===\n", sourceID)
			fmt.Fprint(w, data["log"])
			if data["log"] != "" && data["log"][len(data["log"])-1] != '\n' {
				fmt.Fprintln(w)
			}
			return nil
		},
	}
}
