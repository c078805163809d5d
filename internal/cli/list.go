package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/me/tessera/pkg/model"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List workflows",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/workflows")
			if err != nil {
				return fmt.Errorf("list workflows: %w", err)
			}

			var summaries []model.WorkflowSummary
			if err := json.Unmarshal(resp.Data, &summaries); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			w := cmd.OutOrStdout()
			if len(summaries) == 0 {
				fmt.Fprintln(w, "No workflows found.")
				return nil
			}

			rows := make([][]string, 0, len(summaries))
			for _, s := range summaries {
				rows = append(rows, []string{
					s.ID,
					s.Type,
					s.Status.State.String(),
					fmt.Sprintf("%.1f", s.Status.PercentDone),
					fmt.Sprintf("%d", s.Stages),
					s.CreatedAt.Format(time.RFC3339),
				})
			}
			fmt.Fprintln(w, renderTable(
				[]string{"ID", "TYPE", "STATE", "DONE %", "STAGES", "CREATED"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
}

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <workflow_id>",
		Short: "Show the submission history of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			resp, err := client.Get("/api/v1/workflows/" + id + "/submissions")
			if err != nil {
				return fmt.Errorf("list submissions: %w", err)
			}

			var recs []model.SubmissionRecord
			if err := json.Unmarshal(resp.Data, &recs); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			w := cmd.OutOrStdout()
			if len(recs) == 0 {
				fmt.Fprintln(w, "No submissions yet.")
				return nil
			}

			rows := make([][]string, 0, len(recs))
			for _, rec := range recs {
				from := ""
				if rec.ResumeFrom != nil {
					from = fmt.Sprintf("%d", *rec.ResumeFrom)
				}
				rows = append(rows, []string{
					rec.ID,
					rec.BackendID,
					fmt.Sprintf("%d", rec.Index),
					from,
					rec.CreatedAt.Format(time.RFC3339),
				})
			}
			fmt.Fprintln(w, renderTable(
				[]string{"ID", "BACKEND", "INDEX", "RESUME", "CREATED"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
			))
			return nil
		},
	}
}
