package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/me/tessera/pkg/model"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var showJobs bool

	cmd := &cobra.Command{
		Use:   "status <workflow_id>",
		Short: "Show the reconciled status tree of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			resp, err := client.Get("/api/v1/workflows/" + id + "/status")
			if err != nil {
				return fmt.Errorf("get status: %w", err)
			}

			var wf model.Workflow
			if err := json.Unmarshal(resp.Data, &wf); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Workflow: %s (%s)\n", wf.ID, wf.Type)
			fmt.Fprintf(w, "  State:    %s\n", wf.Status.State)
			fmt.Fprintf(w, "  Progress: %.1f%%\n", wf.Status.PercentDone)
			if wf.Status.Failed {
				fmt.Fprintln(w, "  Failed:   yes")
			}
			if resp.Error != nil {
				fmt.Fprintf(w, "  Warning:  %s\n", resp.Error.Message)
			}

			rows := make([][]string, 0, len(wf.Stages))
			for i, stage := range wf.Stages {
				rows = append(rows, stageRow(i, &stage))
			}
			fmt.Fprintln(w, renderTable(
				[]string{"#", "STAGE", "MODE", "ACTIVE", "STATE", "DONE %", "FAILED"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))

			if showJobs {
				printJobs(w, &wf)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showJobs, "jobs", false, "Include per-job detail")
	return cmd
}

func stageRow(index int, stage *model.Stage) []string {
	active := "no"
	if stage.Active {
		active = "yes"
	}
	failed := ""
	if stage.Status.Failed {
		failed = "yes"
	}
	return []string{
		fmt.Sprintf("%d", index),
		stage.Name,
		string(stage.Mode),
		active,
		stage.Status.State.String(),
		fmt.Sprintf("%.1f", stage.Status.PercentDone),
		failed,
	}
}

func printJobs(w io.Writer, wf *model.Workflow) {
	for _, stage := range wf.Stages {
		for _, step := range stage.Steps {
			if len(step.Jobs) == 0 {
				continue
			}
			fmt.Fprintf(w, "\nJobs: %s/%s\n", stage.Name, step.Name)

			rows := make([][]string, 0, len(step.Jobs))
			for _, job := range step.Jobs {
				exit := ""
				if job.ExitCode != nil {
					exit = fmt.Sprintf("%d", *job.ExitCode)
				}
				rows = append(rows, []string{
					fmt.Sprintf("%d", job.ID),
					string(job.Phase),
					job.Status.State.String(),
					fmt.Sprintf("%.1f", job.Status.PercentDone),
					exit,
					fmt.Sprintf("%.1fs", job.WallTime),
					humanize.IBytes(uint64(job.Memory)),
				})
			}
			fmt.Fprintln(w, renderTable(
				[]string{"ID", "PHASE", "STATE", "DONE %", "EXIT", "WALL", "MEMORY"},
				rows,
				[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
			))
		}
	}
}
