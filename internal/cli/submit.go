package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newSubmitCmd() *cobra.Command {
	var index int

	cmd := &cobra.Command{
		Use:   "submit <workflow_id>",
		Short: "Submit a workflow for execution",
		Long:  "Forward the workflow to the batch backend, processing stages up to and including --index.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			resp, err := client.Post("/api/v1/workflows/"+id+"/submit", map[string]int{"index": index})
			if err != nil {
				return fmt.Errorf("submit: %w", err)
			}

			var result map[string]any
			if err := json.Unmarshal(resp.Data, &result); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Workflow submitted: %s (backend %v)\n", id, result["backend_id"])
			return nil
		},
	}

	cmd.Flags().IntVar(&index, "index", 1, "Last stage index to execute (1-based, excluding upload)")
	return cmd
}

func newResubmitCmd() *cobra.Command {
	var index, from int

	cmd := &cobra.Command{
		Use:   "resubmit <workflow_id>",
		Short: "Resubmit a workflow, resuming at an earlier stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			resp, err := client.Post("/api/v1/workflows/"+id+"/resubmit",
				map[string]int{"index": index, "from": from})
			if err != nil {
				return fmt.Errorf("resubmit: %w", err)
			}

			var result map[string]any
			if err := json.Unmarshal(resp.Data, &result); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Workflow resubmitted: %s from stage %d (backend %v)\n",
				id, from, result["backend_id"])
			return nil
		},
	}

	cmd.Flags().IntVar(&index, "index", 1, "Last stage index to execute")
	cmd.Flags().IntVar(&from, "from", 1, "First stage index to re-execute")
	return cmd
}

func newKillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kill <workflow_id>",
		Short: "Cancel a running workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if _, err := client.Post("/api/v1/workflows/"+id+"/kill", nil); err != nil {
				return fmt.Errorf("kill: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Kill requested: %s\n", id)
			return nil
		},
	}
}

func newSetCmd() *cobra.Command {
	var set string

	cmd := &cobra.Command{
		Use:   "set <workflow_id> <stage> <step> <name> <value>",
		Short: "Set an argument value",
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			body := map[string]string{
				"stage": args[1],
				"step":  args[2],
				"set":   set,
				"name":  args[3],
				"value": args[4],
			}
			if _, err := client.Put("/api/v1/workflows/"+id+"/arguments", body); err != nil {
				return fmt.Errorf("set argument: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Argument set: %s/%s/%s = %s\n", args[1], args[2], args[3], args[4])
			return nil
		},
	}

	cmd.Flags().StringVar(&set, "set", "batch", "Argument set (batch, submission, extra)")
	return cmd
}
