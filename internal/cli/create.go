package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/me/tessera/pkg/model"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <plan.yml>",
		Short: "Create a workflow from a YAML plan",
		Long:  "Read a workflow plan (type, stages, steps, arguments) and register it with the tessera server.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read plan: %w", err)
			}

			var desc model.WorkflowDescription
			if err := yaml.Unmarshal(data, &desc); err != nil {
				return fmt.Errorf("parse plan: %w", err)
			}
			logger.Debug("parsed plan", "type", desc.Type, "stages", len(desc.Stages))

			resp, err := client.Post("/api/v1/workflows", &desc)
			if err != nil {
				return fmt.Errorf("create workflow: %w", err)
			}

			var wf model.Workflow
			if err := json.Unmarshal(resp.Data, &wf); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Workflow created: %s (%s, %d stages)\n",
				wf.ID, wf.Type, len(wf.Stages))
			return nil
		},
	}
}
