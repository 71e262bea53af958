package main

import (
	"fmt"

	"github.com/aretw0/conductor/internal/presentation/graph"
	httpadapter "github.com/aretw0/conductor/pkg/adapters/http"
	"github.com/aretw0/conductor/pkg/domain"
	"github.com/spf13/cobra"
)

var graphCmd = &cobra.Command{
	Use:   "graph <workflow>",
	Short: "Export the workflow graph as a Mermaid diagram",
	Long: `Outputs a Mermaid diagram (graph TD) of the workflow's state transitions.
With --task, the states the task went through and its current state are highlighted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openConductor(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		wf, ok := c.Workflow(args[0])
		if !ok {
			return fmt.Errorf("%w: '%s'", domain.ErrWorkflowNotFound, args[0])
		}

		var overlay *graph.GraphOverlay
		if taskID, _ := cmd.Flags().GetString("task"); taskID != "" {
			task, err := c.Task(cmd.Context(), taskID)
			if err != nil {
				return err
			}
			logs, err := c.TaskLogs(cmd.Context(), taskID)
			if err != nil {
				return err
			}
			overlay = &graph.GraphOverlay{
				VisitedStates: httpadapter.VisitedStates(wf.InitialStateKey(), logs),
				CurrentState:  task.State.Key,
			}
		}

		fmt.Fprint(cmd.OutOrStdout(), graph.GenerateMermaid(wf, overlay))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().String("task", "", "Highlight the path of this task")
}
