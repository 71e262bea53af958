package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/conductor/pkg/domain"
	"github.com/aretw0/conductor/pkg/orchestrator"
	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage tasks in the configured store",
	Long: `Create, list, inspect and remove tasks, and send them events.
Tasks only outlive the command with the file or redis store backend.`,
}

var taskLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List tasks in creation order",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openConductor(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		tasks, err := c.Tasks(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(tasks) == 0 {
			fmt.Fprintln(out, "No tasks found.")
			return nil
		}
		for _, t := range tasks {
			fmt.Fprintf(out, "%s\t%s\t%s\t%s\n", t.ID, t.WorkflowKey, t.State.Key, t.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

var taskNewCmd = &cobra.Command{
	Use:   "new <workflow>",
	Short: "Create a task in the workflow's initial state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := jsonFlag(cmd, "data")
		if err != nil {
			return err
		}
		c, err := openConductor(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		task, err := c.InitTask(cmd.Context(), args[0], data)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), task)
	},
}

var taskInspectCmd = &cobra.Command{
	Use:   "inspect <task-id>",
	Short: "Print a task and its invocation log",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openConductor(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		task, err := c.Task(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to load task '%s': %w", args[0], err)
		}
		logs, err := c.TaskLogs(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), struct {
			Task domain.Task            `json:"task"`
			Logs []domain.InvocationLog `json:"logs"`
		}{task, logs})
	},
}

var taskRmCmd = &cobra.Command{
	Use:   "rm <task-id>...",
	Short: "Remove one or more tasks",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openConductor(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		var errs []error
		for _, id := range args {
			if err := c.DeleteTask(cmd.Context(), id); err != nil {
				errs = append(errs, fmt.Errorf("failed to remove '%s': %w", id, err))
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed task '%s'\n", id)
		}
		return errors.Join(errs...)
	},
}

var taskSendCmd = &cobra.Command{
	Use:   "send <task-id> <event>",
	Short: "Send an event to a task",
	Long: `Delivers the event and prints the invocation log entry.
Unless --no-follow is set, events emitted by successful actions are delivered too,
up to --max-follow of them. A chain longer than that fails the command.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := jsonFlag(cmd, "payload")
		if err != nil {
			return err
		}
		noFollow, _ := cmd.Flags().GetBool("no-follow")
		maxFollow, _ := cmd.Flags().GetInt("max-follow")
		if maxFollow < 0 {
			return fmt.Errorf("invalid --max-follow: %d", maxFollow)
		}

		c, err := openConductor(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		event := domain.NewEvent(args[1], payload)
		for followed := 0; ; followed++ {
			if err := cmd.Context().Err(); err != nil {
				return err
			}
			entry := c.HandleEvent(cmd.Context(), args[0], event)
			if err := printJSON(cmd.OutOrStdout(), entry); err != nil {
				return err
			}
			if !entry.Committed() {
				msg := entry.Message
				if entry.Result != nil && entry.Result.Message != "" {
					msg = entry.Result.Message
				}
				return fmt.Errorf("event '%s' was not applied: %s", event.Key, msg)
			}
			next, ok := orchestrator.FollowUp(entry)
			if noFollow || !ok {
				return nil
			}
			if followed >= maxFollow {
				return fmt.Errorf("%w: stopped after %d follow-up events, '%s' not delivered",
					errFollowLimit, followed, next.Key)
			}
			event = next
		}
	},
}

func init() {
	rootCmd.AddCommand(taskCmd)
	taskCmd.AddCommand(taskLsCmd, taskNewCmd, taskInspectCmd, taskRmCmd, taskSendCmd)

	taskNewCmd.Flags().String("data", "", "Initial task data as a JSON object")
	taskSendCmd.Flags().String("payload", "", "Event payload as a JSON object")
	taskSendCmd.Flags().Bool("no-follow", false, "Do not deliver emitted follow-up events")
	taskSendCmd.Flags().Int("max-follow", defaultMaxFollow, "Maximum number of follow-up events delivered per send")
}

const defaultMaxFollow = 16

var errFollowLimit = errors.New("follow-up limit reached")

func jsonFlag(cmd *cobra.Command, name string) (map[string]any, error) {
	raw, _ := cmd.Flags().GetString(name)
	if raw == "" {
		return nil, nil
	}
	var v map[string]any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("invalid --%s: %w", name, err)
	}
	return v, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
