package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/conductor/pkg/definition"
	"github.com/aretw0/conductor/pkg/registry"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [file|dir]",
	Short: "Check workflow definitions for consistency",
	Long: `Loads every definition and reports unknown kinds, dangling trigger targets,
undeclared messages and parameters the action kinds reject. Message keys
declared by several workflows must carry the same text.
Without an argument the configured workflows directory is checked.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) > 0 {
			path = args[0]
		} else {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			path = cfg.WorkflowsDir
		}
		return runValidate(cmd, path)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, path string) error {
	defs, err := definition.LoadPath(path)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	kinds := registry.Builtins()
	failed := 0
	for _, def := range defs {
		if _, err := definition.Build(def, kinds); err != nil {
			failed++
			var verr *definition.ValidationError
			if errors.As(err, &verr) {
				fmt.Fprintf(out, "✗ %s (%s)\n", def.Key, def.Source)
				for _, p := range verr.Problems {
					fmt.Fprintf(out, "    - %s\n", p)
				}
				continue
			}
			fmt.Fprintf(out, "✗ %s (%s): %v\n", def.Key, def.Source, err)
			continue
		}
		fmt.Fprintf(out, "✓ %s (%s): %d actions, %d triggers\n", def.Key, def.Source, len(def.Actions), len(def.Triggers))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d workflows are invalid", failed, len(defs))
	}
	if err := definition.ValidateMessages(defs); err != nil {
		fmt.Fprintf(out, "✗ shared messages\n    - %s\n", strings.ReplaceAll(err.Error(), "\n", "\n    - "))
		return err
	}
	return nil
}
