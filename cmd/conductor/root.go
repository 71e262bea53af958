package main

import (
	"fmt"
	"os"

	"github.com/aretw0/conductor"
	"github.com/aretw0/conductor/internal/logging"
	"github.com/aretw0/conductor/internal/presentation/tui"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "Conductor runs event-driven workflows",
	Long: `Conductor hosts declarative workflows: events select guarded actions,
actions move tasks between states, and every invocation is logged.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		quiet, _ := cmd.Flags().GetBool("quiet")
		if !quiet && cmd.Name() != "mcp" && term.IsTerminal(int(os.Stderr.Fd())) {
			tui.PrintBanner(os.Stderr)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Config file (default conductor.yaml if present)")
	rootCmd.PersistentFlags().String("dir", "", "Directory containing workflow definitions")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Do not print the banner")
}

// loadConfig reads the config file and applies flag overrides on top of it.
func loadConfig(cmd *cobra.Command) (*conductor.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := conductor.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("dir") {
		cfg.WorkflowsDir, _ = cmd.Flags().GetString("dir")
	}
	if cmd.Flags().Changed("log-level") {
		level, _ := cmd.Flags().GetString("log-level")
		if _, err := logging.ParseLevel(level); err != nil {
			return nil, err
		}
		cfg.LogLevel = level
	}
	return cfg, cfg.Validate()
}

// openConductor builds a Conductor from the command's config and flags.
// Callers must Close it.
func openConductor(cmd *cobra.Command) (*conductor.Conductor, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return conductor.New(cmd.Context(), cfg)
}
