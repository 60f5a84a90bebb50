// Package cmd implements the fuel CLI verbs.
package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fuelhq/fuel/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "fuel",
	Short: "Local task orchestrator for coding agents",
	Long: `fuel is a project-scoped task orchestrator: tasks, epics and runs
live in .fuel/agent.db, and the consume daemon dispatches ready tasks
to coding agents as supervised subprocesses.

Most verbs operate on the store directly. The consume daemon picks up
changes on its next tick.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// SetVersion wires the build version into the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command and maps errors to exit codes:
// 0 ok, 1 generic failure, 2 validation.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if store.IsValidation(err) {
			return 2
		}
		return 1
	}
	return 0
}

func init() {
	rootCmd.PersistentFlags().String("cwd", "", "project directory (default: current directory)")
	rootCmd.PersistentFlags().Bool("json", false, "emit machine-readable JSON on stdout")
}

// projectDir resolves the project directory from --cwd.
func projectDir(cmd *cobra.Command) (string, error) {
	dir, _ := cmd.Flags().GetString("cwd")
	if dir != "" {
		return dir, nil
	}
	return os.Getwd()
}

// jsonOutput reports whether --json was requested.
func jsonOutput(cmd *cobra.Command) bool {
	asJSON, _ := cmd.Flags().GetBool("json")
	return asJSON
}

// openStore opens the project store for one command invocation.
func openStore(cmd *cobra.Command) (*store.Store, string, error) {
	dir, err := projectDir(cmd)
	if err != nil {
		return nil, "", err
	}
	st, err := store.Open(store.DBPath(dir))
	if err != nil {
		return nil, "", err
	}
	return st, dir, nil
}

// printJSON writes v as indented JSON to stdout.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
