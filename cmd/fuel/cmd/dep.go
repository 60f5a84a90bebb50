package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fuelhq/fuel/internal/term"
)

var depAddCmd = &cobra.Command{
	Use:   "dep:add <task> <blocker>",
	Short: "Block a task on another",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		taskID, err := st.Resolve(args[0])
		if err != nil {
			return err
		}
		blockerID, err := st.Resolve(args[1])
		if err != nil {
			return err
		}
		if err := st.AddDep(taskID, blockerID); err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(map[string]string{"task": taskID, "blocked_by": blockerID})
		}
		fmt.Printf("%s blocked by %s\n", term.Blue(taskID), term.Blue(blockerID))
		return nil
	},
}

var depRemoveCmd = &cobra.Command{
	Use:   "dep:remove <task> <blocker>",
	Short: "Remove a dependency edge",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		taskID, err := st.Resolve(args[0])
		if err != nil {
			return err
		}
		blockerID, err := st.Resolve(args[1])
		if err != nil {
			return err
		}
		if err := st.RemoveDep(taskID, blockerID); err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(map[string]string{"task": taskID, "removed": blockerID})
		}
		fmt.Printf("%s no longer blocked by %s\n", term.Blue(taskID), term.Blue(blockerID))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(depAddCmd, depRemoveCmd)
}
