package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fuelhq/fuel/internal/term"
)

var backlogCmd = &cobra.Command{
	Use:   "backlog",
	Short: "List backlog items",
	Long: `Backlog items are parked ideas. They are never scheduled; promote one
by creating a real task with fuel add.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		items, err := st.ListBacklog()
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(items)
		}
		if len(items) == 0 {
			fmt.Println(term.Dim("backlog is empty"))
			return nil
		}
		for _, it := range items {
			fmt.Printf("%s %s\n", term.Dimf("#%d", it.ID), it.Title)
		}
		return nil
	},
}

var backlogAddCmd = &cobra.Command{
	Use:   "backlog:add <title>",
	Short: "Park an idea in the backlog",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		description, _ := cmd.Flags().GetString("description")
		item, err := st.AddBacklogItem(strings.Join(args, " "), description)
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(item)
		}
		fmt.Printf("%s %s\n", term.Dimf("#%d", item.ID), item.Title)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backlogCmd, backlogAddCmd)

	backlogAddCmd.Flags().StringP("description", "d", "", "item description")
}
