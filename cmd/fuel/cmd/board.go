package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fuelhq/fuel/internal/store"
	"github.com/fuelhq/fuel/internal/term"
	"github.com/fuelhq/fuel/internal/tui"
)

var boardColumns = []store.TaskStatus{
	store.StatusOpen,
	store.StatusInProgress,
	store.StatusReview,
	store.StatusDone,
}

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Show the kanban board",
	Long: `Print a one-shot kanban snapshot of the project's tasks.

With --watch, open the interactive board instead: it attaches to the
consume daemon and updates live as runs start and finish.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		watch, _ := cmd.Flags().GetBool("watch")
		if watch {
			dir, err := projectDir(cmd)
			if err != nil {
				return err
			}
			return tui.Run(tui.Config{ProjectDir: dir})
		}

		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		byStatus := map[store.TaskStatus][]store.Task{}
		for _, status := range boardColumns {
			tasks, err := st.ListTasks(status)
			if err != nil {
				return err
			}
			byStatus[status] = tasks
		}

		if jsonOutput(cmd) {
			return printJSON(byStatus)
		}

		for _, status := range boardColumns {
			tasks := byStatus[status]
			fmt.Printf("%s %s\n",
				statusColor(status)(string(status)),
				term.Dimf("(%d)", len(tasks)),
			)
			for _, t := range tasks {
				marker := " "
				if t.HasLabel(store.LabelNeedsHuman) {
					marker = term.Red("!")
				}
				fmt.Printf("  %s %s %s\n", marker, term.PadRight(t.ShortID, 10, term.Cyan), t.Title)
			}
			if len(tasks) == 0 {
				fmt.Println(term.Dim("  (empty)"))
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(boardCmd)

	boardCmd.Flags().BoolP("watch", "w", false, "open the live interactive board")
}
