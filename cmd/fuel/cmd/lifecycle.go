package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fuelhq/fuel/internal/client"
	"github.com/fuelhq/fuel/internal/protocol"
	"github.com/fuelhq/fuel/internal/store"
	"github.com/fuelhq/fuel/internal/term"
)

var doneCmd = &cobra.Command{
	Use:     "done <id>",
	Aliases: []string{"close"},
	Short:   "Mark a task done",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, dir, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		id, err := st.Resolve(args[0])
		if err != nil {
			return err
		}
		reason, _ := cmd.Flags().GetString("reason")
		commit, _ := cmd.Flags().GetString("commit")

		task, err := st.Done(id, reason, commit)
		if err != nil {
			return err
		}

		// Closing the last task of an epic rolls the epic up exactly as
		// the daemon would.
		var review *store.Task
		if task.EpicID != "" {
			epics, cerr := newEpicController(dir, st)
			if cerr != nil {
				return cerr
			}
			if review, cerr = epics.CheckCompletion(task.EpicID); cerr != nil {
				return cerr
			}
		}

		if jsonOutput(cmd) {
			if review != nil {
				return printJSON(map[string]any{"task": task, "epic_review_task": review})
			}
			return printJSON(task)
		}
		fmt.Printf("%s done\n", term.Blue(task.ShortID))
		if review != nil {
			fmt.Printf("epic %s complete, review task %s queued\n",
				term.Cyan(task.EpicID), term.Blue(review.ShortID))
		}
		return nil
	},
}

var reopenCmd = &cobra.Command{
	Use:   "reopen <id>",
	Short: "Reopen a done task",
	Args:  cobra.ExactArgs(1),
	RunE:  transitionRunE(store.StatusOpen, "reopened"),
}

var startCmd = &cobra.Command{
	Use:   "start <id>",
	Short: "Mark a task in progress (manual work outside the daemon)",
	Args:  cobra.ExactArgs(1),
	RunE:  transitionRunE(store.StatusInProgress, "started"),
}

var deferCmd = &cobra.Command{
	Use:   "defer <id>",
	Short: "Park a task in someday",
	Args:  cobra.ExactArgs(1),
	RunE:  transitionRunE(store.StatusSomeday, "deferred"),
}

var retryCmd = &cobra.Command{
	Use:   "retry <id>",
	Short: "Return a task to open for another attempt",
	Args:  cobra.ExactArgs(1),
	RunE:  transitionRunE(store.StatusOpen, "queued for retry"),
}

var pauseCmd = &cobra.Command{
	Use:   "pause <id>",
	Short: "Pause a task, cancelling its live run if the daemon has one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, dir, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		id, err := st.Resolve(args[0])
		if err != nil {
			return err
		}

		// An in-progress task belongs to the daemon; route through IPC so
		// the child is cancelled before the transition.
		if done, err := sendTaskCommand(dir, protocol.CmdPauseTask, id); done || err != nil {
			if err == nil && !jsonOutput(cmd) {
				fmt.Printf("%s paused\n", term.Blue(id))
			}
			return err
		}

		paused := store.StatusPaused
		task, err := st.UpdateTask(id, store.TaskPatch{Status: &paused})
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(task)
		}
		fmt.Printf("%s paused\n", term.Blue(task.ShortID))
		return nil
	},
}

var unpauseCmd = &cobra.Command{
	Use:   "unpause <id>",
	Short: "Return a paused task to open",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, dir, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		id, err := st.Resolve(args[0])
		if err != nil {
			return err
		}

		if done, err := sendTaskCommand(dir, protocol.CmdUnpauseTask, id); done || err != nil {
			if err == nil && !jsonOutput(cmd) {
				fmt.Printf("%s open\n", term.Blue(id))
			}
			return err
		}

		open := store.StatusOpen
		task, err := st.UpdateTask(id, store.TaskPatch{Status: &open})
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(task)
		}
		fmt.Printf("%s open\n", term.Blue(task.ShortID))
		return nil
	},
}

// transitionRunE builds a RunE that moves a task to the target status.
func transitionRunE(to store.TaskStatus, verb string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		id, err := st.Resolve(args[0])
		if err != nil {
			return err
		}
		status := to
		task, err := st.UpdateTask(id, store.TaskPatch{Status: &status})
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(task)
		}
		fmt.Printf("%s %s\n", term.Blue(task.ShortID), verb)
		return nil
	}
}

// sendTaskCommand routes a task command through the daemon when one is
// running. Returns done=true when the daemon handled it.
func sendTaskCommand(projectDir, cmdType, taskID string) (bool, error) {
	c, err := client.Dial(projectDir)
	if err != nil {
		return false, nil // no daemon; caller falls back to the store
	}
	defer c.Close()

	if _, err := c.Call(cmdType, protocol.TaskRefPayload{TaskID: taskID}); err != nil {
		return true, err
	}
	return true, nil
}

func init() {
	rootCmd.AddCommand(doneCmd, reopenCmd, startCmd, deferCmd, retryCmd, pauseCmd, unpauseCmd)

	doneCmd.Flags().String("reason", "", "completion note")
	doneCmd.Flags().String("commit", "", "commit hash that completes the task")
}
