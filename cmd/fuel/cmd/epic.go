package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/fuelhq/fuel/internal/config"
	"github.com/fuelhq/fuel/internal/daemon"
	"github.com/fuelhq/fuel/internal/mirror"
	"github.com/fuelhq/fuel/internal/store"
	"github.com/fuelhq/fuel/internal/term"
)

var epicAddCmd = &cobra.Command{
	Use:   "epic:add <title>",
	Short: "Create an epic",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		title := args[0]
		for _, a := range args[1:] {
			title += " " + a
		}
		fields := store.EpicFields{Title: title}
		fields.Description, _ = cmd.Flags().GetString("description")
		fields.PlanFilename, _ = cmd.Flags().GetString("plan")
		fields.SelfGuided, _ = cmd.Flags().GetBool("self-guided")

		epic, err := st.CreateEpic(fields)
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(epic)
		}
		fmt.Printf("%s %s\n", term.Cyan(epic.ShortID), epic.Title)
		return nil
	},
}

var epicApproveCmd = &cobra.Command{
	Use:   "epic:approve <id>",
	Short: "Approve an epic for execution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		id, err := st.Resolve(args[0])
		if err != nil {
			return err
		}
		by, _ := cmd.Flags().GetString("by")
		now := time.Now().UTC()
		active := store.EpicActive
		epic, err := st.UpdateEpic(id, store.EpicPatch{
			Status:     &active,
			ApprovedBy: &by,
			ApprovedAt: &now,
		})
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(epic)
		}
		fmt.Printf("%s active\n", term.Cyan(epic.ShortID))
		return nil
	},
}

var epicRejectCmd = &cobra.Command{
	Use:   "epic:reject <id>",
	Short: "Reject an epic and reopen its tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		id, err := st.Resolve(args[0])
		if err != nil {
			return err
		}
		epic, err := st.RejectEpic(id)
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(epic)
		}
		fmt.Printf("%s rejected, tasks reopened\n", term.Cyan(epic.ShortID))
		return nil
	},
}

var epicReviewedCmd = &cobra.Command{
	Use:   "epic:reviewed <id>",
	Short: "Accept an epic's review; merges the mirror when one exists",
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

		epics, err := newEpicController(dir, st)
		if err != nil {
			return err
		}

		epic, mergeTask, err := epics.Reviewed(id)
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(map[string]any{"epic": epic, "merge_task": mergeTask})
		}
		if mergeTask != nil {
			fmt.Printf("%s reviewed, merge task %s queued\n",
				term.Cyan(epic.ShortID), term.Blue(mergeTask.ShortID))
		} else {
			fmt.Printf("%s done\n", term.Cyan(epic.ShortID))
		}
		return nil
	},
}

// newEpicController builds the same controller the daemon uses, so CLI
// verbs that finish tasks run the epic rollup too.
func newEpicController(dir string, st *store.Store) (*daemon.EpicController, error) {
	var cfg config.Config
	if err := config.Load(dir, &cfg); err != nil {
		return nil, err
	}
	var mirrors *mirror.Manager
	if cfg.EpicMirrorsEnabled {
		var err error
		if mirrors, err = mirror.NewManager(dir, ""); err != nil {
			return nil, err
		}
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return daemon.NewEpicController(st, mirrors, cfg.EpicMirrorsEnabled, dir, log), nil
}

var epicsCmd = &cobra.Command{
	Use:   "epics",
	Short: "List epics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		status, _ := cmd.Flags().GetString("status")
		epics, err := st.ListEpics(store.EpicStatus(status))
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(epics)
		}
		if len(epics) == 0 {
			fmt.Println(term.Dim("no epics"))
			return nil
		}
		for _, e := range epics {
			mirrorNote := ""
			if e.MirrorStatus != store.MirrorNone {
				mirrorNote = "  " + term.Dim("mirror:"+string(e.MirrorStatus))
			}
			fmt.Printf("%s %s %s%s\n",
				term.PadRight(e.ShortID, 10, term.Cyan),
				term.PadRight(string(e.Status), 9, term.Yellow),
				e.Title,
				mirrorNote,
			)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(epicAddCmd, epicApproveCmd, epicRejectCmd, epicReviewedCmd, epicsCmd)

	epicAddCmd.Flags().StringP("description", "d", "", "epic description")
	epicAddCmd.Flags().String("plan", "", "plan filename under .fuel/plans/")
	epicAddCmd.Flags().Bool("self-guided", false, "run tasks in the selfguided loop")

	epicApproveCmd.Flags().String("by", "", "approver name")

	epicsCmd.Flags().StringP("status", "s", "", "filter by status")
}
