package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fuelhq/fuel/internal/store"
	"github.com/fuelhq/fuel/internal/term"
)

var addCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Create a task",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		fields := store.TaskFields{Title: strings.Join(args, " ")}
		fields.Description, _ = cmd.Flags().GetString("description")
		taskType, _ := cmd.Flags().GetString("type")
		fields.Type = store.TaskType(taskType)
		if cmd.Flags().Changed("priority") {
			p, _ := cmd.Flags().GetInt("priority")
			fields.Priority = &p
		}
		size, _ := cmd.Flags().GetString("size")
		fields.Size = store.TaskSize(size)
		complexity, _ := cmd.Flags().GetString("complexity")
		fields.Complexity = store.TaskComplexity(complexity)
		fields.Labels, _ = cmd.Flags().GetStringArray("label")
		fields.Agent, _ = cmd.Flags().GetString("agent")

		if epic, _ := cmd.Flags().GetString("epic"); epic != "" {
			id, err := st.Resolve(epic)
			if err != nil {
				return err
			}
			fields.EpicID = id
		}
		if blockers, _ := cmd.Flags().GetStringArray("blocked-by"); len(blockers) > 0 {
			for _, b := range blockers {
				id, err := st.Resolve(b)
				if err != nil {
					return err
				}
				fields.BlockedBy = append(fields.BlockedBy, id)
			}
		}

		task, err := st.CreateTask(fields)
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(task)
		}
		fmt.Printf("%s %s\n", term.Blue(task.ShortID), task.Title)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update task fields",
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

		var patch store.TaskPatch
		if cmd.Flags().Changed("title") {
			v, _ := cmd.Flags().GetString("title")
			patch.Title = &v
		}
		if cmd.Flags().Changed("description") {
			v, _ := cmd.Flags().GetString("description")
			patch.Description = &v
		}
		if cmd.Flags().Changed("type") {
			v, _ := cmd.Flags().GetString("type")
			t := store.TaskType(v)
			patch.Type = &t
		}
		if cmd.Flags().Changed("priority") {
			v, _ := cmd.Flags().GetInt("priority")
			patch.Priority = &v
		}
		if cmd.Flags().Changed("size") {
			v, _ := cmd.Flags().GetString("size")
			s := store.TaskSize(v)
			patch.Size = &s
		}
		if cmd.Flags().Changed("complexity") {
			v, _ := cmd.Flags().GetString("complexity")
			c := store.TaskComplexity(v)
			patch.Complexity = &c
		}
		if cmd.Flags().Changed("label") {
			v, _ := cmd.Flags().GetStringArray("label")
			patch.Labels = &v
		}
		if cmd.Flags().Changed("agent") {
			v, _ := cmd.Flags().GetString("agent")
			patch.Agent = &v
		}

		task, err := st.UpdateTask(id, patch)
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(task)
		}
		fmt.Printf("%s updated\n", term.Blue(task.ShortID))
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one task in full",
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
		task, err := st.GetTask(id)
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(task)
		}

		printTaskDetail(st, task)
		return nil
	},
}

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		status, _ := cmd.Flags().GetString("status")
		tasks, err := st.ListTasks(store.TaskStatus(status))
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(tasks)
		}
		printTaskTable(tasks)
		return nil
	},
}

var readyCmd = &cobra.Command{
	Use:   "ready",
	Short: "List tasks the daemon would dispatch, in order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		// The CLI has no health state; cool-downs only apply inside the
		// daemon.
		tasks, err := st.ListReady(func(string) bool { return false })
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(tasks)
		}
		printTaskTable(tasks)
		return nil
	},
}

var blockedCmd = &cobra.Command{
	Use:   "blocked",
	Short: "List open tasks waiting on unfinished blockers",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		open, err := st.ListTasks(store.StatusOpen)
		if err != nil {
			return err
		}
		byID := make(map[string]store.Task, len(open))
		all, err := st.ListTasks("")
		if err != nil {
			return err
		}
		for _, t := range all {
			byID[t.ShortID] = t
		}

		var blocked []store.Task
		for _, t := range open {
			for _, dep := range t.BlockedBy {
				if blocker, ok := byID[dep]; !ok || blocker.Status != store.StatusDone {
					blocked = append(blocked, t)
					break
				}
			}
		}
		if jsonOutput(cmd) {
			return printJSON(blocked)
		}
		if len(blocked) == 0 {
			fmt.Println(term.Dim("nothing blocked"))
			return nil
		}
		for _, t := range blocked {
			fmt.Printf("%s %s %s %s\n",
				term.Blue(t.ShortID),
				term.Yellowf("P%d", t.Priority),
				t.Title,
				term.Dim("waits on "+strings.Join(t.BlockedBy, ", ")),
			)
		}
		return nil
	},
}

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Show epics with their tasks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, _, err := openStore(cmd)
		if err != nil {
			return err
		}
		defer st.Close()

		epics, err := st.ListEpics("")
		if err != nil {
			return err
		}
		all, err := st.ListTasks("")
		if err != nil {
			return err
		}

		if jsonOutput(cmd) {
			type node struct {
				Epic  store.Epic   `json:"epic"`
				Tasks []store.Task `json:"tasks"`
			}
			out := struct {
				Epics    []node       `json:"epics"`
				Orphans  []store.Task `json:"tasks_without_epic"`
				TaskSeen int          `json:"-"`
			}{}
			for _, e := range epics {
				n := node{Epic: e}
				for _, t := range all {
					if t.EpicID == e.ShortID {
						n.Tasks = append(n.Tasks, t)
					}
				}
				out.Epics = append(out.Epics, n)
			}
			for _, t := range all {
				if t.EpicID == "" {
					out.Orphans = append(out.Orphans, t)
				}
			}
			return printJSON(out)
		}

		for _, e := range epics {
			fmt.Printf("%s %s %s\n",
				term.Cyan(e.ShortID),
				term.Bold(e.Title),
				term.Dim("["+string(e.Status)+"]"),
			)
			for _, t := range all {
				if t.EpicID != e.ShortID {
					continue
				}
				fmt.Printf("  %s %s %s\n",
					term.Blue(t.ShortID),
					statusColor(t.Status)(string(t.Status)),
					t.Title,
				)
			}
		}
		orphans := 0
		for _, t := range all {
			if t.EpicID == "" {
				if orphans == 0 {
					fmt.Println(term.Dim("(no epic)"))
				}
				orphans++
				fmt.Printf("  %s %s %s\n",
					term.Blue(t.ShortID),
					statusColor(t.Status)(string(t.Status)),
					t.Title,
				)
			}
		}
		return nil
	},
}

// statusColor picks the display color for a task status.
func statusColor(s store.TaskStatus) func(string) string {
	switch s {
	case store.StatusInProgress:
		return term.Green
	case store.StatusReview:
		return term.Yellow
	case store.StatusDone:
		return term.Dim
	case store.StatusPaused, store.StatusSomeday:
		return term.Magenta
	default:
		return term.Blue
	}
}

func printTaskTable(tasks []store.Task) {
	if len(tasks) == 0 {
		fmt.Println(term.Dim("no tasks"))
		return
	}
	for _, t := range tasks {
		labels := ""
		if len(t.Labels) > 0 {
			labels = "  " + term.Magenta(strings.Join(t.Labels, ","))
		}
		epic := ""
		if t.EpicID != "" {
			epic = "  " + term.Cyan(t.EpicID)
		}
		fmt.Printf("%s %s %s %s%s%s\n",
			term.PadRight(t.ShortID, 10, term.Blue),
			term.PadRight(string(t.Status), 11, statusColor(t.Status)),
			term.Yellowf("P%d", t.Priority),
			t.Title,
			epic,
			labels,
		)
	}
}

func printTaskDetail(st *store.Store, t *store.Task) {
	fmt.Printf("%s %s\n", term.Bold("Task:"), term.Blue(t.ShortID))
	fmt.Printf("  %s %s\n", term.Bold("Title:"), t.Title)
	fmt.Printf("  %s %s  %s P%d  %s %s/%s\n",
		term.Bold("Status:"), statusColor(t.Status)(string(t.Status)),
		term.Bold("Priority:"), t.Priority,
		term.Bold("Size:"), t.Size, t.Complexity,
	)
	if t.Agent != "" {
		fmt.Printf("  %s %s\n", term.Bold("Agent:"), term.Cyan(t.Agent))
	}
	if t.EpicID != "" {
		fmt.Printf("  %s %s\n", term.Bold("Epic:"), term.Cyan(t.EpicID))
	}
	if len(t.BlockedBy) > 0 {
		fmt.Printf("  %s %s\n", term.Bold("Blocked by:"), strings.Join(t.BlockedBy, ", "))
	}
	if len(t.Labels) > 0 {
		fmt.Printf("  %s %s\n", term.Bold("Labels:"), term.Magenta(strings.Join(t.Labels, ", ")))
	}
	if t.Selfguided() {
		fmt.Printf("  %s %d\n", term.Bold("Selfguided iteration:"), t.SelfguidedIteration)
	}
	if t.Reason != "" {
		fmt.Printf("  %s %s\n", term.Bold("Reason:"), t.Reason)
	}
	if t.CommitHash != "" {
		fmt.Printf("  %s %s\n", term.Bold("Commit:"), t.CommitHash)
	}
	if t.Description != "" {
		fmt.Printf("\n%s\n", t.Description)
	}

	runs, err := st.ListRuns(t.ShortID, 5)
	if err == nil && len(runs) > 0 {
		fmt.Printf("\n%s\n", term.Bold("Recent runs:"))
		for _, r := range runs {
			printRunRow(r)
		}
	}
}

func addTaskFieldFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("description", "d", "", "task description (markdown)")
	cmd.Flags().StringP("type", "t", "", "bug|fix|feature|task|epic|chore|docs|test|refactor|selfguided")
	cmd.Flags().IntP("priority", "p", 2, "priority 0..4, lower runs first")
	cmd.Flags().String("size", "", "xs|s|m|l|xl")
	cmd.Flags().String("complexity", "", "trivial|simple|moderate|complex")
	cmd.Flags().StringArrayP("label", "l", nil, "label (repeatable)")
	cmd.Flags().String("agent", "", "agent to run this task")
}

func init() {
	rootCmd.AddCommand(addCmd, updateCmd, showCmd, tasksCmd, readyCmd, blockedCmd, treeCmd)

	addTaskFieldFlags(addCmd)
	addCmd.Flags().String("epic", "", "attach to an epic")
	addCmd.Flags().StringArray("blocked-by", nil, "blocking task id (repeatable)")

	addTaskFieldFlags(updateCmd)
	updateCmd.Flags().String("title", "", "new title")

	tasksCmd.Flags().StringP("status", "s", "", "filter by status")
}
