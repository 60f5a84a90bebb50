package cmd

import (
	"testing"

	"github.com/fuelhq/fuel/internal/store"
)

func runFuel(t *testing.T, args ...string) {
	t.Helper()
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("fuel %v: %v", args, err)
	}
}

func TestDoneRollsUpEpic(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(store.DBPath(dir))
	if err != nil {
		t.Fatal(err)
	}
	epic, err := st.CreateEpic(store.EpicFields{Title: "ship it"})
	if err != nil {
		t.Fatal(err)
	}
	active := store.EpicActive
	if _, err := st.UpdateEpic(epic.ShortID, store.EpicPatch{Status: &active}); err != nil {
		t.Fatal(err)
	}
	task, err := st.CreateTask(store.TaskFields{Title: "only task", EpicID: epic.ShortID})
	if err != nil {
		t.Fatal(err)
	}
	st.Close()

	// Closing the epic's last task from the CLI must run the rollup,
	// with no daemon involved.
	runFuel(t, "--cwd", dir, "done", task.ShortID)

	st, err = store.Open(store.DBPath(dir))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	got, err := st.GetEpic(epic.ShortID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != store.EpicReview {
		t.Errorf("epic status = %s, want review", got.Status)
	}

	tasks, err := st.ListTasksByEpic(epic.ShortID)
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, tk := range tasks {
		if tk.Agent == store.AgentEpicReview {
			found = true
		}
	}
	if !found {
		t.Error("no epic-review task synthesized")
	}
}

func TestDoneIsNotRepeatable(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(store.DBPath(dir))
	if err != nil {
		t.Fatal(err)
	}
	task, err := st.CreateTask(store.TaskFields{Title: "once"})
	if err != nil {
		t.Fatal(err)
	}
	st.Close()

	runFuel(t, "--cwd", dir, "done", task.ShortID)

	rootCmd.SetArgs([]string{"--cwd", dir, "done", task.ShortID})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("second done succeeded, want invalid transition")
	}
}
