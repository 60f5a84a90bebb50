package daemon

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fuelhq/fuel/internal/config"
	"github.com/fuelhq/fuel/internal/driver"
	"github.com/fuelhq/fuel/internal/store"
)

func TestRenderTaskPrompt(t *testing.T) {
	task := &store.Task{
		ShortID: "f-abc234", Title: "fix flaky watcher test",
		Description: "The watcher test races on teardown.",
		Type:        store.TypeBug, Priority: 1, Size: store.SizeS, Complexity: store.ComplexitySimple,
		Labels: []string{"tests"},
	}
	got := RenderTaskPrompt(t.TempDir(), task, nil)

	for _, want := range []string{"f-abc234", "fix flaky watcher test", "races on teardown", "priority: 1", "tests"} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, driver.SelfguidedMarker) {
		t.Error("plain task prompt mentions the selfguided marker")
	}
}

func TestRenderTaskPromptWithPlan(t *testing.T) {
	dir := t.TempDir()
	planDir := filepath.Join(dir, config.Dir, "plans")
	if err := os.MkdirAll(planDir, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(planDir, "auth.md"), []byte("## Plan\nShip login."), 0600); err != nil {
		t.Fatal(err)
	}

	task := &store.Task{ShortID: "f-abc234", Title: "t", EpicID: "e-xyz234"}
	epic := &store.Epic{ShortID: "e-xyz234", Title: "auth", PlanFilename: "auth.md"}
	got := RenderTaskPrompt(dir, task, epic)

	if !strings.Contains(got, "Ship login.") {
		t.Errorf("plan snippet missing:\n%s", got)
	}
	if !strings.Contains(got, "e-xyz234") {
		t.Errorf("epic reference missing:\n%s", got)
	}
}

func TestRenderTaskPromptSelfguided(t *testing.T) {
	task := &store.Task{ShortID: "f-abc234", Title: "t", Agent: store.AgentSelfguided, SelfguidedIteration: 2}
	got := RenderTaskPrompt(t.TempDir(), task, nil)
	if !strings.Contains(got, driver.SelfguidedMarker) {
		t.Error("selfguided prompt missing the completion marker contract")
	}
	if !strings.Contains(got, "Iteration 3") {
		t.Errorf("iteration count not surfaced:\n%s", got)
	}
}

func TestRenderReviewPromptContract(t *testing.T) {
	task := &store.Task{ShortID: "f-abc234", Title: "t"}
	run := &store.Run{Output: "changed 3 files"}
	got := RenderReviewPrompt(task, run, "diff --stat\n 3 files changed")
	for _, want := range []string{"VERDICT: PASS or FAIL", "ISSUES:", "changed 3 files", "3 files changed"} {
		if !strings.Contains(got, want) {
			t.Errorf("review prompt missing %q", want)
		}
	}
}
