package scaffold

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fuelhq/fuel/internal/config"
)

// countTemplates returns the number of files in the embedded template
// FS so tests don't break when templates are added.
func countTemplates(t *testing.T) int {
	t.Helper()
	var count int
	err := fs.WalkDir(templatesFS, "templates", func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walking embedded templates: %v", err)
	}
	if count == 0 {
		t.Fatal("embedded templates contain zero files")
	}
	return count
}

func TestPlanFreshProjectWritesEverything(t *testing.T) {
	dir := t.TempDir()
	actions, err := Plan(dir)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	if want := countTemplates(t); len(actions) != want {
		t.Errorf("len(actions) = %d, want %d", len(actions), want)
	}
	for _, a := range actions {
		if a.Action != ActionWrite {
			t.Errorf("%s planned as %s, want write", a.RelPath, a.Action)
		}
		if !strings.HasPrefix(a.RelPath, config.Dir+"/") {
			t.Errorf("%s is outside %s/", a.RelPath, config.Dir)
		}
	}
}

func TestExecuteWritesTemplates(t *testing.T) {
	dir := t.TempDir()
	actions, err := Plan(dir)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	result := Execute(actions)
	if result.Errors != 0 {
		t.Fatalf("Errors = %d, want 0", result.Errors)
	}
	if want := countTemplates(t); result.Written != want {
		t.Errorf("Written = %d, want %d", result.Written, want)
	}

	data, err := os.ReadFile(config.Path(dir))
	if err != nil {
		t.Fatalf("reading scaffolded config: %v", err)
	}
	if !strings.Contains(string(data), "concurrency_cap") {
		t.Error("scaffolded config is missing concurrency_cap")
	}
}

func TestScaffoldNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	cfgPath := config.Path(dir)
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0755); err != nil {
		t.Fatal(err)
	}
	edited := "concurrency_cap: 4\n"
	if err := os.WriteFile(cfgPath, []byte(edited), 0644); err != nil {
		t.Fatal(err)
	}

	actions, err := Plan(dir)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	result := Execute(actions)

	if result.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", result.Skipped)
	}
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != edited {
		t.Error("user-edited config was overwritten")
	}
}

func TestScaffoldedConfigLoads(t *testing.T) {
	dir := t.TempDir()
	actions, err := Plan(dir)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if result := Execute(actions); result.Errors != 0 {
		t.Fatalf("Errors = %d", result.Errors)
	}

	var cfg config.Config
	if err := config.Load(dir, &cfg); err != nil {
		t.Fatalf("loading scaffolded config: %v", err)
	}
	if cfg.ConcurrencyCap != config.DefaultConcurrencyCap {
		t.Errorf("ConcurrencyCap = %d, want default %d", cfg.ConcurrencyCap, config.DefaultConcurrencyCap)
	}
}
