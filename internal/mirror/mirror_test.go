package mirror

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func TestSlug(t *testing.T) {
	cases := []struct{ in, want string }{
		{"/home/dev/My Project", "my-project"},
		{"/srv/fuel", "fuel"},
		{"/srv/app_v2", "app_v2"},
		{"/", "project"},
	}
	for _, c := range cases {
		if got := Slug(c.in); got != c.want {
			t.Errorf("Slug(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestBranchName(t *testing.T) {
	if got := BranchName("e-abc234"); got != "epic/e-abc234" {
		t.Errorf("BranchName = %q", got)
	}
}

func TestPathLayout(t *testing.T) {
	m, err := NewManager("/home/dev/fuel", "/tmp/mirrors")
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join("/tmp/mirrors", "fuel", "e-abc234")
	if got := m.Path("e-abc234"); got != want {
		t.Errorf("Path = %q, want %q", got, want)
	}
}

// initTestRepo builds a git repo with one commit on main.
func initTestRepo(t *testing.T) (string, func(args ...string)) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "-b", "main")
	run("config", "user.email", "agent@localhost")
	run("config", "user.name", "agent")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("fuel\n"), 0644); err != nil {
		t.Fatal(err)
	}
	run("add", ".")
	run("commit", "-m", "initial")
	return dir, run
}

func TestMergeLandsEpicBranch(t *testing.T) {
	dir, run := initTestRepo(t)

	run("checkout", "-b", BranchName("e-abc234"))
	if err := os.WriteFile(filepath.Join(dir, "feature.go"), []byte("package main\n"), 0644); err != nil {
		t.Fatal(err)
	}
	run("add", ".")
	run("commit", "-m", "epic work")
	run("checkout", "main")

	m, err := NewManager(dir, t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Merge("e-abc234"); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "feature.go")); err != nil {
		t.Errorf("epic branch not landed on main: %v", err)
	}
}

func TestRemoveRefusesEscapes(t *testing.T) {
	m, err := NewManager("/home/dev/fuel", t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Remove("../../etc"); err == nil {
		t.Error("Remove escaped the mirror base")
	}
}
