// Package mirror manages copy-on-write clones of the project
// directory for epics. Each mirror lives under
// $HOME/.fuel/mirrors/<project-slug>/<epic-short-id>/, shares the
// original .fuel/ through a symlink, and carries its own epic branch.
package mirror

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/fuelhq/fuel/internal/config"
	"github.com/fuelhq/fuel/internal/git"
)

// Mirror describes one created clone.
type Mirror struct {
	Path       string
	Branch     string
	BaseCommit string
}

// Manager creates and removes mirrors for one project.
type Manager struct {
	projectDir string
	baseDir    string
}

// NewManager builds a manager. baseDir defaults to
// $HOME/.fuel/mirrors when empty.
func NewManager(projectDir, baseDir string) (*Manager, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home for mirror base: %w", err)
		}
		baseDir = filepath.Join(home, config.Dir, "mirrors")
	}
	return &Manager{projectDir: projectDir, baseDir: baseDir}, nil
}

// BranchName is the git branch an epic's mirror works on.
func BranchName(epicShortID string) string {
	return "epic/" + epicShortID
}

// Slug derives the mirror directory component from the project path.
func Slug(projectDir string) string {
	base := strings.ToLower(filepath.Base(filepath.Clean(projectDir)))
	var b strings.Builder
	for _, c := range base {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
			b.WriteRune(c)
		default:
			b.WriteRune('-')
		}
	}
	// Paths like "/" leave nothing but substituted dashes.
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "project"
	}
	return slug
}

// Path returns where an epic's mirror lives, whether or not it exists.
func (m *Manager) Path(epicShortID string) string {
	return filepath.Join(m.baseDir, Slug(m.projectDir), epicShortID)
}

// Create clones the project, relinks .fuel/ to the original so store
// state stays shared, and checks out a fresh epic branch. The
// returned BaseCommit is the HEAD the branch forked from.
func (m *Manager) Create(epicShortID string) (Mirror, error) {
	src := git.New(m.projectDir)
	if !src.IsRepo() {
		return Mirror{}, fmt.Errorf("project %s is not a git repository", m.projectDir)
	}

	dest := m.Path(epicShortID)
	if _, err := os.Stat(dest); err == nil {
		return Mirror{}, fmt.Errorf("mirror %s already exists", dest)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0700); err != nil {
		return Mirror{}, fmt.Errorf("creating mirror base: %w", err)
	}

	// --reflink=auto gives a CoW clone on filesystems that support it
	// and falls back to a plain copy elsewhere.
	cmd := exec.Command("cp", "-a", "--reflink=auto", m.projectDir, dest)
	if out, err := cmd.CombinedOutput(); err != nil {
		_ = os.RemoveAll(dest)
		return Mirror{}, fmt.Errorf("cloning project: %s", strings.TrimSpace(string(out)))
	}

	if err := m.relinkState(dest); err != nil {
		_ = os.RemoveAll(dest)
		return Mirror{}, err
	}

	repo := git.New(dest)
	base, err := repo.Head()
	if err != nil {
		_ = os.RemoveAll(dest)
		return Mirror{}, err
	}
	branch := BranchName(epicShortID)
	if err := repo.CreateBranch(branch); err != nil {
		_ = os.RemoveAll(dest)
		return Mirror{}, err
	}

	return Mirror{Path: dest, Branch: branch, BaseCommit: base}, nil
}

// relinkState swaps the cloned .fuel/ for a symlink to the original.
func (m *Manager) relinkState(dest string) error {
	cloned := filepath.Join(dest, config.Dir)
	if err := os.RemoveAll(cloned); err != nil {
		return fmt.Errorf("removing cloned state dir: %w", err)
	}
	original := filepath.Join(m.projectDir, config.Dir)
	if err := os.Symlink(original, cloned); err != nil {
		return fmt.Errorf("linking %s: %w", config.Dir, err)
	}
	return nil
}

// Merge lands the epic branch on the project's base branch. The merge
// runs in the original project directory, not the mirror.
func (m *Manager) Merge(epicShortID string) error {
	repo := git.New(m.projectDir)
	base, err := repo.BaseBranch()
	if err != nil {
		return err
	}
	return repo.Merge(base, BranchName(epicShortID))
}

// Remove deletes a mirror directory. The epic branch is left in the
// project repo for inspection.
func (m *Manager) Remove(epicShortID string) error {
	dest := m.Path(epicShortID)
	if !strings.HasPrefix(dest, filepath.Clean(m.baseDir)+string(os.PathSeparator)) {
		return fmt.Errorf("refusing to remove %s outside mirror base", dest)
	}
	return os.RemoveAll(dest)
}
