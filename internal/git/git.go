// Package git shells out to the git CLI for the small set of
// operations epic mirrors need.
package git

import (
	"fmt"
	"os/exec"
	"strings"
)

// Repo runs git commands inside one working directory.
type Repo struct {
	dir string
}

// New returns a Repo rooted at dir.
func New(dir string) *Repo {
	return &Repo{dir: dir}
}

// IsRepo reports whether dir is inside a git work tree.
func (r *Repo) IsRepo() bool {
	out, err := r.output("rev-parse", "--is-inside-work-tree")
	return err == nil && out == "true"
}

// Head returns the current HEAD commit hash.
func (r *Repo) Head() (string, error) {
	return r.output("rev-parse", "HEAD")
}

// CurrentBranch returns the checked-out branch name.
func (r *Repo) CurrentBranch() (string, error) {
	return r.output("rev-parse", "--abbrev-ref", "HEAD")
}

// BaseBranch detects the main/master branch, falling back to the
// current one.
func (r *Repo) BaseBranch() (string, error) {
	for _, name := range []string{"main", "master"} {
		if r.BranchExists(name) {
			return name, nil
		}
	}
	return r.CurrentBranch()
}

// BranchExists reports whether a ref resolves.
func (r *Repo) BranchExists(branch string) bool {
	return r.run("rev-parse", "--verify", branch) == nil
}

// CreateBranch creates branch from HEAD and switches to it. An
// existing branch is just checked out.
func (r *Repo) CreateBranch(branch string) error {
	if r.BranchExists(branch) {
		return r.Checkout(branch)
	}
	return r.run("checkout", "-b", branch)
}

// Checkout switches to an existing branch.
func (r *Repo) Checkout(branch string) error {
	return r.run("checkout", branch)
}

// Merge merges branch into base with a merge commit.
func (r *Repo) Merge(base, branch string) error {
	if err := r.Checkout(base); err != nil {
		return err
	}
	return r.run("merge", branch, "--no-ff", "-m", fmt.Sprintf("Merge %s", branch))
}

// DeleteBranch removes a branch; force discards unmerged work.
func (r *Repo) DeleteBranch(branch string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	return r.run("branch", flag, branch)
}

// DiffStat summarizes changes between base and branch.
func (r *Repo) DiffStat(base, branch string) (string, error) {
	return r.output("diff", "--stat", base+"..."+branch)
}

// Diff returns the full diff an epic branch introduced over base.
func (r *Repo) Diff(base, branch string) (string, error) {
	return r.output("diff", base+"..."+branch)
}

// HasUncommittedChanges reports a dirty work tree.
func (r *Repo) HasUncommittedChanges() bool {
	out, err := r.output("status", "--porcelain")
	return err == nil && out != ""
}

func (r *Repo) output(args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.dir
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (r *Repo) run(args ...string) error {
	cmd := exec.Command("git", args...)
	cmd.Dir = r.dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(out)))
	}
	return nil
}
