// Package scaffold writes the initial .fuel/ layout for a project. The
// template files are compiled into the binary via go:embed in
// assets_embed.go; Plan computes what a run would change and Execute
// writes it, so callers can offer a dry-run.
package scaffold

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fuelhq/fuel/internal/config"
)

const (
	dirPermissions  fs.FileMode = 0755
	filePermissions fs.FileMode = 0644
)

// targets maps embedded template paths to their project-relative
// destinations. A template without an entry here is a programming
// error surfaced by Plan.
var targets = map[string]string{
	"templates/config.yaml":     config.Dir + "/" + config.FileName,
	"templates/gitignore":       config.Dir + "/.gitignore",
	"templates/plans/README.md": config.Dir + "/plans/README.md",
}

// Action describes what will happen (or did happen) to a single file.
type Action int

const (
	// ActionWrite means the file will be created.
	ActionWrite Action = iota
	// ActionSkip means the file already exists and is left alone.
	ActionSkip
)

func (a Action) String() string {
	switch a {
	case ActionWrite:
		return "write"
	case ActionSkip:
		return "skip"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// FileAction is one planned or completed file operation.
type FileAction struct {
	// RelPath is the destination relative to the project directory.
	RelPath string
	// TargetPath is the absolute destination path.
	TargetPath string
	Action     Action
	// Err is set by Execute when the write failed.
	Err error

	// srcData carries the template bytes from Plan to Execute.
	srcData []byte
}

// Result summarizes an Execute run.
type Result struct {
	Written int
	Skipped int
	Errors  int
}

// Plan walks the embedded templates and decides what a run against
// projectDir would do. Existing files are never overwritten: a
// project's config is the user's to edit, so anything already present
// plans as a skip.
func Plan(projectDir string) ([]FileAction, error) {
	if projectDir == "" {
		return nil, fmt.Errorf("scaffold: project directory is empty")
	}

	var actions []FileAction
	err := fs.WalkDir(templatesFS, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, ok := targets[path]
		if !ok {
			return fmt.Errorf("embedded template %s has no destination", path)
		}
		data, err := fs.ReadFile(templatesFS, path)
		if err != nil {
			return fmt.Errorf("reading embedded %s: %w", path, err)
		}

		targetPath := filepath.Join(projectDir, filepath.FromSlash(rel))
		action := ActionWrite
		if _, err := os.Stat(targetPath); err == nil {
			action = ActionSkip
		}

		actions = append(actions, FileAction{
			RelPath:    rel,
			TargetPath: targetPath,
			Action:     action,
			srcData:    data,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking embedded templates: %w", err)
	}
	if len(actions) == 0 {
		return nil, fmt.Errorf("embedded templates produced zero actions")
	}
	return actions, nil
}

// Execute writes the files a Plan decided on. It attempts every file
// even when some fail; per-file errors land on FileAction.Err and are
// counted in the result.
func Execute(actions []FileAction) *Result {
	result := &Result{}

	for i := range actions {
		fa := &actions[i]
		if fa.Action == ActionSkip {
			result.Skipped++
			continue
		}

		if err := os.MkdirAll(filepath.Dir(fa.TargetPath), dirPermissions); err != nil {
			fa.Err = fmt.Errorf("creating directory: %w", err)
			result.Errors++
			continue
		}
		if err := os.WriteFile(fa.TargetPath, fa.srcData, filePermissions); err != nil {
			fa.Err = err
			result.Errors++
			continue
		}
		result.Written++
	}
	return result
}

// UpToDate reports whether the file on disk matches the template. Used
// for skip diagnostics only; Plan never overwrites existing files.
func (fa FileAction) UpToDate() bool {
	existing, err := os.ReadFile(fa.TargetPath)
	return err == nil && bytes.Equal(existing, fa.srcData)
}
