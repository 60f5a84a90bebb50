package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fuelhq/fuel/internal/config"
	"github.com/fuelhq/fuel/internal/driver"
	"github.com/fuelhq/fuel/internal/store"
)

// planSnippetLimit bounds how much of an epic plan is inlined into a
// task prompt.
const planSnippetLimit = 8 * 1024

// PlanPath returns where an epic's plan file lives.
func PlanPath(projectDir, planFilename string) string {
	return filepath.Join(projectDir, config.Dir, "plans", filepath.Base(planFilename))
}

// RenderTaskPrompt builds the prompt an agent receives for one task:
// the task fields, the epic plan snippet when one exists, and the
// selfguided loop contract for selfguided tasks.
func RenderTaskPrompt(projectDir string, task *store.Task, epic *store.Epic) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Task %s: %s\n", task.ShortID, task.Title)
	if task.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", task.Description)
	}
	fmt.Fprintf(&b, "\nType: %s, priority: %d, size: %s, complexity: %s\n",
		task.Type, task.Priority, task.Size, task.Complexity)
	if len(task.Labels) > 0 {
		fmt.Fprintf(&b, "Labels: %s\n", strings.Join(task.Labels, ", "))
	}

	if epic != nil {
		fmt.Fprintf(&b, "\nThis task belongs to epic %s: %s\n", epic.ShortID, epic.Title)
		if snippet := planSnippet(projectDir, epic.PlanFilename); snippet != "" {
			fmt.Fprintf(&b, "\nEpic plan:\n%s\n", snippet)
		}
	}

	if task.Selfguided() {
		fmt.Fprintf(&b, "\nYou decide when this work is finished. Iteration %d.\n", task.SelfguidedIteration+1)
		fmt.Fprintf(&b, "When the task is fully complete, end your final message with the line:\n%s\n", driver.SelfguidedMarker)
	}

	b.WriteString("\nWhen done, summarize what changed and why.\n")
	return b.String()
}

// planSnippet reads the plan file, truncated to a prompt-safe size.
// A missing or unreadable plan renders nothing; the task still runs.
func planSnippet(projectDir, planFilename string) string {
	if planFilename == "" {
		return ""
	}
	raw, err := os.ReadFile(PlanPath(projectDir, planFilename))
	if err != nil {
		return ""
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > planSnippetLimit {
		s = s[:planSnippetLimit] + "\n[plan truncated]"
	}
	return s
}

// RenderReviewPrompt builds the reviewer's prompt: the task summary,
// the last run's output tail, and the verdict contract the pipeline
// parses.
func RenderReviewPrompt(task *store.Task, run *store.Run, diff string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Review the completed task %s: %s\n", task.ShortID, task.Title)
	if task.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", task.Description)
	}
	if run != nil && run.Output != "" {
		fmt.Fprintf(&b, "\nAgent's final output:\n%s\n", run.Output)
	}
	if diff != "" {
		fmt.Fprintf(&b, "\nRecent diff:\n%s\n", diff)
	}
	b.WriteString(`
Judge whether the work is complete and correct. Answer in exactly this format:

VERDICT: PASS or FAIL
ISSUES:
- one bullet per problem (omit the section when passing)
`)
	return b.String()
}

// RenderEpicReviewPrompt builds the prompt for the synthesized
// epic-review task created when every task of an epic is done.
func RenderEpicReviewPrompt(projectDir string, epic *store.Epic, tasks []store.Task) string {
	var b strings.Builder

	fmt.Fprintf(&b, "All tasks of epic %s (%s) are done. Review the epic as a whole.\n", epic.ShortID, epic.Title)
	if epic.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", epic.Description)
	}
	if snippet := planSnippet(projectDir, epic.PlanFilename); snippet != "" {
		fmt.Fprintf(&b, "\nPlan:\n%s\n", snippet)
	}
	b.WriteString("\nCompleted tasks:\n")
	for _, t := range tasks {
		fmt.Fprintf(&b, "- %s: %s\n", t.ShortID, t.Title)
	}
	b.WriteString(`
Check that the tasks together deliver the plan. Answer in exactly this format:

VERDICT: PASS or FAIL
ISSUES:
- one bullet per problem (omit the section when passing)
`)
	return b.String()
}

// RenderMergePrompt builds the prompt for a merge task landing an
// epic's mirror branch on the base branch.
func RenderMergePrompt(epic *store.Epic) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Merge branch %s of epic %s (%s) into the project's base branch.\n",
		epic.MirrorBranch, epic.ShortID, epic.Title)
	fmt.Fprintf(&b, "The branch forked from commit %s. Resolve conflicts conservatively; ", epic.BaseCommit)
	b.WriteString("if a conflict needs a human decision, stop and say so instead of guessing.\n")
	return b.String()
}
