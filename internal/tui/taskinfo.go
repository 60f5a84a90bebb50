package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/fuelhq/fuel/internal/store"
)

// renderMarkdown renders a markdown string using glamour, falling back
// to plain word-wrapped text if glamour fails.
func renderMarkdown(md string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return wrapText(md, width)
	}
	out, err := r.Render(md)
	if err != nil {
		return wrapText(md, width)
	}
	return strings.TrimRight(out, "\n")
}

// renderTaskInfo formats a task into styled text for the detail pane.
func renderTaskInfo(t store.Task, epic *store.Epic, width int) string {
	var b strings.Builder

	b.WriteString(paneHeaderStyle.Render(t.Title))
	b.WriteString("\n\n")

	statusColor := dimStyle
	switch t.Status {
	case store.StatusInProgress:
		statusColor = greenStyle
	case store.StatusOpen:
		statusColor = blueStyle
	case store.StatusReview:
		statusColor = yellowStyle
	case store.StatusPaused:
		statusColor = redStyle
	}

	b.WriteString(fmt.Sprintf("%s %s  %s %s  %s %s",
		dimStyle.Render("Status:"),
		statusColor.Render(string(t.Status)),
		dimStyle.Render("Priority:"),
		fmt.Sprintf("P%d", t.Priority),
		dimStyle.Render("ID:"),
		t.ShortID,
	))
	b.WriteString("\n")

	if t.Agent != "" || t.Size != "" || t.Complexity != "" {
		b.WriteString(fmt.Sprintf("%s %s  %s %s  %s %s",
			dimStyle.Render("Agent:"),
			cyanStyle.Render(orDash(t.Agent)),
			dimStyle.Render("Size:"),
			orDash(string(t.Size)),
			dimStyle.Render("Complexity:"),
			orDash(string(t.Complexity)),
		))
		b.WriteString("\n")
	}

	if len(t.BlockedBy) > 0 {
		b.WriteString(fmt.Sprintf("%s %s",
			dimStyle.Render("Blocked by:"),
			blueStyle.Render(strings.Join(t.BlockedBy, ", ")),
		))
		b.WriteString("\n")
	}

	if len(t.Labels) > 0 {
		b.WriteString(fmt.Sprintf("%s %s",
			dimStyle.Render("Labels:"),
			magentaStyle.Render(strings.Join(t.Labels, ", ")),
		))
		b.WriteString("\n")
	}

	if epic != nil {
		b.WriteString(fmt.Sprintf("%s %s %s %s",
			dimStyle.Render("Epic:"),
			blueStyle.Render(epic.ShortID),
			truncate(epic.Title, max(10, width-30)),
			dimStyle.Render("["+string(epic.Status)+"]"),
		))
		b.WriteString("\n")
	}

	if t.Selfguided() {
		b.WriteString(fmt.Sprintf("%s %d",
			dimStyle.Render("Selfguided iteration:"),
			t.SelfguidedIteration,
		))
		b.WriteString("\n")
	}

	if t.Description != "" {
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("── Description ──"))
		b.WriteString("\n")
		b.WriteString(renderMarkdown(t.Description, width))
		b.WriteString("\n")
	}

	if t.Reason != "" {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("%s %s", dimStyle.Render("Last reason:"), t.Reason))
		b.WriteString("\n")
	}

	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "—"
	}
	return s
}

// wrapText does simple word wrapping at the given width.
// Preserves existing newlines. Used as fallback when glamour fails.
func wrapText(s string, width int) string {
	if width <= 0 {
		return s
	}

	var result strings.Builder
	for _, paragraph := range strings.Split(s, "\n") {
		if result.Len() > 0 {
			result.WriteString("\n")
		}

		if len([]rune(paragraph)) <= width {
			result.WriteString(paragraph)
			continue
		}

		words := strings.Fields(paragraph)
		lineLen := 0
		for i, word := range words {
			wordLen := len([]rune(word))
			if i > 0 && lineLen+1+wordLen > width {
				result.WriteString("\n")
				lineLen = 0
			} else if i > 0 {
				result.WriteString(" ")
				lineLen++
			}
			result.WriteString(word)
			lineLen += wordLen
		}
	}

	return result.String()
}
