package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/fuelhq/fuel/internal/store"
)

// PanelModel is the full-screen task detail view.
type PanelModel struct {
	task     store.Task
	epic     *store.Epic
	viewport viewport.Model
	ready    bool // true once dimensions are known
	width    int
	height   int
}

// NewPanelModel creates a detail panel for the given task.
func NewPanelModel(task store.Task, epic *store.Epic, width, height int) PanelModel {
	m := PanelModel{
		task:   task,
		epic:   epic,
		width:  width,
		height: height,
	}
	if width > 0 && height > 0 {
		m.initViewport()
	}
	return m
}

// initViewport sets up the viewport with current dimensions.
// Reserves space for the panel header (3 lines) and footer (2 lines).
func (m *PanelModel) initViewport() {
	headerHeight := 3 // header bar + blank line
	footerHeight := 2 // blank line + help text

	vpWidth := max(20, m.width-4)
	vpHeight := max(5, m.height-headerHeight-footerHeight)

	m.viewport = viewport.New(vpWidth, vpHeight)
	m.viewport.SetContent(renderTaskInfo(m.task, m.epic, max(20, m.width-6)))
	m.ready = true
}

// Update handles messages for the detail screen.
func (m PanelModel) Update(msg tea.Msg) (PanelModel, tea.Cmd) {
	if size, ok := msg.(tea.WindowSizeMsg); ok {
		m.width = size.Width
		m.height = size.Height
		m.initViewport()
	}

	if m.ready {
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View renders the task detail panel.
func (m PanelModel) View() string {
	var b strings.Builder

	b.WriteString(m.viewPanelHeader())
	b.WriteString("\n")

	if !m.ready {
		b.WriteString("  " + dimStyle.Render("Loading...") + "\n")
	} else {
		b.WriteString(m.viewport.View())
		b.WriteString("\n")
	}

	b.WriteString(m.viewPanelFooter())
	return b.String()
}

func (m PanelModel) viewPanelHeader() string {
	return fmt.Sprintf("\n  %s  %s  %s  %s\n",
		titleStyle.Render("fuel"),
		blueStyle.Render(m.task.ShortID),
		paneHeaderStyle.Render(truncate(m.task.Title, 60)),
		dimStyle.Render(formatRelativeTime(m.task.UpdatedAt)),
	)
}

func (m PanelModel) viewPanelFooter() string {
	scroll := ""
	if m.ready {
		pct := m.viewport.ScrollPercent() * 100
		scroll = dimStyle.Render(fmt.Sprintf("  %.0f%%", pct))
	}
	return fmt.Sprintf("  %s%s\n",
		dimStyle.Render("j/k scroll  q back"),
		scroll,
	)
}
