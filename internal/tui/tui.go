// Package tui implements the interactive board for watching a consume
// daemon: a kanban-style column view fed by the ATTACH snapshot and
// live IPC events, with a task detail pane and per-run log streaming.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fuelhq/fuel/internal/client"
	"github.com/fuelhq/fuel/internal/protocol"
	"github.com/fuelhq/fuel/internal/store"
)

// tickInterval drives log polling and relative-time refreshes; board
// state itself arrives as pushed events.
const tickInterval = 2 * time.Second

// eventWait bounds one blocking read on the event stream. Heartbeats
// arrive every tick, so a quiet stream means a dead daemon.
const eventWait = 30 * time.Second

// Styles are allocated once at package level, not per View() call.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")) // bright blue

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8"))

	greenStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	yellowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("11"))

	redStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	cyanStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("14"))

	blueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12"))

	magentaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("13"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Background(lipgloss.Color("237"))

	paneHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("14"))

	columnBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1)

	columnBorderSelected = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("14")).
				Padding(0, 1)
)

// boardColumns are the statuses shown as columns, left to right.
var boardColumns = []store.TaskStatus{
	store.StatusOpen,
	store.StatusInProgress,
	store.StatusReview,
	store.StatusDone,
}

// Config holds what the TUI needs to find its daemon.
type Config struct {
	ProjectDir string
}

// screen selects which view the model renders.
type screen int

const (
	screenBoard screen = iota
	screenDetail
	screenLogs
)

// attachMsg carries the snapshot delivered after ATTACH.
type attachMsg struct {
	snap protocol.SnapshotPayload
	err  error
}

// eventMsg carries one live event frame.
type eventMsg struct {
	env protocol.Envelope
	err error
}

// tickMsg triggers log polling and time refreshes.
type tickMsg time.Time

// Model is the top-level bubbletea model.
type Model struct {
	config Config
	client *client.Client

	width  int
	height int
	err    error

	tasks   []store.Task
	epics   map[string]store.Epic
	running map[string]protocol.RunStartedPayload // task id → live run
	ready   int

	screen screen
	col    int
	row    int

	detail PanelModel
	logs   LogStreamModel
}

// New creates the board model around an attached client.
func New(cfg Config, c *client.Client) Model {
	return Model{
		config:  cfg,
		client:  c,
		epics:   map[string]store.Epic{},
		running: map[string]protocol.RunStartedPayload{},
		col:     1, // in_progress is the interesting column
	}
}

// Init attaches to the daemon and starts the clock.
func (m Model) Init() tea.Cmd {
	return tea.Batch(attach(m.client), tick())
}

func attach(c *client.Client) tea.Cmd {
	return func() tea.Msg {
		snap, err := c.Attach()
		return attachMsg{snap: snap, err: err}
	}
}

// waitEvent blocks for the next pushed frame.
func waitEvent(c *client.Client) tea.Cmd {
	return func() tea.Msg {
		env, err := c.Next(eventWait)
		return eventMsg{env: env, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if m.screen == screenDetail {
			var cmd tea.Cmd
			m.detail, cmd = m.detail.Update(msg)
			return m, cmd
		}
		if m.screen == screenLogs {
			var cmd tea.Cmd
			m.logs, cmd = m.logs.Update(msg)
			return m, cmd
		}

	case attachMsg:
		m.err = msg.err
		if msg.err == nil {
			m.applySnapshot(msg.snap)
			return m, waitEvent(m.client)
		}

	case eventMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.applyEvent(msg.env)
		return m, waitEvent(m.client)

	case tickMsg:
		cmds := []tea.Cmd{tick()}
		if m.screen == screenLogs {
			cmds = append(cmds, m.logs.readNewLinesCmd())
		}
		return m, tea.Batch(cmds...)

	case logStreamMsg:
		var cmd tea.Cmd
		m.logs, cmd = m.logs.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if m.screen != screenBoard {
		if key == "q" || key == "esc" {
			m.screen = screenBoard
			return m, nil
		}
		var cmd tea.Cmd
		if m.screen == screenDetail {
			m.detail, cmd = m.detail.Update(msg)
		} else {
			m.logs, cmd = m.logs.Update(msg)
		}
		return m, cmd
	}

	switch key {
	case "q", "esc", "ctrl+c":
		return m, tea.Quit
	case "h", "left":
		if m.col > 0 {
			m.col--
			m.clampRow()
		}
	case "l", "right":
		if m.col < len(boardColumns)-1 {
			m.col++
			m.clampRow()
		}
	case "j", "down":
		if m.row < len(m.columnTasks(boardColumns[m.col]))-1 {
			m.row++
		}
	case "k", "up":
		if m.row > 0 {
			m.row--
		}
	case "enter":
		if task := m.selectedTask(); task != nil {
			m.detail = NewPanelModel(*task, m.epicFor(task), m.width, m.height)
			m.screen = screenDetail
		}
	case "L":
		if task := m.selectedTask(); task != nil {
			if run, ok := m.running[task.ShortID]; ok {
				m.logs = NewLogStreamModel(m.config.ProjectDir, run, m.width, m.height)
				m.screen = screenLogs
				return m, m.logs.readNewLinesCmd()
			}
		}
	}
	return m, nil
}

// applySnapshot replaces all board state.
func (m *Model) applySnapshot(snap protocol.SnapshotPayload) {
	m.tasks = snap.Tasks
	m.epics = map[string]store.Epic{}
	for _, e := range snap.Epics {
		m.epics[e.ShortID] = e
	}
	m.running = map[string]protocol.RunStartedPayload{}
	for _, r := range snap.Runs {
		m.running[r.TaskShortID] = protocol.RunStartedPayload{
			TaskID: r.TaskShortID, RunShortID: r.ShortID, Agent: r.Agent, PID: r.PID,
		}
	}
}

// applyEvent folds one live event into board state.
func (m *Model) applyEvent(env protocol.Envelope) {
	switch env.Type {
	case protocol.EventSnapshot:
		var snap protocol.SnapshotPayload
		if protocol.DecodePayload(env, &snap) == nil {
			m.applySnapshot(snap)
		}

	case protocol.EventTaskCreated:
		var p protocol.TaskPayload
		if protocol.DecodePayload(env, &p) == nil {
			m.tasks = append(m.tasks, p.Task)
		}

	case protocol.EventTaskStatusChanged:
		var p protocol.StatusChangePayload
		if protocol.DecodePayload(env, &p) == nil {
			for i := range m.tasks {
				if m.tasks[i].ShortID == p.TaskID {
					m.tasks[i].Status = store.TaskStatus(p.To)
				}
			}
		}

	case protocol.EventRunStarted:
		var p protocol.RunStartedPayload
		if protocol.DecodePayload(env, &p) == nil {
			m.running[p.TaskID] = p
		}

	case protocol.EventRunCompleted:
		var p protocol.RunCompletedPayload
		if protocol.DecodePayload(env, &p) == nil {
			delete(m.running, p.TaskID)
		}

	case protocol.EventHeartbeat:
		var p protocol.HeartbeatPayload
		if protocol.DecodePayload(env, &p) == nil {
			m.ready = p.Ready
		}
	}
}

func (m *Model) clampRow() {
	n := len(m.columnTasks(boardColumns[m.col]))
	if m.row >= n {
		m.row = max(0, n-1)
	}
}

func (m Model) columnTasks(status store.TaskStatus) []store.Task {
	var out []store.Task
	for _, t := range m.tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}

func (m Model) selectedTask() *store.Task {
	tasks := m.columnTasks(boardColumns[m.col])
	if m.row < 0 || m.row >= len(tasks) {
		return nil
	}
	return &tasks[m.row]
}

func (m Model) epicFor(t *store.Task) *store.Epic {
	if t.EpicID == "" {
		return nil
	}
	if e, ok := m.epics[t.EpicID]; ok {
		return &e
	}
	return nil
}

// View implements tea.Model.
func (m Model) View() string {
	switch m.screen {
	case screenDetail:
		return m.detail.View()
	case screenLogs:
		return m.logs.View()
	}

	var b strings.Builder
	b.WriteString(m.viewHeader())
	b.WriteString("\n")
	b.WriteString(m.viewColumns())
	b.WriteString(m.viewFooter())
	return b.String()
}

func (m Model) viewHeader() string {
	if m.err != nil {
		return fmt.Sprintf("\n  %s  %s  %s\n",
			titleStyle.Render("fuel"),
			redStyle.Render("disconnected"),
			dimStyle.Render(m.err.Error()),
		)
	}

	running := len(m.running)
	var load string
	if running > 0 {
		load = greenStyle.Render(fmt.Sprintf("%d running", running))
	} else {
		load = dimStyle.Render("idle")
	}

	return fmt.Sprintf("\n  %s  %s  %s  %s\n",
		titleStyle.Render("fuel"),
		load,
		dimStyle.Render(fmt.Sprintf("%d ready", m.ready)),
		dimStyle.Render("("+m.config.ProjectDir+")"),
	)
}

// viewColumns renders the four status columns side by side.
func (m Model) viewColumns() string {
	w := m.width
	if w == 0 {
		w = 120
	}
	// Each column loses 4 to border and padding.
	colWidth := max(18, w/len(boardColumns)-4)

	rendered := make([]string, 0, len(boardColumns))
	for i, status := range boardColumns {
		rendered = append(rendered, m.viewOneColumn(i, status, colWidth))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...) + "\n"
}

func (m Model) viewOneColumn(index int, status store.TaskStatus, width int) string {
	tasks := m.columnTasks(status)

	var b strings.Builder
	b.WriteString(paneHeaderStyle.Render(strings.ToUpper(string(status))))
	b.WriteString(dimStyle.Render(fmt.Sprintf(" %d", len(tasks))))

	maxRows := max(3, m.height-8)
	for i, t := range tasks {
		if i >= maxRows {
			b.WriteString("\n" + dimStyle.Render(fmt.Sprintf("… %d more", len(tasks)-maxRows)))
			break
		}
		b.WriteString("\n")
		b.WriteString(m.viewTaskRow(t, width, index == m.col && i == m.row))
	}
	if len(tasks) == 0 {
		b.WriteString("\n" + dimStyle.Render("—"))
	}

	border := columnBorder.Width(width)
	if index == m.col {
		border = columnBorderSelected.Width(width)
	}
	return border.Render(b.String())
}

func (m Model) viewTaskRow(t store.Task, width int, selected bool) string {
	marker := " "
	if _, live := m.running[t.ShortID]; live {
		marker = greenStyle.Render("●")
	} else if t.HasLabel(store.LabelNeedsHuman) {
		marker = redStyle.Render("!")
	} else if t.Status == store.StatusPaused {
		marker = yellowStyle.Render("~")
	}

	id := blueStyle.Render(t.ShortID)
	prio := magentaStyle.Render(fmt.Sprintf("P%d", t.Priority))
	title := truncate(t.Title, max(5, width-len(t.ShortID)-8))

	row := fmt.Sprintf("%s %s %s %s", marker, id, prio, title)
	if selected {
		return selectedStyle.Render(row)
	}
	return row
}

func (m Model) viewFooter() string {
	return "  " + dimStyle.Render("h/l column  j/k task  enter detail  L logs  q quit") + "\n"
}

// formatRelativeTime returns a human-readable relative time string.
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "?"
	}
	d := time.Since(t)
	if d < 0 {
		return "now"
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		h := int(d.Hours())
		mins := int(d.Minutes()) % 60
		if mins == 0 {
			return fmt.Sprintf("%dh ago", h)
		}
		return fmt.Sprintf("%dh%dm", h, mins)
	}
}

// truncate shortens s to max runes, appending an ellipsis if truncated.
func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}

// padRight pads s with spaces to width. If s is longer, it's truncated.
func padRight(s string, width int) string {
	runes := []rune(s)
	if len(runes) >= width {
		return string(runes[:width])
	}
	return s + strings.Repeat(" ", width-len(runes))
}

// padLeft pads s with leading spaces to width. If s is longer, it's truncated.
func padLeft(s string, width int) string {
	runes := []rune(s)
	if len(runes) >= width {
		return string(runes[:width])
	}
	return strings.Repeat(" ", width-len(runes)) + s
}

// Run attaches to the project's daemon and starts the board with the
// alternate screen buffer.
func Run(cfg Config) error {
	c, err := client.Dial(cfg.ProjectDir)
	if err != nil {
		return err
	}
	defer c.Close()

	p := tea.NewProgram(New(cfg, c), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
