package tui

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/fuelhq/fuel/internal/config"
	"github.com/fuelhq/fuel/internal/driver"
	"github.com/fuelhq/fuel/internal/protocol"
)

// logStreamMsg carries newly read log lines from the file.
type logStreamMsg struct {
	lines    []string
	newCount int // updated raw line count for next read
	err      error
}

// LogStreamModel is the full-screen run log viewer. It tails the
// run's stdout JSONL directly from the supervisor's log directory,
// formats each agent event into a readable line and renders in a
// scrollable viewport. New lines are polled on each parent tick.
type LogStreamModel struct {
	run  protocol.RunStartedPayload
	path string

	vp         viewport.Model
	lines      []string // formatted lines
	lineCount  int      // total raw lines read so far
	autoScroll bool     // scroll to bottom on new content

	ready  bool
	width  int
	height int
}

const (
	logHeaderRows = 3 // header bar + blank line
	logFooterRows = 2 // blank line + help text
)

// NewLogStreamModel creates a log viewer for the given live run.
func NewLogStreamModel(projectDir string, run protocol.RunStartedPayload, width, height int) LogStreamModel {
	m := LogStreamModel{
		run:        run,
		path:       filepath.Join(projectDir, config.Dir, "processes", run.RunShortID, "stdout.log"),
		width:      width,
		height:     height,
		autoScroll: true,
	}
	if width > 0 && height > 0 {
		m.initViewport()
	}
	return m
}

func (m *LogStreamModel) initViewport() {
	vpH := max(4, m.height-logHeaderRows-logFooterRows)
	m.vp = viewport.New(m.width-2, vpH) // -2 for left margin
	m.vp.SetContent(dimStyle.Render("Loading logs..."))
	m.ready = true
}

// Update handles messages for the log stream screen.
func (m LogStreamModel) Update(msg tea.Msg) (LogStreamModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.initViewport()
		m.refreshContent()

	case tea.KeyMsg:
		switch msg.String() {
		case "G":
			// Jump to bottom and re-enable auto-scroll.
			m.autoScroll = true
			if m.ready {
				m.vp.GotoBottom()
			}
			return m, nil
		case "g":
			// Jump to top and disable auto-scroll.
			m.autoScroll = false
			if m.ready {
				m.vp.GotoTop()
			}
			return m, nil
		}
		// Disable auto-scroll if the user scrolls manually.
		if msg.String() == "up" || msg.String() == "k" ||
			msg.String() == "pgup" || msg.String() == "ctrl+u" {
			m.autoScroll = false
		}

	case logStreamMsg:
		if msg.err != nil {
			// Non-fatal, the file may not exist yet. Keep polling.
			return m, nil
		}
		m.lineCount = msg.newCount
		if len(msg.lines) > 0 {
			m.lines = append(m.lines, msg.lines...)
			m.refreshContent()
		}
	}

	// Forward to viewport for scroll handling.
	if m.ready {
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd
	}

	return m, nil
}

// refreshContent updates the viewport content from the accumulated lines.
func (m *LogStreamModel) refreshContent() {
	if !m.ready {
		return
	}
	if len(m.lines) == 0 {
		m.vp.SetContent(dimStyle.Render("No log output yet..."))
		return
	}
	m.vp.SetContent(strings.Join(m.lines, "\n"))
	if m.autoScroll {
		m.vp.GotoBottom()
	}
}

// readNewLinesCmd returns a Cmd that reads new lines from the log file.
// It reads from the current lineCount offset so only new data comes back.
func (m LogStreamModel) readNewLinesCmd() tea.Cmd {
	path := m.path
	offset := m.lineCount
	agent := m.run.Agent
	return func() tea.Msg {
		result, err := readLogLines(path, agent, offset)
		if err != nil {
			return logStreamMsg{err: err}
		}
		return logStreamMsg{lines: result.lines, newCount: result.newCount}
	}
}

// logReadResult holds formatted lines and the new total raw line count.
type logReadResult struct {
	lines    []string
	newCount int // total raw lines in file after this read
}

// readLogLines reads a JSONL file from the given line offset, formats
// each agent event, and returns the new formatted lines plus the
// updated total line count so the next read can skip seen lines.
func readLogLines(path, agent string, offset int) (*logReadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	reg := driver.NewRegistry(nil)
	d, err := reg.Lookup(agent)
	if err != nil {
		d, _ = reg.Lookup(driver.Claude)
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var formatted []string
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		if lineNum <= offset {
			continue
		}
		out := formatEventLine(d, scanner.Bytes())
		if out != "" {
			formatted = append(formatted, out)
		}
	}
	if err := scanner.Err(); err != nil {
		return &logReadResult{lines: formatted, newCount: lineNum}, err
	}
	return &logReadResult{lines: formatted, newCount: lineNum}, nil
}

// formatEventLine turns one raw agent JSONL line into display text.
// Unparseable lines pass through dimmed so nothing is hidden.
func formatEventLine(d driver.Driver, raw []byte) string {
	ev := d.ParseLine(raw)
	if ev.Kind == driver.KindUnknown {
		text := strings.TrimSpace(string(raw))
		if text == "" {
			return ""
		}
		return dimStyle.Render(truncate(text, 200))
	}

	switch ev.Kind {
	case driver.KindInit:
		return greenStyle.Render("session started") + dimStyle.Render("  model="+ev.Model)
	case driver.KindStep:
		if ev.Tool != "" {
			return cyanStyle.Render(padRight(ev.Tool, 12)) + truncate(ev.Text, 160)
		}
		if strings.TrimSpace(ev.Text) == "" {
			return ""
		}
		return truncate(ev.Text, 200)
	case driver.KindStepFinish:
		if ev.CostUSD > 0 {
			return dimStyle.Render(fmt.Sprintf("step done  $%.4f", ev.CostUSD))
		}
		return ""
	case driver.KindResult:
		return yellowStyle.Render("result") + "  " + truncate(ev.Text, 160)
	}
	return ""
}

// View renders the full-screen log stream.
func (m LogStreamModel) View() string {
	var b strings.Builder
	b.WriteString(m.viewHeader())
	b.WriteString("\n")

	if !m.ready {
		b.WriteString("  " + dimStyle.Render("Loading...") + "\n")
	} else {
		b.WriteString("  ")
		b.WriteString(m.vp.View())
		b.WriteString("\n")
	}

	b.WriteString(m.viewFooter())
	return b.String()
}

func (m LogStreamModel) viewHeader() string {
	return fmt.Sprintf("\n  %s  %s  %s  %s\n",
		titleStyle.Render("fuel"),
		paneHeaderStyle.Render("Run Log"),
		cyanStyle.Render(m.run.RunShortID),
		dimStyle.Render(m.run.Agent),
	)
}

func (m LogStreamModel) viewFooter() string {
	scrollLabel := ""
	if m.ready {
		pct := m.vp.ScrollPercent() * 100
		scrollLabel = dimStyle.Render(fmt.Sprintf("  %.0f%%", pct))
	}
	autoLabel := ""
	if m.autoScroll {
		autoLabel = "  " + greenStyle.Render("[follow]")
	}
	return fmt.Sprintf("  %s%s%s\n",
		dimStyle.Render("j/k scroll  g top  G bottom+follow  q back"),
		scrollLabel,
		autoLabel,
	)
}
