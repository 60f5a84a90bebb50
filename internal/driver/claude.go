package driver

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fuelhq/fuel/internal/config"
)

// Claude Code stream-json output carries four event types:
//   - system (subtype init): session metadata and model
//   - assistant: a full message with content[] blocks; tool calls are
//     blocks of type "tool_use"
//   - user: tool results
//   - result: final summary with cost and token usage
type claudeLine struct {
	Type      string `json:"type"`
	Subtype   string `json:"subtype"`
	SessionID string `json:"session_id"`
	Model     string `json:"model"`
	Message   struct {
		Content []claudeBlock `json:"content"`
	} `json:"message"`
	// result event fields
	Result       string  `json:"result"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	Usage        struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type claudeBlock struct {
	Type  string          `json:"type"`
	Name  string          `json:"name"`
	Text  string          `json:"text"`
	Input json.RawMessage `json:"input"`
}

type claudeDriver struct {
	name  string
	cmd   string
	args  []string
	model string
}

// newClaudeDriver builds a driver around the claude CLI. The selfguided
// and epic-review agents reuse the same invocation and parser under
// their own names.
func newClaudeDriver(name string, override config.Agent) *claudeDriver {
	d := &claudeDriver{
		name: name,
		cmd:  "claude",
		args: []string{"--output-format", "stream-json", "--verbose", "--dangerously-skip-permissions"},
	}
	if override.Cmd != "" {
		d.cmd = override.Cmd
	}
	if len(override.Args) > 0 {
		d.args = append(d.args, override.Args...)
	}
	d.model = override.Model
	return d
}

func (d *claudeDriver) Name() string { return d.name }

func (d *claudeDriver) BuildInvocation(req Request) Invocation {
	argv := []string{d.cmd, "-p", req.Prompt}
	argv = append(argv, d.args...)
	model := req.Model
	if model == "" {
		model = d.model
	}
	if model != "" {
		argv = append(argv, "--model", model)
	}
	if req.SessionID != "" && sessionIDSafe(req.SessionID) {
		argv = append(argv, "--resume", req.SessionID)
	}
	return Invocation{Argv: argv}
}

func (d *claudeDriver) ParseLine(line []byte) Event {
	var l claudeLine
	if err := json.Unmarshal(line, &l); err != nil {
		return Event{Kind: KindUnknown}
	}
	switch l.Type {
	case "system":
		if l.Subtype == "init" {
			return Event{Kind: KindInit, Model: l.Model, SessionID: l.SessionID}
		}
		return Event{Kind: KindUnknown, SessionID: l.SessionID}
	case "assistant":
		ev := Event{Kind: KindStep, SessionID: l.SessionID}
		for _, b := range l.Message.Content {
			switch b.Type {
			case "tool_use":
				if ev.Tool == "" {
					ev.Tool = b.Name
				}
			case "text":
				if b.Text != "" {
					ev.Text = b.Text
				}
			}
		}
		return ev
	case "user":
		// Tool results; no per-step billing in stream-json.
		return Event{Kind: KindStepFinish, SessionID: l.SessionID}
	case "result":
		return Event{
			Kind:        KindResult,
			SessionID:   l.SessionID,
			CostUSD:     l.TotalCostUSD,
			TotalTokens: l.Usage.InputTokens + l.Usage.OutputTokens,
			Text:        l.Result,
		}
	default:
		return Event{Kind: KindUnknown}
	}
}

func (d *claudeDriver) ResumeCommand(sessionID string) string {
	if sessionID == "" || !sessionIDSafe(sessionID) {
		return ""
	}
	return fmt.Sprintf("%s --resume %s", d.cmd, sessionID)
}

// sessionIDSafe rejects ids containing whitespace or shell
// metacharacters, which would split into extra argv tokens or corrupt
// a resume line.
func sessionIDSafe(id string) bool {
	if len(id) == 0 || len(id) > 128 {
		return false
	}
	return strings.IndexFunc(id, func(c rune) bool {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			return false
		case c == '-' || c == '_':
			return false
		}
		return true
	}) < 0
}
