package driver

import (
	"encoding/json"
	"fmt"

	"github.com/fuelhq/fuel/internal/config"
)

// opencode --format json emits one JSON object per line. Relevant
// types: "session" (carries sessionID and model), "tool_use" (a part
// with tool name and state), "step_finish" (per-step cost), "result"
// (final cost and token totals).
type opencodeLine struct {
	Type      string  `json:"type"`
	SessionID string  `json:"sessionID"`
	Model     string  `json:"model"`
	Cost      float64 `json:"cost"`
	Tokens    int     `json:"tokens"`
	Text      string  `json:"text"`
	Part      struct {
		Tool  string `json:"tool"`
		Title string `json:"title"`
	} `json:"part"`
}

type opencodeDriver struct {
	cmd   string
	args  []string
	model string
}

func newOpencodeDriver(override config.Agent) *opencodeDriver {
	d := &opencodeDriver{
		cmd:  "opencode",
		args: []string{"run", "--format", "json"},
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

func (d *opencodeDriver) Name() string { return Opencode }

func (d *opencodeDriver) BuildInvocation(req Request) Invocation {
	argv := append([]string{d.cmd}, d.args...)
	model := req.Model
	if model == "" {
		model = d.model
	}
	if model != "" {
		argv = append(argv, "--model", model)
	}
	if req.SessionID != "" && sessionIDSafe(req.SessionID) {
		argv = append(argv, "--session", req.SessionID)
	}
	argv = append(argv, req.Prompt)
	return Invocation{Argv: argv}
}

func (d *opencodeDriver) ParseLine(line []byte) Event {
	var l opencodeLine
	if err := json.Unmarshal(line, &l); err != nil {
		return Event{Kind: KindUnknown}
	}
	switch l.Type {
	case "session":
		return Event{Kind: KindInit, Model: l.Model, SessionID: l.SessionID}
	case "tool_use":
		return Event{Kind: KindStep, SessionID: l.SessionID, Tool: l.Part.Tool, Text: l.Part.Title}
	case "text":
		return Event{Kind: KindStep, SessionID: l.SessionID, Text: l.Text}
	case "step_finish":
		return Event{Kind: KindStepFinish, SessionID: l.SessionID, CostUSD: l.Cost}
	case "result":
		return Event{Kind: KindResult, SessionID: l.SessionID, CostUSD: l.Cost, TotalTokens: l.Tokens, Text: l.Text}
	default:
		return Event{Kind: KindUnknown, SessionID: l.SessionID}
	}
}

func (d *opencodeDriver) ResumeCommand(sessionID string) string {
	if sessionID == "" || !sessionIDSafe(sessionID) {
		return ""
	}
	return fmt.Sprintf("%s --session %s", d.cmd, sessionID)
}
