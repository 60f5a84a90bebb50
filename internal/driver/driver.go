// Package driver translates logical agent names into concrete process
// invocations and parses each agent's structured stdout into semantic
// events. The scheduler treats every driver as an opaque capability:
// given a prompt it gets back argv + env, and a line parser.
package driver

import (
	"bufio"
	"fmt"
	"io"

	"github.com/fuelhq/fuel/internal/config"
)

// Driver names known to the default registry.
const (
	Claude     = "claude"
	Opencode   = "opencode"
	Selfguided = "selfguided"
	EpicReview = "epic-review"
)

// Kind classifies a parsed output line.
type Kind string

const (
	KindInit       Kind = "init"
	KindStep       Kind = "step"
	KindStepFinish Kind = "step_finish"
	KindResult     Kind = "result"
	KindUnknown    Kind = "unknown"
)

// Event is one semantic event parsed from an agent's output stream.
// Fields are populated per kind: Init carries Model and SessionID,
// Step carries Tool and Text, StepFinish may carry CostUSD, Result
// carries CostUSD and TotalTokens.
type Event struct {
	Kind        Kind
	Model       string
	SessionID   string
	Tool        string
	Text        string
	CostUSD     float64
	TotalTokens int
}

// Request describes one agent invocation. The working directory is the
// supervisor's concern; drivers only shape argv and env.
type Request struct {
	Prompt    string
	SessionID string
	Model     string
}

// Invocation is the concrete command a driver produces for a request.
type Invocation struct {
	Argv []string
	Env  []string
}

// Driver adapts one agent's invocation mechanics and output format.
type Driver interface {
	Name() string
	BuildInvocation(req Request) Invocation
	ParseLine(line []byte) Event
	// ResumeCommand renders the shell command a user would run to pick
	// up the agent's session. Empty when the agent has no session
	// concept or the id is unknown.
	ResumeCommand(sessionID string) string
}

// ErrUnknownAgent is wrapped by Registry.Lookup for unregistered names.
var ErrUnknownAgent = fmt.Errorf("unknown agent")

// Registry maps agent names to drivers.
type Registry struct {
	drivers map[string]Driver
}

// NewRegistry builds the default driver set, applying per-agent
// overrides from config (command, extra args, model pin). The
// selfguided and epic-review drivers share the claude invocation
// shape with their own prompts.
func NewRegistry(agents map[string]config.Agent) *Registry {
	r := &Registry{drivers: map[string]Driver{}}
	r.register(newClaudeDriver(Claude, agents[Claude]))
	r.register(newOpencodeDriver(agents[Opencode]))
	r.register(newClaudeDriver(Selfguided, agents[Selfguided]))
	r.register(newClaudeDriver(EpicReview, agents[EpicReview]))
	return r
}

func (r *Registry) register(d Driver) {
	r.drivers[d.Name()] = d
}

// Lookup returns the driver for an agent name.
func (r *Registry) Lookup(name string) (Driver, error) {
	d, ok := r.drivers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, name)
	}
	return d, nil
}

// Names lists the registered agent names.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		out = append(out, name)
	}
	return out
}

// Usage is what a completed run's output yields for the run row.
type Usage struct {
	Model       string
	SessionID   string
	CostUSD     float64
	TotalTokens int
	FinalText   string
}

// Harvest scans a finished run's stdout for billing and session
// metadata. The result event is authoritative for cost; when an agent
// never emits one the per-step costs are summed instead. Malformed
// lines are skipped, partial logs from crashed agents are expected.
func Harvest(d Driver, r io.Reader) (Usage, error) {
	var u Usage
	var stepCost float64
	sawResult := false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		ev := d.ParseLine(scanner.Bytes())
		if ev.SessionID != "" && u.SessionID == "" {
			u.SessionID = ev.SessionID
		}
		switch ev.Kind {
		case KindInit:
			if u.Model == "" {
				u.Model = ev.Model
			}
		case KindStep:
			if ev.Text != "" {
				u.FinalText = ev.Text
			}
		case KindStepFinish:
			stepCost += ev.CostUSD
		case KindResult:
			sawResult = true
			u.CostUSD = ev.CostUSD
			u.TotalTokens = ev.TotalTokens
			if ev.Text != "" {
				u.FinalText = ev.Text
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return u, fmt.Errorf("scanning agent output: %w", err)
	}
	if !sawResult {
		u.CostUSD = stepCost
	}
	return u, nil
}
