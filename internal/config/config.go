// Package config loads the project-local runtime configuration from
// .fuel/config.yaml.
//
// Configuration is assembled from three sources in priority order:
//  1. CLI flags (highest priority)
//  2. Config file (.fuel/config.yaml)
//  3. Defaults (lowest priority)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultIntervalMS           = 5000
	DefaultConcurrencyCap       = 1
	DefaultReviewAgent          = "claude"
	DefaultFailureThreshold     = 3
	DefaultCooldownSeconds      = 300
	DefaultAgentTimeoutSeconds  = 1800
	DefaultShutdownGraceSeconds = 10
	DefaultSelfguidedCeiling    = 25
)

// Dir is the project-relative state directory.
const Dir = ".fuel"

// FileName is the config file name inside Dir.
const FileName = "config.yaml"

// Agent describes how to invoke one agent CLI. Entries here override the
// built-in driver defaults for the same name.
type Agent struct {
	Cmd   string   `yaml:"cmd,omitempty"`
	Args  []string `yaml:"args,omitempty"`
	Model string   `yaml:"model,omitempty"`
}

// Health holds the failure cool-down knobs for the health tracker.
type Health struct {
	FailureThreshold int `yaml:"failure_threshold"`
	CooldownSeconds  int `yaml:"cooldown_seconds"`
}

// Config holds the consume daemon configuration.
type Config struct {
	// IntervalMS is the scheduler tick period in milliseconds.
	IntervalMS int `yaml:"interval_ms"`

	// ConcurrencyCap is the hard upper bound on simultaneous agent runs.
	// Review runs count against the same cap.
	ConcurrencyCap int `yaml:"concurrency_cap"`

	// ReviewEnabled routes successful task runs through a reviewer agent
	// before they can reach done.
	ReviewEnabled bool `yaml:"review_enabled"`

	// ReviewAgent names the driver used for reviewer runs.
	ReviewAgent string `yaml:"review_agent"`

	// EpicMirrorsEnabled runs epic tasks inside an isolated working-copy
	// mirror with a dedicated git branch.
	EpicMirrorsEnabled bool `yaml:"epic_mirrors_enabled"`

	Health Health `yaml:"health"`

	// AgentTimeoutSeconds bounds each agent run's wall clock.
	AgentTimeoutSeconds int `yaml:"agent_timeout_seconds"`

	// ShutdownGraceSeconds is how long shutdown waits for SIGTERMed
	// children before SIGKILL.
	ShutdownGraceSeconds int `yaml:"shutdown_grace_seconds"`

	// SelfguidedCeiling caps re-dispatches of a selfguided task.
	SelfguidedCeiling int `yaml:"selfguided_ceiling"`

	// Agents overrides driver invocation details per agent name.
	Agents map[string]Agent `yaml:"agents,omitempty"`
}

// ApplyDefaults fills in zero-valued fields with the documented defaults.
func (c *Config) ApplyDefaults() {
	if c.IntervalMS == 0 {
		c.IntervalMS = DefaultIntervalMS
	}
	if c.ConcurrencyCap == 0 {
		c.ConcurrencyCap = DefaultConcurrencyCap
	}
	if c.ReviewAgent == "" {
		c.ReviewAgent = DefaultReviewAgent
	}
	if c.Health.FailureThreshold == 0 {
		c.Health.FailureThreshold = DefaultFailureThreshold
	}
	if c.Health.CooldownSeconds == 0 {
		c.Health.CooldownSeconds = DefaultCooldownSeconds
	}
	if c.AgentTimeoutSeconds == 0 {
		c.AgentTimeoutSeconds = DefaultAgentTimeoutSeconds
	}
	if c.ShutdownGraceSeconds == 0 {
		c.ShutdownGraceSeconds = DefaultShutdownGraceSeconds
	}
	if c.SelfguidedCeiling == 0 {
		c.SelfguidedCeiling = DefaultSelfguidedCeiling
	}
}

// Validate checks configuration values. Call after ApplyDefaults.
func (c *Config) Validate() error {
	if c.IntervalMS < 100 {
		return fmt.Errorf("interval_ms must be at least 100, got %d", c.IntervalMS)
	}
	if c.ConcurrencyCap <= 0 {
		return fmt.Errorf("concurrency_cap must be positive, got %d", c.ConcurrencyCap)
	}
	if c.ReviewEnabled && c.ReviewAgent == "" {
		return fmt.Errorf("review_agent is required when review_enabled is set")
	}
	if c.Health.FailureThreshold <= 0 {
		return fmt.Errorf("health.failure_threshold must be positive, got %d", c.Health.FailureThreshold)
	}
	if c.Health.CooldownSeconds <= 0 {
		return fmt.Errorf("health.cooldown_seconds must be positive, got %d", c.Health.CooldownSeconds)
	}
	if c.AgentTimeoutSeconds <= 0 {
		return fmt.Errorf("agent_timeout_seconds must be positive, got %d", c.AgentTimeoutSeconds)
	}
	if c.ShutdownGraceSeconds < 0 {
		return fmt.Errorf("shutdown_grace_seconds must be non-negative, got %d", c.ShutdownGraceSeconds)
	}
	if c.SelfguidedCeiling <= 0 {
		return fmt.Errorf("selfguided_ceiling must be positive, got %d", c.SelfguidedCeiling)
	}
	return nil
}

// Interval returns the tick period as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.IntervalMS) * time.Millisecond
}

// AgentTimeout returns the per-run wall-clock limit.
func (c *Config) AgentTimeout() time.Duration {
	return time.Duration(c.AgentTimeoutSeconds) * time.Second
}

// ShutdownGrace returns the SIGTERM-to-SIGKILL window.
func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSeconds) * time.Second
}

// Cooldown returns the base cool-down duration for the health tracker.
func (h Health) Cooldown() time.Duration {
	return time.Duration(h.CooldownSeconds) * time.Second
}

// Path returns the config file path for a project directory.
func Path(projectDir string) string {
	return filepath.Join(projectDir, Dir, FileName)
}

// Load reads the config file for a project and merges it under any values
// already set on into (CLI flags take precedence). A missing file is not
// an error; defaults still apply.
func Load(projectDir string, into *Config) error {
	data, err := os.ReadFile(Path(projectDir))
	if err != nil {
		if os.IsNotExist(err) {
			into.ApplyDefaults()
			return into.Validate()
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parsing %s: %w", Path(projectDir), err)
	}

	mergeConfig(&file, into)
	into.ApplyDefaults()
	return into.Validate()
}

// mergeConfig copies non-zero fields from src into dst, but only where dst
// has the zero value, so flags set on dst before the merge win.
func mergeConfig(src, dst *Config) {
	if dst.IntervalMS == 0 {
		dst.IntervalMS = src.IntervalMS
	}
	if dst.ConcurrencyCap == 0 {
		dst.ConcurrencyCap = src.ConcurrencyCap
	}
	// Bool zero is false — only a true from the file can merge in.
	if src.ReviewEnabled && !dst.ReviewEnabled {
		dst.ReviewEnabled = true
	}
	if dst.ReviewAgent == "" {
		dst.ReviewAgent = src.ReviewAgent
	}
	if src.EpicMirrorsEnabled && !dst.EpicMirrorsEnabled {
		dst.EpicMirrorsEnabled = true
	}
	if dst.Health.FailureThreshold == 0 {
		dst.Health.FailureThreshold = src.Health.FailureThreshold
	}
	if dst.Health.CooldownSeconds == 0 {
		dst.Health.CooldownSeconds = src.Health.CooldownSeconds
	}
	if dst.AgentTimeoutSeconds == 0 {
		dst.AgentTimeoutSeconds = src.AgentTimeoutSeconds
	}
	if dst.ShutdownGraceSeconds == 0 {
		dst.ShutdownGraceSeconds = src.ShutdownGraceSeconds
	}
	if dst.SelfguidedCeiling == 0 {
		dst.SelfguidedCeiling = src.SelfguidedCeiling
	}
	if dst.Agents == nil {
		dst.Agents = src.Agents
	}
}
