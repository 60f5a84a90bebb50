package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestApplyDefaults(t *testing.T) {
	var c Config
	c.ApplyDefaults()

	if c.IntervalMS != DefaultIntervalMS {
		t.Errorf("IntervalMS = %d, want %d", c.IntervalMS, DefaultIntervalMS)
	}
	if c.ConcurrencyCap != 1 {
		t.Errorf("ConcurrencyCap = %d, want 1", c.ConcurrencyCap)
	}
	if c.ReviewEnabled {
		t.Error("ReviewEnabled should default to false")
	}
	if c.Interval() != 5*time.Second {
		t.Errorf("Interval() = %v, want 5s", c.Interval())
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Validate() after defaults: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"tiny interval", func(c *Config) { c.IntervalMS = 50 }},
		{"zero cap", func(c *Config) { c.ConcurrencyCap = -1 }},
		{"zero threshold", func(c *Config) { c.Health.FailureThreshold = -2 }},
		{"zero timeout", func(c *Config) { c.AgentTimeoutSeconds = -1 }},
	}
	for _, tc := range cases {
		var c Config
		c.ApplyDefaults()
		tc.mutate(&c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: Validate() = nil, want error", tc.name)
		}
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	var c Config
	if err := Load(t.TempDir(), &c); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.ConcurrencyCap != DefaultConcurrencyCap {
		t.Errorf("ConcurrencyCap = %d, want default", c.ConcurrencyCap)
	}
}

func TestLoadMergesFlagOverFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, Dir), 0755); err != nil {
		t.Fatal(err)
	}
	content := "interval_ms: 1000\nconcurrency_cap: 4\nreview_enabled: true\nreview_agent: opencode\n"
	if err := os.WriteFile(Path(dir), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	// Flag already set: interval. File should fill the rest.
	c := Config{IntervalMS: 250}
	if err := Load(dir, &c); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.IntervalMS != 250 {
		t.Errorf("IntervalMS = %d, flag should win over file", c.IntervalMS)
	}
	if c.ConcurrencyCap != 4 {
		t.Errorf("ConcurrencyCap = %d, want 4 from file", c.ConcurrencyCap)
	}
	if !c.ReviewEnabled || c.ReviewAgent != "opencode" {
		t.Errorf("review config not merged: enabled=%v agent=%q", c.ReviewEnabled, c.ReviewAgent)
	}
}
