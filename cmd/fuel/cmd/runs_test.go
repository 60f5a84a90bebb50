package cmd

import (
	"strings"
	"testing"

	"github.com/fuelhq/fuel/internal/driver"
)

func TestLogsFlagsRegistered(t *testing.T) {
	f := logsCmd.Flags()

	if f.Lookup("follow") == nil {
		t.Error("--follow flag not registered")
	}
	if f.ShorthandLookup("f") == nil {
		t.Error("-f shorthand not registered")
	}
	if f.Lookup("lines") == nil {
		t.Error("--lines flag not registered")
	}
	if f.ShorthandLookup("n") == nil {
		t.Error("-n shorthand not registered")
	}
	if f.Lookup("raw") == nil {
		t.Error("--raw flag not registered")
	}
}

func TestDefaultTailLines(t *testing.T) {
	if defaultTailLines != 20 {
		t.Errorf("defaultTailLines = %d, want 20", defaultTailLines)
	}
}

func TestFirstLine(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"single line", "single line"},
		{"first\nsecond\nthird", "first"},
		{"", ""},
		{"\nleading newline", ""},
	}

	for _, tt := range tests {
		if got := firstLine(tt.input); got != tt.want {
			t.Errorf("firstLine(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestReadAllLines(t *testing.T) {
	r := strings.NewReader("one\ntwo\nthree\n")
	lines, err := readAllLines(r)
	if err != nil {
		t.Fatalf("readAllLines: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	if lines[2] != "three" {
		t.Errorf("lines[2] = %q", lines[2])
	}
}

func TestLookupLogDriverFallsBackToClaude(t *testing.T) {
	d := lookupLogDriver("some-agent-nobody-registered")
	if d == nil {
		t.Fatal("lookupLogDriver returned nil")
	}
	if d.Name() != driver.Claude {
		t.Errorf("driver = %q, want %q", d.Name(), driver.Claude)
	}
}
