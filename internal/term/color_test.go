package term

import (
	"os"
	"sync"
	"testing"
)

// resetColors clears cached detection so each test re-runs it.
func resetColors() {
	mu.Lock()
	disabled = false
	mu.Unlock()

	initOnce = sync.Once{}
	noColor = false
}

func TestDisableForcesColorsOff(t *testing.T) {
	resetColors()
	defer resetColors()

	Disable(true)

	if got := Blue("f-a1b2c3"); got != "f-a1b2c3" {
		t.Errorf("Blue with Disable(true) = %q, want bare id", got)
	}
}

func TestDisableCanBeReenabled(t *testing.T) {
	resetColors()
	defer resetColors()

	Disable(true)
	if got := Green("done"); got != "done" {
		t.Errorf("Green with Disable(true) = %q, want %q", got, "done")
	}

	Disable(false)
	// Result now depends on tty/NO_COLOR detection; only require that
	// the call works.
	_ = Green("done")
}

func TestNoColorEnvDisables(t *testing.T) {
	for _, value := range []string{"1", ""} {
		t.Run("NO_COLOR="+value, func(t *testing.T) {
			resetColors()
			defer resetColors()

			t.Setenv("NO_COLOR", value)

			if got := Yellow("review"); got != "review" {
				t.Errorf("Yellow with NO_COLOR set = %q, want %q", got, "review")
			}
		})
	}
}

func TestColorFunctionsPlainWhenDisabled(t *testing.T) {
	resetColors()
	defer resetColors()

	Disable(true)

	cases := []struct {
		name  string
		fn    func(string) string
		input string
	}{
		{"Green", Green, "done"},
		{"Red", Red, "crashed_early"},
		{"Yellow", Yellow, "in_progress"},
		{"Dim", Dim, "no tasks"},
		{"Bold", Bold, "Daemon:"},
		{"Cyan", Cyan, "e-k9m2p4"},
		{"Blue", Blue, "f-a1b2c3"},
		{"Magenta", Magenta, "claude"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn(tt.input); got != tt.input {
				t.Errorf("%s(%q) disabled = %q", tt.name, tt.input, got)
			}
		})
	}
}

func TestFormatFunctionsPlainWhenDisabled(t *testing.T) {
	resetColors()
	defer resetColors()

	Disable(true)

	cases := []struct {
		name string
		fn   func(string, ...any) string
	}{
		{"Greenf", Greenf},
		{"Redf", Redf},
		{"Yellowf", Yellowf},
		{"Dimf", Dimf},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.fn("running=%d", 3); got != "running=3" {
				t.Errorf("%s = %q, want %q", tt.name, got, "running=3")
			}
		})
	}
}

func TestColorOutputWhenEnabled(t *testing.T) {
	resetColors()
	defer resetColors()

	// Mark detection complete with colors on, skipping the tty check.
	initOnce.Do(func() {
		noColor = false
	})

	if got, want := Green("done"), "\x1b[32mdone\x1b[0m"; got != want {
		t.Errorf("Green(\"done\") = %q, want %q", got, want)
	}
	if got, want := Bold("Epic:"), "\x1b[1mEpic:\x1b[0m"; got != want {
		t.Errorf("Bold(\"Epic:\") = %q, want %q", got, want)
	}
}

func TestPipeIsNotATerminal(t *testing.T) {
	resetColors()
	defer resetColors()

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer r.Close()
	defer w.Close()

	if isTerminal(w) {
		t.Error("isTerminal(pipe) = true, want false")
	}
}

func TestWidthReturnsPositive(t *testing.T) {
	// Piped runs get the fallback, a real terminal its own width.
	if w := Width(80); w <= 0 {
		t.Errorf("Width(80) = %d, want > 0", w)
	}
}

func TestPadRight(t *testing.T) {
	resetColors()
	defer resetColors()
	Disable(true)

	cases := []struct {
		name  string
		s     string
		width int
		want  string
	}{
		{"short id padded", "f-a1b2c3", 10, "f-a1b2c3  "},
		{"exact width", "open", 4, "open"},
		{"overlong untouched", "in_progress", 6, "in_progress"},
		{"empty", "", 3, "   "},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got := PadRight(tt.s, tt.width, Blue) // Blue is a no-op here
			if got != tt.want {
				t.Errorf("PadRight(%q, %d) = %q, want %q", tt.s, tt.width, got, tt.want)
			}
		})
	}
}

func TestPadRightColorsWholeCell(t *testing.T) {
	resetColors()
	defer resetColors()

	initOnce.Do(func() { noColor = false })

	got := PadRight("f-a1", 6, Blue)
	want := "\x1b[34mf-a1  \x1b[0m"
	if got != want {
		t.Errorf("PadRight colored = %q, want %q", got, want)
	}
}

func TestPadLeft(t *testing.T) {
	resetColors()
	defer resetColors()
	Disable(true)

	if got, want := PadLeft("42", 6, Green), "    42"; got != want {
		t.Errorf("PadLeft(%q, 6) = %q, want %q", "42", got, want)
	}
}
