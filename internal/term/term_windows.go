//go:build windows

package term

import "os"

// isTerminal reports false on Windows, which leaves colors off. Board
// and list output stays readable in plain text.
func isTerminal(f *os.File) bool { return false }

// Width reports the fallback on Windows; there is no ioctl to ask.
func Width(fallback int) int { return fallback }
