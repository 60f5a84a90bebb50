//go:build linux

package term

import (
	"os"
	"syscall"
	"unsafe"
)

// tcgets is Linux's TCGETS ioctl. Reading terminal attributes fails
// with ENOTTY on pipes and files, which is the whole check.
const tcgets = 0x5401

// isTerminal reports whether f is connected to a terminal.
func isTerminal(f *os.File) bool {
	var termios syscall.Termios
	_, _, err := syscall.Syscall6(
		syscall.SYS_IOCTL,
		f.Fd(),
		tcgets,
		uintptr(unsafe.Pointer(&termios)),
		0, 0, 0,
	)
	return err == 0
}

// winsize mirrors struct winsize from sys/ioctl.h. The pixel fields
// pad the layout; only Col is read.
type winsize struct {
	Row    uint16
	Col    uint16
	Xpixel uint16
	Ypixel uint16
}

// tiocgwinsz is Linux's TIOCGWINSZ ioctl for the window size.
const tiocgwinsz = 0x5413

// Width returns the terminal width in columns, used to size board
// columns, or the fallback when detection fails.
func Width(fallback int) int {
	var ws winsize
	_, _, err := syscall.Syscall6(
		syscall.SYS_IOCTL,
		os.Stdout.Fd(),
		tiocgwinsz,
		uintptr(unsafe.Pointer(&ws)),
		0, 0, 0,
	)
	if err != 0 || ws.Col == 0 {
		return fallback
	}
	return int(ws.Col)
}
