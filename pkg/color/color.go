// Package color provides terminal color output for the mutgate CLI.
// It respects the NO_COLOR environment variable (https://no-color.org/).
package color

import (
	"fmt"
	"os"
	"sync"
)

var state struct {
	once     sync.Once
	enabled  bool
	disabled bool
}

// Init initializes the color system based on environment and flags.
func Init(noColorFlag bool) {
	state.once.Do(func() {
		if _, exists := os.LookupEnv("NO_COLOR"); exists {
			state.disabled = true
		}
		if os.Getenv("TERM") == "dumb" {
			state.disabled = true
		}
		if noColorFlag {
			state.disabled = true
		}
		state.enabled = !state.disabled
	})
}

// Enabled returns true if color output is enabled.
func Enabled() bool {
	Init(false)
	return state.enabled
}

// Disable turns off color output.
func Disable() {
	state.disabled = true
	state.enabled = false
}

const (
	reset = "\033[0m"
	bold  = "\033[1m"
	dim   = "\033[2m"

	red    = "\033[31m"
	green  = "\033[32m"
	yellow = "\033[33m"
	cyan   = "\033[36m"
)

func wrap(code, s string) string {
	if !Enabled() {
		return s
	}
	return code + s + reset
}

// Success formats a success message in green.
func Success(s string) string { return wrap(green, s) }

// Error formats an error message in red.
func Error(s string) string { return wrap(red, s) }

// Warning formats a warning message in yellow.
func Warning(s string) string { return wrap(yellow, s) }

// Warningf formats a warning message with printf-style arguments.
func Warningf(format string, args ...any) string {
	return wrap(yellow, fmt.Sprintf(format, args...))
}

// CheckpointID formats a checkpoint ID in cyan for visibility.
func CheckpointID(s string) string { return wrap(cyan, s) }

// State formats a checkpoint state, colored by outcome.
func State(s string) string {
	switch s {
	case "approved", "executed":
		return wrap(green, s)
	case "rejected", "rolled_back":
		return wrap(red, s)
	case "pending_approval":
		return wrap(yellow, s)
	}
	return s
}

// Header formats a header in bold.
func Header(s string) string { return wrap(bold, s) }

// Dim formats dimmed secondary text.
func Dim(s string) string { return wrap(dim, s) }
