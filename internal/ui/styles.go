package ui

import (
	"fmt"

	"github.com/alfredjeanlab/eventcollector/internal/model"
)

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent  = 74  // blue
	colorMuted   = 245 // medium gray
	colorOK      = 114 // green
	colorWarning = 179 // amber
	colorFailure = 203 // red
)

var noColor bool

func render(color int, s string) string {
	if noColor {
		return s
	}
	return fmt.Sprintf("\x1b[38;5;%dm%s\x1b[0m", color, s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return render(colorAccent, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return render(colorMuted, s) }

// RenderState returns s in the color of event state st.
func RenderState(st model.State, s string) string {
	switch st {
	case model.StateOK:
		return render(colorOK, s)
	case model.StateWarning, model.StateRetryable:
		return render(colorWarning, s)
	case model.StateError:
		return render(colorFailure, s)
	case model.StatePending:
		return render(colorAccent, s)
	}
	return render(colorMuted, s)
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
