package tui

import (
	"fmt"
	"io"

	"github.com/aretw0/troupe/pkg/domain"
	"github.com/muesli/termenv"
)

// PrintBanner writes the troupe banner followed by the version.
func PrintBanner(w io.Writer, version string) {
	p := termenv.ColorProfile()
	lines := []struct {
		text, color string
	}{
		{" _", "#818cf8"},
		{"| |_ _ __ ___  _   _ _ __   ___", "#a78bfa"},
		{"| __| '__/ _ \\| | | | '_ \\ / _ \\", "#c084fc"},
		{"| |_| | | (_) | |_| | |_) |  __/", "#e879f9"},
		{" \\__|_|  \\___/ \\__,_| .__/ \\___|", "#f472b6"},
		{"                    |_|", "#fb7185"},
	}
	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, termenv.String(l.text).Foreground(p.Color(l.color)))
	}
	fmt.Fprintln(w, termenv.String("  "+version).Faint())
	fmt.Fprintln(w)
}

// Status colors a snapshot status for terminal output.
func Status(status domain.Status) string {
	p := termenv.ColorProfile()
	s := termenv.String(string(status))
	switch status {
	case domain.StatusActive:
		s = s.Foreground(p.Color("#60a5fa"))
	case domain.StatusDone:
		s = s.Foreground(p.Color("#34d399")).Bold()
	case domain.StatusError:
		s = s.Foreground(p.Color("#f87171")).Bold()
	case domain.StatusStopped:
		s = s.Faint()
	}
	return s.String()
}

// Check marks a validation result.
func Check(ok bool) string {
	p := termenv.ColorProfile()
	if ok {
		return termenv.String("✓").Foreground(p.Color("#34d399")).String()
	}
	return termenv.String("✗").Foreground(p.Color("#f87171")).String()
}
