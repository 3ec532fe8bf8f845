package main

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	colorAccent = lipgloss.Color("#20B9B4")
	colorMuted  = lipgloss.Color("#5C7A84")
	colorOK     = lipgloss.Color("#2CD7C7")
	colorError  = lipgloss.Color("#E74C3C")
)

// styles renders terminal output.
type styles struct {
	title, typ, muted, ok, err lipgloss.Style
}

func plainStyles() styles {
	p := lipgloss.NewStyle()
	return styles{title: p, typ: p, muted: p, ok: p, err: p}
}

// newStyles returns coloured styles when mode is "always", or when it is
// "auto" and w is a terminal.
func newStyles(w io.Writer, mode string) styles {
	switch mode {
	case "never":
		return plainStyles()
	case "auto":
		f, ok := w.(*os.File)
		if !ok || (!isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())) {
			return plainStyles()
		}
	}
	return styles{
		title: lipgloss.NewStyle().Bold(true).Foreground(colorAccent),
		typ:   lipgloss.NewStyle().Foreground(colorAccent),
		muted: lipgloss.NewStyle().Foreground(colorMuted),
		ok:    lipgloss.NewStyle().Foreground(colorOK),
		err:   lipgloss.NewStyle().Bold(true).Foreground(colorError),
	}
}
