package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/jasonwhite/brilliant-build/pkg/types"
)

// ANSI sequences used by the console.
const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiBold   = "\033[1m"
)

// Console writes human-facing build output with optional coloring. It is the
// counterpart of the structured slog output: the console is for people, the
// log for machines.
type Console struct {
	out   io.Writer
	err   io.Writer
	color bool
}

// NewConsole builds a console for the given color mode. Auto enables color
// only when stdout is a terminal.
func NewConsole(mode string) *Console {
	return &Console{
		out:   os.Stdout,
		err:   os.Stderr,
		color: colorEnabled(mode, os.Stdout),
	}
}

func colorEnabled(mode string, out *os.File) bool {
	switch mode {
	case types.ColorAlways:
		return true
	case types.ColorNever:
		return false
	default:
		return isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd())
	}
}

// Printf writes plain output.
func (c *Console) Printf(format string, args ...any) {
	fmt.Fprintf(c.out, format+"\n", args...)
}

// Successf writes green output.
func (c *Console) Successf(format string, args ...any) {
	c.writeColored(c.out, ansiGreen, format, args...)
}

// Warnf writes yellow output.
func (c *Console) Warnf(format string, args ...any) {
	c.writeColored(c.out, ansiYellow, format, args...)
}

// Errorf writes bold red output to stderr.
func (c *Console) Errorf(format string, args ...any) {
	c.writeColored(c.err, ansiBold+ansiRed, format, args...)
}

func (c *Console) writeColored(w io.Writer, color, format string, args ...any) {
	if c.color {
		fmt.Fprintf(w, color+format+ansiReset+"\n", args...)
		return
	}
	fmt.Fprintf(w, format+"\n", args...)
}
