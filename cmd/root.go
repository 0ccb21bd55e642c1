// Package cmd implements the sdpc command-line dispatcher: start, stop,
// restart, status. Structured as a hand-rolled subcommand table the way the
// teacher's own cmd/ package dispatches (no cobra/pflag — the teacher's top
// level is hand-written too), with a package-level Printer so output can be
// redirected/suppressed in tests the way the teacher's CLI commands do.
package cmd

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// CLIPrinter is the sink every subcommand writes user-facing output through.
type CLIPrinter struct {
	out io.Writer
	err io.Writer
}

// Printer is the global message printer for the CLI.
var Printer = &CLIPrinter{out: os.Stdout, err: os.Stderr}

func (p *CLIPrinter) Printf(format string, args ...any)  { fmt.Fprintf(p.out, format, args...) }
func (p *CLIPrinter) Println(args ...any)                { fmt.Fprintln(p.out, args...) }
func (p *CLIPrinter) Fprintf(w io.Writer, format string, args ...any) { fmt.Fprintf(w, format, args...) }

// IsInteractive reports whether stdout is an attached terminal, the
// condition cmd/status.go uses to decide whether to apply lipgloss styling
// rather than plain text (FOREGROUND=0/logged output must stay parseable).
func IsInteractive() bool {
	f, ok := Printer.out.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Command is one entry in the dispatch table.
type Command struct {
	Name string
	Help string
	Run  func(args []string) error
}

// commands is the full dispatch table, registered by each subcommand's
// init-adjacent file via RegisterCommand.
var commands []Command

// RegisterCommand adds a command to the dispatch table.
func RegisterCommand(c Command) { commands = append(commands, c) }

// Dispatch resolves args[0] to a registered command and runs it with the
// remaining arguments. Returns an error for an unknown command or if no
// command was given.
func Dispatch(args []string) error {
	if len(args) == 0 {
		printUsage()
		return fmt.Errorf("no command given")
	}
	name := args[0]
	for _, c := range commands {
		if c.Name == name {
			return c.Run(args[1:])
		}
	}
	printUsage()
	return fmt.Errorf("unknown command %q", name)
}

func printUsage() {
	Printer.Println("usage: sdpc <command> [args]")
	Printer.Println("commands:")
	for _, c := range commands {
		Printer.Printf("  %-10s %s\n", c.Name, c.Help)
	}
}
