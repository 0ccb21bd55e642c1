package cmd

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/sdpc-project/sdpc/internal/install"
	"github.com/sdpc-project/sdpc/internal/pidfile"
)

var (
	styleGood = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	styleBad  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	styleDim  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

func init() {
	RegisterCommand(Command{Name: "status", Help: "report whether the client is running and its last-known state", Run: runStatus})
}

// statusSnapshot mirrors internal/client's on-disk status.json shape; kept
// as a separate copy so cmd never has to import internal/client just to
// read a diagnostic file (SPEC_FULL.md: "purely observational, never
// authoritative for any invariant").
type statusSnapshot struct {
	PID            int       `json:"pid" yaml:"pid"`
	State          string    `json:"state" yaml:"state"`
	LastContact    time.Time `json:"last_contact" yaml:"last_contact"`
	LastCredUpdate time.Time `json:"last_cred_update" yaml:"last_cred_update"`
	UpdatedAt      time.Time `json:"updated_at" yaml:"updated_at"`
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configFile := fs.String("config", "", "path to config file, for a non-default pid_file")
	asJSON := fs.Bool("json", false, "print the raw status snapshot as JSON")
	asYAML := fs.Bool("yaml", false, "print the raw status snapshot as YAML")
	if err := fs.Parse(args); err != nil {
		return err
	}

	pidFile := resolvePIDFile(*configFile)
	st, err := pidfile.Status(pidFile)
	if err != nil {
		return err
	}

	var snap statusSnapshot
	snapErr := readStatusSnapshot(&snap)

	if *asJSON {
		return printEncoded(json.MarshalIndent, snap)
	}
	if *asYAML {
		return printEncoded(func(v any, _, _ string) ([]byte, error) { return yaml.Marshal(v) }, snap)
	}

	if !st.Running {
		Printer.Println(render(styleBad, "not running"))
		return nil
	}

	Printer.Printf("%s (pid %d)\n", render(styleGood, "running"), st.PID)
	if snapErr != nil {
		Printer.Println(render(styleDim, fmt.Sprintf("no status detail available: %v", snapErr)))
		return nil
	}
	Printer.Printf("  state:            %s\n", snap.State)
	Printer.Printf("  last contact:     %s\n", formatTime(snap.LastContact))
	Printer.Printf("  last cred update: %s\n", formatTime(snap.LastCredUpdate))
	Printer.Printf("  snapshot age:     %s\n", time.Since(snap.UpdatedAt).Round(time.Second))
	return nil
}

func readStatusSnapshot(out *statusSnapshot) error {
	data, err := os.ReadFile(install.StatusFilePath())
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func printEncoded(marshal func(v any, prefix, indent string) ([]byte, error), snap statusSnapshot) error {
	data, err := marshal(snap, "", "  ")
	if err != nil {
		return err
	}
	Printer.Printf("%s\n", string(data))
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Format(time.RFC3339)
}

func render(style lipgloss.Style, text string) string {
	if !IsInteractive() {
		return text
	}
	return style.Render(text)
}

