package telemetry

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// EnsureConsent resolves the consent question exactly once. On the
// first interactive run it shows the prompt; on later runs, or when
// stdin is not a terminal, it returns the stored answer. Call before
// Init so the loaded state reflects the user's choice.
func EnsureConsent() (bool, error) {
	cfg, err := Load()
	if err != nil {
		return false, err
	}

	if !cfg.NeedsConsent() {
		return cfg.IsEnabled(), nil
	}

	// Scripts and CI must never hang on stdin: no terminal means no
	// prompt and no collection, but the question stays open for the
	// next interactive run.
	if !isInteractive() {
		return false, nil
	}

	enabled, err := PromptConsent(cfg, os.Stdin, os.Stdout)
	if err != nil {
		return false, err
	}
	return enabled, nil
}

// PromptConsent shows the opt-in prompt, records the answer, and
// persists it. Empty input and EOF both count as consent declined.
func PromptConsent(cfg *Config, in io.Reader, out io.Writer) (bool, error) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "╭──────────────────────────────────────────────────────────────╮")
	fmt.Fprintln(out, "│  Help improve kindred?                                       │")
	fmt.Fprintln(out, "│                                                              │")
	fmt.Fprintln(out, "│  kindred can send anonymous usage statistics to guide        │")
	fmt.Fprintln(out, "│  development. Nothing about your work items is collected.    │")
	fmt.Fprintln(out, "│                                                              │")
	fmt.Fprintln(out, "│  Sent when enabled:                                          │")
	fmt.Fprintln(out, "│  • analysis timings, candidate and result counts             │")
	fmt.Fprintln(out, "│  • error kinds (never messages or stack traces)              │")
	fmt.Fprintln(out, "│  • OS and architecture                                       │")
	fmt.Fprintln(out, "│                                                              │")
	fmt.Fprintln(out, "│  Never sent:                                                 │")
	fmt.Fprintln(out, "│  • item titles, descriptions, IDs, or queries                │")
	fmt.Fprintln(out, "│  • organization, project, or user names                      │")
	fmt.Fprintln(out, "│                                                              │")
	fmt.Fprintln(out, "│  Change anytime: kindred telemetry on|off                    │")
	fmt.Fprintln(out, "╰──────────────────────────────────────────────────────────────╯")
	fmt.Fprintln(out)
	fmt.Fprint(out, "Enable anonymous telemetry? [y/N] ")

	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && answer == "" {
		cfg.Disable()
		if saveErr := cfg.Save(); saveErr != nil {
			return false, saveErr
		}
		return false, nil
	}

	answer = strings.TrimSpace(strings.ToLower(answer))
	if answer == "y" || answer == "yes" {
		cfg.Enable()
	} else {
		cfg.Disable()
	}

	if err := cfg.Save(); err != nil {
		return false, err
	}

	if cfg.IsEnabled() {
		fmt.Fprintln(out, "Telemetry enabled. Disable anytime with: kindred telemetry off")
	} else {
		fmt.Fprintln(out, "Telemetry disabled. Enable anytime with: kindred telemetry on")
	}
	fmt.Fprintln(out)

	return cfg.IsEnabled(), nil
}

// isInteractive reports whether stdin is attached to a terminal.
func isInteractive() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
