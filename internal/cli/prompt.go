// Package cli holds the interactive prompt helpers shared by the demo
// commands.
package cli

import (
	"strconv"
	"strings"

	"github.com/pterm/pterm"
)

// AskSelect prompts the user to choose one of the options.
func AskSelect(prompt string, options []string) string {
	choice, _ := pterm.DefaultInteractiveSelect.
		WithOptions(options).
		WithDefaultText(prompt).
		Show()
	pterm.Println()
	return choice
}

// AskText prompts for a non-empty string, re-asking until one is entered.
func AskText(prompt, defaultValue string) string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultValue(defaultValue).
			WithDefaultText(prompt).
			Show()

		if v := strings.TrimSpace(raw); v != "" {
			pterm.Println()
			return v
		}
		pterm.Warning.Println("a value is required")
	}
}

// AskInt prompts for an integer in [min, max], re-asking until valid.
func AskInt(prompt string, min, max, defaultValue int) int {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultValue(strconv.Itoa(defaultValue)).
			WithDefaultText(prompt).
			Show()

		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err == nil && n >= min && n <= max {
			pterm.Println()
			return n
		}
		pterm.Warning.Printfln("invalid number: must be %d ~ %d", min, max)
	}
}
