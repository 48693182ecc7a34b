package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// promptForInput prints prompt and reads one trimmed line.
func promptForInput(cmd *cobra.Command, opts *rootOptions, prompt string) (string, error) {
	cmd.Print(prompt)
	line, err := opts.input(cmd).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptForPassword reads a secret without echo when stdin is a terminal and
// falls back to a plain line otherwise.
func promptForPassword(cmd *cobra.Command, opts *rootOptions, prompt string) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		cmd.Print(prompt)
		password, err := term.ReadPassword(int(f.Fd()))
		cmd.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return strings.TrimSpace(string(password)), nil
	}
	return promptForInput(cmd, opts, prompt)
}

// valueOrPrompt returns value, prompting for it when empty.
func valueOrPrompt(cmd *cobra.Command, opts *rootOptions, value, prompt string) (string, error) {
	if value != "" {
		return value, nil
	}
	return promptForInput(cmd, opts, prompt)
}
