package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"
)

// minPasswordLen is the CLI-side floor for new master passwords. The core
// only rejects empty passwords; length policy belongs to the surface.
const minPasswordLen = 8

// readPassword returns the master password from PasswordEnv when set,
// otherwise prompts without echo.
func readPassword(prompt string) (string, error) {
	if pw, ok := os.LookupEnv(PasswordEnv); ok {
		return pw, nil
	}
	return PromptPassword(prompt)
}

// readNewPassword collects a new master password, confirming it when read
// interactively.
func readNewPassword(prompt string) (string, error) {
	if pw, ok := os.LookupEnv(PasswordEnv); ok {
		return pw, validateNewPassword(pw)
	}

	password, err := PromptPassword(prompt)
	if err != nil {
		return "", err
	}
	if err := validateNewPassword(password); err != nil {
		return "", err
	}

	confirm, err := PromptPassword("Confirm password: ")
	if err != nil {
		return "", err
	}
	if password != confirm {
		return "", fmt.Errorf("passwords do not match")
	}

	return password, nil
}

func validateNewPassword(password string) error {
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}
	if len(password) < minPasswordLen {
		return fmt.Errorf("password is too short (minimum %d characters)", minPasswordLen)
	}
	return nil
}

// PromptPassword prompts for a password without echoing to terminal
func PromptPassword(prompt string) (string, error) {
	fmt.Print(prompt)

	fd := int(syscall.Stdin)

	password, err := term.ReadPassword(fd)
	fmt.Println() // Print newline after password input

	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	return string(password), nil
}

// PromptInput prompts for regular input
func PromptInput(prompt string) (string, error) {
	fmt.Print(prompt)

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}

	return strings.TrimSpace(input), nil
}

// PromptConfirm prompts for yes/no confirmation
func PromptConfirm(prompt string, defaultYes bool) (bool, error) {
	var suffix string
	if defaultYes {
		suffix = " [Y/n]: "
	} else {
		suffix = " [y/N]: "
	}

	input, err := PromptInput(prompt + suffix)
	if err != nil {
		return false, err
	}

	input = strings.ToLower(strings.TrimSpace(input))

	if input == "" {
		return defaultYes, nil
	}

	return input == "y" || input == "yes", nil
}

// confirmDestructive asks before a destructive operation when the config
// requires it. The force flag and non-confirming configs skip the prompt.
func confirmDestructive(prompt string, force bool) (bool, error) {
	if force || cfg == nil || !cfg.ConfirmDestructive {
		return true, nil
	}
	return PromptConfirm(prompt, false)
}
