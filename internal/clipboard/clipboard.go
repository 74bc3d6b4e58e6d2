// Package clipboard puts sensitive material, mainly the recovery key, on
// the system clipboard with an automatic clear.
package clipboard

import (
	"fmt"
	"time"

	"github.com/atotto/clipboard"
)

// Copy places text on the clipboard.
func Copy(text string) error {
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("failed to copy to clipboard: %w", err)
	}
	return nil
}

// ClearAfter waits for the timeout and then clears the clipboard, unless
// something else replaced text in the meantime. It blocks until done so a
// one-shot process survives long enough to perform the clear.
func ClearAfter(text string, timeout time.Duration) error {
	time.Sleep(timeout)

	current, err := clipboard.ReadAll()
	if err == nil && current == text {
		return clipboard.WriteAll("")
	}
	return nil
}

// IsAvailable reports whether a clipboard is usable on this system.
func IsAvailable() bool {
	_, err := clipboard.ReadAll()
	return err == nil
}

// Clear empties the clipboard.
func Clear() error {
	return clipboard.WriteAll("")
}
