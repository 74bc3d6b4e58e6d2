// Package util provides shared helpers for the coffer CLI, chiefly the
// mapping from the error taxonomy to process exit codes.
package util

import (
	"fmt"
	"os"

	"github.com/coffer-fs/coffer/internal/apperr"
)

// Exit codes reported by the CLI.
const (
	ExitOK           = 0
	ExitError        = 1
	ExitInvalidInput = 2
	ExitVaultLocked  = 3
	ExitIntegrityErr = 4
	ExitRateLimited  = 5
)

// ExitCode maps an error to the CLI exit code. Nil means success.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch apperr.CodeOf(err) {
	case apperr.CodeInvalidPath:
		return ExitInvalidInput
	case apperr.CodeLocked, apperr.CodeNotInitialized:
		return ExitVaultLocked
	case apperr.CodeDecryptionFailed, apperr.CodeInvalidData, apperr.CodeSerialization:
		return ExitIntegrityErr
	case apperr.CodeRateLimited:
		return ExitRateLimited
	default:
		return ExitError
	}
}

// ExitWithCode exits the program with the specified code and message.
func ExitWithCode(code int, format string, args ...interface{}) {
	if format != "" {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
	os.Exit(code)
}

// HandleError prints the error and exits with the mapped code. Integrity
// failures additionally point the user at the doctor command.
func HandleError(err error, context string) {
	if err == nil {
		return
	}

	code := ExitCode(err)
	switch {
	case code == ExitIntegrityErr:
		ExitWithCode(code, "Error: %s - %v\nRun 'coffer doctor' to diagnose issues.", context, err)
	case context != "":
		ExitWithCode(code, "Error: %s - %v", context, err)
	default:
		ExitWithCode(code, "Error: %v", err)
	}
}

// WrapError wraps an error with additional context.
func WrapError(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}
