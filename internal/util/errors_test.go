package util

import (
	"errors"
	"fmt"
	"testing"

	"github.com/coffer-fs/coffer/internal/apperr"
)

func TestExitCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"plain error", errors.New("boom"), ExitError},
		{"not found", apperr.New(apperr.CodeNotFound, "missing"), ExitError},
		{"invalid path", apperr.New(apperr.CodeInvalidPath, "bad name"), ExitInvalidInput},
		{"locked", apperr.New(apperr.CodeLocked, "vault is locked"), ExitVaultLocked},
		{"not initialized", apperr.New(apperr.CodeNotInitialized, "no vault"), ExitVaultLocked},
		{"decryption failed", apperr.New(apperr.CodeDecryptionFailed, "corrupt"), ExitIntegrityErr},
		{"invalid data", apperr.New(apperr.CodeInvalidData, "corrupt"), ExitIntegrityErr},
		{"rate limited", apperr.New(apperr.CodeRateLimited, "slow down"), ExitRateLimited},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExitCode(tc.err); got != tc.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestExitCodeSeesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("opening vault: %w", apperr.New(apperr.CodeLocked, "vault is locked"))
	if got := ExitCode(err); got != ExitVaultLocked {
		t.Errorf("ExitCode(wrapped) = %d, want %d", got, ExitVaultLocked)
	}
}

func TestWrapError(t *testing.T) {
	if WrapError(nil, "ctx") != nil {
		t.Error("WrapError(nil) should be nil")
	}
	base := apperr.New(apperr.CodeNotFound, "missing")
	wrapped := WrapError(base, "reading entry")
	if !errors.Is(wrapped, base) {
		t.Error("wrapped error should match its cause")
	}
}
