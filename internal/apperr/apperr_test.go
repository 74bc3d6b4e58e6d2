package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	err := New(CodeLocked, "vault is locked")
	if err.Error() != "vault is locked" {
		t.Errorf("Unexpected message: %s", err.Error())
	}

	wrapped := Wrap(CodeIO, "failed to persist tree", errors.New("disk full"))
	if wrapped.Error() != "failed to persist tree: disk full" {
		t.Errorf("Unexpected wrapped message: %s", wrapped.Error())
	}
}

func TestUnwrapChain(t *testing.T) {
	cause := errors.New("short read")
	err := Wrap(CodeSerialization, "failed to decode state", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause through Unwrap")
	}
}

func TestIsMatchesByCode(t *testing.T) {
	a := Newf(CodeInvalidPath, "path %q is malformed", "//x")
	b := New(CodeInvalidPath, "different message")

	if !errors.Is(a, b) {
		t.Error("Errors with the same code should match")
	}

	c := New(CodeNotFound, "no such node")
	if errors.Is(a, c) {
		t.Error("Errors with different codes should not match")
	}
}

func TestIsMatchesThroughWrapping(t *testing.T) {
	inner := New(CodeInvalidPassword, "verification hash mismatch")
	outer := fmt.Errorf("unlock: %w", inner)

	if !IsCode(outer, CodeInvalidPassword) {
		t.Error("IsCode should see through fmt.Errorf wrapping")
	}
	if CodeOf(outer) != CodeInvalidPassword {
		t.Errorf("CodeOf = %q, want %q", CodeOf(outer), CodeInvalidPassword)
	}
}

func TestPasswordAndCorruptionStayDistinct(t *testing.T) {
	badPassword := New(CodeInvalidPassword, "wrong password")
	corrupted := New(CodeDecryptionFailed, "authentication tag mismatch")

	if errors.Is(badPassword, corrupted) {
		t.Error("invalid_password must never match decryption_failed")
	}
	if CodeOf(badPassword) == CodeOf(corrupted) {
		t.Error("Codes must differ")
	}
}

func TestCodeOfForeignError(t *testing.T) {
	if CodeOf(errors.New("plain")) != "" {
		t.Error("Foreign errors should map to the empty code")
	}
	if IsCode(nil, CodeLocked) {
		t.Error("nil error should not match any code")
	}
}
