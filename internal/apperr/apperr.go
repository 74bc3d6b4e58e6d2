// Package apperr defines the typed error taxonomy shared by every layer of
// the vault. Each error carries a stable machine-readable code and a human
// message; callers branch on the code, users read the message.
package apperr

import (
	"errors"
	"fmt"
)

// Code identifies an error condition. Codes are part of the public contract
// and must stay stable across releases.
type Code string

const (
	CodeLocked                Code = "locked"
	CodeNotInitialized        Code = "not_initialized"
	CodeInvalidPassword       Code = "invalid_password"
	CodeDecryptionFailed      Code = "decryption_failed"
	CodeEncryptionFailed      Code = "encryption_failed"
	CodeInvalidData           Code = "invalid_data"
	CodeInvalidPath           Code = "invalid_path"
	CodeNotFound              Code = "not_found"
	CodeAlreadyExists         Code = "already_exists"
	CodeCrypto                Code = "crypto"
	CodeIO                    Code = "io"
	CodeSerialization         Code = "serialization"
	CodeRateLimited           Code = "rate_limited"
	CodeChannelNotFound       Code = "channel_not_found"
	CodeChannelNotVerified    Code = "channel_not_verified"
	CodeChannelUnavailable    Code = "channel_unavailable"
	CodeRecoveryExpired       Code = "recovery_expired"
	CodeInvalidCode           Code = "invalid_code"
	CodeRecoveryNotConfigured Code = "recovery_not_configured"
)

// Error is the concrete error type used across the vault packages.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches two *Error values by code so errors.Is(err, apperr.New(code, ""))
// and the sentinel helpers below work through wrap chains.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// New creates an error with a code and a fixed message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an error with a code and a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Wrapf attaches a code and formatted message to an underlying cause.
func Wrapf(code Code, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the taxonomy code from an error chain. Errors that did not
// originate here report an empty code.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether any error in the chain carries the given code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
