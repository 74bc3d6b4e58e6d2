// Package crypto implements the vault's cryptographic primitives: Argon2id
// key derivation, AES-256-GCM authenticated encryption with nonce-prefixed
// framing, constant-time key verification, and the session key container.
package crypto

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/coffer-fs/coffer/internal/apperr"
)

const (
	// Crypto constants
	KeySize   = 32 // AES-256 key size
	SaltSize  = 16 // Salt size for Argon2id
	NonceSize = 12 // GCM nonce size
	TagSize   = 16 // GCM tag size

	// Argon2id cost for vault format version 1. vault.meta does not record
	// KDF parameters, so they are fixed per format version.
	defaultArgon2Memory      = 64 * 1024 // 64 MiB
	defaultArgon2Iterations  = 2
	defaultArgon2Parallelism = 1
)

// Argon2Params holds the key derivation parameters.
type Argon2Params struct {
	Memory      uint32 `json:"memory"`
	Iterations  uint32 `json:"iterations"`
	Parallelism uint8  `json:"parallelism"`
}

// DefaultArgon2Params returns the parameters bound to the current vault
// format version.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      defaultArgon2Memory,
		Iterations:  defaultArgon2Iterations,
		Parallelism: defaultArgon2Parallelism,
	}
}

// ValidateArgon2Params validates Argon2id parameters.
func ValidateArgon2Params(params Argon2Params) error {
	if params.Memory < 8*1024 {
		return errors.New("memory parameter too low (minimum 8192 KB)")
	}
	if params.Memory > 1024*1024 {
		return errors.New("memory parameter too high (maximum 1 GB)")
	}
	if params.Iterations < 1 {
		return errors.New("iterations parameter too low (minimum 1)")
	}
	if params.Iterations > 100 {
		return errors.New("iterations parameter too high (maximum 100)")
	}
	if params.Parallelism < 1 {
		return errors.New("parallelism parameter too low (minimum 1)")
	}
	return nil
}

// DeriveKey derives a 256-bit key from a password using Argon2id. It is
// deterministic for a given (password, salt) pair and fails only on
// malformed inputs, never on a wrong password; verification is a separate
// step (VerifyKey).
func DeriveKey(password string, salt []byte) ([]byte, error) {
	return deriveKey(password, salt, DefaultArgon2Params())
}

func deriveKey(password string, salt []byte, params Argon2Params) ([]byte, error) {
	if len(salt) != SaltSize {
		return nil, apperr.Newf(apperr.CodeCrypto, "invalid salt size: expected %d, got %d", SaltSize, len(salt))
	}
	if err := ValidateArgon2Params(params); err != nil {
		return nil, apperr.Wrap(apperr.CodeCrypto, "invalid KDF parameters", err)
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		params.Iterations,
		params.Memory,
		params.Parallelism,
		KeySize,
	)
	return key, nil
}

// ParamsForVersion maps a vault format version to its KDF cost parameters.
func ParamsForVersion(version string) (Argon2Params, error) {
	switch version {
	case "1":
		return DefaultArgon2Params(), nil
	default:
		return Argon2Params{}, fmt.Errorf("unsupported vault format version %q", version)
	}
}
