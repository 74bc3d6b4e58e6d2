package vault

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/coffer-fs/coffer/internal/apperr"
	"github.com/coffer-fs/coffer/internal/domain"
	"github.com/coffer-fs/coffer/internal/store"
)

const (
	// MetaFileName is the unencrypted vault header.
	MetaFileName = "vault.meta"
	// BinFileName holds the encrypted tree: nonce || ciphertext || tag.
	BinFileName = "vault.bin"
	// LegacyFileName is the plain JSON tree used while NotInitialized.
	LegacyFileName = "fs.json"

	// FormatVersion is written into new vault headers.
	FormatVersion = "1"
)

// TOML mirrors. Binary fields travel base64-encoded; domain types keep raw
// bytes.
type metaFile struct {
	Version              string        `toml:"version"`
	KDFSalt              string        `toml:"kdf_salt"`
	AuthVerificationHash string        `toml:"auth_verification_hash"`
	EncryptionAlgo       string        `toml:"encryption_algo"`
	Recovery             *metaRecovery `toml:"recovery,omitempty"`
}

type metaRecovery struct {
	EncryptedRecoveryKey string        `toml:"encrypted_recovery_key"`
	Channels             []metaChannel `toml:"channels"`
	LastAttempt          time.Time     `toml:"last_attempt"`
	AttemptCount         int           `toml:"attempt_count"`
}

type metaChannel struct {
	Kind     string `toml:"kind"`
	Address  string `toml:"address"`
	Verified bool   `toml:"verified"`
}

// MetaPath returns the header path inside a vault directory.
func MetaPath(dir string) string {
	return filepath.Join(dir, MetaFileName)
}

// BinPath returns the encrypted tree path inside a vault directory.
func BinPath(dir string) string {
	return filepath.Join(dir, BinFileName)
}

// LegacyPath returns the plaintext legacy tree path.
func LegacyPath(dir string) string {
	return filepath.Join(dir, LegacyFileName)
}

// LoadVaultConfig reads and decodes vault.meta. A missing header means the
// vault was never initialized.
func LoadVaultConfig(dir string) (*domain.VaultConfig, error) {
	data, err := os.ReadFile(MetaPath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.New(apperr.CodeNotInitialized, "vault is not initialized")
		}
		return nil, apperr.Wrap(apperr.CodeIO, "failed to read vault header", err)
	}

	var raw metaFile
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidData, "malformed vault header", err)
	}

	salt, err := base64.StdEncoding.DecodeString(raw.KDFSalt)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidData, "malformed kdf_salt", err)
	}
	hash, err := base64.StdEncoding.DecodeString(raw.AuthVerificationHash)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidData, "malformed auth_verification_hash", err)
	}

	cfg := &domain.VaultConfig{
		Version:          raw.Version,
		KDFSalt:          salt,
		VerificationHash: hash,
		EncryptionAlgo:   raw.EncryptionAlgo,
	}

	if raw.Recovery != nil {
		key, err := base64.StdEncoding.DecodeString(raw.Recovery.EncryptedRecoveryKey)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeInvalidData, "malformed encrypted_recovery_key", err)
		}
		rc := &domain.RecoveryConfig{
			EncryptedRecoveryKey: key,
			LastAttempt:          raw.Recovery.LastAttempt,
			AttemptCount:         raw.Recovery.AttemptCount,
		}
		for _, ch := range raw.Recovery.Channels {
			rc.Channels = append(rc.Channels, domain.RecoveryChannel{
				Kind:     domain.ChannelKind(ch.Kind),
				Address:  ch.Address,
				Verified: ch.Verified,
			})
		}
		cfg.Recovery = rc
	}

	return cfg, nil
}

// SaveVaultConfig encodes and atomically persists vault.meta.
func SaveVaultConfig(dir string, cfg *domain.VaultConfig) error {
	raw := metaFile{
		Version:              cfg.Version,
		KDFSalt:              base64.StdEncoding.EncodeToString(cfg.KDFSalt),
		AuthVerificationHash: base64.StdEncoding.EncodeToString(cfg.VerificationHash),
		EncryptionAlgo:       cfg.EncryptionAlgo,
	}

	if cfg.Recovery != nil {
		rec := &metaRecovery{
			EncryptedRecoveryKey: base64.StdEncoding.EncodeToString(cfg.Recovery.EncryptedRecoveryKey),
			LastAttempt:          cfg.Recovery.LastAttempt,
			AttemptCount:         cfg.Recovery.AttemptCount,
		}
		for _, ch := range cfg.Recovery.Channels {
			rec.Channels = append(rec.Channels, metaChannel{
				Kind:     string(ch.Kind),
				Address:  ch.Address,
				Verified: ch.Verified,
			})
		}
		raw.Recovery = rec
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(raw); err != nil {
		return apperr.Wrap(apperr.CodeSerialization, "failed to encode vault header", err)
	}

	if err := store.AtomicWriteFile(MetaPath(dir), buf.Bytes()); err != nil {
		return apperr.Wrap(apperr.CodeIO, "failed to persist vault header", err)
	}
	return nil
}
