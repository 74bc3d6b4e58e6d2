package crypto

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/coffer-fs/coffer/internal/apperr"
)

// Algorithm is the AEAD name recorded in vault.meta.
const Algorithm = "AES-256-GCM"

// minSealedSize is the smallest well-formed output of Encrypt: a nonce and a
// tag around an empty plaintext.
const minSealedSize = NonceSize + TagSize

// Encrypt seals plaintext under the key with AES-256-GCM. A fresh random
// 96-bit nonce is generated per call and prepended to the output, so the
// result is self-describing: nonce || ciphertext || tag.
func Encrypt(plaintext, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, apperr.Newf(apperr.CodeEncryptionFailed, "invalid key size: expected %d, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeEncryptionFailed, "failed to create cipher", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeEncryptionFailed, "failed to create GCM", err)
	}

	nonce, err := GenerateNonce()
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeEncryptionFailed, "failed to generate nonce", err)
	}

	// Seal appends ciphertext+tag after the nonce prefix.
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return sealed, nil
}

// Decrypt opens a nonce-prefixed AES-256-GCM blob. It fails with a
// decryption error on any truncated, corrupted, or wrong-key input; it never
// returns unauthenticated plaintext.
func Decrypt(sealed, key []byte) ([]byte, error) {
	if len(key) != KeySize {
		return nil, apperr.Newf(apperr.CodeDecryptionFailed, "invalid key size: expected %d, got %d", KeySize, len(key))
	}
	if len(sealed) < minSealedSize {
		return nil, apperr.Newf(apperr.CodeDecryptionFailed, "sealed data too short: %d bytes", len(sealed))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeDecryptionFailed, "failed to create cipher", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeDecryptionFailed, "failed to create GCM", err)
	}

	nonce := sealed[:NonceSize]
	plaintext, err := gcm.Open(nil, nonce, sealed[NonceSize:], nil)
	if err != nil {
		return nil, apperr.New(apperr.CodeDecryptionFailed, "authentication tag mismatch")
	}

	return plaintext, nil
}
