package crypto

import (
	"crypto/sha256"
	"crypto/subtle"
)

// VerificationHash computes a fast one-way digest of a derived key. The
// digest is stored alongside the vault so a candidate key can be checked
// without persisting the key itself; it must never be usable to recover the
// key.
func VerificationHash(key []byte) []byte {
	sum := sha256.Sum256(key)
	return sum[:]
}

// VerifyKey reports whether a candidate key matches the stored verification
// digest, in constant time.
func VerifyKey(key, digest []byte) bool {
	return SecureCompare(VerificationHash(key), digest)
}

// SecureCompare performs constant-time comparison of two byte slices.
func SecureCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
