package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

// VerificationCodeDigits is the length of a recovery verification code.
const VerificationCodeDigits = 6

var (
	randSource io.Reader = rand.Reader
	randMux    sync.RWMutex
)

var errInvalidBound = errors.New("bound must be positive")

// SetRandomSource sets the random number generator source.
// If r is nil, it resets to the default crypto/rand.Reader.
func SetRandomSource(r io.Reader) {
	randMux.Lock()
	if r == nil {
		randSource = rand.Reader
	} else {
		randSource = r
	}
	randMux.Unlock()
}

func randomReader() io.Reader {
	randMux.RLock()
	src := randSource
	randMux.RUnlock()
	return src
}

// GenerateSalt creates a cryptographically secure random KDF salt.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(randomReader(), salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}

// GenerateNonce creates a cryptographically secure random GCM nonce.
func GenerateNonce() ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(randomReader(), nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return nonce, nil
}

// GenerateRecoveryKey creates an independent 256-bit recovery secret.
func GenerateRecoveryKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(randomReader(), key); err != nil {
		return nil, fmt.Errorf("failed to generate recovery key: %w", err)
	}
	return key, nil
}

// GenerateVerificationCode creates a uniformly distributed 6-digit numeric
// code for recovery verification.
func GenerateVerificationCode() (string, error) {
	n, err := randomIndex(randomReader(), 1000000)
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n), nil
}

// NewBlobID allocates a fresh random blob identifier. Identifiers are
// UUID-class: effectively collision-free and never derived from content.
func NewBlobID() (string, error) {
	id, err := uuid.NewRandomFromReader(randomReader())
	if err != nil {
		return "", fmt.Errorf("failed to generate blob id: %w", err)
	}
	return id.String(), nil
}

// randomIndex returns a uniform value in [0, max) using rejection sampling
// so no bias is introduced by the modulo.
func randomIndex(r io.Reader, max int) (int, error) {
	if max <= 0 {
		return 0, errInvalidBound
	}

	if max <= 256 {
		var buf [1]byte
		usable := 256 - (256 % max)
		for {
			if _, err := io.ReadFull(r, buf[:]); err != nil {
				return 0, err
			}
			if int(buf[0]) < usable {
				return int(buf[0]) % max, nil
			}
		}
	}

	var buf [4]byte
	const maxUint32 = ^uint32(0)
	limit := maxUint32 - (maxUint32 % uint32(max))
	for {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return 0, err
		}
		val := binary.BigEndian.Uint32(buf[:])
		if val < limit {
			return int(val % uint32(max)), nil
		}
	}
}
