package recovery

import (
	"encoding/base32"
	"strings"

	"github.com/coffer-fs/coffer/internal/apperr"
	"github.com/coffer-fs/coffer/internal/crypto"
)

// keyGroupSize is how many characters sit between dashes in the exported
// form. A 256-bit key is 52 base32 characters, so grouping by five yields
// eleven groups with a two-character tail.
const keyGroupSize = 5

var keyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// FormatRecoveryKey renders a raw recovery key for the user to archive:
// upper-case base32 split into dash-separated groups.
func FormatRecoveryKey(key []byte) string {
	encoded := keyEncoding.EncodeToString(key)

	var b strings.Builder
	b.Grow(len(encoded) + len(encoded)/keyGroupSize)
	for i := 0; i < len(encoded); i += keyGroupSize {
		if i > 0 {
			b.WriteByte('-')
		}
		end := i + keyGroupSize
		if end > len(encoded) {
			end = len(encoded)
		}
		b.WriteString(encoded[i:end])
	}
	return b.String()
}

// ParseRecoveryKey reads the exported form back, tolerating dashes, spaces
// and lower case.
func ParseRecoveryKey(s string) ([]byte, error) {
	cleaned := strings.ToUpper(strings.Map(func(r rune) rune {
		switch r {
		case '-', ' ', '\t':
			return -1
		}
		return r
	}, s))

	key, err := keyEncoding.DecodeString(cleaned)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidData, "malformed recovery key", err)
	}
	if len(key) != crypto.KeySize {
		return nil, apperr.Newf(apperr.CodeInvalidData, "recovery key must decode to %d bytes, got %d", crypto.KeySize, len(key))
	}
	return key, nil
}
