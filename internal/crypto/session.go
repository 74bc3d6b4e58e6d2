package crypto

// Session owns the master key bytes for the duration of an unlocked vault.
// The constructor takes ownership of the slice: callers must not retain or
// copy it. Every code path that drops a session must call Destroy so the key
// is overwritten before release.
type Session struct {
	key []byte
}

// NewSession wraps a derived key. The session becomes the sole owner of the
// backing bytes.
func NewSession(key []byte) *Session {
	return &Session{key: key}
}

// Key exposes the key for encrypt/decrypt calls. The returned slice aliases
// the session's bytes; it must not outlive the session.
func (s *Session) Key() []byte {
	if s == nil {
		return nil
	}
	return s.key
}

// Active reports whether the session still holds a key.
func (s *Session) Active() bool {
	return s != nil && len(s.key) == KeySize
}

// Destroy zeroizes the key and releases it. Safe to call more than once.
func (s *Session) Destroy() {
	if s == nil {
		return
	}
	Zeroize(s.key)
	s.key = nil
}

// Zeroize securely clears a byte slice.
func Zeroize(data []byte) {
	for i := range data {
		data[i] = 0
	}
}
