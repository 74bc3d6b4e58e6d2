// Package recovery implements the password reset protocol: out-of-band
// verification codes, time-boxed sessions and the persisted attempt cap.
package recovery

import (
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/coffer-fs/coffer/internal/apperr"
	"github.com/coffer-fs/coffer/internal/audit"
	"github.com/coffer-fs/coffer/internal/crypto"
	"github.com/coffer-fs/coffer/internal/domain"
	"github.com/coffer-fs/coffer/internal/notify"
)

const (
	// SessionTTL is how long a verification code stays usable. Expiry is
	// checked lazily at use time, not by a timer.
	SessionTTL = 15 * time.Minute

	// MaxAttempts caps reset initiations inside one attemptWindow. The
	// counters persist in the vault header so a process restart cannot
	// clear them.
	MaxAttempts   = 3
	attemptWindow = time.Hour
)

// Verification attempts are additionally throttled in-process: a short
// refill with a small burst keeps a 6-digit code from being brute forced
// between lazy expiry checks.
const (
	verifyInterval = 2 * time.Second
	verifyBurst    = 3
)

// Store is the slice of the vault the recovery protocol needs.
type Store interface {
	Seal(plaintext []byte) ([]byte, error)
	Recovery() (*domain.RecoveryConfig, error)
	SaveRecovery(rc *domain.RecoveryConfig) error
	UpdateRecoveryCounters(lastAttempt time.Time, attempts int) error
	ResetPassword(newPassword string) error
}

// session is one in-flight reset attempt. The wrapped key is sealed under a
// key derived from the verification code.
type session struct {
	id        string
	channel   domain.ChannelKind
	code      string
	salt      []byte
	wrapped   []byte
	createdAt time.Time
	verified  bool
}

// Ticket is the public view of an in-flight recovery session. It never
// carries the code.
type Ticket struct {
	ID        string
	Channel   domain.ChannelKind
	ExpiresAt time.Time
}

// Options configures optional collaborators for a Manager.
type Options struct {
	Audit  audit.Logger
	Logger *slog.Logger
	Clock  func() time.Time
}

// Manager drives the four-phase recovery protocol against one vault.
type Manager struct {
	mu          sync.Mutex
	store       Store
	dispatcher  *notify.Dispatcher
	sessions    map[string]*session
	verifyLimit *rate.Limiter
	audit       audit.Logger
	logger      *slog.Logger
	now         func() time.Time
}

// NewManager wires the protocol to a vault and a code dispatcher.
func NewManager(store Store, dispatcher *notify.Dispatcher, opts *Options) *Manager {
	if opts == nil {
		opts = &Options{}
	}
	m := &Manager{
		store:       store,
		dispatcher:  dispatcher,
		sessions:    make(map[string]*session),
		verifyLimit: rate.NewLimiter(rate.Every(verifyInterval), verifyBurst),
		audit:       opts.Audit,
		logger:      opts.Logger,
		now:         opts.Clock,
	}
	if m.audit == nil {
		m.audit = audit.Nop{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Setup generates an independent recovery key, seals it under the master
// session and stores it with the given channels. It returns the key's
// exportable form; this is the only time the raw key is ever exposed.
// Requires Unlocked.
func (m *Manager) Setup(channels []domain.RecoveryChannel) (string, error) {
	if len(channels) == 0 {
		return "", apperr.New(apperr.CodeInvalidData, "at least one recovery channel is required")
	}
	for _, ch := range channels {
		if !ch.Kind.Valid() {
			return "", apperr.Newf(apperr.CodeInvalidData, "unknown channel kind %q", ch.Kind)
		}
		if ch.Address == "" {
			return "", apperr.Newf(apperr.CodeInvalidData, "%s channel has no address", ch.Kind)
		}
	}

	key, err := crypto.GenerateRecoveryKey()
	if err != nil {
		return "", err
	}
	defer crypto.Zeroize(key)

	sealed, err := m.store.Seal(key)
	if err != nil {
		return "", err
	}
	rc := &domain.RecoveryConfig{
		EncryptedRecoveryKey: sealed,
		Channels:             append([]domain.RecoveryChannel(nil), channels...),
	}
	if err := m.store.SaveRecovery(rc); err != nil {
		return "", err
	}

	m.record(audit.EventRecoverySetup, map[string]string{"channels": strconv.Itoa(len(channels))})
	m.logger.Info("recovery configured", "channels", len(channels))
	return FormatRecoveryKey(key), nil
}

// Initiate starts a reset attempt over the named channel: it enforces the
// persisted attempt cap, generates a code and a fresh salt, wraps a key
// under the code-derived key and dispatches the code. The attempt is spent
// once the channel checks pass, even if delivery then fails.
//
// The wrapped key is a newly generated placeholder, not the stored recovery
// key: decrypting the stored one requires the master session, which is
// exactly what is missing during recovery. Completing the flow therefore
// resets the password without regaining access to data sealed under the old
// master key.
func (m *Manager) Initiate(kind domain.ChannelKind) (Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweepLocked(now)

	rc, err := m.store.Recovery()
	if err != nil {
		return Ticket{}, err
	}
	if rc == nil {
		return Ticket{}, apperr.New(apperr.CodeRecoveryNotConfigured, "recovery is not configured")
	}

	attempts := rc.AttemptCount
	if !rc.LastAttempt.IsZero() && now.Sub(rc.LastAttempt) >= attemptWindow {
		attempts = 0
	}
	if attempts >= MaxAttempts {
		retryAt := rc.LastAttempt.Add(attemptWindow)
		m.record(audit.EventRecoveryDenied, map[string]string{"reason": "rate_limited"})
		return Ticket{}, apperr.Newf(apperr.CodeRateLimited,
			"too many recovery attempts, retry after %s", retryAt.UTC().Format(time.RFC3339))
	}

	channel, ok := rc.FindChannel(kind)
	if !ok {
		return Ticket{}, apperr.Newf(apperr.CodeChannelNotFound, "no %s channel is configured", kind)
	}
	if !channel.Verified {
		m.record(audit.EventRecoveryDenied, map[string]string{"reason": "unverified_channel", "channel": string(kind)})
		return Ticket{}, apperr.Newf(apperr.CodeChannelNotVerified, "the %s channel is not verified", kind)
	}

	if err := m.store.UpdateRecoveryCounters(now, attempts+1); err != nil {
		return Ticket{}, err
	}

	code, err := crypto.GenerateVerificationCode()
	if err != nil {
		return Ticket{}, err
	}
	salt, err := crypto.GenerateSalt()
	if err != nil {
		return Ticket{}, err
	}
	tempKey, err := crypto.DeriveKey(code, salt)
	if err != nil {
		return Ticket{}, err
	}
	placeholder, err := crypto.GenerateRecoveryKey()
	if err != nil {
		crypto.Zeroize(tempKey)
		return Ticket{}, err
	}
	wrapped, err := crypto.Encrypt(placeholder, tempKey)
	crypto.Zeroize(tempKey)
	crypto.Zeroize(placeholder)
	if err != nil {
		return Ticket{}, err
	}

	minutes := int(SessionTTL / time.Minute)
	if err := m.dispatcher.Dispatch(channel, code, minutes); err != nil {
		return Ticket{}, err
	}

	sess := &session{
		id:        uuid.NewString(),
		channel:   kind,
		code:      code,
		salt:      salt,
		wrapped:   wrapped,
		createdAt: now,
	}
	m.sessions[sess.id] = sess

	m.record(audit.EventRecoveryRequested, map[string]string{"channel": string(kind), "session": sess.id})
	m.logger.Info("recovery initiated", "channel", kind, "session", sess.id)
	return Ticket{ID: sess.id, Channel: kind, ExpiresAt: now.Add(SessionTTL)}, nil
}

// VerifyAndDecrypt checks a code against its session and, on a match,
// unwraps and returns the key sealed at initiation. Codes are single-use
// secrets compared for exact equality; expiry is checked lazily here.
func (m *Manager) VerifyAndDecrypt(sessionID, code string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, err := m.verifyLocked(sessionID, code)
	if err != nil {
		return nil, err
	}

	tempKey, err := crypto.DeriveKey(code, sess.salt)
	if err != nil {
		return nil, err
	}
	key, err := crypto.Decrypt(sess.wrapped, tempKey)
	crypto.Zeroize(tempKey)
	if err != nil {
		return nil, err
	}

	sess.verified = true
	return key, nil
}

// Complete verifies the code once more and resets the vault password. The
// vault ends Locked; all outstanding recovery sessions are invalidated.
func (m *Manager) Complete(sessionID, code, newPassword string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.verifyLocked(sessionID, code); err != nil {
		return err
	}
	if err := m.store.ResetPassword(newPassword); err != nil {
		return err
	}

	m.sessions = make(map[string]*session)
	m.record(audit.EventRecoveryCompleted, map[string]string{"session": sessionID})
	m.logger.Info("recovery completed", "session", sessionID)
	return nil
}

// verifyLocked runs the shared checks: session existence, lazy expiry, the
// in-process throttle and exact code equality. Callers hold m.mu.
func (m *Manager) verifyLocked(sessionID, code string) (*session, error) {
	sess, ok := m.sessions[sessionID]
	if !ok {
		return nil, apperr.New(apperr.CodeNotFound, "unknown recovery session")
	}
	if m.now().Sub(sess.createdAt) > SessionTTL {
		delete(m.sessions, sessionID)
		return nil, apperr.New(apperr.CodeRecoveryExpired, "the verification code has expired")
	}
	if !m.verifyLimit.Allow() {
		return nil, apperr.New(apperr.CodeRateLimited, "too many verification attempts, slow down")
	}
	if code != sess.code {
		m.record(audit.EventRecoveryDenied, map[string]string{"reason": "invalid_code", "session": sessionID})
		return nil, apperr.New(apperr.CodeInvalidCode, "the verification code does not match")
	}
	return sess, nil
}

// sweepLocked drops expired sessions. Callers hold m.mu.
func (m *Manager) sweepLocked(now time.Time) {
	for id, sess := range m.sessions {
		if now.Sub(sess.createdAt) > SessionTTL {
			delete(m.sessions, id)
		}
	}
}

func (m *Manager) record(kind string, details map[string]string) {
	if err := m.audit.Record(audit.Event{Timestamp: m.now().UTC(), Kind: kind, Details: details}); err != nil {
		m.logger.Warn("audit record failed", "kind", kind, "err", err)
	}
}
