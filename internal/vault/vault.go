// Package vault implements the encrypted filesystem core: the lock/unlock
// state machine, the persisted header and state files, and the tree
// operations that run against the in-memory directory tree.
//
// A vault directory holds vault.meta (plaintext TOML header), vault.bin
// (the directory tree, encrypted under the master key) and vault_data/
// (one encrypted blob per file). While the vault is locked the in-memory
// tree is the default placeholder, so neither file content nor structure
// is resident.
package vault

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/coffer-fs/coffer/internal/apperr"
	"github.com/coffer-fs/coffer/internal/audit"
	"github.com/coffer-fs/coffer/internal/crypto"
	"github.com/coffer-fs/coffer/internal/domain"
	"github.com/coffer-fs/coffer/internal/store"
)

// Options configures optional collaborators for a Vault.
type Options struct {
	// Audit receives lifecycle events. Nil means no auditing.
	Audit audit.Logger
	// Logger receives structured diagnostics. Nil means slog.Default.
	Logger *slog.Logger
	// Clock overrides time.Now for timestamps. Nil means time.Now.
	Clock func() time.Time
}

// Vault owns the state machine for one vault directory. All methods are
// safe for concurrent use. The master session key lives only inside the
// Vault and only while Unlocked.
type Vault struct {
	mu      sync.RWMutex
	dir     string
	blobs   store.BlobStore
	cfg     *domain.VaultConfig
	status  domain.VaultStatus
	state   *domain.VaultState
	session *crypto.Session
	audit   audit.Logger
	logger  *slog.Logger
	now     func() time.Time
}

// Open prepares a Vault for the given directory. The starting status is
// Locked when a vault header exists, NotInitialized otherwise. In
// NotInitialized mode an existing plaintext fs.json tree is adopted so
// pre-vault data stays reachable.
func Open(dir string, opts *Options) (*Vault, error) {
	if opts == nil {
		opts = &Options{}
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, apperr.Wrapf(apperr.CodeInvalidPath, err, "resolving vault directory %q", dir)
	}

	v := &Vault{
		dir:    abs,
		blobs:  store.NewFileStore(abs),
		audit:  opts.Audit,
		logger: opts.Logger,
		now:    opts.Clock,
	}
	if v.audit == nil {
		v.audit = audit.Nop{}
	}
	if v.logger == nil {
		v.logger = slog.Default()
	}
	if v.now == nil {
		v.now = time.Now
	}

	cfg, err := LoadVaultConfig(abs)
	switch {
	case err == nil:
		v.cfg = cfg
		v.status = domain.StatusLocked
	case apperr.IsCode(err, apperr.CodeNotInitialized):
		v.status = domain.StatusNotInitialized
		if state, lerr := loadLegacyState(abs); lerr == nil {
			v.state = state
		} else if !apperr.IsCode(lerr, apperr.CodeNotFound) {
			return nil, lerr
		}
	default:
		return nil, err
	}

	if v.state == nil {
		v.state = domain.DefaultVaultState(v.now())
	}

	v.logger.Debug("vault opened", "dir", abs, "status", v.status)
	return v, nil
}

// Dir returns the absolute vault directory.
func (v *Vault) Dir() string {
	return v.dir
}

// Status returns the current lifecycle state.
func (v *Vault) Status() domain.VaultStatus {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.status
}

// Summary is a read-only snapshot of the vault for display.
type Summary struct {
	Dir       string
	Status    domain.VaultStatus
	Version   string
	Algorithm string
	Channels  []domain.RecoveryChannel
}

// Summary reports the vault's public header fields. It never exposes key
// material.
func (v *Vault) Summary() Summary {
	v.mu.RLock()
	defer v.mu.RUnlock()

	s := Summary{Dir: v.dir, Status: v.status}
	if v.cfg != nil {
		s.Version = v.cfg.Version
		s.Algorithm = v.cfg.EncryptionAlgo
		if v.cfg.Recovery != nil {
			s.Channels = append([]domain.RecoveryChannel(nil), v.cfg.Recovery.Channels...)
		}
	}
	return s
}

// Initialize creates a new vault: fresh salt, master key derived from the
// password, header and empty encrypted tree persisted, status Unlocked.
// It fails if the vault already exists. A pre-existing fs.json is left in
// place for a later ImportLegacy.
func (v *Vault) Initialize(password string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.status != domain.StatusNotInitialized {
		return apperr.New(apperr.CodeAlreadyExists, "vault is already initialized")
	}
	if password == "" {
		return apperr.New(apperr.CodeInvalidPassword, "password cannot be empty")
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return err
	}
	key, err := crypto.DeriveKey(password, salt)
	if err != nil {
		return err
	}

	cfg := &domain.VaultConfig{
		Version:          FormatVersion,
		KDFSalt:          salt,
		VerificationHash: crypto.VerificationHash(key),
		EncryptionAlgo:   crypto.Algorithm,
	}
	session := crypto.NewSession(key)
	state := domain.DefaultVaultState(v.now())

	// The encrypted tree goes first; the header is the existence marker,
	// so a crash between the two writes leaves no half-created vault.
	if err := persistEncrypted(v.dir, state, session); err != nil {
		session.Destroy()
		return err
	}
	if err := SaveVaultConfig(v.dir, cfg); err != nil {
		session.Destroy()
		return err
	}

	v.cfg = cfg
	v.state = state
	v.session = session
	v.status = domain.StatusUnlocked

	v.record(audit.EventInitialized, nil)
	v.logger.Info("vault initialized", "dir", v.dir)
	return nil
}

// Unlock derives a candidate key from the password and the stored salt and
// verifies it against the stored hash. A mismatch fails with
// invalid_password and changes nothing. After verification the encrypted
// tree is read and decrypted; a failure there surfaces as
// decryption_failed, which signals on-disk corruption rather than a wrong
// password. Unlocking an already-unlocked vault is idempotent, but the
// password is still verified so a wrong one never reports success.
func (v *Vault) Unlock(password string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch v.status {
	case domain.StatusUnlocked:
		key, err := crypto.DeriveKey(password, v.cfg.KDFSalt)
		if err != nil {
			return err
		}
		ok := crypto.VerifyKey(key, v.cfg.VerificationHash)
		crypto.Zeroize(key)
		if !ok {
			v.record(audit.EventUnlockFailed, nil)
			return apperr.New(apperr.CodeInvalidPassword, "invalid password")
		}
		return nil
	case domain.StatusNotInitialized:
		return apperr.New(apperr.CodeNotInitialized, "vault is not initialized")
	}

	key, err := crypto.DeriveKey(password, v.cfg.KDFSalt)
	if err != nil {
		return err
	}
	if !crypto.VerifyKey(key, v.cfg.VerificationHash) {
		crypto.Zeroize(key)
		v.record(audit.EventUnlockFailed, nil)
		return apperr.New(apperr.CodeInvalidPassword, "invalid password")
	}

	sealed, err := os.ReadFile(BinPath(v.dir))
	if err != nil {
		crypto.Zeroize(key)
		return apperr.Wrap(apperr.CodeIO, "reading encrypted vault state", err)
	}
	plain, err := crypto.Decrypt(sealed, key)
	if err != nil {
		crypto.Zeroize(key)
		return err
	}
	state, err := DecodeVaultState(plain)
	crypto.Zeroize(plain)
	if err != nil {
		crypto.Zeroize(key)
		return err
	}

	v.session = crypto.NewSession(key)
	v.state = state
	v.status = domain.StatusUnlocked

	v.record(audit.EventUnlocked, nil)
	v.logger.Info("vault unlocked", "dir", v.dir)
	return nil
}

// Lock persists the current tree under the still-valid session key, then
// destroys the session and swaps the in-memory tree for the default
// placeholder. Persist happens before zeroization, always; if the persist
// fails the vault stays Unlocked so nothing is lost. Locking a vault that
// is not Unlocked is a no-op.
func (v *Vault) Lock() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.status != domain.StatusUnlocked {
		return nil
	}

	if err := persistEncrypted(v.dir, v.state, v.session); err != nil {
		return err
	}

	v.session.Destroy()
	v.session = nil
	v.state = domain.DefaultVaultState(v.now())
	v.status = domain.StatusLocked

	v.record(audit.EventLocked, nil)
	v.logger.Info("vault locked", "dir", v.dir)
	return nil
}

// Close locks the vault if it is unlocked. It is safe to call on any
// status.
func (v *Vault) Close() error {
	return v.Lock()
}

// Seal encrypts data under the master session key. Requires Unlocked.
func (v *Vault) Seal(plaintext []byte) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.status != domain.StatusUnlocked {
		return nil, apperr.New(apperr.CodeLocked, "vault is locked")
	}
	return crypto.Encrypt(plaintext, v.session.Key())
}

// Unseal decrypts data sealed under the master session key. Requires
// Unlocked.
func (v *Vault) Unseal(sealed []byte) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.status != domain.StatusUnlocked {
		return nil, apperr.New(apperr.CodeLocked, "vault is locked")
	}
	return crypto.Decrypt(sealed, v.session.Key())
}

// Recovery returns a copy of the stored recovery configuration, or nil if
// none has been set up.
func (v *Vault) Recovery() (*domain.RecoveryConfig, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.cfg == nil {
		return nil, apperr.New(apperr.CodeNotInitialized, "vault is not initialized")
	}
	return v.cfg.Recovery.Clone(), nil
}

// SaveRecovery replaces the stored recovery configuration and persists the
// header. It works in any initialized state; the recovery flow itself
// decides when Unlocked is required.
func (v *Vault) SaveRecovery(rc *domain.RecoveryConfig) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.cfg == nil {
		return apperr.New(apperr.CodeNotInitialized, "vault is not initialized")
	}

	prev := v.cfg.Recovery
	v.cfg.Recovery = rc.Clone()
	if err := SaveVaultConfig(v.dir, v.cfg); err != nil {
		v.cfg.Recovery = prev
		return err
	}
	return nil
}

// UpdateRecoveryCounters persists new rate-limit counters. The counters
// must survive restarts or the attempt cap could be bypassed by
// relaunching the process.
func (v *Vault) UpdateRecoveryCounters(lastAttempt time.Time, attempts int) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.cfg == nil {
		return apperr.New(apperr.CodeNotInitialized, "vault is not initialized")
	}
	if v.cfg.Recovery == nil {
		return apperr.New(apperr.CodeRecoveryNotConfigured, "recovery is not configured")
	}

	prevAttempt, prevCount := v.cfg.Recovery.LastAttempt, v.cfg.Recovery.AttemptCount
	v.cfg.Recovery.LastAttempt = lastAttempt
	v.cfg.Recovery.AttemptCount = attempts
	if err := SaveVaultConfig(v.dir, v.cfg); err != nil {
		v.cfg.Recovery.LastAttempt = prevAttempt
		v.cfg.Recovery.AttemptCount = prevCount
		return err
	}
	return nil
}

// ResetPassword rewrites the verification hash for a new password, keeping
// the existing salt and carrying the recovery configuration forward, then
// forces the vault to Locked. vault.bin is not re-encrypted: content
// written under the old master key stays undecryptable after a reset, and
// the next unlock with the new password reports decryption_failed. Callers
// must surface that to the user.
func (v *Vault) ResetPassword(newPassword string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.cfg == nil {
		return apperr.New(apperr.CodeNotInitialized, "vault is not initialized")
	}
	if newPassword == "" {
		return apperr.New(apperr.CodeInvalidPassword, "password cannot be empty")
	}

	// Persist-before-zero still applies if someone resets while unlocked.
	if v.status == domain.StatusUnlocked {
		if err := persistEncrypted(v.dir, v.state, v.session); err != nil {
			return err
		}
		v.session.Destroy()
		v.session = nil
		v.state = domain.DefaultVaultState(v.now())
		v.status = domain.StatusLocked
	}

	key, err := crypto.DeriveKey(newPassword, v.cfg.KDFSalt)
	if err != nil {
		return err
	}
	hash := crypto.VerificationHash(key)
	crypto.Zeroize(key)

	prev := v.cfg.VerificationHash
	v.cfg.VerificationHash = hash
	if err := SaveVaultConfig(v.dir, v.cfg); err != nil {
		v.cfg.VerificationHash = prev
		return err
	}

	v.record(audit.EventPasswordReset, nil)
	v.logger.Warn("password reset; data encrypted under the previous key is not re-encrypted", "dir", v.dir)
	return nil
}

// persistEncrypted encodes the tree, seals it under the session key and
// atomically replaces vault.bin.
func persistEncrypted(dir string, state *domain.VaultState, session *crypto.Session) error {
	if !session.Active() {
		return apperr.New(apperr.CodeLocked, "no active session")
	}
	plain, err := EncodeVaultState(state)
	if err != nil {
		return err
	}
	sealed, err := crypto.Encrypt(plain, session.Key())
	crypto.Zeroize(plain)
	if err != nil {
		return err
	}
	if err := store.AtomicWriteFile(BinPath(dir), sealed); err != nil {
		return apperr.Wrap(apperr.CodeIO, "writing encrypted vault state", err)
	}
	return nil
}

// persistLocked writes the current tree using whatever persistence the
// status calls for. Callers hold v.mu.
func (v *Vault) persistLocked() error {
	switch v.status {
	case domain.StatusUnlocked:
		return persistEncrypted(v.dir, v.state, v.session)
	case domain.StatusNotInitialized:
		return saveLegacyState(v.dir, v.state)
	default:
		return apperr.New(apperr.CodeLocked, "vault is locked")
	}
}

// mutableStateLocked returns the tree if the status permits mutation.
// Callers hold v.mu.
func (v *Vault) mutableStateLocked() (*domain.VaultState, error) {
	switch v.status {
	case domain.StatusUnlocked, domain.StatusNotInitialized:
		return v.state, nil
	default:
		return nil, apperr.New(apperr.CodeLocked, "vault is locked")
	}
}

// blobSessionLocked returns the session blobs should be sealed with: the
// master session while Unlocked, nil (plaintext) in legacy mode. Callers
// hold v.mu.
func (v *Vault) blobSessionLocked() *crypto.Session {
	if v.status == domain.StatusUnlocked {
		return v.session
	}
	return nil
}

// record emits an audit event; failures are logged, never propagated.
func (v *Vault) record(kind string, details map[string]string) {
	err := v.audit.Record(audit.Event{Timestamp: v.now().UTC(), Kind: kind, Details: details})
	if err != nil {
		v.logger.Warn("audit record failed", "kind", kind, "err", err)
	}
}
