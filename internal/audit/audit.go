// Package audit records security-relevant vault events. Events never carry
// secrets: no passwords, keys, codes, or file contents, only event kinds and
// non-sensitive detail fields.
package audit

import (
	"time"
)

// Event kinds.
const (
	EventInitialized       = "vault_initialized"
	EventUnlocked          = "vault_unlocked"
	EventUnlockFailed      = "unlock_failed"
	EventLocked            = "vault_locked"
	EventPasswordReset     = "password_reset"
	EventRecoverySetup     = "recovery_setup"
	EventRecoveryRequested = "recovery_requested"
	EventRecoveryDenied    = "recovery_denied"
	EventRecoveryCompleted = "recovery_completed"
	EventLegacyImport      = "legacy_import"
)

// Event is one recorded occurrence.
type Event struct {
	Timestamp time.Time         `json:"timestamp"`
	Kind      string            `json:"kind"`
	Details   map[string]string `json:"details,omitempty"`
}

// Logger appends and lists events. Implementations must be safe for
// concurrent use.
type Logger interface {
	Record(event Event) error
	List(since time.Time, limit int) ([]Event, error)
	Close() error
}

// Nop is the logger used when auditing is disabled.
type Nop struct{}

func (Nop) Record(Event) error { return nil }

func (Nop) List(time.Time, int) ([]Event, error) { return nil, nil }

func (Nop) Close() error { return nil }
