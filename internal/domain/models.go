// Package domain defines the data model shared across the vault: the
// directory tree, the persisted vault header, recovery configuration, and
// the status enum for the lock state machine.
package domain

import (
	"time"
)

// VaultStatus identifies the state machine position of a vault.
type VaultStatus string

const (
	// StatusNotInitialized means no vault exists yet; operations pass
	// through unencrypted (legacy mode).
	StatusNotInitialized VaultStatus = "not_initialized"
	// StatusLocked means the vault exists on disk but no key is in memory.
	StatusLocked VaultStatus = "locked"
	// StatusUnlocked means the full tree and the session key are in memory.
	StatusUnlocked VaultStatus = "unlocked"
)

// NodeKind tags the two node variants.
type NodeKind uint8

const (
	KindFile NodeKind = iota + 1
	KindDirectory
)

// Node is one entry in the vault tree: either a file referencing a content
// blob by id, or a directory owning a name-keyed set of children. A node is
// owned by exactly one parent; names are unique within a directory.
type Node struct {
	Kind     NodeKind
	BlobID   string // file only
	Size     int64  // file only, plaintext length
	Children map[string]*Node // directory only
	Created  time.Time
	Modified time.Time
}

// NewFileNode creates a file node referencing an already-written blob.
func NewFileNode(blobID string, size int64, now time.Time) *Node {
	return &Node{
		Kind:     KindFile,
		BlobID:   blobID,
		Size:     size,
		Created:  now,
		Modified: now,
	}
}

// NewDirectoryNode creates an empty directory node.
func NewDirectoryNode(now time.Time) *Node {
	return &Node{
		Kind:     KindDirectory,
		Children: make(map[string]*Node),
		Created:  now,
		Modified: now,
	}
}

// IsDir reports whether the node is a directory.
func (n *Node) IsDir() bool {
	return n != nil && n.Kind == KindDirectory
}

// VaultState is the serialized unit: the root directory plus the logical
// home directory path. This is what gets packed, encrypted, and written to
// vault.bin.
type VaultState struct {
	Root    *Node
	HomeDir string
}

// DefaultHomeDir is the home path seeded into every fresh tree.
const DefaultHomeDir = "/home"

// DefaultVaultState builds the default tree: an empty root containing only
// the home directory. It doubles as the placeholder tree held while Locked,
// so a locked vault reveals neither content nor structure.
func DefaultVaultState(now time.Time) *VaultState {
	root := NewDirectoryNode(now)
	root.Children["home"] = NewDirectoryNode(now)
	return &VaultState{
		Root:    root,
		HomeDir: DefaultHomeDir,
	}
}

// NodeInfo is the read-only view of a node returned by stat and directory
// listings.
type NodeInfo struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	IsDir    bool      `json:"is_dir"`
	Size     int64     `json:"size"`
	BlobID   string    `json:"blob_id,omitempty"`
	Created  time.Time `json:"created"`
	Modified time.Time `json:"modified"`
}

// ChannelKind tags a notification channel implementation.
type ChannelKind string

const (
	ChannelEmail    ChannelKind = "email"
	ChannelPush     ChannelKind = "push"
	ChannelSMS      ChannelKind = "sms"
	ChannelTelegram ChannelKind = "telegram"
)

// Valid reports whether the kind names a known channel implementation.
func (k ChannelKind) Valid() bool {
	switch k {
	case ChannelEmail, ChannelPush, ChannelSMS, ChannelTelegram:
		return true
	}
	return false
}

// RecoveryChannel is one configured notification destination. An unverified
// channel must never be used to deliver a recovery code.
type RecoveryChannel struct {
	Kind     ChannelKind `json:"kind"`
	Address  string      `json:"address"`
	Verified bool        `json:"verified"`
}

// RecoveryConfig holds the recovery material embedded in the vault header:
// the recovery key encrypted under the master session, the configured
// channels, and the persisted rate-limit counters for reset initiation.
type RecoveryConfig struct {
	EncryptedRecoveryKey []byte
	Channels             []RecoveryChannel
	LastAttempt          time.Time
	AttemptCount         int
}

// Clone returns an independent copy of the recovery configuration.
func (rc *RecoveryConfig) Clone() *RecoveryConfig {
	if rc == nil {
		return nil
	}
	out := &RecoveryConfig{
		LastAttempt:  rc.LastAttempt,
		AttemptCount: rc.AttemptCount,
	}
	if rc.EncryptedRecoveryKey != nil {
		out.EncryptedRecoveryKey = append([]byte(nil), rc.EncryptedRecoveryKey...)
	}
	if rc.Channels != nil {
		out.Channels = append([]RecoveryChannel(nil), rc.Channels...)
	}
	return out
}

// FindChannel looks up a channel by kind.
func (rc *RecoveryConfig) FindChannel(kind ChannelKind) (RecoveryChannel, bool) {
	if rc == nil {
		return RecoveryChannel{}, false
	}
	for _, ch := range rc.Channels {
		if ch.Kind == kind {
			return ch, true
		}
	}
	return RecoveryChannel{}, false
}

// VaultConfig is the unencrypted vault header persisted as vault.meta. The
// verification hash proves a candidate key correct; it must never allow
// deriving the key.
type VaultConfig struct {
	Version          string
	KDFSalt          []byte
	VerificationHash []byte
	EncryptionAlgo   string
	Recovery         *RecoveryConfig
}
