// Package store provides blob persistence for vault file contents and the
// atomic-write primitive that backs every durable file in the vault
// directory.
package store

import (
	"github.com/coffer-fs/coffer/internal/crypto"
)

// BlobStore maps opaque ids to byte payloads on disk. Payloads are encrypted
// under the supplied session when one is present, and written raw otherwise
// (legacy mode). The store keeps no index and no reference counts: the vault
// tree is the sole source of truth for which blobs are live, and orphans
// from aborted operations are an accepted leak.
type BlobStore interface {
	// Write stores data and returns its id. A nil session writes plaintext.
	// When existingID is non-empty the blob is overwritten in place so the
	// owning file node keeps a stable reference; otherwise a fresh random
	// id is allocated.
	Write(data []byte, sess *crypto.Session, existingID string) (string, error)

	// Read loads a blob. It fails with a not_found error when the id has no
	// backing file, and with a decryption_failed error when the payload does
	// not authenticate under the session key.
	Read(id string, sess *crypto.Session) ([]byte, error)

	// Delete removes a blob. Missing blobs are not an error.
	Delete(id string) error

	// List returns the ids of every blob currently on disk.
	List() ([]string, error)
}
