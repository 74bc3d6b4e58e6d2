package vault

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coffer-fs/coffer/internal/apperr"
	"github.com/coffer-fs/coffer/internal/store"
)

// openLockTimeout bounds how long Open waits for another process to release
// the vault directory.
const openLockTimeout = 5 * time.Second

// Registry hands out one shared Vault per logical vault directory. The
// first open of a directory acquires its on-disk lock; the last close
// releases it. Two handles to the same directory always see the same
// state machine.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	vault *Vault
	lock  *store.DirLock
	refs  int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registryEntry)}
}

// Handle is a reference-counted view onto a shared Vault.
type Handle struct {
	*Vault
	id   string
	reg  *Registry
	key  string
	once sync.Once
}

// ID identifies this handle in logs.
func (h *Handle) ID() string {
	return h.id
}

// Open returns a handle to the vault at dir, creating the shared instance
// and taking the directory lock on first use.
func (r *Registry) Open(dir string, opts *Options) (*Handle, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, apperr.Wrapf(apperr.CodeInvalidPath, err, "resolving vault directory %q", dir)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[abs]
	if !ok {
		lock := store.NewDirLock(abs)
		if err := lock.Lock(openLockTimeout); err != nil {
			return nil, apperr.Wrap(apperr.CodeIO, "acquiring vault directory lock", err)
		}
		v, err := Open(abs, opts)
		if err != nil {
			_ = lock.Unlock()
			return nil, err
		}
		entry = &registryEntry{vault: v, lock: lock}
		r.entries[abs] = entry
	}
	entry.refs++

	return &Handle{Vault: entry.vault, id: uuid.NewString(), reg: r, key: abs}, nil
}

// Close releases the handle. The last close of a directory locks the vault
// (persisting and zeroizing any live session) and drops the on-disk lock.
// Close is idempotent.
func (h *Handle) Close() error {
	var err error
	h.once.Do(func() {
		err = h.reg.release(h.key)
	})
	return err
}

func (r *Registry) release(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok {
		return nil
	}
	entry.refs--
	if entry.refs > 0 {
		return nil
	}
	delete(r.entries, key)

	lockErr := entry.vault.Lock()
	if uerr := entry.lock.Unlock(); uerr != nil && lockErr == nil {
		lockErr = apperr.Wrap(apperr.CodeIO, "releasing vault directory lock", uerr)
	}
	return lockErr
}
