package store

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// LockFileName is the advisory lock file inside a vault directory.
const LockFileName = ".coffer.lock"

var (
	// ErrLockTimeout is returned when a lock cannot be acquired within the specified timeout
	ErrLockTimeout = errors.New("lock acquisition timeout")
	// ErrLockNotHeld is returned when attempting to release a lock that isn't held
	ErrLockNotHeld = errors.New("lock not held")
)

// DirLock is an advisory lock over a whole vault directory, keeping two
// processes from mutating one vault concurrently.
type DirLock struct {
	path     string
	lockFile *os.File
	locked   bool
}

// NewDirLock creates a lock for the given vault directory.
func NewDirLock(vaultDir string) *DirLock {
	return &DirLock{
		path: filepath.Join(vaultDir, LockFileName),
	}
}

// Lock acquires the lock, retrying until the timeout elapses.
func (dl *DirLock) Lock(timeout time.Duration) error {
	if dl.locked {
		return errors.New("lock already held")
	}

	if err := os.MkdirAll(filepath.Dir(dl.path), 0o700); err != nil {
		return err
	}

	start := time.Now()
	for {
		file, err := os.OpenFile(dl.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			dl.lockFile = file
			dl.locked = true

			if _, err := file.WriteString(strconv.Itoa(os.Getpid())); err != nil {
				dl.Unlock()
				return err
			}

			return platformLock(file)
		}

		if time.Since(start) > timeout {
			return ErrLockTimeout
		}

		if dl.isLockStale() {
			os.Remove(dl.path)
			continue
		}

		time.Sleep(100 * time.Millisecond)
	}
}

// Unlock releases the lock and removes the lock file.
func (dl *DirLock) Unlock() error {
	if !dl.locked {
		return ErrLockNotHeld
	}

	var err error
	if dl.lockFile != nil {
		if unlockErr := platformUnlock(dl.lockFile); unlockErr != nil {
			err = unlockErr
		}
		if closeErr := dl.lockFile.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
		dl.lockFile = nil
	}

	if removeErr := os.Remove(dl.path); removeErr != nil && err == nil {
		err = removeErr
	}

	dl.locked = false
	return err
}

// IsLocked reports whether this process holds the lock.
func (dl *DirLock) IsLocked() bool {
	return dl.locked
}

// isLockStale treats a lock file older than five minutes as left behind by a
// dead process.
func (dl *DirLock) isLockStale() bool {
	info, err := os.Stat(dl.path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) > 5*time.Minute
}
