//go:build unix

package store

import (
	"os"
	"syscall"
)

// platformLock takes an exclusive flock on the lock file. Non-blocking: the
// retry loop in DirLock.Lock owns the waiting.
func platformLock(file *os.File) error {
	return syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
}

func platformUnlock(file *os.File) error {
	return syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
}
