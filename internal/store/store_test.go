package store

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coffer-fs/coffer/internal/apperr"
	"github.com/coffer-fs/coffer/internal/crypto"
)

func testSession(t *testing.T) *crypto.Session {
	t.Helper()
	key := make([]byte, crypto.KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}
	return crypto.NewSession(key)
}

func TestFileStore_PlaintextRoundTrip(t *testing.T) {
	fs := NewFileStore(t.TempDir())

	id, err := fs.Write([]byte("legacy payload"), nil, "")
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if id == "" {
		t.Fatal("Write() should allocate an id")
	}

	data, err := fs.Read(id, nil)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(data) != "legacy payload" {
		t.Errorf("Read() = %q, want %q", data, "legacy payload")
	}

	// Plaintext mode stores the raw bytes.
	raw, err := os.ReadFile(filepath.Join(fs.Dir(), id))
	if err != nil {
		t.Fatalf("Failed to read blob file: %v", err)
	}
	if !bytes.Equal(raw, []byte("legacy payload")) {
		t.Error("Plaintext blob should be stored verbatim")
	}
}

func TestFileStore_EncryptedRoundTrip(t *testing.T) {
	fs := NewFileStore(t.TempDir())
	sess := testSession(t)
	defer sess.Destroy()

	id, err := fs.Write([]byte("Top Secret"), sess, "")
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	data, err := fs.Read(id, sess)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(data) != "Top Secret" {
		t.Errorf("Read() = %q, want %q", data, "Top Secret")
	}

	// On-disk bytes must not contain the plaintext.
	raw, err := os.ReadFile(filepath.Join(fs.Dir(), id))
	if err != nil {
		t.Fatalf("Failed to read blob file: %v", err)
	}
	if bytes.Contains(raw, []byte("Top Secret")) {
		t.Error("Encrypted blob leaked plaintext")
	}
	if len(raw) != crypto.NonceSize+len("Top Secret")+crypto.TagSize {
		t.Errorf("Sealed blob length = %d", len(raw))
	}
}

func TestFileStore_WrongSession(t *testing.T) {
	fs := NewFileStore(t.TempDir())
	sess := testSession(t)
	defer sess.Destroy()

	id, err := fs.Write([]byte("confidential"), sess, "")
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	other := testSession(t)
	defer other.Destroy()

	_, err = fs.Read(id, other)
	if !apperr.IsCode(err, apperr.CodeDecryptionFailed) {
		t.Errorf("Expected decryption_failed, got %v", err)
	}
}

func TestFileStore_NotFound(t *testing.T) {
	fs := NewFileStore(t.TempDir())

	_, err := fs.Read("9f4f255d-83b5-4723-9d1c-000000000000", nil)
	if !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Errorf("Expected not_found, got %v", err)
	}
}

func TestFileStore_DeleteIdempotent(t *testing.T) {
	fs := NewFileStore(t.TempDir())

	id, err := fs.Write([]byte("gone soon"), nil, "")
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if err := fs.Delete(id); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := fs.Delete(id); err != nil {
		t.Errorf("Second Delete() should be a no-op, got %v", err)
	}

	if _, err := fs.Read(id, nil); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Errorf("Expected not_found after delete, got %v", err)
	}
}

func TestFileStore_ReuseID(t *testing.T) {
	fs := NewFileStore(t.TempDir())
	sess := testSession(t)
	defer sess.Destroy()

	id, err := fs.Write([]byte("version one"), sess, "")
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	id2, err := fs.Write([]byte("version two"), sess, id)
	if err != nil {
		t.Fatalf("Write() with existing id error = %v", err)
	}
	if id2 != id {
		t.Errorf("Reused id changed: %s -> %s", id, id2)
	}

	data, err := fs.Read(id, sess)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if string(data) != "version two" {
		t.Errorf("Read() = %q, want %q", data, "version two")
	}

	ids, err := fs.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(ids) != 1 {
		t.Errorf("Expected a single blob, got %d", len(ids))
	}
}

func TestFileStore_InvalidID(t *testing.T) {
	fs := NewFileStore(t.TempDir())

	for _, id := range []string{"", "../escape", "a/b", `a\b`} {
		if _, err := fs.Read(id, nil); !apperr.IsCode(err, apperr.CodeInvalidData) {
			t.Errorf("Id %q should be rejected, got %v", id, err)
		}
	}
}

func TestFileStore_ListEmpty(t *testing.T) {
	fs := NewFileStore(t.TempDir())

	ids, err := fs.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("Expected no blobs before first write, got %d", len(ids))
	}
}

func TestAtomicWriter_Commit(t *testing.T) {
	targetPath := filepath.Join(t.TempDir(), "test.txt")

	writer, err := NewAtomicWriter(targetPath)
	if err != nil {
		t.Fatalf("NewAtomicWriter() error = %v", err)
	}

	if _, err := writer.Write([]byte("Hello, World!")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := writer.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	data, err := os.ReadFile(targetPath)
	if err != nil {
		t.Fatalf("Failed to read target file: %v", err)
	}
	if string(data) != "Hello, World!" {
		t.Errorf("File content = %q", data)
	}
}

func TestAtomicWriter_CrashLeavesOriginal(t *testing.T) {
	dir := t.TempDir()
	targetPath := filepath.Join(dir, "vault.meta")

	original := []byte("version = \"1\"\n")
	if err := os.WriteFile(targetPath, original, 0o600); err != nil {
		t.Fatalf("Failed to seed target: %v", err)
	}

	// Simulate a crash before rename: the writer fills the temp file but
	// never commits.
	writer, err := NewAtomicWriter(targetPath)
	if err != nil {
		t.Fatalf("NewAtomicWriter() error = %v", err)
	}
	if _, err := writer.Write([]byte("half-written replacement")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	data, err := os.ReadFile(targetPath)
	if err != nil {
		t.Fatalf("Failed to read target: %v", err)
	}
	if !bytes.Equal(data, original) {
		t.Error("Target must stay byte-for-byte unchanged until Commit")
	}

	if err := writer.Abort(); err != nil {
		t.Fatalf("Abort() error = %v", err)
	}

	data, err = os.ReadFile(targetPath)
	if err != nil {
		t.Fatalf("Failed to read target after abort: %v", err)
	}
	if !bytes.Equal(data, original) {
		t.Error("Target must stay unchanged after Abort")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to list dir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("Aborted temp file left behind: %d entries", len(entries))
	}
}

func TestAtomicWriteFile(t *testing.T) {
	targetPath := filepath.Join(t.TempDir(), "out.bin")

	if err := AtomicWriteFile(targetPath, []byte{1, 2, 3}); err != nil {
		t.Fatalf("AtomicWriteFile() error = %v", err)
	}

	info, err := os.Stat(targetPath)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("Permissions = %o, want 0600", info.Mode().Perm())
	}

	// Overwrite keeps working.
	if err := AtomicWriteFile(targetPath, []byte{4, 5}); err != nil {
		t.Fatalf("AtomicWriteFile() overwrite error = %v", err)
	}
	data, _ := os.ReadFile(targetPath)
	if !bytes.Equal(data, []byte{4, 5}) {
		t.Errorf("Overwrite content = %v", data)
	}
}

func TestDirLock(t *testing.T) {
	dir := t.TempDir()

	lock1 := NewDirLock(dir)
	if err := lock1.Lock(1 * time.Second); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if !lock1.IsLocked() {
		t.Error("Lock should be held")
	}

	lock2 := NewDirLock(dir)
	if err := lock2.Lock(100 * time.Millisecond); err != ErrLockTimeout {
		t.Errorf("Expected timeout error, got %v", err)
	}

	if err := lock1.Unlock(); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}
	if lock1.IsLocked() {
		t.Error("Lock should be released")
	}

	if err := lock2.Lock(1 * time.Second); err != nil {
		t.Fatalf("Lock() after release error = %v", err)
	}
	lock2.Unlock()
}
