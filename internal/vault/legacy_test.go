package vault

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/coffer-fs/coffer/internal/apperr"
	"github.com/coffer-fs/coffer/internal/domain"
	"github.com/coffer-fs/coffer/internal/store"
)

func blobDirContains(t *testing.T, dir string, needle []byte) bool {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(dir, store.BlobDirName))
	if os.IsNotExist(err) {
		return false
	}
	if err != nil {
		t.Fatalf("reading blob dir: %v", err)
	}
	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(dir, store.BlobDirName, entry.Name()))
		if err != nil {
			t.Fatalf("reading blob: %v", err)
		}
		if bytes.Contains(data, needle) {
			return true
		}
	}
	return false
}

func TestLegacyModePassesThroughUnencrypted(t *testing.T) {
	dir := t.TempDir()
	v := openTestVault(t, dir)

	if got := v.Status(); got != domain.StatusNotInitialized {
		t.Fatalf("status = %v, want %v", got, domain.StatusNotInitialized)
	}

	mustCreateFile(t, v, "/home", "diary.txt", "dear diary")
	if got := mustRead(t, v, "/home/diary.txt"); got != "dear diary" {
		t.Errorf("content = %q", got)
	}

	// The tree is persisted as readable JSON and the blob as raw bytes.
	raw, err := os.ReadFile(LegacyPath(dir))
	if err != nil {
		t.Fatalf("reading fs.json: %v", err)
	}
	if !bytes.Contains(raw, []byte("diary.txt")) {
		t.Error("fs.json does not mention the file name")
	}
	if !blobDirContains(t, dir, []byte("dear diary")) {
		t.Error("legacy blob is not stored as plaintext")
	}

	// A reopen adopts the legacy tree.
	reopened := openTestVault(t, dir)
	if got := mustRead(t, reopened, "/home/diary.txt"); got != "dear diary" {
		t.Errorf("content after reopen = %q", got)
	}
}

func TestImportLegacy(t *testing.T) {
	dir := t.TempDir()
	v := openTestVault(t, dir)

	mustCreateFile(t, v, "/home", "old1.txt", "plain one")
	mustCreateFolder(t, v, "/home", "sub")
	mustCreateFile(t, v, "/home/sub", "old2.txt", "plain two")

	if err := v.Initialize("pw1"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	// Initialize starts from the default empty tree; the legacy data is
	// only adopted by an explicit import.
	if _, err := v.Stat("/home/old1.txt"); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("legacy file visible before import: %v", err)
	}

	n, err := v.ImportLegacy()
	if err != nil {
		t.Fatalf("ImportLegacy: %v", err)
	}
	if n != 2 {
		t.Errorf("imported = %d files, want 2", n)
	}

	if got := mustRead(t, v, "/home/old1.txt"); got != "plain one" {
		t.Errorf("old1 content = %q", got)
	}
	if got := mustRead(t, v, "/home/sub/old2.txt"); got != "plain two" {
		t.Errorf("old2 content = %q", got)
	}

	// The plaintext blobs and the JSON tree are gone; what remains is
	// encrypted.
	if _, err := os.Stat(LegacyPath(dir)); !os.IsNotExist(err) {
		t.Error("fs.json still present after import")
	}
	if blobDirContains(t, dir, []byte("plain one")) {
		t.Error("plaintext blob survived the import")
	}
	if n := blobCount(t, dir); n != 2 {
		t.Errorf("blob count = %d, want 2", n)
	}

	// The imported tree survives a lock/unlock cycle.
	if err := v.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := v.Unlock("pw1"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if got := mustRead(t, v, "/home/sub/old2.txt"); got != "plain two" {
		t.Errorf("old2 after relock = %q", got)
	}
}

func TestImportLegacyMergesWithExistingTree(t *testing.T) {
	dir := t.TempDir()
	v := openTestVault(t, dir)
	mustCreateFile(t, v, "/home", "legacy.txt", "from before")

	if err := v.Initialize("pw1"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	mustCreateFile(t, v, "/home", "fresh.txt", "brand new")

	if _, err := v.ImportLegacy(); err != nil {
		t.Fatalf("ImportLegacy: %v", err)
	}
	if got := mustRead(t, v, "/home/legacy.txt"); got != "from before" {
		t.Errorf("legacy content = %q", got)
	}
	if got := mustRead(t, v, "/home/fresh.txt"); got != "brand new" {
		t.Errorf("fresh content = %q", got)
	}
}

func TestImportLegacyRequiresUnlocked(t *testing.T) {
	v, _ := initializedVault(t, "pw1")
	if err := v.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if _, err := v.ImportLegacy(); !apperr.IsCode(err, apperr.CodeLocked) {
		t.Errorf("expected locked, got %v", err)
	}
}

func TestImportLegacyWithoutLegacyState(t *testing.T) {
	v, _ := initializedVault(t, "pw1")
	if _, err := v.ImportLegacy(); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Errorf("expected not_found, got %v", err)
	}
}
