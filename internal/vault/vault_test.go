package vault

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/coffer-fs/coffer/internal/apperr"
	"github.com/coffer-fs/coffer/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestVault(t *testing.T, dir string) *Vault {
	t.Helper()
	v, err := Open(dir, &Options{Logger: discardLogger()})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return v
}

func initializedVault(t *testing.T, password string) (*Vault, string) {
	t.Helper()
	dir := t.TempDir()
	v := openTestVault(t, dir)
	if err := v.Initialize(password); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return v, dir
}

func TestOpenFreshDirectory(t *testing.T) {
	v := openTestVault(t, t.TempDir())

	if got := v.Status(); got != domain.StatusNotInitialized {
		t.Fatalf("status = %v, want %v", got, domain.StatusNotInitialized)
	}

	infos, err := v.ReadDir("/")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(infos) != 1 || infos[0].Name != "home" || !infos[0].IsDir {
		t.Errorf("fresh root = %+v, want a single home directory", infos)
	}
}

func TestInitialize(t *testing.T) {
	v, dir := initializedVault(t, "pw1")

	if got := v.Status(); got != domain.StatusUnlocked {
		t.Fatalf("status after initialize = %v, want %v", got, domain.StatusUnlocked)
	}
	for _, name := range []string{MetaFileName, BinFileName} {
		if _, err := os.Stat(dir + "/" + name); err != nil {
			t.Errorf("%s missing after initialize: %v", name, err)
		}
	}

	if err := v.Initialize("pw2"); !apperr.IsCode(err, apperr.CodeAlreadyExists) {
		t.Errorf("second initialize: expected already_exists, got %v", err)
	}
}

func TestInitializeRejectsEmptyPassword(t *testing.T) {
	v := openTestVault(t, t.TempDir())
	if err := v.Initialize(""); !apperr.IsCode(err, apperr.CodeInvalidPassword) {
		t.Errorf("expected invalid_password, got %v", err)
	}
	if got := v.Status(); got != domain.StatusNotInitialized {
		t.Errorf("status = %v, want %v", got, domain.StatusNotInitialized)
	}
}

func TestUnlockNotInitialized(t *testing.T) {
	v := openTestVault(t, t.TempDir())
	if err := v.Unlock("whatever"); !apperr.IsCode(err, apperr.CodeNotInitialized) {
		t.Errorf("expected not_initialized, got %v", err)
	}
}

// The canonical walkthrough: initialize, store a secret, lock, observe the
// secret is invisible, unlock, read it back, and confirm a wrong password
// is rejected without a state change.
func TestLockUnlockWalkthrough(t *testing.T) {
	v, _ := initializedVault(t, "pw1")

	if err := v.CreateFile("/home", "secret.txt", []byte("Top Secret")); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if err := v.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	if _, err := v.Stat("/home/secret.txt"); !apperr.IsCode(err, apperr.CodeNotFound) {
		t.Fatalf("stat while locked: expected not_found, got %v", err)
	}

	if err := v.Unlock("pw1"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	content, err := v.ReadFile("/home/secret.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(content, []byte("Top Secret")) {
		t.Errorf("ReadFile = %q, want %q", content, "Top Secret")
	}

	if err := v.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := v.Unlock("wrong"); !apperr.IsCode(err, apperr.CodeInvalidPassword) {
		t.Fatalf("expected invalid_password, got %v", err)
	}
	if got := v.Status(); got != domain.StatusLocked {
		t.Errorf("status after failed unlock = %v, want %v", got, domain.StatusLocked)
	}
}

func TestLockedHidesStructureAndContent(t *testing.T) {
	v, _ := initializedVault(t, "pw1")

	if err := v.CreateFolder("/home", "projects"); err != nil {
		t.Fatalf("CreateFolder: %v", err)
	}
	if err := v.CreateFile("/home/projects", "plan.txt", []byte("invade monday")); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if err := v.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	// The placeholder tree exposes only the default structure.
	infos, err := v.ReadDir("/")
	if err != nil {
		t.Fatalf("ReadDir /: %v", err)
	}
	if len(infos) != 1 || infos[0].Name != "home" {
		t.Errorf("locked root listing = %+v, want only home", infos)
	}
	home, err := v.ReadDir("/home")
	if err != nil {
		t.Fatalf("ReadDir /home: %v", err)
	}
	if len(home) != 0 {
		t.Errorf("locked home listing = %+v, want empty", home)
	}

	// Mutations are rejected outright.
	if err := v.CreateFile("/home", "x", nil); !apperr.IsCode(err, apperr.CodeLocked) {
		t.Errorf("create while locked: expected locked, got %v", err)
	}
	if err := v.Delete("/home"); !apperr.IsCode(err, apperr.CodeLocked) {
		t.Errorf("delete while locked: expected locked, got %v", err)
	}
}

func TestLockIsNoOpUnlessUnlocked(t *testing.T) {
	fresh := openTestVault(t, t.TempDir())
	if err := fresh.Lock(); err != nil {
		t.Errorf("lock while not initialized: %v", err)
	}
	if got := fresh.Status(); got != domain.StatusNotInitialized {
		t.Errorf("status = %v, want %v", got, domain.StatusNotInitialized)
	}

	v, _ := initializedVault(t, "pw1")
	if err := v.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := v.Lock(); err != nil {
		t.Errorf("second lock: %v", err)
	}
	if got := v.Status(); got != domain.StatusLocked {
		t.Errorf("status = %v, want %v", got, domain.StatusLocked)
	}
}

func TestUnlockWhileUnlockedStillVerifiesPassword(t *testing.T) {
	v, _ := initializedVault(t, "pw1")
	mustCreateFile(t, v, "/home", "f.txt", "data")

	if err := v.Unlock("pw1"); err != nil {
		t.Errorf("unlock while unlocked with the right password: %v", err)
	}
	if err := v.Unlock("wrong"); !apperr.IsCode(err, apperr.CodeInvalidPassword) {
		t.Errorf("unlock while unlocked with a wrong password: expected invalid_password, got %v", err)
	}

	if got := v.Status(); got != domain.StatusUnlocked {
		t.Errorf("status after failed re-unlock = %v, want %v", got, domain.StatusUnlocked)
	}
	if got := mustRead(t, v, "/home/f.txt"); got != "data" {
		t.Errorf("state disturbed by re-unlock: ReadFile = %q", got)
	}
}

func TestCorruptStateSignalsDecryptionFailed(t *testing.T) {
	v, dir := initializedVault(t, "pw1")
	if err := v.CreateFile("/home", "a.txt", []byte("data")); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if err := v.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	raw, err := os.ReadFile(BinPath(dir))
	if err != nil {
		t.Fatalf("reading vault.bin: %v", err)
	}
	raw[len(raw)/2] ^= 0x01
	if err := os.WriteFile(BinPath(dir), raw, 0o600); err != nil {
		t.Fatalf("writing vault.bin: %v", err)
	}

	err = v.Unlock("pw1")
	if !apperr.IsCode(err, apperr.CodeDecryptionFailed) {
		t.Fatalf("expected decryption_failed, got %v", err)
	}
	if apperr.IsCode(err, apperr.CodeInvalidPassword) {
		t.Error("corruption must not be reported as a wrong password")
	}
	if got := v.Status(); got != domain.StatusLocked {
		t.Errorf("status = %v, want %v", got, domain.StatusLocked)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	v, dir := initializedVault(t, "pw1")
	if err := v.CreateFile("/home", "keep.txt", []byte("still here")); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if err := v.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	reopened := openTestVault(t, dir)
	if got := reopened.Status(); got != domain.StatusLocked {
		t.Fatalf("status after reopen = %v, want %v", got, domain.StatusLocked)
	}
	if err := reopened.Unlock("pw1"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	content, err := reopened.ReadFile("/home/keep.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(content) != "still here" {
		t.Errorf("content = %q, want %q", content, "still here")
	}
}

// A password reset rewrites the verification hash only. The encrypted tree
// stays sealed under the previous key, so the new password passes
// verification but cannot decrypt: that must surface as decryption_failed,
// never as invalid_password.
func TestResetPasswordDoesNotReencryptState(t *testing.T) {
	v, _ := initializedVault(t, "old password")
	if err := v.CreateFile("/home", "doc.txt", []byte("sealed under old key")); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if err := v.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	if err := v.ResetPassword("new password"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if got := v.Status(); got != domain.StatusLocked {
		t.Fatalf("status after reset = %v, want %v", got, domain.StatusLocked)
	}

	if err := v.Unlock("old password"); !apperr.IsCode(err, apperr.CodeInvalidPassword) {
		t.Errorf("old password: expected invalid_password, got %v", err)
	}
	if err := v.Unlock("new password"); !apperr.IsCode(err, apperr.CodeDecryptionFailed) {
		t.Errorf("new password: expected decryption_failed, got %v", err)
	}
	if got := v.Status(); got != domain.StatusLocked {
		t.Errorf("status = %v, want %v", got, domain.StatusLocked)
	}
}

func TestSealUnseal(t *testing.T) {
	v, _ := initializedVault(t, "pw1")

	sealed, err := v.Seal([]byte("wrapped material"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	plain, err := v.Unseal(sealed)
	if err != nil {
		t.Fatalf("Unseal: %v", err)
	}
	if string(plain) != "wrapped material" {
		t.Errorf("Unseal = %q, want %q", plain, "wrapped material")
	}

	if err := v.Lock(); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if _, err := v.Seal([]byte("x")); !apperr.IsCode(err, apperr.CodeLocked) {
		t.Errorf("seal while locked: expected locked, got %v", err)
	}
	if _, err := v.Unseal(sealed); !apperr.IsCode(err, apperr.CodeLocked) {
		t.Errorf("unseal while locked: expected locked, got %v", err)
	}
}

func TestRecoveryConfigPersistence(t *testing.T) {
	v, dir := initializedVault(t, "pw1")

	rc := &domain.RecoveryConfig{
		EncryptedRecoveryKey: bytes.Repeat([]byte{0x11}, 60),
		Channels: []domain.RecoveryChannel{
			{Kind: domain.ChannelEmail, Address: "me@example.com", Verified: true},
		},
	}
	if err := v.SaveRecovery(rc); err != nil {
		t.Fatalf("SaveRecovery: %v", err)
	}

	attempt := time.Now().UTC().Truncate(time.Second)
	if err := v.UpdateRecoveryCounters(attempt, 2); err != nil {
		t.Fatalf("UpdateRecoveryCounters: %v", err)
	}

	reopened := openTestVault(t, dir)
	got, err := reopened.Recovery()
	if err != nil {
		t.Fatalf("Recovery: %v", err)
	}
	if got == nil {
		t.Fatal("recovery config missing after reopen")
	}
	if !bytes.Equal(got.EncryptedRecoveryKey, rc.EncryptedRecoveryKey) {
		t.Error("encrypted recovery key did not persist")
	}
	if len(got.Channels) != 1 || got.Channels[0].Address != "me@example.com" {
		t.Errorf("channels = %+v", got.Channels)
	}
	if !got.LastAttempt.Equal(attempt) || got.AttemptCount != 2 {
		t.Errorf("counters = (%v, %d), want (%v, 2)", got.LastAttempt, got.AttemptCount, attempt)
	}

	summary := reopened.Summary()
	if summary.Status != domain.StatusLocked || len(summary.Channels) != 1 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestRecoveryCountersRequireSetup(t *testing.T) {
	v, _ := initializedVault(t, "pw1")
	err := v.UpdateRecoveryCounters(time.Now(), 1)
	if !apperr.IsCode(err, apperr.CodeRecoveryNotConfigured) {
		t.Errorf("expected recovery_not_configured, got %v", err)
	}
}
