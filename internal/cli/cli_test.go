package cli

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coffer-fs/coffer/internal/apperr"
	"github.com/coffer-fs/coffer/internal/config"
	"github.com/coffer-fs/coffer/internal/domain"
	"github.com/coffer-fs/coffer/internal/vault"
)

const testPassword = "correct horse battery"

// newCLITestEnv points the package at a throwaway vault directory and a
// non-interactive config: destructive prompts off, audit off, password
// supplied through the environment. Package state is restored on cleanup.
func newCLITestEnv(t *testing.T) string {
	t.Helper()

	origCfg, origDir, origVerbose := cfg, vaultDir, verbose
	t.Cleanup(func() {
		cfg, vaultDir, verbose = origCfg, origDir, origVerbose
	})

	dir := t.TempDir()
	c := config.DefaultConfig()
	c.VaultPath = dir
	c.ConfirmDestructive = false
	c.Audit.Enabled = false
	cfg = c
	vaultDir = dir
	verbose = false

	t.Setenv(PasswordEnv, testPassword)
	return dir
}

func executeCommand(cmd *cobra.Command, args ...string) error {
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestInitCommandCreatesVault(t *testing.T) {
	dir := newCLITestEnv(t)

	// The test constructor fills vaultDir from the config, the same way
	// PersistentPreRunE does for the real command.
	vaultDir = ""
	require.NoError(t, executeCommand(NewInitCommand(cfg)))
	assert.Equal(t, dir, vaultDir)

	_, err := os.Stat(vault.MetaPath(dir))
	require.NoError(t, err, "init must persist the vault header")

	err = executeCommand(NewInitCommand(cfg))
	assert.True(t, apperr.IsCode(err, apperr.CodeAlreadyExists), "second init: %v", err)
}

func TestStatusCommandRunsOnLockedVault(t *testing.T) {
	newCLITestEnv(t)

	require.NoError(t, runInit())
	assert.NoError(t, executeCommand(NewStatusCommand(cfg)))
}

// TestFileCommandCycle drives mkdir, touch and rm through the real command
// runners. Every runner unlocks with the environment password, edits the
// tree and locks again, so the final check reopens the vault cold.
func TestFileCommandCycle(t *testing.T) {
	dir := newCLITestEnv(t)

	require.NoError(t, runInit())
	require.NoError(t, runMkdir("/home/docs"))
	require.NoError(t, runTouch("/home/docs/todo.txt"))
	require.NoError(t, runRm([]string{"/home/docs/todo.txt"}))

	v, err := vault.Open(dir, nil)
	require.NoError(t, err)
	defer v.Close()
	require.NoError(t, v.Unlock(testPassword))

	info, err := v.Stat("/home/docs")
	require.NoError(t, err)
	assert.True(t, info.IsDir)

	_, err = v.Stat("/home/docs/todo.txt")
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound), "deleted file: %v", err)
}

func TestMkdirAllCreatesAncestors(t *testing.T) {
	v, err := vault.Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer v.Close()
	require.NoError(t, v.Initialize(testPassword))

	require.NoError(t, mkdirAll(v, "/home/a/b/c"))
	info, err := v.Stat("/home/a/b/c")
	require.NoError(t, err)
	assert.True(t, info.IsDir)

	// Existing directories are not an error.
	require.NoError(t, mkdirAll(v, "/home/a/b/c"))

	require.NoError(t, v.CreateFile("/home/a", "f.txt", []byte("x")))
	err = mkdirAll(v, "/home/a/f.txt")
	assert.True(t, apperr.IsCode(err, apperr.CodeAlreadyExists), "file in the way: %v", err)
}

func TestValidateNewPassword(t *testing.T) {
	assert.Error(t, validateNewPassword(""))
	assert.Error(t, validateNewPassword("short"))
	assert.NoError(t, validateNewPassword("long enough"))
}

func TestReadPasswordPrefersEnvironment(t *testing.T) {
	t.Setenv(PasswordEnv, "from-env")

	got, err := readPassword("never prompted: ")
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)

	got, err = readNewPassword("never prompted: ")
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)
}

func TestReadNewPasswordValidatesEnvironment(t *testing.T) {
	t.Setenv(PasswordEnv, "short")

	_, err := readNewPassword("never prompted: ")
	assert.Error(t, err)
}

func TestMaskAddress(t *testing.T) {
	cases := []struct {
		addr string
		want string
	}{
		{"alice@example.com", "a***@example.com"},
		{"+15551234567", "**********67"},
		{"@you", "**ou"},
		{"ab", "***"},
		{"", "***"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, maskAddress(tc.addr), "addr %q", tc.addr)
	}
}

func TestFormatDetails(t *testing.T) {
	assert.Equal(t, "", formatDetails(nil))
	assert.Equal(t, "path=/home/x result=ok", formatDetails(map[string]string{
		"result": "ok",
		"path":   "/home/x",
	}))
}

func TestJSONOutputHonorsConfig(t *testing.T) {
	orig := cfg
	t.Cleanup(func() { cfg = orig })

	cfg = config.DefaultConfig()
	assert.False(t, jsonOutput(false))
	assert.True(t, jsonOutput(true))

	cfg.OutputFormat = config.OutputJSON
	assert.True(t, jsonOutput(false))

	cfg = nil
	assert.False(t, jsonOutput(false))
}

func TestChannelsFromFlags(t *testing.T) {
	origEmail, origPush := recoveryEmail, recoveryPush
	origSMS, origTelegram := recoverySMS, recoveryTelegram
	t.Cleanup(func() {
		recoveryEmail, recoveryPush = origEmail, origPush
		recoverySMS, recoveryTelegram = origSMS, origTelegram
	})

	recoveryEmail, recoveryPush, recoverySMS, recoveryTelegram = "", "", "", ""
	assert.Empty(t, channelsFromFlags())

	recoveryEmail = "alice@example.com"
	recoverySMS = "+15551234567"
	channels := channelsFromFlags()
	require.Len(t, channels, 2)
	assert.Equal(t, domain.ChannelEmail, channels[0].Kind)
	assert.Equal(t, "alice@example.com", channels[0].Address)
	assert.False(t, channels[0].Verified, "flags never produce verified channels")
	assert.Equal(t, domain.ChannelSMS, channels[1].Kind)
}

func TestWriteRawLimitsSize(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeRaw(&buf, []byte("hello")))
	assert.Equal(t, "hello", buf.String())

	assert.Error(t, writeRaw(&buf, make([]byte, MaxOutputSize+1)))
}

func TestConfirmDestructiveSkipsPrompt(t *testing.T) {
	orig := cfg
	t.Cleanup(func() { cfg = orig })

	cfg = config.DefaultConfig()
	cfg.ConfirmDestructive = true
	ok, err := confirmDestructive("Delete everything?", true)
	require.NoError(t, err)
	assert.True(t, ok, "force flag bypasses the prompt")

	cfg.ConfirmDestructive = false
	ok, err = confirmDestructive("Delete everything?", false)
	require.NoError(t, err)
	assert.True(t, ok, "non-confirming config bypasses the prompt")
}
