// Package cli implements the coffer command line interface. Commands are
// thin wrappers over the vault core: they load configuration, open the
// vault directory through a shared registry, prompt for secrets and render
// results.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/coffer-fs/coffer/internal/apperr"
	"github.com/coffer-fs/coffer/internal/audit"
	"github.com/coffer-fs/coffer/internal/config"
	"github.com/coffer-fs/coffer/internal/domain"
	"github.com/coffer-fs/coffer/internal/vault"
)

// PasswordEnv lets scripts supply the master password without a terminal.
// Interactive use should rely on the prompt instead.
const PasswordEnv = "COFFER_PASSWORD"

var (
	cfgFile  string
	vaultDir string
	verbose  bool
	cfg      *config.Config

	registry = vault.NewRegistry()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "coffer",
	Short: "An encrypted virtual filesystem for sensitive files",
	Long: `Coffer keeps a small virtual filesystem inside an encrypted vault
directory. File names, the directory tree and every file body are sealed
with AES-256-GCM under a key derived from your master password with
Argon2id. A locked vault reveals nothing, not even the shape of the tree.

The vault never stays unlocked between invocations: commands that need the
tree prompt for the master password, do their work in-process and lock
again on exit. Recovery codes can be delivered over email, SMS, push or
Telegram gateways configured in the config file.`,
	Version: "1.0.0",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if vaultDir == "" {
			vaultDir = cfg.VaultPath
		}

		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/coffer/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&vaultDir, "vault", "", "vault directory (overrides the configured path)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add all subcommands
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(statCmd)
	rootCmd.AddCommand(catCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(mkdirCmd)
	rootCmd.AddCommand(touchCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(renameCmd)
	rootCmd.AddCommand(cpCmd)
	rootCmd.AddCommand(mvCmd)
	rootCmd.AddCommand(importLegacyCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(recoveryCmd)
}

func buildLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openAudit opens the configured audit log. A broken audit store degrades
// to the no-op logger rather than blocking vault access.
func openAudit(logger *slog.Logger) (audit.Logger, func()) {
	if cfg == nil || !cfg.Audit.Enabled {
		return audit.Nop{}, func() {}
	}

	log, err := audit.OpenBoltLog(cfg.Audit.ResolvePath(vaultDir))
	if err != nil {
		logger.Warn("audit log unavailable", "error", err)
		return audit.Nop{}, func() {}
	}

	return log, func() {
		if err := log.Close(); err != nil {
			logger.Warn("closing audit log", "error", err)
		}
	}
}

// openVault opens the configured vault directory through the registry. The
// audit logger is shared with callers that record their own events; the
// returned cleanup locks the vault, releases the directory lock and closes
// the audit store.
func openVault() (*vault.Handle, audit.Logger, func(), error) {
	if vaultDir == "" {
		return nil, nil, nil, fmt.Errorf("vault directory not configured")
	}
	if err := os.MkdirAll(vaultDir, 0o700); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create vault directory: %w", err)
	}

	logger := buildLogger()
	auditLog, closeAudit := openAudit(logger)

	handle, err := registry.Open(vaultDir, &vault.Options{Audit: auditLog, Logger: logger})
	if err != nil {
		closeAudit()
		return nil, nil, nil, err
	}

	cleanup := func() {
		if err := handle.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close vault: %v\n", err)
		}
		closeAudit()
	}

	return handle, auditLog, cleanup, nil
}

// withVault runs fn against the opened vault and closes it afterwards.
func withVault(fn func(*vault.Vault) error) error {
	handle, _, cleanup, err := openVault()
	if err != nil {
		return err
	}
	defer cleanup()

	return fn(handle.Vault)
}

// withUnlockedVault prompts for the master password, unlocks for the
// duration of fn and locks again when the command exits. A NotInitialized
// vault skips the prompt: legacy mode operates without a key.
func withUnlockedVault(fn func(*vault.Vault) error) error {
	return withVault(func(v *vault.Vault) error {
		if v.Status() == domain.StatusNotInitialized {
			return fn(v)
		}

		password, err := readPassword("Master password: ")
		if err != nil {
			return err
		}
		if err := v.Unlock(password); err != nil {
			return err
		}

		return fn(v)
	})
}

// requireInitialized rejects commands that need an existing vault.
func requireInitialized(v *vault.Vault) error {
	if v.Status() == domain.StatusNotInitialized {
		return apperr.New(apperr.CodeNotInitialized, "vault is not initialized, run 'coffer init' first")
	}
	return nil
}
