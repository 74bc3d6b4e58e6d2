package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coffer-fs/coffer/internal/vault"
)

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Verify the master password",
	Long: `Verify the master password against the vault.

The vault key is never persisted, so there is no durable unlocked state
between invocations: commands that read or change the tree unlock
in-process and lock again on exit. This command confirms the password is
correct and that the encrypted tree decrypts cleanly.

Example:
  coffer unlock`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runUnlock()
	},
}

func runUnlock() error {
	return withVault(func(v *vault.Vault) error {
		if err := requireInitialized(v); err != nil {
			return err
		}

		password, err := readPassword("Master password: ")
		if err != nil {
			return err
		}
		if err := v.Unlock(password); err != nil {
			return err
		}

		fmt.Println("✓ Master password verified")
		fmt.Println("The vault stays encrypted at rest; each command unlocks in-process.")
		return nil
	})
}
