package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coffer-fs/coffer/internal/vault"
)

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Confirm the vault is locked",
	Long: `Confirm the vault is at rest.

Every coffer process locks the vault before exiting, so a fresh invocation
always finds it locked. This command verifies that state and reports it.

Example:
  coffer lock`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLock()
	},
}

func runLock() error {
	return withVault(func(v *vault.Vault) error {
		if err := requireInitialized(v); err != nil {
			return err
		}

		// Opening never restores a session, so reaching this point means
		// the key is not in memory anywhere in this process.
		fmt.Printf("✓ Vault at %s is locked\n", v.Dir())
		return nil
	})
}
