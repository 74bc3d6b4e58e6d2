package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coffer-fs/coffer/internal/vault"
)

var importLegacyYes bool

var importLegacyCmd = &cobra.Command{
	Use:   "import-legacy",
	Short: "Encrypt files created before the vault was initialized",
	Long: `Adopt the plaintext legacy tree (fs.json) into the encrypted vault.

Before 'coffer init' runs, files are stored unencrypted. This command
re-encrypts every legacy file under the master key, merges the legacy
tree into the vault (directories merge, same-name files are replaced by
the legacy version), and removes the plaintext originals.

Example:
  coffer import-legacy`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImportLegacy()
	},
}

func init() {
	importLegacyCmd.Flags().BoolVar(&importLegacyYes, "yes", false, "Skip confirmation prompt")
}

func runImportLegacy() error {
	return withUnlockedVault(func(v *vault.Vault) error {
		if err := requireInitialized(v); err != nil {
			return err
		}

		if _, err := os.Stat(vault.LegacyPath(v.Dir())); os.IsNotExist(err) {
			fmt.Println("No legacy files found; nothing to import.")
			return nil
		}

		confirmed, err := confirmDestructive("Encrypt all legacy files and remove the plaintext originals?", importLegacyYes)
		if err != nil {
			return fmt.Errorf("failed to get confirmation: %w", err)
		}
		if !confirmed {
			fmt.Println("Import cancelled")
			return nil
		}

		count, err := v.ImportLegacy()
		if err != nil {
			return err
		}

		fmt.Printf("✓ Imported %d file(s) into the vault\n", count)
		fmt.Println("The plaintext originals have been removed.")
		return nil
	})
}
