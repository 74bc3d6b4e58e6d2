package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coffer-fs/coffer/internal/config"
	"github.com/coffer-fs/coffer/internal/vault"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new vault",
	Long: `Initialize a new vault with a master password.

The vault is created with strong cryptographic defaults:
- Argon2id key derivation
- AES-256-GCM authenticated encryption
- Secure file permissions (0600, directory 0700)

The new vault starts with an empty tree. Files created earlier in legacy
mode are left untouched on disk; encrypt them afterwards with
'coffer import-legacy'.

Example:
  coffer init
  coffer init --vault /path/to/vault`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit()
	},
}

// NewInitCommand creates a new init command for testing
func NewInitCommand(c *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize a new vault",
		RunE: func(cmd *cobra.Command, args []string) error {
			if c != nil && vaultDir == "" {
				vaultDir = c.VaultPath
			}
			return runInit()
		},
	}
}

func runInit() error {
	return withVault(func(v *vault.Vault) error {
		fmt.Println("Creating a new vault...")
		fmt.Println("Choose a strong master password. It protects everything in the vault.")

		password, err := readNewPassword("Enter master password: ")
		if err != nil {
			return err
		}

		if err := v.Initialize(password); err != nil {
			return err
		}

		sum := v.Summary()
		fmt.Printf("✓ Vault initialized at %s\n", v.Dir())
		fmt.Printf("  Format version: %s\n", sum.Version)
		fmt.Printf("  Encryption: %s\n", sum.Algorithm)

		if _, err := os.Stat(vault.LegacyPath(v.Dir())); err == nil {
			fmt.Println("\nLegacy unencrypted files detected. Run 'coffer import-legacy' to bring them into the vault.")
		}

		fmt.Println("\nThe vault locks when this command exits. File commands prompt for the password as needed.")
		return nil
	})
}
