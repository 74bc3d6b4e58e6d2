package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coffer-fs/coffer/internal/vault"
)

var rmYes bool

var rmCmd = &cobra.Command{
	Use:   "rm <path>...",
	Short: "Delete files or directories from the vault",
	Long: `Delete one or more vault paths permanently.

Directories are removed recursively. This action cannot be undone; you
will be prompted for confirmation unless you use the --yes flag.

Example:
  coffer rm /home/old-notes.txt
  coffer rm /home/drafts /home/tmp --yes`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRm(args)
	},
}

func init() {
	rmCmd.Flags().BoolVar(&rmYes, "yes", false, "Skip confirmation prompt")
}

func runRm(paths []string) error {
	return withUnlockedVault(func(v *vault.Vault) error {
		for _, path := range paths {
			confirmed, err := confirmDestructive(fmt.Sprintf("Delete %s and everything under it?", path), rmYes)
			if err != nil {
				return fmt.Errorf("failed to get confirmation: %w", err)
			}
			if !confirmed {
				fmt.Printf("Skipped %s\n", path)
				continue
			}

			if err := v.Delete(path); err != nil {
				return err
			}
			fmt.Printf("✓ Deleted %s\n", path)
		}
		return nil
	})
}
