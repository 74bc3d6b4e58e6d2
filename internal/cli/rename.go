package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coffer-fs/coffer/internal/vault"
)

var renameCmd = &cobra.Command{
	Use:   "rename <path> <new-name>",
	Short: "Rename a file or directory in place",
	Long: `Give a vault node a new name inside its current directory.

Renaming never moves a node between directories; use 'coffer mv' for
that. The new name must not collide with an existing sibling.

Example:
  coffer rename /home/notes.txt journal.txt
  coffer rename /home/drafts archive`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRename(args[0], args[1])
	},
}

func runRename(path, newName string) error {
	return withUnlockedVault(func(v *vault.Vault) error {
		if err := v.Rename(path, newName); err != nil {
			return err
		}

		fmt.Printf("✓ Renamed %s to %q\n", path, newName)
		return nil
	})
}
