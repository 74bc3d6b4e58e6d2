package cli

import (
	"fmt"
	gopath "path"

	"github.com/spf13/cobra"

	"github.com/coffer-fs/coffer/internal/vault"
)

var touchCmd = &cobra.Command{
	Use:   "touch <path>",
	Short: "Create an empty file in the vault",
	Long: `Create a new empty file at the given vault path.

Fails if the path already exists; use 'coffer write' to change an
existing file.

Example:
  coffer touch /home/todo.txt`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTouch(args[0])
	},
}

func runTouch(path string) error {
	return withUnlockedVault(func(v *vault.Vault) error {
		parent, name := gopath.Dir(path), gopath.Base(path)
		if err := v.CreateFile(parent, name, nil); err != nil {
			return err
		}

		fmt.Printf("✓ Created %s\n", path)
		return nil
	})
}
