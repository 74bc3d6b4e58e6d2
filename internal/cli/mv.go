package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coffer-fs/coffer/internal/vault"
)

var mvCmd = &cobra.Command{
	Use:   "mv <source>... <dest-dir>",
	Short: "Move files or directories within the vault",
	Long: `Move one or more vault paths into a destination directory.

A move is a deep copy followed by deletion of the originals, so it
carries the same guarantees as 'coffer cp': moved files get fresh blobs
and same-name directories merge at the destination.

Example:
  coffer mv /home/notes.txt /archive
  coffer mv /home/drafts /home/projects /archive`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMv(args[:len(args)-1], args[len(args)-1])
	},
}

func runMv(sources []string, destDir string) error {
	return withUnlockedVault(func(v *vault.Vault) error {
		if err := v.Move(sources, destDir); err != nil {
			return err
		}

		for _, src := range sources {
			fmt.Printf("✓ Moved %s to %s\n", src, destDir)
		}
		return nil
	})
}
