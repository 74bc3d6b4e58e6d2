package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coffer-fs/coffer/internal/vault"
)

var cpAs string

var cpCmd = &cobra.Command{
	Use:   "cp <source>... <dest-dir>",
	Short: "Copy files or directories within the vault",
	Long: `Deep-copy one or more vault paths into a destination directory.

Every file in a copied subtree is re-encrypted as a brand-new blob: a
copy is never an alias, so editing it cannot affect the original. When
the destination already contains an entry with the same name,
directories merge child-by-child and files are replaced by the copy.

With --as the single source is copied under a different name.

Example:
  coffer cp /home/notes.txt /home/backup
  coffer cp /home/projects /archive
  coffer cp /home/notes.txt /home --as notes-2026.txt`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCp(args[:len(args)-1], args[len(args)-1])
	},
}

func init() {
	cpCmd.Flags().StringVar(&cpAs, "as", "", "Name for the copy (single source only)")
}

func runCp(sources []string, destDir string) error {
	if cpAs != "" && len(sources) != 1 {
		return fmt.Errorf("--as requires exactly one source, got %d", len(sources))
	}

	return withUnlockedVault(func(v *vault.Vault) error {
		if cpAs != "" {
			if err := v.CopyWithName(sources[0], destDir, cpAs); err != nil {
				return err
			}
			fmt.Printf("✓ Copied %s to %s as %q\n", sources[0], destDir, cpAs)
			return nil
		}

		if err := v.Copy(sources, destDir); err != nil {
			return err
		}
		for _, src := range sources {
			fmt.Printf("✓ Copied %s to %s\n", src, destDir)
		}
		return nil
	})
}
