package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coffer-fs/coffer/internal/clipboard"
	"github.com/coffer-fs/coffer/internal/vault"
)

var catCopy bool

var catCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Print a vault file's contents",
	Long: `Decrypt a vault file and write its contents to stdout.

With --copy the contents go to the clipboard instead and are cleared
after the configured clipboard_ttl.

Example:
  coffer cat /home/notes.txt
  coffer cat /home/api-key --copy`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCat(args[0])
	},
}

func init() {
	catCmd.Flags().BoolVar(&catCopy, "copy", false, "Copy contents to clipboard instead of printing")
}

func runCat(path string) error {
	return withUnlockedVault(func(v *vault.Vault) error {
		data, err := v.ReadFile(path)
		if err != nil {
			return err
		}

		if catCopy {
			if !clipboard.IsAvailable() {
				return fmt.Errorf("clipboard not available on this system")
			}

			text := string(data)
			if err := clipboard.Copy(text); err != nil {
				return err
			}

			ttl := cfg.ClipboardTTL
			fmt.Printf("✓ Contents of %s copied to clipboard (clears in %v)\n", path, ttl)
			return clipboard.ClearAfter(text, ttl)
		}

		return writeRaw(os.Stdout, data)
	})
}
