package cli

import (
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/coffer-fs/coffer/internal/vault"
)

var writeFrom string

var writeCmd = &cobra.Command{
	Use:   "write <path>",
	Short: "Write a file into the vault",
	Long: `Encrypt content into a vault file, creating it if needed.

Content comes from --file or, by default, from stdin until EOF. An
existing file keeps its identity: the same encrypted blob is overwritten
in place. When piping content, supply the master password via the
COFFER_PASSWORD environment variable since stdin is occupied.

Example:
  coffer write /home/notes.txt --file ./notes.txt
  echo "s3cret" | COFFER_PASSWORD=... coffer write /home/api-key`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWrite(args[0])
	},
}

func init() {
	writeCmd.Flags().StringVar(&writeFrom, "file", "", "Read content from a local file instead of stdin")
}

func runWrite(path string) error {
	var data []byte
	var err error

	if writeFrom != "" {
		data, err = os.ReadFile(writeFrom)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", writeFrom, err)
		}
	} else {
		if term.IsTerminal(int(syscall.Stdin)) {
			fmt.Fprintln(os.Stderr, "Reading content from stdin until EOF (Ctrl-D)...")
		}
		data, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("failed to read stdin: %w", err)
		}
	}

	return withUnlockedVault(func(v *vault.Vault) error {
		if err := v.WriteFile(path, data); err != nil {
			return err
		}

		fmt.Printf("✓ Wrote %d bytes to %s\n", len(data), path)
		return nil
	})
}
