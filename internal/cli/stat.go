package cli

import (
	"github.com/spf13/cobra"

	"github.com/coffer-fs/coffer/internal/vault"
)

var statJSON bool

var statCmd = &cobra.Command{
	Use:   "stat <path>",
	Short: "Show details of a vault node",
	Long: `Show the metadata of a single file or directory in the vault.

Example:
  coffer stat /home/notes.txt
  coffer stat /home --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStat(args[0])
	},
}

func init() {
	statCmd.Flags().BoolVar(&statJSON, "json", false, "Output the node as JSON")
}

func runStat(path string) error {
	return withUnlockedVault(func(v *vault.Vault) error {
		info, err := v.Stat(path)
		if err != nil {
			return err
		}

		if jsonOutput(statJSON) {
			return printJSON(info)
		}
		renderNodeInfo(info)
		return nil
	})
}
