package cli

import (
	"github.com/spf13/cobra"

	"github.com/coffer-fs/coffer/internal/vault"
)

var lsJSON bool

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a directory in the vault",
	Long: `List the children of a vault directory.

Vault paths are absolute and use forward slashes. With no argument the
root is listed.

Example:
  coffer ls
  coffer ls /home
  coffer ls /home --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/"
		if len(args) == 1 {
			path = args[0]
		}
		return runLs(path)
	},
}

func init() {
	lsCmd.Flags().BoolVar(&lsJSON, "json", false, "Output the listing as JSON")
}

func runLs(path string) error {
	return withUnlockedVault(func(v *vault.Vault) error {
		infos, err := v.ReadDir(path)
		if err != nil {
			return err
		}

		if jsonOutput(lsJSON) {
			return printJSON(infos)
		}
		renderNodeList(infos)
		return nil
	})
}
