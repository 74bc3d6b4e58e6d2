package cli

import (
	"fmt"
	gopath "path"

	"github.com/spf13/cobra"

	"github.com/coffer-fs/coffer/internal/apperr"
	"github.com/coffer-fs/coffer/internal/vault"
)

var mkdirParents bool

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <path>",
	Short: "Create a directory in the vault",
	Long: `Create a new directory at the given vault path.

With --parents, missing intermediate directories are created as well and
an existing target is not an error.

Example:
  coffer mkdir /home/projects
  coffer mkdir --parents /home/projects/2026/q1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMkdir(args[0])
	},
}

func init() {
	mkdirCmd.Flags().BoolVarP(&mkdirParents, "parents", "p", false, "Create missing parent directories")
}

func runMkdir(path string) error {
	return withUnlockedVault(func(v *vault.Vault) error {
		if mkdirParents {
			if err := mkdirAll(v, path); err != nil {
				return err
			}
		} else {
			parent, name := gopath.Dir(path), gopath.Base(path)
			if err := v.CreateFolder(parent, name); err != nil {
				return err
			}
		}

		fmt.Printf("✓ Created directory %s\n", path)
		return nil
	})
}

// mkdirAll creates path and any missing ancestors, tolerating directories
// that already exist.
func mkdirAll(v *vault.Vault, path string) error {
	if path == "/" {
		return nil
	}

	parent := gopath.Dir(path)
	if parent != "/" {
		if err := mkdirAll(v, parent); err != nil {
			return err
		}
	}

	info, err := v.Stat(path)
	switch {
	case err == nil:
		if !info.IsDir {
			return apperr.Newf(apperr.CodeAlreadyExists, "%s already exists and is a file", path)
		}
		return nil
	case apperr.IsCode(err, apperr.CodeNotFound):
		return v.CreateFolder(parent, gopath.Base(path))
	default:
		return err
	}
}
