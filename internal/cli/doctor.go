package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coffer-fs/coffer/internal/crypto"
	"github.com/coffer-fs/coffer/internal/domain"
	"github.com/coffer-fs/coffer/internal/store"
	"github.com/coffer-fs/coffer/internal/vault"
)

var doctorOrphans bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check vault health and security",
	Long: `Run read-only health checks against the vault directory.

This command checks:
- The vault header parses and names a supported format and cipher
- The encrypted tree file is structurally plausible
- File and directory permissions are restrictive
- With --orphans, blobs on disk that no file references (needs the
  master password, since the tree must be decrypted to know what is
  referenced)

Nothing is ever modified or deleted.

Example:
  coffer doctor
  coffer doctor --orphans`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDoctor()
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorOrphans, "orphans", false, "Unlock and list unreferenced blobs")
}

func runDoctor() error {
	return withVault(func(v *vault.Vault) error {
		fmt.Println("Vault Health Check")
		fmt.Println("==================")

		issues := 0
		warnings := 0

		// Check 1: the header.
		fmt.Println("\n1. Vault Header")
		switch cfg, err := vault.LoadVaultConfig(v.Dir()); {
		case err == nil:
			if _, perr := crypto.ParamsForVersion(cfg.Version); perr != nil {
				fmt.Printf("   ❌ Unknown format version %q\n", cfg.Version)
				issues++
			} else {
				fmt.Printf("   ✅ Format version: %s\n", cfg.Version)
			}
			if cfg.EncryptionAlgo != crypto.Algorithm {
				fmt.Printf("   ❌ Unexpected cipher %q (this build speaks %s)\n", cfg.EncryptionAlgo, crypto.Algorithm)
				issues++
			} else {
				fmt.Printf("   ✅ Cipher: %s\n", cfg.EncryptionAlgo)
			}
			if len(cfg.KDFSalt) != crypto.SaltSize {
				fmt.Printf("   ❌ KDF salt is %d bytes, want %d\n", len(cfg.KDFSalt), crypto.SaltSize)
				issues++
			}
			if cfg.Recovery == nil {
				fmt.Printf("   ⚠️  Recovery is not configured; a forgotten password cannot be reset\n")
				warnings++
			}
		case v.Status() == domain.StatusNotInitialized:
			fmt.Printf("   ⚠️  Vault is not initialized; files are stored unencrypted\n")
			fmt.Printf("      Run 'coffer init' to create the vault\n")
			warnings++
		default:
			fmt.Printf("   ❌ Header unreadable: %v\n", err)
			issues++
		}

		// Check 2: the encrypted tree.
		fmt.Println("\n2. Encrypted Tree")
		if info, err := os.Stat(vault.BinPath(v.Dir())); err == nil {
			if info.Size() < int64(crypto.NonceSize+crypto.TagSize) {
				fmt.Printf("   ❌ vault.bin is %d bytes, too short to hold a nonce and tag\n", info.Size())
				issues++
			} else {
				fmt.Printf("   ✅ vault.bin present (%d bytes)\n", info.Size())
			}
			issues += checkPerm(vault.BinPath(v.Dir()), 0o600, &warnings)
		} else if v.Status() != domain.StatusNotInitialized {
			fmt.Printf("   ❌ vault.bin missing: the tree cannot be recovered without it\n")
			issues++
		} else {
			fmt.Printf("   ⚠️  No encrypted tree yet (vault not initialized)\n")
			warnings++
		}

		// Check 3: permissions on everything else.
		fmt.Println("\n3. Permissions")
		issues += checkPerm(v.Dir(), 0o700, &warnings)
		if _, err := os.Stat(vault.MetaPath(v.Dir())); err == nil {
			issues += checkPerm(vault.MetaPath(v.Dir()), 0o600, &warnings)
		}
		blobDir := store.NewFileStore(v.Dir()).Dir()
		if _, err := os.Stat(blobDir); err == nil {
			issues += checkPerm(blobDir, 0o700, &warnings)
			issues += checkBlobPerms(blobDir, &warnings)
		} else {
			fmt.Printf("   ✅ No blob directory yet\n")
		}

		// Check 4: leftover plaintext.
		fmt.Println("\n4. Plaintext Remnants")
		if _, err := os.Stat(vault.LegacyPath(v.Dir())); err == nil {
			if v.Status() == domain.StatusNotInitialized {
				fmt.Printf("   ⚠️  Legacy tree present; everything in it is unencrypted\n")
			} else {
				fmt.Printf("   ⚠️  Legacy tree still present next to the vault\n")
				fmt.Printf("      Run 'coffer import-legacy' to encrypt and remove it\n")
			}
			warnings++
		} else {
			fmt.Printf("   ✅ No plaintext tree on disk\n")
		}

		// Check 5: orphaned blobs, only on request since it needs the key.
		if doctorOrphans {
			fmt.Println("\n5. Orphaned Blobs")
			orphans, err := findOrphans(v)
			switch {
			case err != nil:
				fmt.Printf("   ❌ Could not check: %v\n", err)
				issues++
			case len(orphans) == 0:
				fmt.Printf("   ✅ Every blob on disk is referenced by the tree\n")
			default:
				fmt.Printf("   ⚠️  %d unreferenced blob(s) found:\n", len(orphans))
				for _, id := range orphans {
					fmt.Printf("      %s\n", id)
				}
				fmt.Printf("      Orphans hold stale ciphertext and can be deleted from %s\n", blobDir)
				warnings += len(orphans)
			}
		}

		fmt.Println("\n" + strings.Repeat("=", 40))
		switch {
		case issues == 0 && warnings == 0:
			fmt.Println("✅ All checks passed.")
		case issues > 0:
			fmt.Printf("❌ %d issue(s) and %d warning(s) found\n", issues, warnings)
		default:
			fmt.Printf("⚠️  %d warning(s) found\n", warnings)
		}
		return nil
	})
}

// findOrphans unlocks when necessary so the live tree can be diffed against
// the blob directory.
func findOrphans(v *vault.Vault) ([]string, error) {
	if v.Status() == domain.StatusLocked {
		password, err := readPassword("Master password: ")
		if err != nil {
			return nil, err
		}
		if err := v.Unlock(password); err != nil {
			return nil, err
		}
	}
	return v.OrphanBlobs()
}

// checkPerm reports a path whose permissions expose it beyond the owner.
// It returns 1 when the permissions are an issue, 0 otherwise.
func checkPerm(path string, want os.FileMode, warnings *int) int {
	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("   ❌ Cannot stat %s: %v\n", path, err)
		return 1
	}

	perm := info.Mode().Perm()
	switch {
	case perm == want:
		fmt.Printf("   ✅ %s: %o\n", path, perm)
		return 0
	case perm&0o077 != 0:
		fmt.Printf("   ❌ %s: %o is too permissive (want %o)\n", path, perm, want)
		fmt.Printf("      Fix with: chmod %o %s\n", want, path)
		return 1
	default:
		fmt.Printf("   ⚠️  %s: %o (want %o)\n", path, perm, want)
		*warnings++
		return 0
	}
}

// checkBlobPerms sweeps the blob directory for group/world-readable files.
func checkBlobPerms(blobDir string, warnings *int) int {
	entries, err := os.ReadDir(blobDir)
	if err != nil {
		fmt.Printf("   ❌ Cannot list %s: %v\n", blobDir, err)
		return 1
	}

	loose := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Mode().Perm()&0o077 != 0 {
			loose++
		}
	}

	if loose > 0 {
		fmt.Printf("   ❌ %d blob(s) readable beyond the owner (want 0600)\n", loose)
		return 1
	}
	fmt.Printf("   ✅ %d blob(s), all owner-only\n", len(entries))
	return 0
}
