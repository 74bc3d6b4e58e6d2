package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coffer-fs/coffer/internal/config"
	"github.com/coffer-fs/coffer/internal/vault"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show vault status",
	Long:  "Display the vault's lifecycle state, header fields and recovery channels.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus()
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output status as JSON")
}

// NewStatusCommand creates a new status command for testing
func NewStatusCommand(c *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show vault status",
		RunE: func(cmd *cobra.Command, args []string) error {
			if c != nil && vaultDir == "" {
				vaultDir = c.VaultPath
			}
			return runStatus()
		},
	}

	cmd.Flags().BoolVar(&statusJSON, "json", false, "Output status as JSON")

	return cmd
}

type channelInfo struct {
	Kind     string `json:"kind"`
	Address  string `json:"address"`
	Verified bool   `json:"verified"`
}

type statusInfo struct {
	Dir         string        `json:"dir"`
	Status      string        `json:"status"`
	Version     string        `json:"version,omitempty"`
	Algorithm   string        `json:"algorithm,omitempty"`
	Channels    []channelInfo `json:"recovery_channels,omitempty"`
	LegacyFiles bool          `json:"legacy_files"`
}

func runStatus() error {
	return withVault(func(v *vault.Vault) error {
		sum := v.Summary()

		info := statusInfo{
			Dir:       sum.Dir,
			Status:    string(sum.Status),
			Version:   sum.Version,
			Algorithm: sum.Algorithm,
		}
		for _, ch := range sum.Channels {
			info.Channels = append(info.Channels, channelInfo{
				Kind:     string(ch.Kind),
				Address:  maskAddress(ch.Address),
				Verified: ch.Verified,
			})
		}
		if _, err := os.Stat(vault.LegacyPath(sum.Dir)); err == nil {
			info.LegacyFiles = true
		}

		if jsonOutput(statusJSON) {
			return printJSON(info)
		}

		fmt.Printf("Vault:  %s\n", info.Dir)
		fmt.Printf("Status: %s\n", info.Status)
		if info.Version != "" {
			fmt.Printf("Format: version %s, %s\n", info.Version, info.Algorithm)
		}

		if len(info.Channels) > 0 {
			fmt.Println("Recovery channels:")
			for _, ch := range info.Channels {
				state := "unverified"
				if ch.Verified {
					state = "verified"
				}
				fmt.Printf("  %-9s %s (%s)\n", ch.Kind, ch.Address, state)
			}
		} else if info.Version != "" {
			fmt.Println("Recovery: not configured")
		}

		if info.LegacyFiles {
			fmt.Println("\nLegacy unencrypted files present. Run 'coffer import-legacy' to encrypt them.")
		}

		return nil
	})
}
