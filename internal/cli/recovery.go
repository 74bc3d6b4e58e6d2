package cli

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/coffer-fs/coffer/internal/apperr"
	"github.com/coffer-fs/coffer/internal/clipboard"
	"github.com/coffer-fs/coffer/internal/crypto"
	"github.com/coffer-fs/coffer/internal/domain"
	"github.com/coffer-fs/coffer/internal/notify"
	"github.com/coffer-fs/coffer/internal/recovery"
	"github.com/coffer-fs/coffer/internal/vault"
)

var (
	recoveryEmail    string
	recoveryPush     string
	recoverySMS      string
	recoveryTelegram string
	recoveryCopy     bool

	recoveryChannelsJSON bool
)

var recoveryCmd = &cobra.Command{
	Use:   "recovery",
	Short: "Set up and run password recovery",
	Long: `Manage the password reset escape hatch.

Recovery lets you reset a forgotten master password after proving you
control a configured notification channel. Resetting the password does
NOT decrypt existing data: files sealed under the old master key stay
unreadable after a reset. The recovery key printed by 'setup' should be
archived offline.`,
}

var recoverySetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Configure recovery channels and export the recovery key",
	Long: `Generate a recovery key and register notification channels.

Each channel named by a flag is verified interactively: a code is sent
to it and you type the code back. Unverified channels are stored but can
never receive a reset code. The recovery key is printed exactly once;
with --copy it also goes to the clipboard and is cleared after the
configured clipboard_ttl.

Requires the master password. Running setup again replaces the previous
recovery configuration and key.

Example:
  coffer recovery setup --email you@example.com
  coffer recovery setup --email you@example.com --telegram @you --copy`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecoverySetup()
	},
}

var recoveryRequestCmd = &cobra.Command{
	Use:   "request <channel>",
	Short: "Send a verification code over a recovery channel",
	Long: `Start a password reset by sending a verification code.

The channel argument is one of: email, push, sms, telegram. The channel
must have been verified during setup. At most three requests are allowed
per hour, and each code expires after fifteen minutes.

Codes and reset sessions live only in the memory of the requesting
process, never on disk, so a reset cannot resume in a later invocation.
Use 'coffer recovery complete <channel>' to run the whole reset in one
sitting; 'request' on its own confirms that delivery works.

Example:
  coffer recovery request email`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecoveryRequest(args[0])
	},
}

var recoveryCompleteCmd = &cobra.Command{
	Use:   "complete <channel>",
	Short: "Reset the master password end to end",
	Long: `Reset the master password after verifying a recovery channel.

A fresh verification code is sent over the named channel; enter it when
prompted, then choose a new master password. The vault ends locked and
must be unlocked with the new password.

Resetting changes only the password. Files encrypted before the reset
remain sealed under the old master key and will report a decryption
failure when read.

Example:
  coffer recovery complete email`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecoveryComplete(args[0])
	},
}

var recoveryChannelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "List configured recovery channels",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRecoveryChannels()
	},
}

func init() {
	recoverySetupCmd.Flags().StringVar(&recoveryEmail, "email", "", "Email address to receive reset codes")
	recoverySetupCmd.Flags().StringVar(&recoveryPush, "push", "", "Push destination to receive reset codes")
	recoverySetupCmd.Flags().StringVar(&recoverySMS, "sms", "", "Phone number to receive reset codes")
	recoverySetupCmd.Flags().StringVar(&recoveryTelegram, "telegram", "", "Telegram handle to receive reset codes")
	recoverySetupCmd.Flags().BoolVar(&recoveryCopy, "copy", false, "Copy the recovery key to the clipboard")

	recoveryChannelsCmd.Flags().BoolVar(&recoveryChannelsJSON, "json", false, "Output channels as JSON")

	recoveryCmd.AddCommand(recoverySetupCmd)
	recoveryCmd.AddCommand(recoveryRequestCmd)
	recoveryCmd.AddCommand(recoveryCompleteCmd)
	recoveryCmd.AddCommand(recoveryChannelsCmd)
}

// withRecovery opens the vault and hands fn a recovery manager wired to the
// configured delivery channels and the shared audit log.
func withRecovery(fn func(v *vault.Vault, d *notify.Dispatcher, m *recovery.Manager) error) error {
	handle, auditLog, cleanup, err := openVault()
	if err != nil {
		return err
	}
	defer cleanup()

	logger := buildLogger()
	dispatcher := buildDispatcher(logger)
	manager := recovery.NewManager(handle.Vault, dispatcher, &recovery.Options{
		Audit:  auditLog,
		Logger: logger,
	})
	return fn(handle.Vault, dispatcher, manager)
}

// buildDispatcher assembles the delivery channels from the application
// config: SMTP for email, gateway webhooks for everything else.
func buildDispatcher(logger *slog.Logger) *notify.Dispatcher {
	email := notify.NewEmail(notify.EmailConfig{
		Host:     cfg.Notify.Email.Host,
		Port:     cfg.Notify.Email.Port,
		Username: cfg.Notify.Email.Username,
		Password: cfg.Notify.Email.Password,
		From:     cfg.Notify.Email.From,
		Security: cfg.Notify.Email.Security,
	}, logger)

	return notify.NewDispatcher(logger,
		email,
		notify.NewWebhook(domain.ChannelPush, cfg.Notify.Webhooks.Push, logger),
		notify.NewWebhook(domain.ChannelSMS, cfg.Notify.Webhooks.SMS, logger),
		notify.NewWebhook(domain.ChannelTelegram, cfg.Notify.Webhooks.Telegram, logger),
	)
}

func runRecoverySetup() error {
	channels := channelsFromFlags()
	if len(channels) == 0 {
		return apperr.New(apperr.CodeInvalidData, "name at least one channel: --email, --push, --sms or --telegram")
	}

	return withRecovery(func(v *vault.Vault, d *notify.Dispatcher, m *recovery.Manager) error {
		if err := requireInitialized(v); err != nil {
			return err
		}

		password, err := readPassword("Master password: ")
		if err != nil {
			return err
		}
		if err := v.Unlock(password); err != nil {
			return err
		}

		for i := range channels {
			verified, err := verifyChannel(d, channels[i])
			if err != nil {
				return err
			}
			channels[i].Verified = verified
			if !verified {
				fmt.Printf("  %s left unverified; it cannot receive reset codes until set up again.\n", channels[i].Kind)
			}
		}

		exported, err := m.Setup(channels)
		if err != nil {
			return err
		}

		fmt.Println("\n✓ Recovery configured")
		fmt.Println("\nRecovery key (shown once, archive it offline):")
		fmt.Printf("\n  %s\n\n", exported)

		if recoveryCopy {
			if !clipboard.IsAvailable() {
				return fmt.Errorf("clipboard not available on this system")
			}
			if err := clipboard.Copy(exported); err != nil {
				return err
			}
			fmt.Printf("✓ Recovery key copied to clipboard (clears in %v)\n", cfg.ClipboardTTL)
			return clipboard.ClearAfter(exported, cfg.ClipboardTTL)
		}
		return nil
	})
}

// verifyChannel proves the user controls a destination before it may carry
// reset codes: a code goes out over the channel and must be typed back.
// An empty answer skips verification and leaves the channel unusable.
func verifyChannel(d *notify.Dispatcher, ch domain.RecoveryChannel) (bool, error) {
	code, err := crypto.GenerateVerificationCode()
	if err != nil {
		return false, err
	}

	minutes := int(recovery.SessionTTL.Minutes())
	if err := d.Dispatch(ch, code, minutes); err != nil {
		return false, err
	}

	entered, err := PromptInput(fmt.Sprintf("Code sent to %s. Enter it to verify (empty to skip): ", maskAddress(ch.Address)))
	if err != nil {
		return false, err
	}
	if entered == "" {
		return false, nil
	}
	if entered != code {
		return false, apperr.Newf(apperr.CodeInvalidCode, "the code for %s does not match", ch.Kind)
	}

	fmt.Printf("✓ %s channel verified\n", ch.Kind)
	return true, nil
}

func channelsFromFlags() []domain.RecoveryChannel {
	var channels []domain.RecoveryChannel
	add := func(kind domain.ChannelKind, address string) {
		if address != "" {
			channels = append(channels, domain.RecoveryChannel{Kind: kind, Address: address})
		}
	}
	add(domain.ChannelEmail, recoveryEmail)
	add(domain.ChannelPush, recoveryPush)
	add(domain.ChannelSMS, recoverySMS)
	add(domain.ChannelTelegram, recoveryTelegram)
	return channels
}

func runRecoveryRequest(kindArg string) error {
	kind := domain.ChannelKind(kindArg)
	if !kind.Valid() {
		return apperr.Newf(apperr.CodeInvalidData, "unknown channel %q (expected email, push, sms or telegram)", kindArg)
	}

	return withRecovery(func(v *vault.Vault, d *notify.Dispatcher, m *recovery.Manager) error {
		if err := requireInitialized(v); err != nil {
			return err
		}

		ticket, err := m.Initiate(kind)
		if err != nil {
			return err
		}

		fmt.Printf("✓ Verification code sent via %s\n", ticket.Channel)
		fmt.Printf("  The code expires at %s.\n", ticket.ExpiresAt.Local().Format("15:04:05"))
		fmt.Println("Reset sessions never touch the disk; to reset the password run")
		fmt.Println("'coffer recovery complete " + kindArg + "', which finishes in one sitting.")
		return nil
	})
}

func runRecoveryComplete(kindArg string) error {
	kind := domain.ChannelKind(kindArg)
	if !kind.Valid() {
		return apperr.Newf(apperr.CodeInvalidData, "unknown channel %q (expected email, push, sms or telegram)", kindArg)
	}

	return withRecovery(func(v *vault.Vault, d *notify.Dispatcher, m *recovery.Manager) error {
		if err := requireInitialized(v); err != nil {
			return err
		}

		ticket, err := m.Initiate(kind)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Verification code sent via %s (expires at %s)\n",
			ticket.Channel, ticket.ExpiresAt.Local().Format("15:04:05"))

		code, err := PromptInput("Verification code: ")
		if err != nil {
			return err
		}
		key, err := m.VerifyAndDecrypt(ticket.ID, code)
		if err != nil {
			return err
		}
		crypto.Zeroize(key)
		fmt.Println("✓ Code verified")

		newPassword, err := readNewPassword("New master password: ")
		if err != nil {
			return err
		}
		if err := m.Complete(ticket.ID, code, newPassword); err != nil {
			return err
		}

		fmt.Println("✓ Master password reset; the vault is locked")
		fmt.Println("Unlock with the new password. Files written before the reset stay")
		fmt.Println("sealed under the old key and will report a decryption failure.")
		return nil
	})
}

func runRecoveryChannels() error {
	return withVault(func(v *vault.Vault) error {
		if err := requireInitialized(v); err != nil {
			return err
		}

		rc, err := v.Recovery()
		if err != nil {
			return err
		}
		if rc == nil || len(rc.Channels) == 0 {
			fmt.Println("Recovery is not configured. Run 'coffer recovery setup' first.")
			return nil
		}

		if jsonOutput(recoveryChannelsJSON) {
			out := make([]channelInfo, 0, len(rc.Channels))
			for _, ch := range rc.Channels {
				out = append(out, channelInfo{
					Kind:     string(ch.Kind),
					Address:  maskAddress(ch.Address),
					Verified: ch.Verified,
				})
			}
			return printJSON(out)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KIND\tADDRESS\tVERIFIED")
		for _, ch := range rc.Channels {
			fmt.Fprintf(w, "%s\t%s\t%t\n", ch.Kind, maskAddress(ch.Address), ch.Verified)
		}
		return w.Flush()
	})
}
