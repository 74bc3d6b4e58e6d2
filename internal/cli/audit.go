package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/coffer-fs/coffer/internal/audit"
)

var (
	auditLimit int
	auditSince time.Duration
	auditJSON  bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "List recorded security events",
	Long: `List the vault's security event log.

Every lifecycle transition and recovery action is appended to an
append-only log beside the vault: unlocks (including failures), locks,
password resets, recovery requests and denials. Events never contain
passwords, keys or file contents.

Example:
  coffer audit
  coffer audit --limit 20
  coffer audit --since 24h --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAudit()
	},
}

func init() {
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "Maximum number of events to show (0 for all)")
	auditCmd.Flags().DurationVar(&auditSince, "since", 0, "Only show events newer than this age (e.g. 24h)")
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "Output events as JSON")
}

func runAudit() error {
	if cfg == nil || !cfg.Audit.Enabled {
		fmt.Println("Auditing is disabled in the configuration.")
		return nil
	}

	path := cfg.Audit.ResolvePath(vaultDir)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Println("No events recorded yet.")
		return nil
	}

	log, err := audit.OpenBoltLog(path)
	if err != nil {
		return err
	}
	defer log.Close()

	var since time.Time
	if auditSince > 0 {
		since = time.Now().Add(-auditSince)
	}

	events, err := log.List(since, auditLimit)
	if err != nil {
		return err
	}

	if jsonOutput(auditJSON) {
		return printJSON(events)
	}

	if len(events) == 0 {
		fmt.Println("No events recorded yet.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tEVENT\tDETAILS")
	for _, ev := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\n",
			ev.Timestamp.Local().Format("2006-01-02 15:04:05"),
			ev.Kind,
			formatDetails(ev.Details))
	}
	return w.Flush()
}
