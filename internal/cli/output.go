package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/coffer-fs/coffer/internal/config"
	"github.com/coffer-fs/coffer/internal/domain"
)

// MaxOutputSize is the maximum allowed size for output to prevent memory exhaustion
const MaxOutputSize = 10 * 1024 * 1024 // 10MB

// writeRaw writes bytes to the writer with error checking and size limits.
func writeRaw(w io.Writer, data []byte) error {
	if len(data) > MaxOutputSize {
		return fmt.Errorf("output size %d exceeds maximum allowed size %d",
			len(data), MaxOutputSize)
	}

	n, err := w.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write output (wrote %d bytes): %w", n, err)
	}

	return nil
}

// jsonOutput reports whether a command should render JSON, either because
// its flag was set or because the config prefers it.
func jsonOutput(flag bool) bool {
	if flag {
		return true
	}
	return cfg != nil && cfg.OutputFormat == config.OutputJSON
}

// printJSON renders v as indented JSON on stdout.
func printJSON(v interface{}) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Println(string(payload))
	return nil
}

// renderNodeList prints a directory listing as an aligned table.
func renderNodeList(infos []domain.NodeInfo) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tSIZE\tMODIFIED\tNAME")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			nodeType(info), nodeSize(info),
			info.Modified.Local().Format("2006-01-02 15:04"), info.Name)
	}
	w.Flush()
}

// renderNodeInfo prints a single node's details.
func renderNodeInfo(info domain.NodeInfo) {
	fmt.Printf("Path:     %s\n", info.Path)
	fmt.Printf("Type:     %s\n", nodeType(info))
	if !info.IsDir {
		fmt.Printf("Size:     %d bytes\n", info.Size)
	}
	fmt.Printf("Created:  %s\n", info.Created.Local().Format(time.RFC3339))
	fmt.Printf("Modified: %s\n", info.Modified.Local().Format(time.RFC3339))
}

func nodeType(info domain.NodeInfo) string {
	if info.IsDir {
		return "dir"
	}
	return "file"
}

func nodeSize(info domain.NodeInfo) string {
	if info.IsDir {
		return "-"
	}
	return fmt.Sprintf("%d", info.Size)
}

// maskAddress hides most of a channel address for display: recovery
// destinations are personal data and never need to appear in full.
func maskAddress(addr string) string {
	if i := strings.IndexByte(addr, '@'); i > 0 {
		return addr[:1] + "***" + addr[i:]
	}
	if len(addr) > 2 {
		return strings.Repeat("*", len(addr)-2) + addr[len(addr)-2:]
	}
	return "***"
}

// formatDetails flattens an event's detail map into "k=v" pairs in key
// order.
func formatDetails(details map[string]string) string {
	if len(details) == 0 {
		return ""
	}

	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+details[k])
	}
	return strings.Join(pairs, " ")
}
