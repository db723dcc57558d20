package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a dive log and start a session",
	Long: `Upload a Subsurface XML export to the server. The printed session id is
used by the dashboard and chat commands.

Examples:
  diveroast upload ~/dives.ssrf
  SESSION=$(diveroast upload dives.xml -q)`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

var uploadQuiet bool

func init() {
	uploadCmd.Flags().BoolVarP(&uploadQuiet, "quiet", "q", false, "print only the session id")
}

func runUpload(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read log: %w", err)
	}

	res, err := apiClient.Upload(context.Background(), filepath.Base(args[0]), raw)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}

	out := cmd.OutOrStdout()
	if uploadQuiet {
		fmt.Fprintln(out, res.SessionID)
		return nil
	}
	r := renderer{color: useColor(out)}
	fmt.Fprintf(out, "Session: %s\n", res.SessionID)
	fmt.Fprintf(out, "Dives:   %d (%s)\n", res.DiveCount, strings.Join(res.DiveNumbers, ", "))
	fmt.Fprint(out, r.Excluded(res.Excluded))
	fmt.Fprintln(out, res.Message)
	if verbose {
		fmt.Fprintf(out, "\nNext: diveroast dashboard %s\n      diveroast chat %s\n", res.SessionID, res.SessionID)
	}
	return nil
}
