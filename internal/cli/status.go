package cli

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/diveroast/internal/client"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server health and runtime statistics",
	Long: `Show the server version and model, the corpus size, live sessions, any
running refresh job and per-operation timings since the last restart.

Examples:
  diveroast status
  diveroast status -v    # include token usage`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, err := apiClient.Status(context.Background())
	if err != nil {
		return fmt.Errorf("get status: %w", err)
	}
	printStatus(cmd.OutOrStdout(), st)
	return nil
}

func printStatus(out io.Writer, st *client.Status) {
	fmt.Fprintf(out, "Server: %s (version %s, model %s)\n", st.Status, st.Version, st.Model)
	fmt.Fprintf(out, "Uptime: %.1f seconds\n", st.UptimeSeconds)
	fmt.Fprintf(out, "Sessions: %d\n", st.Sessions)
	switch {
	case st.CorpusError != "":
		fmt.Fprintf(out, "Corpus: unavailable (%s)\n", st.CorpusError)
	case st.CorpusPassages != nil:
		fmt.Fprintf(out, "Corpus: %d passages\n", *st.CorpusPassages)
	}
	if st.ActiveJob != nil {
		fmt.Fprintf(out, "Refresh: %s %d/%d\n", st.ActiveJob.ID, st.ActiveJob.Progress, st.ActiveJob.Total)
	}

	if len(st.Metrics.Operations) == 0 {
		return
	}
	fmt.Fprintf(out, "\nOperations (in-memory, since restart)\n")
	fmt.Fprintf(out, "═════════════════════════════════════\n")
	for _, name := range slices.Sorted(maps.Keys(st.Metrics.Operations)) {
		op := st.Metrics.Operations[name]
		if op == nil {
			continue
		}
		fmt.Fprintf(out, "\n%s:\n", name)
		printOpStats(out, op)
		if verbose {
			printTokenStats(out, op)
		}
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(out io.Writer, op *client.OperationStats) {
	fmt.Fprintf(out, "  Calls: %d, Total: %dms\n", op.Count, op.TotalTimeMs)
	fmt.Fprintf(out, "  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}

// printTokenStats displays token statistics if available.
func printTokenStats(out io.Writer, op *client.OperationStats) {
	if op.TotalInputTokens == nil || op.TotalOutputTokens == nil {
		return
	}
	fmt.Fprintf(out, "  Tokens In:  %d total", *op.TotalInputTokens)
	if op.AvgInputTokens != nil {
		fmt.Fprintf(out, ", avg %.0f", *op.AvgInputTokens)
	}
	fmt.Fprintln(out)

	fmt.Fprintf(out, "  Tokens Out: %d total", *op.TotalOutputTokens)
	if op.AvgOutputTokens != nil {
		fmt.Fprintf(out, ", avg %.0f", *op.AvgOutputTokens)
	}
	fmt.Fprintln(out)
}
