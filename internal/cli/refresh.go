package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var refreshNoWait bool

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Rebuild the DAN incident and guideline corpus",
	Long: `Start a background job that fetches DAN articles, chunks and embeds them
and replaces the retrieval corpus. Only one refresh runs at a time; starting
another while one is active attaches to the running job.

Examples:
  diveroast refresh
  diveroast refresh --no-wait`,
	Args: cobra.NoArgs,
	RunE: runRefresh,
}

func init() {
	refreshCmd.Flags().BoolVar(&refreshNoWait, "no-wait", false, "print the job id and return")
}

func runRefresh(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	out := cmd.OutOrStdout()

	jobID, running, err := apiClient.StartRefresh(ctx)
	if err != nil {
		return fmt.Errorf("start refresh: %w", err)
	}
	if running {
		fmt.Fprintf(out, "A refresh is already running: %s\n", jobID)
	}

	if refreshNoWait || !isTerminal(os.Stdout) {
		fmt.Fprintln(out, jobID)
		return nil
	}

	job, err := apiClient.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	return RunJobProgress(apiClient, job)
}
