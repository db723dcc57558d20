package cli

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/diveroast/internal/client"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect corpus refresh jobs",
	Long: `List all corpus refresh jobs or inspect a specific job by ID.

Examples:
  diveroast jobs           # List all jobs
  diveroast jobs abc123    # Show details for job abc123`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		return showJob(ctx, out, args[0])
	}
	return listJobs(ctx, out)
}

func listJobs(ctx context.Context, out io.Writer) error {
	jobs, err := apiClient.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Fprintln(out, "No jobs found")
		return nil
	}

	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		progress := ""
		if job.Total > 0 {
			progress = fmt.Sprintf("%d/%d", job.Progress, job.Total)
		}
		rows = append(rows, []string{job.ID, job.Status, progress, job.StartedAt.Local().Format("2006-01-02 15:04:05")})
	}
	r := renderer{color: useColor(out)}
	fmt.Fprintln(out, r.table([]string{"ID", "STATUS", "PROGRESS", "STARTED"}, rows, nil))
	return nil
}

func showJob(ctx context.Context, out io.Writer, id string) error {
	job, err := apiClient.GetJob(ctx, id)
	if err != nil {
		if client.IsNotFound(err) {
			return fmt.Errorf("job not found: %s", id)
		}
		return fmt.Errorf("get job: %w", err)
	}
	printJob(out, job)
	return nil
}

func printJob(out io.Writer, job *client.Job) {
	fmt.Fprintf(out, "Job: %s\n", job.ID)
	fmt.Fprintf(out, "  Status: %s\n", job.Status)
	if job.Total > 0 {
		fmt.Fprintf(out, "  Progress: %d/%d\n", job.Progress, job.Total)
	}
	fmt.Fprintf(out, "  Started: %s\n", job.StartedAt.Format(time.RFC3339))
	if job.CompletedAt != nil {
		fmt.Fprintf(out, "  Completed: %s\n", job.CompletedAt.Format(time.RFC3339))
		fmt.Fprintf(out, "  Duration: %s\n", job.CompletedAt.Sub(job.StartedAt).Round(time.Second))
	}
	if job.Error != "" {
		fmt.Fprintf(out, "  Error: %s\n", job.Error)
	}
	if job.Result != nil {
		fmt.Fprintln(out, "\nResult:")
		fmt.Fprint(out, formatJobResult(job.Result))
	}
}

// formatJobResult lists the refresh counters, categories in name order.
func formatJobResult(r *client.JobResult) string {
	s := fmt.Sprintf("  Articles: %d\n  Passages: %d\n", r.Articles, r.Passages)
	for _, cat := range slices.Sorted(maps.Keys(r.ByCategory)) {
		s += fmt.Sprintf("    %-12s %d\n", cat+":", r.ByCategory[cat])
	}
	if r.Skipped > 0 {
		s += fmt.Sprintf("  Skipped: %d\n", r.Skipped)
	}
	return s
}
