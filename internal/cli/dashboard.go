package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	dashboardJSON   bool
	dashboardEnrich bool
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard <session-id>",
	Short: "Show a session's dashboard",
	Long: `Show the diver profile, the most dangerous dives and the metric ranges of
an uploaded log. With --enrich every top dive gets DAN incident excerpts and
a short note from the model.

Examples:
  diveroast dashboard 3f9c...
  diveroast dashboard 3f9c... --enrich
  diveroast dashboard 3f9c... --json`,
	Args: cobra.ExactArgs(1),
	RunE: runDashboard,
}

func init() {
	dashboardCmd.Flags().BoolVar(&dashboardJSON, "json", false, "print as JSON")
	dashboardCmd.Flags().BoolVar(&dashboardEnrich, "enrich", false, "add incident excerpts and dive notes")
}

func runDashboard(cmd *cobra.Command, args []string) error {
	dash, err := apiClient.Dashboard(context.Background(), args[0], dashboardEnrich)
	if err != nil {
		return fmt.Errorf("get dashboard: %w", err)
	}

	out := cmd.OutOrStdout()
	if dashboardJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(dash)
	}
	fmt.Fprint(out, renderer{color: useColor(out)}.Dashboard(*dash))
	return nil
}
