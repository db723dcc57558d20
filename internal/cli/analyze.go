package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/diveroast/internal/analysis"
	"github.com/raphaelgruber/diveroast/internal/config"
	"github.com/raphaelgruber/diveroast/internal/logbook"
	"github.com/raphaelgruber/diveroast/internal/models"
)

var analyzeJSON bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Analyse a dive log locally",
	Long: `Analyse a Subsurface XML export without a server: compute per-dive
features, rank the most dangerous dives and print the metric ranges.

Thresholds come from the DIVEROAST_* environment variables and the optional
DIVEROAST_THRESHOLDS_FILE.

Examples:
  diveroast analyze ~/dives.ssrf
  diveroast analyze export.xml --json | jq '.top_problematic_dives'`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the dashboard as JSON")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	th, err := config.Load().Thresholds()
	if err != nil {
		return err
	}
	dash, excluded, err := analyzeFile(args[0], th)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if analyzeJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(dash)
	}

	r := renderer{color: useColor(out)}
	fmt.Fprint(out, r.Dashboard(dash))
	fmt.Fprint(out, r.Excluded(excluded))
	return nil
}

// analyzeFile runs the upload pipeline on a local file without keeping a session.
func analyzeFile(path string, th analysis.Thresholds) (models.Dashboard, []models.ExcludedDive, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Dashboard{}, nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	dives, err := logbook.Decode(path, f)
	if err != nil {
		return models.Dashboard{}, nil, err
	}
	features, excluded := analysis.Analyze(dives, th)
	if len(features) == 0 {
		return models.Dashboard{}, excluded, &models.ParseError{Sample: -1, Reason: "no dive has enough samples to analyse"}
	}

	sess := models.Session{
		ID:       "local",
		Dives:    dives,
		Features: features,
		Ranking:  analysis.Rank(features, th.TopN, th),
		Excluded: excluded,
	}
	return analysis.BuildDashboard(sess, th), excluded, nil
}
