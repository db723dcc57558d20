package analysis

import (
	"fmt"
	"strings"

	"github.com/raphaelgruber/diveroast/internal/models"
)

// ProfileReport describes a dive's metrics and the thresholds it breaks,
// in plain text for the model.
func ProfileReport(f models.DiveFeatures, th Thresholds) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Dive #%s", f.DiveID)
	if f.Site != "" {
		fmt.Fprintf(&sb, " at %s", f.Site)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Average depth %.1f m, maximum depth %.1f m, depth variability %.2f m.\n",
		f.AvgDepth, f.MaxDepth, f.DepthVariability)
	fmt.Fprintf(&sb, "Max ascent speed %.1f m/min, %d ascent segments above %.0f m/min.\n",
		f.MaxAscendSpeed, f.HighAscendSpeedCount, th.AscentRate)
	if f.SACKnown {
		fmt.Fprintf(&sb, "SAC rate %.1f L/min.\n", f.SACRate)
	} else {
		sb.WriteString("SAC rate not available (no tank pressure data).\n")
	}
	if f.NDLKnown {
		fmt.Fprintf(&sb, "Minimum NDL %.0f min.\n", f.MinNDL)
	} else {
		sb.WriteString("NDL not recorded by the dive computer.\n")
	}
	if f.TempKnown {
		fmt.Fprintf(&sb, "Water temperature avg %.1f °C, max %.1f °C.\n", f.AvgTemp, f.MaxTemp)
	}

	score, parts := Score(f, th)
	if len(parts) == 0 {
		sb.WriteString("No thresholds exceeded.")
		return sb.String()
	}
	fmt.Fprintf(&sb, "Danger score %.2f. Issues:\n", score)
	for _, p := range parts {
		sb.WriteString("- " + issueDetail(p, th) + "\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func issueDetail(p Contribution, th Thresholds) string {
	if p.Metric == models.MetricAdverse {
		return "ADVERSE CONDITIONS: poor rating, tagged conditions or critical NDL"
	}
	b, _ := th.Boundary(p.Metric)
	zone := strings.ToUpper(string(b.Classify(p.Value)))
	cmp := "above"
	if !b.HigherIsWorse {
		cmp = "below"
	}
	return fmt.Sprintf("%s %s: %.1f %s (%s safe limit %.0f %s)",
		zone, strings.ToUpper(b.Issue), p.Value, b.Unit, cmp, b.Safe, b.Unit)
}

// Summary is a compact overview of one dive.
func Summary(d models.Dive, f models.DiveFeatures) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Dive #%s\n", d.ID)
	site := d.Site
	if site == "" {
		site = "unknown site"
	}
	fmt.Fprintf(&sb, "Location: %s", site)
	if d.Trip != "" {
		fmt.Fprintf(&sb, " (%s)", d.Trip)
	}
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Max Depth: %.1f m\n", f.MaxDepth)
	fmt.Fprintf(&sb, "Duration: %.0f min\n", f.DurationMin)
	if f.SACKnown {
		fmt.Fprintf(&sb, "SAC: %.1f L/min\n", f.SACRate)
	}
	fmt.Fprintf(&sb, "Rating: %d/5", d.Rating)
	return sb.String()
}

// ListLine is the one-line form used when listing dives.
func ListLine(f models.DiveFeatures) string {
	site := f.Site
	if site == "" {
		site = "unknown site"
	}
	return fmt.Sprintf("#%s: %s | %.1f m max | rating %d/5", f.DiveID, site, f.MaxDepth, f.Rating)
}

// FallbackNote is the dive note used when no model-written note is available.
func FallbackNote(p models.ProblematicDive) string {
	site := p.Features.Site
	if site == "" {
		site = "an unknown site"
	}
	issues := "its overall profile"
	if len(p.Issues) > 0 {
		issues = strings.Join(p.Issues, ", ")
	}
	return fmt.Sprintf("Dive #%s at %s was flagged for %s.", p.DiveID, site, issues)
}
