package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/raphaelgruber/diveroast/internal/models"
)

// zoneColors maps a zone onto its terminal colour.
var zoneColors = map[models.Zone]lipgloss.Color{
	models.ZoneSafe:    lipgloss.Color("#00D787"), // green
	models.ZoneWarning: lipgloss.Color("#FFAF00"), // amber
	models.ZoneDanger:  lipgloss.Color("#FF005F"), // red
}

// renderer styles output, or leaves it plain for pipes and NO_COLOR.
type renderer struct {
	color bool
}

func (r renderer) zone(z models.Zone, s string) string {
	if !r.color {
		return s
	}
	return lipgloss.NewStyle().Foreground(zoneColors[z]).Render(s)
}

func (r renderer) title(s string) string {
	if !r.color {
		return s
	}
	return lipgloss.NewStyle().Bold(true).Foreground(defaultTheme.Status).Render(s)
}

func (r renderer) hint(s string) string {
	if !r.color {
		return s
	}
	return defaultTheme.hintStyle().Render(s)
}

func (r renderer) table(headers []string, rows [][]string, style func(row, col int) lipgloss.Style) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...)
	if r.color {
		t = t.BorderStyle(lipgloss.NewStyle().Foreground(defaultTheme.Hint))
	}
	t = t.StyleFunc(func(row, col int) lipgloss.Style {
		base := lipgloss.NewStyle().Padding(0, 1)
		if row == table.HeaderRow {
			return base.Bold(r.color)
		}
		if style != nil && r.color {
			return style(row, col).Inherit(base)
		}
		return base
	})
	return t.Render()
}

// Dashboard renders the profile, the top dives and the metric ranges.
func (r renderer) Dashboard(d models.Dashboard) string {
	var b strings.Builder

	p := d.DiverProfile
	b.WriteString(r.title("Diver profile") + "\n")
	fmt.Fprintf(&b, "  %d dives, deepest %.1f m, %s\n", p.TotalDives, p.DeepestDive, p.ExperienceLevel)
	if len(p.WaterTypes) > 0 {
		fmt.Fprintf(&b, "  Water: %s\n", strings.Join(p.WaterTypes, ", "))
	}
	if len(p.Regions) > 0 {
		fmt.Fprintf(&b, "  Regions: %s\n", strings.Join(p.Regions, ", "))
	}
	a := d.AggregateStats
	fmt.Fprintf(&b, "  Avg max depth %.1f m | avg SAC %.1f l/min | avg max ascent %.1f m/min | %d adverse\n\n",
		a.AvgMaxDepth, a.AvgSACRate, a.AvgMaxAscendSpeed, a.DivesWithAdverseConditions)

	b.WriteString(r.title("Most dangerous dives") + "\n")
	if len(d.TopProblematicDives) == 0 {
		b.WriteString("  none\n")
	} else {
		b.WriteString(r.topDives(d.TopProblematicDives) + "\n")
	}
	for _, pd := range d.TopProblematicDives {
		if pd.Note == "" && len(pd.Excerpts) == 0 {
			continue
		}
		fmt.Fprintf(&b, "  #%s: %s\n", pd.DiveID, pd.Note)
		for _, e := range pd.Excerpts {
			b.WriteString(r.hint(fmt.Sprintf("      DAN: %s %s", e.Title, e.URL)) + "\n")
		}
	}

	b.WriteString("\n" + r.title("Metric ranges") + "\n")
	b.WriteString(r.metricRanges(d.MetricRanges) + "\n")
	return b.String()
}

func (r renderer) topDives(dives []models.ProblematicDive) string {
	rows := make([][]string, len(dives))
	for i, pd := range dives {
		site := pd.Features.Site
		if site == "" {
			site = "-"
		}
		issues := strings.Join(pd.Issues, ", ")
		if issues == "" {
			issues = "-"
		}
		rows[i] = []string{
			strconv.Itoa(pd.Rank), "#" + pd.DiveID, site,
			fmt.Sprintf("%.2f", pd.Score), issues, pd.PickReason,
		}
	}
	return r.table([]string{"RANK", "DIVE", "SITE", "SCORE", "ISSUES", "WHY"}, rows, func(row, col int) lipgloss.Style {
		if col == 4 && len(dives[row].Issues) > 0 {
			return lipgloss.NewStyle().Foreground(zoneColors[models.ZoneDanger])
		}
		return lipgloss.NewStyle()
	})
}

func (r renderer) metricRanges(ranges []models.MetricRange) string {
	rows := make([][]string, 0, len(ranges))
	zones := make([]models.Zone, 0, len(ranges))
	for _, m := range ranges {
		if len(m.Dives) == 0 {
			rows = append(rows, []string{m.Label, m.Unit, "-", "-", "-", "no data", "-"})
			zones = append(zones, models.ZoneSafe)
			continue
		}
		counts := map[models.Zone]int{}
		worstZone := models.ZoneSafe
		for _, p := range m.Dives {
			counts[p.Zone]++
			if p.DiveID == m.WorstDiveID {
				worstZone = p.Zone
			}
		}
		rows = append(rows, []string{
			m.Label, m.Unit,
			fmt.Sprintf("%.1f", m.Min), fmt.Sprintf("%.1f", m.Avg), fmt.Sprintf("%.1f", m.Max),
			fmt.Sprintf("%.1f (#%s)", m.Worst, m.WorstDiveID),
			fmt.Sprintf("%d/%d/%d", counts[models.ZoneSafe], counts[models.ZoneWarning], counts[models.ZoneDanger]),
		})
		zones = append(zones, worstZone)
	}
	return r.table([]string{"METRIC", "UNIT", "MIN", "AVG", "MAX", "WORST", "SAFE/WARN/DANGER"}, rows, func(row, col int) lipgloss.Style {
		if col == 5 {
			return lipgloss.NewStyle().Foreground(zoneColors[zones[row]])
		}
		return lipgloss.NewStyle()
	})
}

// Excluded lists dives left out of the analysis.
func (r renderer) Excluded(excluded []models.ExcludedDive) string {
	if len(excluded) == 0 {
		return ""
	}
	parts := make([]string, len(excluded))
	for i, x := range excluded {
		parts[i] = fmt.Sprintf("#%s (%s)", x.DiveID, x.Reason)
	}
	return r.hint("Skipped: "+strings.Join(parts, ", ")) + "\n"
}
