package analysis

import (
	"slices"

	"github.com/raphaelgruber/diveroast/internal/models"
)

// Contribution is one metric's share of a dive's danger score.
type Contribution struct {
	Metric models.Metric
	Value  float64
	Score  float64
}

// Score returns a dive's danger score and the per-metric contributions
// in threshold order. Metrics inside their safe zone contribute nothing.
func Score(f models.DiveFeatures, th Thresholds) (float64, []Contribution) {
	var total float64
	var parts []Contribution
	for _, b := range th.Metrics {
		if !scored(f, b.Metric) {
			continue
		}
		v := f.Value(b.Metric)
		excess := b.Excess(v)
		if th.MaxExcess > 0 && excess > th.MaxExcess {
			excess = th.MaxExcess
		}
		s := b.Weight * excess
		if s <= 0 {
			continue
		}
		total += s
		parts = append(parts, Contribution{Metric: b.Metric, Value: v, Score: s})
	}
	if f.AdverseConditions == 1 && th.AdverseWeight > 0 {
		total += th.AdverseWeight
		parts = append(parts, Contribution{Metric: models.MetricAdverse, Value: 1, Score: th.AdverseWeight})
	}
	return total, parts
}

// scored reports whether a metric has real data behind it.
func scored(f models.DiveFeatures, m models.Metric) bool {
	switch m {
	case models.MetricMinNDL:
		return f.NDLKnown
	case models.MetricSACRate:
		return f.SACKnown
	case models.MetricAvgTemp:
		return f.TempKnown
	}
	return true
}

// Issues lists the human-readable labels of every contributing metric.
func Issues(parts []Contribution, th Thresholds) []string {
	issues := make([]string, 0, len(parts))
	for _, p := range parts {
		issues = append(issues, issueLabel(p.Metric, th))
	}
	return issues
}

func issueLabel(m models.Metric, th Thresholds) string {
	if m == models.MetricAdverse {
		return th.AdverseIssue
	}
	b, _ := th.Boundary(m)
	return b.Issue
}

// PickReason names the metric with the largest contribution. The earliest
// metric in threshold order wins ties.
func PickReason(parts []Contribution, th Thresholds) string {
	best := -1
	for i, p := range parts {
		if best < 0 || p.Score > parts[best].Score {
			best = i
		}
	}
	if best < 0 {
		return FallbackPickReason
	}
	if parts[best].Metric == models.MetricAdverse {
		return th.AdversePickReason
	}
	b, _ := th.Boundary(parts[best].Metric)
	return b.PickReason
}

// Rank scores every dive and returns the topN most dangerous, sorted by
// descending score with ties broken by ascending dive id.
func Rank(features []models.DiveFeatures, topN int, th Thresholds) []models.ProblematicDive {
	if topN <= 0 {
		return []models.ProblematicDive{}
	}

	all := make([]models.ProblematicDive, 0, len(features))
	for _, f := range features {
		score, parts := Score(f, th)
		all = append(all, models.ProblematicDive{
			DiveID:     f.DiveID,
			Score:      score,
			Features:   f,
			Issues:     Issues(parts, th),
			PickReason: PickReason(parts, th),
		})
	}

	slices.SortStableFunc(all, func(a, b models.ProblematicDive) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return models.CompareDiveIDs(a.DiveID, b.DiveID)
	})

	if len(all) > topN {
		all = all[:topN]
	}
	for i := range all {
		all[i].Rank = i + 1
	}
	return all
}
