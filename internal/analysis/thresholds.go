// Package analysis derives per-dive risk metrics, danger rankings and
// session-level aggregates from parsed dives.
package analysis

import "github.com/raphaelgruber/diveroast/internal/models"

// Boundary describes how one metric is zoned and scored.
type Boundary struct {
	Metric models.Metric `yaml:"metric"`
	Label  string        `yaml:"label"`
	Unit   string        `yaml:"unit"`

	// Safe and Warning are upper bounds when HigherIsWorse, lower bounds otherwise.
	Safe          float64 `yaml:"safe"`
	Warning       float64 `yaml:"warning"`
	HigherIsWorse bool    `yaml:"higher_is_worse"`

	Weight     float64 `yaml:"weight"`
	Issue      string  `yaml:"issue"`
	PickReason string  `yaml:"pick_reason"`
}

// Classify zones a value. Moving the value in the worsening direction
// never lowers the zone severity.
func (b Boundary) Classify(v float64) models.Zone {
	if b.HigherIsWorse {
		switch {
		case v <= b.Safe:
			return models.ZoneSafe
		case v <= b.Warning:
			return models.ZoneWarning
		default:
			return models.ZoneDanger
		}
	}
	switch {
	case v >= b.Safe:
		return models.ZoneSafe
	case v >= b.Warning:
		return models.ZoneWarning
	default:
		return models.ZoneDanger
	}
}

// Excess returns how far v sits beyond the safe boundary, in units of the
// safe-to-warning span. Zero inside the safe zone.
func (b Boundary) Excess(v float64) float64 {
	span := b.Warning - b.Safe
	over := v - b.Safe
	if !b.HigherIsWorse {
		span = b.Safe - b.Warning
		over = b.Safe - v
	}
	if over <= 0 {
		return 0
	}
	if span <= 0 {
		span = 1
	}
	return over / span
}

// Thresholds is the configuration surface of the feature engine and ranking.
type Thresholds struct {
	Metrics []Boundary `yaml:"metrics"`

	AdverseWeight     float64 `yaml:"adverse_weight"`
	AdverseIssue      string  `yaml:"adverse_issue"`
	AdversePickReason string  `yaml:"adverse_pick_reason"`
	// MaxExcess caps a single metric's normalised excess.
	MaxExcess float64 `yaml:"max_excess"`

	AscentRate          float64  `yaml:"ascent_rate"`  // m/min counted as a high-speed ascent
	NDLCritical         float64  `yaml:"ndl_critical"` // minutes; below this the dive is adverse
	NDLUnknown          float64  `yaml:"ndl_unknown"`  // min_ndl reported when no NDL samples exist
	AdverseRatingBelow  int      `yaml:"adverse_rating_below"`
	AdverseOnHighAscent bool     `yaml:"adverse_on_high_ascent"`
	AdverseTags         []string `yaml:"adverse_tags"`
	CylinderLiters      float64  `yaml:"cylinder_liters"`

	TopN int `yaml:"top_n"`
}

// FallbackPickReason is used for dives that violate no threshold.
const FallbackPickReason = "Most dangerous overall"

// DefaultThresholds returns the stock boundaries and weights.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Metrics: []Boundary{
			{
				Metric: models.MetricMinNDL, Label: "Minimum NDL", Unit: "min",
				Safe: 10, Warning: 5, Weight: 3,
				Issue: "low NDL", PickReason: "Closest to decompression limit",
			},
			{
				Metric: models.MetricMaxAscendSpeed, Label: "Max Ascent Speed", Unit: "m/min",
				Safe: 9, Warning: 10, HigherIsWorse: true, Weight: 2,
				Issue: "rapid ascent", PickReason: "Fastest ascent rate",
			},
			{
				Metric: models.MetricSACRate, Label: "SAC Rate", Unit: "L/min",
				Safe: 15, Warning: 20, HigherIsWorse: true, Weight: 1,
				Issue: "high air consumption", PickReason: "Highest air consumption",
			},
			{
				Metric: models.MetricMaxDepth, Label: "Max Depth", Unit: "m",
				Safe: 18, Warning: 30, HigherIsWorse: true, Weight: 1,
				Issue: "deep dive", PickReason: "Deepest dive with issues",
			},
			{
				Metric: models.MetricAvgTemp, Label: "Avg Temperature", Unit: "°C",
				Safe: 10, Warning: 5, Weight: 0.5,
				Issue: "cold water", PickReason: "Coldest water",
			},
		},
		AdverseWeight:      5,
		AdverseIssue:       "adverse conditions",
		AdversePickReason:  "Worst conditions",
		MaxExcess:          4,
		AscentRate:         10,
		NDLCritical:        3,
		NDLUnknown:         99,
		AdverseRatingBelow: 3,
		AdverseTags:        []string{"current", "surge", "poor visibility", "low visibility", "rough"},
		CylinderLiters:     12,
		TopN:               3,
	}
}

// Boundary returns the boundary configured for a metric.
func (t Thresholds) Boundary(m models.Metric) (Boundary, bool) {
	for _, b := range t.Metrics {
		if b.Metric == m {
			return b, true
		}
	}
	return Boundary{}, false
}
