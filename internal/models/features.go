package models

// DiveFeatures holds the metrics derived from one dive's samples.
type DiveFeatures struct {
	DiveID string `json:"dive_id"`
	Site   string `json:"site"`

	AvgDepth         float64 `json:"avg_depth"`
	MaxDepth         float64 `json:"max_depth"`
	DepthVariability float64 `json:"depth_variability"`

	AvgTemp         float64 `json:"avg_temp"`
	MaxTemp         float64 `json:"max_temp"`
	TempVariability float64 `json:"temp_variability"`
	TempKnown       bool    `json:"temp_known"`

	AvgPressure         float64 `json:"avg_pressure"`
	MaxPressure         float64 `json:"max_pressure"`
	PressureVariability float64 `json:"pressure_variability"`

	MinNDL   float64 `json:"min_ndl"`
	NDLKnown bool    `json:"ndl_known"`

	SACRate  float64 `json:"sac_rate"`
	SACKnown bool    `json:"sac_known"`

	MaxAscendSpeed       float64 `json:"max_ascend_speed"`
	HighAscendSpeedCount int     `json:"high_ascend_speed_count"`

	AdverseConditions int `json:"adverse_conditions"` // 0 or 1
	Rating            int `json:"rating"`

	DurationMin float64 `json:"duration_min"`
}

// Metric names a scored dive metric.
type Metric string

const (
	MetricMaxDepth       Metric = "max_depth"
	MetricMaxAscendSpeed Metric = "max_ascend_speed"
	MetricSACRate        Metric = "sac_rate"
	MetricMinNDL         Metric = "min_ndl"
	MetricAvgTemp        Metric = "avg_temp"
	MetricAdverse        Metric = "adverse_conditions"
)

// Value returns the feature value backing a metric.
func (f DiveFeatures) Value(m Metric) float64 {
	switch m {
	case MetricMaxDepth:
		return f.MaxDepth
	case MetricMaxAscendSpeed:
		return f.MaxAscendSpeed
	case MetricSACRate:
		return f.SACRate
	case MetricMinNDL:
		return f.MinNDL
	case MetricAvgTemp:
		return f.AvgTemp
	case MetricAdverse:
		return float64(f.AdverseConditions)
	default:
		return 0
	}
}

// Zone is the safe/warning/danger classification of a metric value.
type Zone string

const (
	ZoneSafe    Zone = "safe"
	ZoneWarning Zone = "warning"
	ZoneDanger  Zone = "danger"
)

// Severity orders zones from safe (0) to danger (2).
func (z Zone) Severity() int {
	switch z {
	case ZoneWarning:
		return 1
	case ZoneDanger:
		return 2
	default:
		return 0
	}
}

// MetricPoint is one dive's value within a MetricRange.
type MetricPoint struct {
	DiveID string  `json:"dive_id"`
	Value  float64 `json:"value"`
	Zone   Zone    `json:"zone"`
}

// MetricRange is the cross-dive view of one metric.
type MetricRange struct {
	Metric          Metric        `json:"metric"`
	Label           string        `json:"label"`
	Unit            string        `json:"unit"`
	Min             float64       `json:"min"`
	Max             float64       `json:"max"`
	Avg             float64       `json:"avg"`
	Worst           float64       `json:"worst"`
	WorstDiveID     string        `json:"worst_dive_id"`
	SafeBoundary    float64       `json:"safe_boundary"`
	WarningBoundary float64       `json:"warning_boundary"`
	HigherIsWorse   bool          `json:"higher_is_worse"`
	Dives           []MetricPoint `json:"dives"`
}

// ProblematicDive is a dive selected into the danger ranking.
type ProblematicDive struct {
	Rank       int                `json:"rank"`
	DiveID     string             `json:"dive_id"`
	Score      float64            `json:"score"`
	Features   DiveFeatures       `json:"features"`
	Issues     []string           `json:"issues"`
	PickReason string             `json:"pick_reason"`
	Excerpts   []RetrievedPassage `json:"excerpts,omitempty"`
	Note       string             `json:"note,omitempty"`
}

// AggregateStats summarises all analysed dives of a session.
type AggregateStats struct {
	TotalDives                 int     `json:"total_dives"`
	AvgMaxDepth                float64 `json:"avg_max_depth"`
	AvgSACRate                 float64 `json:"avg_sac_rate"`
	AvgMaxAscendSpeed          float64 `json:"avg_max_ascend_speed"`
	DivesWithAdverseConditions int     `json:"dives_with_adverse_conditions"`
}

// DiverProfile describes the diver as inferred from the logbook.
type DiverProfile struct {
	TotalDives      int      `json:"total_dives"`
	DeepestDive     float64  `json:"deepest_dive"`
	WaterTypes      []string `json:"water_types"`
	Regions         []string `json:"regions"`
	Sites           []string `json:"sites"`
	ExperienceLevel string   `json:"experience_level"`
}

// Dashboard is the read model returned for a session.
type Dashboard struct {
	SessionID           string            `json:"session_id"`
	AggregateStats      AggregateStats    `json:"aggregate_stats"`
	MetricRanges        []MetricRange     `json:"metric_ranges"`
	AllDiveFeatures     []DiveFeatures    `json:"all_dive_features"`
	TopProblematicDives []ProblematicDive `json:"top_problematic_dives"`
	DiverProfile        DiverProfile      `json:"diver_profile"`
}
