package analysis

import "github.com/raphaelgruber/diveroast/internal/models"

// MetricRanges builds the cross-dive view of every configured metric.
// Dives without data for a metric (unknown NDL or SAC) are left out of it.
func MetricRanges(features []models.DiveFeatures, th Thresholds) []models.MetricRange {
	ranges := make([]models.MetricRange, 0, len(th.Metrics))
	for _, b := range th.Metrics {
		r := models.MetricRange{
			Metric:          b.Metric,
			Label:           b.Label,
			Unit:            b.Unit,
			SafeBoundary:    b.Safe,
			WarningBoundary: b.Warning,
			HigherIsWorse:   b.HigherIsWorse,
			Dives:           []models.MetricPoint{},
		}

		var sum float64
		for _, f := range features {
			if !scored(f, b.Metric) {
				continue
			}
			v := f.Value(b.Metric)
			r.Dives = append(r.Dives, models.MetricPoint{
				DiveID: f.DiveID,
				Value:  round2(v),
				Zone:   b.Classify(v),
			})
			if len(r.Dives) == 1 {
				r.Min, r.Max = v, v
				r.Worst, r.WorstDiveID = v, f.DiveID
			}
			if v < r.Min {
				r.Min = v
			}
			if v > r.Max {
				r.Max = v
			}
			if worse(b, v, r.Worst) {
				r.Worst, r.WorstDiveID = v, f.DiveID
			}
			sum += v
		}
		if n := len(r.Dives); n > 0 {
			r.Avg = round2(sum / float64(n))
		}
		r.Min, r.Max, r.Worst = round2(r.Min), round2(r.Max), round2(r.Worst)
		ranges = append(ranges, r)
	}
	return ranges
}

func worse(b Boundary, v, current float64) bool {
	if b.HigherIsWorse {
		return v > current
	}
	return v < current
}
