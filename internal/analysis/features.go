package analysis

import (
	"math"
	"strings"

	"github.com/raphaelgruber/diveroast/internal/models"
)

// MinSamples is the fewest samples a dive needs to be analysed.
const MinSamples = 2

// ComputeFeatures derives the risk metrics of one dive. It is a pure
// function of the dive and the thresholds.
func ComputeFeatures(d models.Dive, th Thresholds) models.DiveFeatures {
	f := models.DiveFeatures{
		DiveID:      d.ID,
		Site:        d.Site,
		Rating:      d.Rating,
		DurationMin: d.Duration(),
	}

	depths := make([]float64, 0, len(d.Samples))
	var temps, pressures, ndls []float64
	for _, s := range d.Samples {
		depths = append(depths, s.Depth)
		if s.Temperature != nil {
			temps = append(temps, *s.Temperature)
		}
		if s.Pressure != nil {
			pressures = append(pressures, *s.Pressure)
		}
		if s.NDL != nil {
			ndls = append(ndls, *s.NDL)
		}
	}

	f.AvgDepth, f.MaxDepth, f.DepthVariability = summarize(depths)
	f.AvgTemp, f.MaxTemp, f.TempVariability = summarize(temps)
	f.TempKnown = len(temps) > 0
	f.AvgPressure, f.MaxPressure, f.PressureVariability = summarize(pressures)

	f.MinNDL, f.NDLKnown = th.NDLUnknown, false
	if len(ndls) > 0 {
		f.MinNDL, f.NDLKnown = minOf(ndls), true
	}

	f.MaxAscendSpeed, f.HighAscendSpeedCount = ascentProfile(d.Samples, th.AscentRate)
	f.SACRate, f.SACKnown = sacRate(d, f.AvgDepth, th.CylinderLiters)

	if isAdverse(d, f, th) {
		f.AdverseConditions = 1
	}
	return f
}

// AscentRates returns the rate in m/min for every ascending sample pair.
func AscentRates(samples []models.Sample) []float64 {
	var rates []float64
	for i := 1; i < len(samples); i++ {
		dt := samples[i].Elapsed - samples[i-1].Elapsed
		rise := samples[i-1].Depth - samples[i].Depth
		if dt <= 0 || rise <= 0 {
			continue
		}
		rates = append(rates, rise*60/dt)
	}
	return rates
}

func ascentProfile(samples []models.Sample, threshold float64) (float64, int) {
	var maxRate float64
	count := 0
	for _, r := range AscentRates(samples) {
		if r > maxRate {
			maxRate = r
		}
		if r > threshold {
			count++
		}
	}
	return maxRate, count
}

// sacRate normalises gas used to surface litres per minute:
// drop(bar) * cylinder(l) / minutes / mean ambient pressure(bar).
func sacRate(d models.Dive, avgDepth, defaultLiters float64) (float64, bool) {
	var first, last *models.Sample
	for i := range d.Samples {
		if d.Samples[i].Pressure == nil {
			continue
		}
		if first == nil {
			first = &d.Samples[i]
		}
		last = &d.Samples[i]
	}

	if first != nil && last != first {
		drop := *first.Pressure - *last.Pressure
		minutes := (last.Elapsed - first.Elapsed) / 60
		if drop > 0 && minutes > 0 {
			liters := d.CylinderLiters
			if liters <= 0 {
				liters = defaultLiters
			}
			ambient := 1 + avgDepth/10
			return drop * liters / minutes / ambient, true
		}
	}

	if d.ReportedSAC != nil {
		return *d.ReportedSAC, true
	}
	return 0, false
}

func isAdverse(d models.Dive, f models.DiveFeatures, th Thresholds) bool {
	if d.Rating > 0 && d.Rating < th.AdverseRatingBelow {
		return true
	}
	if f.NDLKnown && f.MinNDL < th.NDLCritical {
		return true
	}
	if th.AdverseOnHighAscent && f.HighAscendSpeedCount > 0 {
		return true
	}
	for _, tag := range d.Tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		for _, adverse := range th.AdverseTags {
			if tag == strings.ToLower(adverse) {
				return true
			}
		}
	}
	return false
}

// summarize returns mean, max and population standard deviation.
// An empty series yields zeros.
func summarize(xs []float64) (mean, maxV, std float64) {
	if len(xs) == 0 {
		return 0, 0, 0
	}
	maxV = xs[0]
	var sum float64
	for _, x := range xs {
		sum += x
		if x > maxV {
			maxV = x
		}
	}
	mean = sum / float64(len(xs))

	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	std = math.Sqrt(sq / float64(len(xs)))
	return mean, maxV, std
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

// Analyze computes features for every analysable dive in log order and
// reports the dives it had to leave out.
func Analyze(dives []models.Dive, th Thresholds) ([]models.DiveFeatures, []models.ExcludedDive) {
	features := make([]models.DiveFeatures, 0, len(dives))
	var excluded []models.ExcludedDive
	for _, d := range dives {
		if len(d.Samples) < MinSamples {
			excluded = append(excluded, models.ExcludedDive{DiveID: d.ID, Reason: "too few samples"})
			continue
		}
		features = append(features, ComputeFeatures(d, th))
	}
	return features, excluded
}
