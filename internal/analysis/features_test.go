package analysis

import (
	"testing"

	"github.com/raphaelgruber/diveroast/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func profile(depths ...float64) []models.Sample {
	samples := make([]models.Sample, len(depths))
	for i, d := range depths {
		samples[i] = models.Sample{Elapsed: float64(i * 60), Depth: d}
	}
	return samples
}

func TestAscentSpeedScenario(t *testing.T) {
	th := DefaultThresholds()
	th.AscentRate = 18

	// 40 -> 35 -> 26 -> 4 over one-minute steps: 5, 9 and 22 m/min.
	dive := models.Dive{ID: "1", Samples: profile(40, 35, 26, 4)}

	rates := AscentRates(dive.Samples)
	require.Len(t, rates, 3)
	assert.InDeltaSlice(t, []float64{5, 9, 22}, rates, 1e-9)

	f := ComputeFeatures(dive, th)
	assert.InDelta(t, 22, f.MaxAscendSpeed, 1e-9)
	assert.Equal(t, 1, f.HighAscendSpeedCount)
}

func TestAscentRatesIgnoreDescentAndFlatSegments(t *testing.T) {
	samples := []models.Sample{
		{Elapsed: 0, Depth: 0},
		{Elapsed: 60, Depth: 20},
		{Elapsed: 120, Depth: 20},
		{Elapsed: 180, Depth: 14},
	}
	rates := AscentRates(samples)
	assert.InDeltaSlice(t, []float64{6}, rates, 1e-9)
}

func TestComputeFeaturesDeterministic(t *testing.T) {
	th := DefaultThresholds()
	dive := models.Dive{
		ID:     "7",
		Site:   "Blue Hole",
		Rating: 4,
		Samples: []models.Sample{
			{Elapsed: 0, Depth: 0, Temperature: models.Float(27), Pressure: models.Float(200), NDL: models.Float(99)},
			{Elapsed: 120, Depth: 18.4, Temperature: models.Float(26.5), Pressure: models.Float(180), NDL: models.Float(40)},
			{Elapsed: 900, Depth: 22.1, Temperature: models.Float(26), Pressure: models.Float(120), NDL: models.Float(12)},
			{Elapsed: 1800, Depth: 5, Temperature: models.Float(27), Pressure: models.Float(80), NDL: models.Float(99)},
		},
	}

	first := ComputeFeatures(dive, th)
	for range 10 {
		assert.Equal(t, first, ComputeFeatures(dive, th))
	}
}

func TestVariabilityIsPopulationStdDev(t *testing.T) {
	dive := models.Dive{ID: "1", Samples: profile(10, 20)}
	f := ComputeFeatures(dive, DefaultThresholds())
	assert.InDelta(t, 15, f.AvgDepth, 1e-9)
	assert.InDelta(t, 20, f.MaxDepth, 1e-9)
	assert.InDelta(t, 5, f.DepthVariability, 1e-9)
}

func TestSACRate(t *testing.T) {
	th := DefaultThresholds()

	t.Run("computed from pressure drop", func(t *testing.T) {
		// 100 bar of a 12 l cylinder over 50 minutes at 2 bar ambient.
		dive := models.Dive{ID: "1", Samples: []models.Sample{
			{Elapsed: 0, Depth: 10, Pressure: models.Float(200)},
			{Elapsed: 3000, Depth: 10, Pressure: models.Float(100)},
		}}
		f := ComputeFeatures(dive, th)
		assert.True(t, f.SACKnown)
		assert.InDelta(t, 12, f.SACRate, 1e-9)
	})

	t.Run("uses cylinder size from log", func(t *testing.T) {
		dive := models.Dive{ID: "1", CylinderLiters: 15, Samples: []models.Sample{
			{Elapsed: 0, Depth: 10, Pressure: models.Float(200)},
			{Elapsed: 3000, Depth: 10, Pressure: models.Float(100)},
		}}
		f := ComputeFeatures(dive, th)
		assert.InDelta(t, 15, f.SACRate, 1e-9)
	})

	t.Run("falls back to reported SAC", func(t *testing.T) {
		dive := models.Dive{ID: "1", ReportedSAC: models.Float(14.5), Samples: profile(0, 10, 0)}
		f := ComputeFeatures(dive, th)
		assert.True(t, f.SACKnown)
		assert.Equal(t, 14.5, f.SACRate)
	})

	t.Run("unknown without pressure or report", func(t *testing.T) {
		f := ComputeFeatures(models.Dive{ID: "1", Samples: profile(0, 10, 0)}, th)
		assert.False(t, f.SACKnown)
		assert.Zero(t, f.SACRate)
	})
}

func TestMinNDL(t *testing.T) {
	th := DefaultThresholds()

	t.Run("minimum over samples", func(t *testing.T) {
		dive := models.Dive{ID: "1", Samples: []models.Sample{
			{Elapsed: 0, Depth: 5, NDL: models.Float(99)},
			{Elapsed: 60, Depth: 30, NDL: models.Float(7)},
			{Elapsed: 120, Depth: 10, NDL: models.Float(45)},
		}}
		f := ComputeFeatures(dive, th)
		assert.True(t, f.NDLKnown)
		assert.Equal(t, 7.0, f.MinNDL)
	})

	t.Run("default when not recorded", func(t *testing.T) {
		f := ComputeFeatures(models.Dive{ID: "1", Samples: profile(0, 10)}, th)
		assert.False(t, f.NDLKnown)
		assert.Equal(t, th.NDLUnknown, f.MinNDL)
	})
}

func TestAdverseConditions(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name string
		dive models.Dive
		want int
	}{
		{"good rating", models.Dive{ID: "1", Rating: 4, Samples: profile(0, 10, 0)}, 0},
		{"unrated", models.Dive{ID: "1", Rating: 0, Samples: profile(0, 10, 0)}, 0},
		{"poor rating", models.Dive{ID: "1", Rating: 2, Samples: profile(0, 10, 0)}, 1},
		{"adverse tag", models.Dive{ID: "1", Rating: 5, Tags: []string{"Boat", " Current "}, Samples: profile(0, 10, 0)}, 1},
		{"critical NDL", models.Dive{ID: "1", Rating: 5, Samples: []models.Sample{
			{Elapsed: 0, Depth: 30, NDL: models.Float(2)},
			{Elapsed: 60, Depth: 20, NDL: models.Float(8)},
		}}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ComputeFeatures(tt.dive, th).AdverseConditions)
		})
	}

	t.Run("high ascent trigger is opt-in", func(t *testing.T) {
		dive := models.Dive{ID: "1", Rating: 5, Samples: profile(30, 0)}
		assert.Equal(t, 0, ComputeFeatures(dive, th).AdverseConditions)

		opt := th
		opt.AdverseOnHighAscent = true
		assert.Equal(t, 1, ComputeFeatures(dive, opt).AdverseConditions)
	})
}

func TestAnalyzeExcludesShortDives(t *testing.T) {
	dives := []models.Dive{
		{ID: "1", Samples: profile(0, 10, 0)},
		{ID: "2", Samples: profile(5)},
		{ID: "3", Samples: profile(0, 12, 0)},
	}

	features, excluded := Analyze(dives, DefaultThresholds())
	require.Len(t, features, 2)
	assert.Equal(t, "1", features[0].DiveID)
	assert.Equal(t, "3", features[1].DiveID)
	assert.Equal(t, []models.ExcludedDive{{DiveID: "2", Reason: "too few samples"}}, excluded)
}
