package analysis

import (
	"math"
	"slices"
	"strings"

	"github.com/raphaelgruber/diveroast/internal/models"
)

// region is a coarse latitude/longitude box used to name dive regions.
type region struct {
	name                           string
	latMin, latMax, lonMin, lonMax float64
}

// regions are checked in order; the first match wins.
var regions = []region{
	{"Red Sea", 12, 30, 32, 44},
	{"Mediterranean", 30, 46, -6, 36},
	{"Southeast Asia", -11, 20, 95, 141},
	{"Caribbean", 10, 27, -90, -59},
	{"Central America", 7, 18, -92, -77},
	{"South Pacific", -25, 0, 150, 180},
	{"North Atlantic", 40, 65, -80, 0},
	{"Indian Ocean", -35, 10, 40, 95},
	{"East Africa", -30, 5, 30, 55},
	{"Australia", -45, -10, 110, 155},
	{"Japan", 24, 46, 122, 146},
	{"Hawaii", 18, 23, -162, -154},
}

// waterKeywords maps substrings of site and trip names to water body types.
var waterKeywords = []struct {
	waterType string
	words     []string
}{
	{"Quarry", []string{"quarry"}},
	{"Lake", []string{"lake", "lac", "see"}},
	{"Cave", []string{"cave", "cavern", "cenote"}},
	{"Wreck", []string{"wreck"}},
	{"River", []string{"river"}},
}

// Aggregate summarises the analysed dives.
func Aggregate(features []models.DiveFeatures) models.AggregateStats {
	stats := models.AggregateStats{TotalDives: len(features)}
	if len(features) == 0 {
		return stats
	}

	var depth, ascent, sac float64
	sacCount := 0
	for _, f := range features {
		depth += f.MaxDepth
		ascent += f.MaxAscendSpeed
		if f.SACKnown {
			sac += f.SACRate
			sacCount++
		}
		stats.DivesWithAdverseConditions += f.AdverseConditions
	}
	n := float64(len(features))
	stats.AvgMaxDepth = round2(depth / n)
	stats.AvgMaxAscendSpeed = round2(ascent / n)
	if sacCount > 0 {
		stats.AvgSACRate = round2(sac / float64(sacCount))
	}
	return stats
}

// Profile infers the diver's experience, regions and water types.
func Profile(dives []models.Dive, features []models.DiveFeatures) models.DiverProfile {
	analysed := make(map[string]models.DiveFeatures, len(features))
	for _, f := range features {
		analysed[f.DiveID] = f
	}

	p := models.DiverProfile{
		TotalDives: len(features),
		WaterTypes: []string{},
		Regions:    []string{},
		Sites:      []string{},
	}
	for _, d := range dives {
		f, ok := analysed[d.ID]
		if !ok {
			continue
		}
		p.DeepestDive = math.Max(p.DeepestDive, f.MaxDepth)

		if f.TempKnown {
			p.WaterTypes = appendUnique(p.WaterTypes, waterTypeForTemp(f.AvgTemp))
		}
		names := strings.ToLower(d.Site + " " + d.Trip)
		for _, wk := range waterKeywords {
			if slices.ContainsFunc(wk.words, func(w string) bool { return strings.Contains(names, w) }) {
				p.WaterTypes = appendUnique(p.WaterTypes, wk.waterType)
			}
		}

		if d.Site != "" {
			p.Sites = appendUnique(p.Sites, d.Site)
		}
		if d.HasCoordinates() {
			if r := regionFor(*d.Latitude, *d.Longitude); r != "" {
				p.Regions = appendUnique(p.Regions, r)
			}
		}
	}
	p.ExperienceLevel = experienceLevel(p.TotalDives, p.DeepestDive)
	return p
}

func waterTypeForTemp(avg float64) string {
	switch {
	case avg > 24:
		return "Tropical"
	case avg >= 15:
		return "Temperate"
	default:
		return "Cold water"
	}
}

func regionFor(lat, lon float64) string {
	for _, r := range regions {
		if lat >= r.latMin && lat <= r.latMax && lon >= r.lonMin && lon <= r.lonMax {
			return r.name
		}
	}
	return ""
}

func experienceLevel(dives int, deepest float64) string {
	switch {
	case dives >= 100 || deepest > 40:
		return "advanced"
	case dives >= 30 || deepest > 25:
		return "intermediate"
	default:
		return "beginner"
	}
}

// BuildDashboard assembles the read model for a session snapshot.
func BuildDashboard(s models.Session, th Thresholds) models.Dashboard {
	return models.Dashboard{
		SessionID:           s.ID,
		AggregateStats:      Aggregate(s.Features),
		MetricRanges:        MetricRanges(s.Features, th),
		AllDiveFeatures:     s.Features,
		TopProblematicDives: s.Ranking,
		DiverProfile:        Profile(s.Dives, s.Features),
	}
}

func appendUnique(xs []string, v string) []string {
	if slices.Contains(xs, v) {
		return xs
	}
	return append(xs, v)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
