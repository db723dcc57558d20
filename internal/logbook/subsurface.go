package logbook

import (
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/raphaelgruber/diveroast/internal/models"
)

// Subsurface decodes Subsurface XML (.ssrf/.xml) exports.
type Subsurface struct{}

var _ Decoder = Subsurface{}

type xmlLog struct {
	XMLName xml.Name  `xml:"divelog"`
	Sites   []xmlSite `xml:"divesites>site"`
	Trips   []xmlTrip `xml:"dives>trip"`
	Dives   []xmlDive `xml:"dives>dive"`
}

type xmlSite struct {
	UUID string `xml:"uuid,attr"`
	Name string `xml:"name,attr"`
	GPS  string `xml:"gps,attr"`
}

type xmlTrip struct {
	Location string    `xml:"location,attr"`
	Dives    []xmlDive `xml:"dive"`
}

type xmlDive struct {
	Number    string        `xml:"number,attr"`
	SiteID    string        `xml:"divesiteid,attr"`
	Rating    string        `xml:"rating,attr"`
	SAC       string        `xml:"sac,attr"`
	Tags      string        `xml:"tags,attr"`
	Cylinders []xmlCylinder `xml:"cylinder"`
	Computers []xmlComputer `xml:"divecomputer"`
}

type xmlCylinder struct {
	Size string `xml:"size,attr"`
}

type xmlComputer struct {
	Samples []xmlSample `xml:"sample"`
}

type xmlSample struct {
	Time      string `xml:"time,attr"`
	Depth     string `xml:"depth,attr"`
	Temp      string `xml:"temp,attr"`
	Pressure  string `xml:"pressure,attr"`
	Pressure0 string `xml:"pressure0,attr"`
	NDL       string `xml:"ndl,attr"`
}

// Extensions implements Decoder.
func (Subsurface) Extensions() []string {
	return []string{".ssrf", ".xml"}
}

// Decode implements Decoder. Dives are returned ordered by dive number.
func (Subsurface) Decode(r io.Reader) ([]models.Dive, error) {
	var log xmlLog
	if err := xml.NewDecoder(r).Decode(&log); err != nil {
		return nil, &models.ParseError{Sample: -1, Reason: "malformed XML: " + err.Error()}
	}

	sites := make(map[string]xmlSite, len(log.Sites))
	for _, s := range log.Sites {
		sites[s.UUID] = s
	}

	type tripDive struct {
		trip string
		dive xmlDive
	}
	var raw []tripDive
	for _, t := range log.Trips {
		for _, d := range t.Dives {
			raw = append(raw, tripDive{trip: t.Location, dive: d})
		}
	}
	for _, d := range log.Dives {
		raw = append(raw, tripDive{dive: d})
	}
	if len(raw) == 0 {
		return nil, &models.ParseError{Sample: -1, Reason: "no dives found"}
	}

	seen := make(map[string]bool, len(raw))
	dives := make([]models.Dive, 0, len(raw))
	for i, td := range raw {
		dive, err := convertDive(td.dive, td.trip, sites)
		if err != nil {
			return nil, err
		}
		if dive.ID == "" {
			return nil, &models.ParseError{Sample: -1, Reason: fmt.Sprintf("dive %d has no number", i+1)}
		}
		if seen[dive.ID] {
			return nil, &models.ParseError{DiveID: dive.ID, Sample: -1, Reason: "duplicate dive number"}
		}
		seen[dive.ID] = true
		dives = append(dives, dive)
	}

	slices.SortStableFunc(dives, func(a, b models.Dive) int {
		return models.CompareDiveIDs(a.ID, b.ID)
	})
	return dives, nil
}

func convertDive(x xmlDive, trip string, sites map[string]xmlSite) (models.Dive, error) {
	d := models.Dive{
		ID:     strings.TrimSpace(x.Number),
		SiteID: x.SiteID,
		Trip:   trip,
	}
	if site, ok := sites[x.SiteID]; ok {
		d.Site = site.Name
		d.Latitude, d.Longitude = parseGPS(site.GPS)
	}
	if x.Rating != "" {
		rating, err := strconv.Atoi(strings.TrimSpace(x.Rating))
		if err != nil {
			return d, &models.ParseError{DiveID: d.ID, Sample: -1, Reason: fmt.Sprintf("invalid rating %q", x.Rating)}
		}
		d.Rating = rating
	}
	if v, ok := quantity(x.SAC); ok {
		d.ReportedSAC = &v
	}
	if len(x.Cylinders) > 0 {
		if v, ok := quantity(x.Cylinders[0].Size); ok {
			d.CylinderLiters = v
		}
	}
	for _, tag := range strings.Split(x.Tags, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			d.Tags = append(d.Tags, tag)
		}
	}

	// Only the first dive computer is used; several computers would interleave sample times.
	if len(x.Computers) == 0 {
		return d, nil
	}
	samples, err := convertSamples(d.ID, x.Computers[0].Samples)
	if err != nil {
		return d, err
	}
	d.Samples = samples
	return d, nil
}

func convertSamples(diveID string, xs []xmlSample) ([]models.Sample, error) {
	samples := make([]models.Sample, 0, len(xs))
	for i, x := range xs {
		fail := func(reason string) error {
			return &models.ParseError{DiveID: diveID, Sample: i, Reason: reason}
		}

		if x.Time == "" {
			return nil, fail("missing time")
		}
		elapsed, ok := clockSeconds(x.Time)
		if !ok {
			return nil, fail(fmt.Sprintf("invalid time %q", x.Time))
		}
		if i > 0 && elapsed <= samples[i-1].Elapsed {
			return nil, fail("non-monotonic time")
		}

		if x.Depth == "" {
			return nil, fail("missing depth")
		}
		depth, ok := quantity(x.Depth)
		if !ok {
			return nil, fail(fmt.Sprintf("invalid depth %q", x.Depth))
		}

		s := models.Sample{Elapsed: elapsed, Depth: depth}
		if v, ok := quantity(x.Temp); ok {
			s.Temperature = &v
		}
		pressure := x.Pressure
		if pressure == "" {
			pressure = x.Pressure0
		}
		if v, ok := quantity(pressure); ok {
			s.Pressure = &v
		}
		if x.NDL != "" {
			if secs, ok := clockSeconds(x.NDL); ok {
				ndl := secs / 60
				s.NDL = &ndl
			}
		}
		samples = append(samples, s)
	}
	return samples, nil
}

// quantity parses values like "18.3 m" or "14.2 l/min", ignoring the unit.
// NaN and infinities are rejected.
func quantity(s string) (float64, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, false
	}
	return finite(fields[0])
}

func finite(s string) (float64, bool) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// clockSeconds parses "M:SS min", "H:MM:SS" or plain minutes into seconds.
func clockSeconds(s string) (float64, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, false
	}
	parts := strings.Split(fields[0], ":")
	if len(parts) == 1 {
		mins, ok := finite(parts[0])
		if !ok {
			return 0, false
		}
		return mins * 60, true
	}
	var total float64
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, false
		}
		total = total*60 + float64(n)
	}
	return total, true
}

// parseGPS reads "lat lon" in decimal degrees.
func parseGPS(gps string) (*float64, *float64) {
	fields := strings.Fields(gps)
	if len(fields) != 2 {
		return nil, nil
	}
	lat, ok1 := finite(fields[0])
	lon, ok2 := finite(fields[1])
	if !ok1 || !ok2 {
		return nil, nil
	}
	return &lat, &lon
}
