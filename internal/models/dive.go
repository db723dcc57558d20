// Package models defines the data structures shared by the DiveRoast packages.
package models

// Sample is a single dive-computer reading.
// Optional channels are nil when the computer did not record them.
type Sample struct {
	Elapsed     float64  `json:"elapsed_s"` // seconds since the dive started
	Depth       float64  `json:"depth_m"`
	Temperature *float64 `json:"temp_c,omitempty"`
	Pressure    *float64 `json:"pressure_bar,omitempty"`
	NDL         *float64 `json:"ndl_min,omitempty"`
}

// Dive is one parsed logbook entry. Immutable once decoded.
type Dive struct {
	ID             string   `json:"id"` // dive number from the log
	Site           string   `json:"site"`
	SiteID         string   `json:"site_id,omitempty"`
	Trip           string   `json:"trip,omitempty"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
	Rating         int      `json:"rating"`
	ReportedSAC    *float64 `json:"reported_sac,omitempty"` // l/min, as written by the logging software
	CylinderLiters float64  `json:"cylinder_liters,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Samples        []Sample `json:"samples"`
}

// Duration returns the elapsed time of the last sample in minutes.
func (d Dive) Duration() float64 {
	if len(d.Samples) == 0 {
		return 0
	}
	return d.Samples[len(d.Samples)-1].Elapsed / 60
}

// HasCoordinates reports whether the dive site carries GPS coordinates.
func (d Dive) HasCoordinates() bool {
	return d.Latitude != nil && d.Longitude != nil
}

// ExcludedDive names a dive that was dropped from analysis and why.
type ExcludedDive struct {
	DiveID string `json:"dive_id"`
	Reason string `json:"reason"`
}

// Float returns a pointer to v. Handy for optional sample channels.
func Float(v float64) *float64 {
	return &v
}
