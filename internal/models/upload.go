package models

// UploadResult is returned when a logbook has been parsed into a new session.
type UploadResult struct {
	SessionID   string         `json:"session_id"`
	DiveCount   int            `json:"dive_count"`
	DiveNumbers []string       `json:"dive_numbers"`
	Excluded    []ExcludedDive `json:"excluded,omitempty"`
	Message     string         `json:"message"`
}
