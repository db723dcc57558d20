package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// RefreshJob is the persisted record of a corpus refresh run.
type RefreshJob struct {
	ID          surrealmodels.RecordID `json:"id"`
	Status      string                 `json:"status"`
	Progress    int                    `json:"progress"`
	Total       int                    `json:"total"`
	Result      map[string]any         `json:"result,omitempty"`
	Error       *string                `json:"error,omitempty"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
}
