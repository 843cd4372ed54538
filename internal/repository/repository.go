package repository

import (
	"time"

	"github.com/google/uuid"

	"github.com/NamanBalaji/vodbatch/internal/status"
)

// Job is the journal entry for the most recent download of one media id.
type Job struct {
	ID          string        `json:"id"`
	RunID       uuid.UUID     `json:"runId"`
	Phase       status.Status `json:"phase"`
	Percent     float64       `json:"percent"`
	DisplayName string        `json:"displayName"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}

// Repository persists job journal entries keyed by media id.
type Repository interface {
	Save(job *Job) error
	Find(id string) (*Job, error)
	FindUnfinished() ([]*Job, error)
	Delete(id string) error
}
