package queue

import (
	"time"

	"github.com/codebuildervaibhav/vodchat/internal/app"
	"github.com/codebuildervaibhav/vodchat/internal/types"
)

// Job is a background run whose transcript goes to the exporters only
type Job struct {
	ID        string     `json:"id"`
	Target    app.Target `json:"target"`
	Filter    string     `json:"filter"`
	Items     int        `json:"items"`
	Status    string     `json:"status"`
	RunID     string     `json:"run_id,omitempty"`
	Failed    int        `json:"failed"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`

	prepared *app.Job
}

// NewJob creates a new job with default values
func NewJob(id string, prepared *app.Job) *Job {
	return &Job{
		ID:        id,
		Target:    prepared.Target,
		Filter:    prepared.Pattern,
		Items:     len(prepared.Items),
		Status:    types.StatusQueued,
		CreatedAt: time.Now(),
		prepared:  prepared,
	}
}
