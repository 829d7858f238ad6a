package jobs

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskFinalizeDeletion soft-deletes accounts whose deletion grace period elapsed.
	TaskFinalizeDeletion = "users:finalize-deletion"
)

// FinalizeDeletionPayload carries the grace period applied by the job.
type FinalizeDeletionPayload struct {
	GraceSeconds int64 `json:"grace_seconds"`
}

// Grace converts the payload into a duration.
func (p FinalizeDeletionPayload) Grace() time.Duration {
	return time.Duration(p.GraceSeconds) * time.Second
}

// NewFinalizeDeletionTask builds the task for the given grace period.
// Sub-second remainders round up so the period is never shortened.
func NewFinalizeDeletionTask(grace time.Duration) (*asynq.Task, error) {
	if grace < 0 {
		return nil, errors.New("jobs: grace period must not be negative")
	}
	seconds := int64(grace / time.Second)
	if grace%time.Second != 0 {
		seconds++
	}
	data, err := json.Marshal(FinalizeDeletionPayload{GraceSeconds: seconds})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFinalizeDeletion, data), nil
}
