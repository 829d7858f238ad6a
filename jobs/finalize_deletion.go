package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/lumenlearn/lumen/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Finalizer soft-deletes accounts whose deletion request is older than grace.
type Finalizer interface {
	FinalizeDeletions(ctx context.Context, grace time.Duration) (int64, error)
}

// FinalizeDeletionJob completes pending account deletions.
type FinalizeDeletionJob struct {
	Users   Finalizer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewFinalizeDeletionJob initialises the deletion handler.
func NewFinalizeDeletionJob(users Finalizer, logger *slog.Logger, metrics *jobmetrics.Metrics) *FinalizeDeletionJob {
	return &FinalizeDeletionJob{
		Users:   users,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one finalization pass.
func (j *FinalizeDeletionJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Users == nil {
		return errors.New("finalize deletion: handler not configured")
	}
	var payload FinalizeDeletionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.GraceSeconds < 0 {
		return asynq.SkipRetry
	}

	start := j.now()
	tracker := j.metrics().Track(TaskFinalizeDeletion)

	logger := j.logger().With(slog.Duration("grace", payload.Grace()))
	logger.Info("starting deletion finalization")

	count, err := j.Users.FinalizeDeletions(ctx, payload.Grace())
	if err != nil {
		logger.Error("finalization failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics().AddFinalized(count)

	logger.Info("completed deletion finalization",
		slog.Int64("finalized", count),
		slog.Duration("duration", j.now().Sub(start)),
	)
	return tracker.End(nil)
}

func (j *FinalizeDeletionJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskFinalizeDeletion))
	}
	return slog.Default().With(slog.String("job", TaskFinalizeDeletion))
}

func (j *FinalizeDeletionJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *FinalizeDeletionJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
