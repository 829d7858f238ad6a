package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/lumenlearn/lumen/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	grace     time.Duration
	stdout    io.Writer
	stderr    io.Writer
}

// NewJobsCLI initialises the CLI helpers against the given Redis connection.
// grace is the default deletion grace period for manual triggers.
func NewJobsCLI(redisOpts asynq.RedisClientOpt, grace time.Duration) *JobsCLI {
	return &JobsCLI{
		client:    asynq.NewClient(redisOpts),
		inspector: asynq.NewInspector(redisOpts),
		grace:     grace,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
	}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	if c.inspector != nil {
		if closeErr := c.inspector.Close(); closeErr != nil {
			err = closeErr
		}
	}
	if c.client != nil {
		if closeErr := c.client.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// Trigger enqueues a supported job by name.
func (c *JobsCLI) Trigger(ctx context.Context, name string, grace time.Duration) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	var task *asynq.Task
	var err error
	switch name {
	case jobs.TaskFinalizeDeletion:
		task, err = jobs.NewFinalizeDeletionTask(grace)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(3))
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
	}
	return stats, nil
}

// Run implements `lumen jobs <trigger|inspect>`.
func (c *JobsCLI) Run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		_, _ = fmt.Fprintln(c.stderr, "usage: lumen jobs <trigger|inspect> [flags]")
		return 2
	}
	switch args[0] {
	case "trigger":
		fs := flag.NewFlagSet("jobs trigger", flag.ContinueOnError)
		fs.SetOutput(c.stderr)
		name := fs.String("job", jobs.TaskFinalizeDeletion, "task type to enqueue")
		grace := fs.Duration("grace", c.grace, "deletion grace period")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		info, err := c.Trigger(ctx, *name, *grace)
		if err != nil {
			_, _ = fmt.Fprintf(c.stderr, "jobs trigger: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(c.stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return 0
	case "inspect":
		stats, err := c.InspectQueue(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(c.stderr, "jobs inspect: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(c.stdout, "queue=%s pending=%d active=%d scheduled=%d retry=%d\n",
			stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
		return 0
	default:
		_, _ = fmt.Fprintln(c.stderr, "usage: lumen jobs <trigger|inspect> [flags]")
		return 2
	}
}
