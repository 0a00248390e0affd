package core

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hatchery-io/hatchery/internals/coordinator"
	"github.com/hatchery-io/hatchery/internals/workq"
	"github.com/hatchery-io/hatchery/internals/workq/backends/memory"
	"github.com/hatchery-io/hatchery/internals/workq/backends/sqlite"
)

type Jobs string

const (
	JobExecuteStep Jobs = "execute_step_job"
)

func NewQueue(base *BaseServer, retryDelay func(attempt int) time.Duration, retryMax int) (*workq.Queue[Jobs], error) {
	executeStepJob := workq.Job[Jobs]{
		ID: JobExecuteStep,
		Run: func(ctx context.Context, item workq.Item[Jobs]) error {
			logger := base.Logger.With(slog.String("itemId", item.ID), slog.String("jobId", string(item.JobID)))

			work := coordinator.WorkItem{}
			if err := json.Unmarshal(item.Payload, &work); err != nil {
				logger.Error("Failed to unmarshal work item", slog.String("error", err.Error()))
				return nil // poison payload, never redeliverable
			}

			return base.Coordinator.ExecuteStep(ctx, work)
		},
	}

	backend, err := newQueueBackend(base, retryDelay, retryMax)
	if err != nil {
		return nil, err
	}

	return workq.NewQueue(workq.QueueConfig[Jobs]{
		Jobs:    []workq.Job[Jobs]{executeStepJob},
		Backend: backend,
		OnError: func(err error, item workq.Item[Jobs]) error {
			base.Logger.Error("Queue handler failed", slog.String("itemId", item.ID), slog.String("error", err.Error()))
			return nil
		},
	})
}

// newQueueBackend picks the durable sqlite queue when a path is configured,
// falling back to the in-process backend otherwise. Surviving items from a
// previous run are re-armed before the consumer starts.
func newQueueBackend(base *BaseServer, retryDelay func(attempt int) time.Duration, retryMax int) (workq.Backend[Jobs], error) {
	if base.Config.Execute.QueuePath == "" {
		return memory.New[Jobs](memory.Config{
			RetryDelay: retryDelay,
			RetryMax:   retryMax,
		}), nil
	}

	backend, err := sqlite.New[Jobs](sqlite.Config{
		Path:       base.Config.Execute.QueuePath,
		QueueName:  "step_queue",
		RetryDelay: retryDelay,
		RetryMax:   retryMax,
	})
	if err != nil {
		return nil, err
	}
	recovered, err := backend.Recover(context.Background())
	if err != nil {
		return nil, err
	}
	if recovered > 0 {
		base.Logger.Info("Recovered in-flight queue items", slog.Int("count", recovered))
	}
	return backend, nil
}

// StepScheduler feeds step work items into the queue. Retry re-dispatch waits
// out the exponential backoff for the attempt; first dispatch goes straight in.
type StepScheduler struct {
	queue   *workq.Queue[Jobs]
	backoff func(attempt int) time.Duration
}

func NewStepScheduler(queue *workq.Queue[Jobs], backoff func(attempt int) time.Duration) *StepScheduler {
	return &StepScheduler{queue: queue, backoff: backoff}
}

func (s *StepScheduler) EnqueueStep(ctx context.Context, work coordinator.WorkItem) error {
	return s.enqueue(ctx, work, 0)
}

func (s *StepScheduler) EnqueueRetry(ctx context.Context, work coordinator.WorkItem) error {
	return s.enqueue(ctx, work, s.backoff(work.Attempt))
}

func (s *StepScheduler) enqueue(ctx context.Context, work coordinator.WorkItem, delay time.Duration) error {
	payload, err := json.Marshal(work)
	if err != nil {
		return err
	}
	_, err = s.queue.EnqueueAfter(ctx, workq.Item[Jobs]{
		JobID:   JobExecuteStep,
		Payload: payload,
		Attempt: work.Attempt,
	}, delay)
	return err
}
