package workq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Queue[T ~string] struct {
	jobs    map[T]Job[T]
	backend Backend[T]
	onError OnErrorHandler[T]
}

func NewQueue[T ~string](cfg QueueConfig[T]) (*Queue[T], error) {
	if cfg.Backend == nil {
		return nil, errors.New("backend is required")
	}

	jobs := make(map[T]Job[T], len(cfg.Jobs))
	for _, job := range cfg.Jobs {
		if _, exists := jobs[job.ID]; exists {
			return nil, fmt.Errorf("duplicate job id: %v", job.ID)
		}
		if job.Run == nil {
			return nil, fmt.Errorf("job %v has nil Run handler", job.ID)
		}
		jobs[job.ID] = job
	}

	return &Queue[T]{
		jobs:    jobs,
		backend: cfg.Backend,
		onError: cfg.OnError,
	}, nil
}

// Enqueue dispatches an item immediately.
func (q *Queue[T]) Enqueue(ctx context.Context, item Item[T]) (string, error) {
	return q.EnqueueAfter(ctx, item, 0)
}

// EnqueueAfter dispatches an item once delay elapses. This is the re-dispatch
// path for retryable step failures; the caller supplies the backoff delay.
func (q *Queue[T]) EnqueueAfter(ctx context.Context, item Item[T], delay time.Duration) (string, error) {
	if _, exists := q.jobs[item.JobID]; !exists {
		return "", fmt.Errorf("unknown job id: %v", item.JobID)
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if err := q.backend.Enqueue(ctx, item, delay); err != nil {
		return "", err
	}
	return item.ID, nil
}

type ConsumerOptions struct {
	Workers int
	// DequeueRetryDelay is the pause after a backend Dequeue error before the
	// worker tries again. Zero means the default.
	DequeueRetryDelay time.Duration
}

const defaultDequeueRetryDelay = 250 * time.Millisecond

type Consumer[T ~string] struct {
	queue   *Queue[T]
	options ConsumerOptions
}

func NewConsumer[T ~string](queue *Queue[T], options ConsumerOptions) *Consumer[T] {
	if options.Workers <= 0 {
		options.Workers = 1
	}
	if options.DequeueRetryDelay <= 0 {
		options.DequeueRetryDelay = defaultDequeueRetryDelay
	}
	return &Consumer[T]{queue: queue, options: options}
}

// Run drives the worker pool until ctx is cancelled or the OnError handler
// asks to stop. At-least-once delivery: a handler error nacks the item for
// redelivery, so handlers must tolerate re-execution.
func (c *Consumer[T]) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mu sync.Mutex
	var runErr error
	reportError := func(err error, item Item[T]) {
		if err == nil || c.queue.onError == nil {
			return
		}
		if onErr := c.queue.onError(err, item); onErr != nil {
			mu.Lock()
			if runErr == nil {
				runErr = onErr
			}
			mu.Unlock()
			cancel()
		}
	}

	var wg sync.WaitGroup
	wg.Add(c.options.Workers)

	for i := 0; i < c.options.Workers; i++ {
		go func() {
			defer wg.Done()
			for {
				if ctx.Err() != nil {
					return
				}

				item, err := c.queue.backend.Dequeue(ctx)
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					reportError(err, Item[T]{})
					// A broken backend would otherwise spin this loop hot.
					select {
					case <-ctx.Done():
						return
					case <-time.After(c.options.DequeueRetryDelay):
					}
					continue
				}

				job, ok := c.queue.jobs[item.JobID]
				if !ok {
					reportError(fmt.Errorf("unknown job id: %v", item.JobID), item)
					if ackErr := c.queue.backend.Ack(ctx, item.ID); ackErr != nil {
						reportError(ackErr, item)
					}
					continue
				}

				if err := job.Run(ctx, item); err != nil {
					if nackErr := c.queue.backend.Nack(ctx, item.ID); nackErr != nil {
						reportError(nackErr, item)
					} else {
						reportError(err, item)
					}
					continue
				}

				if err := c.queue.backend.Ack(ctx, item.ID); err != nil {
					reportError(err, item)
				}
			}
		}()
	}

	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	return runErr
}
