// Package workq is a small generic work queue with delayed re-dispatch.
// The execution core hands retry work items to it; the queue owns backoff
// timing so coordinators never sleep.
package workq

import (
	"context"
	"time"
)

// Item is one unit of queued work. Attempt counts deliveries, starting at 0
// for the first dispatch.
type Item[T ~string] struct {
	JobID   T
	ID      string
	Payload []byte
	Attempt int
}

// Job binds a job id to its handler.
type Job[T ~string] struct {
	ID  T
	Run func(ctx context.Context, item Item[T]) error
}

// OnErrorHandler observes handler and backend failures. Returning a non-nil
// error stops the consumer.
type OnErrorHandler[T ~string] func(err error, item Item[T]) error

type QueueConfig[T ~string] struct {
	Jobs    []Job[T]
	Backend Backend[T]
	OnError OnErrorHandler[T]
}

// Backend persists and dispatches items. Dequeue blocks until an item is
// available or ctx is done. Nack re-arms the item for redelivery after the
// backend's retry delay; Ack retires it.
type Backend[T ~string] interface {
	Enqueue(ctx context.Context, item Item[T], delay time.Duration) error
	Dequeue(ctx context.Context) (Item[T], error)
	Ack(ctx context.Context, id string) error
	Nack(ctx context.Context, id string) error
}
