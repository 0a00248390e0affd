// Package memory is an in-process workq backend ordered by availability time.
// Delayed items stay invisible until their deadline passes.
package memory

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hatchery-io/hatchery/internals/workq"
)

var ErrRetriesExceeded = errors.New("retries exceeded")

type Config struct {
	RetryDelay func(attempts int) time.Duration
	RetryMax   int
}

type Backend[T ~string] struct {
	mu       sync.Mutex
	pending  itemHeap[T]
	inFlight map[string]*heapItem[T]
	signal   chan struct{}
	seq      uint64
	cfg      Config
	now      func() time.Time
}

func New[T ~string](cfg Config) *Backend[T] {
	backend := &Backend[T]{
		pending:  itemHeap[T]{},
		inFlight: make(map[string]*heapItem[T]),
		signal:   make(chan struct{}, 1),
		cfg:      cfg,
		now:      time.Now,
	}
	heap.Init(&backend.pending)
	return backend
}

func (b *Backend[T]) Enqueue(ctx context.Context, item workq.Item[T], delay time.Duration) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entry := &heapItem[T]{
		item:    item,
		availAt: b.now().Add(delay),
		seq:     b.nextSeqLocked(),
	}
	heap.Push(&b.pending, entry)
	b.signalLocked()
	return nil
}

func (b *Backend[T]) Dequeue(ctx context.Context) (workq.Item[T], error) {
	for {
		if ctx.Err() != nil {
			return workq.Item[T]{}, ctx.Err()
		}

		b.mu.Lock()
		var wait time.Duration
		if b.pending.Len() > 0 {
			head := b.pending[0]
			now := b.now()
			if !head.availAt.After(now) {
				entry := heap.Pop(&b.pending).(*heapItem[T])
				b.inFlight[entry.item.ID] = entry
				if b.pending.Len() > 0 {
					b.signalLocked()
				}
				b.mu.Unlock()
				return entry.item, nil
			}
			wait = head.availAt.Sub(now)
		}
		b.mu.Unlock()

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return workq.Item[T]{}, ctx.Err()
			case <-b.signal:
				timer.Stop()
			case <-timer.C:
			}
			continue
		}

		select {
		case <-ctx.Done():
			return workq.Item[T]{}, ctx.Err()
		case <-b.signal:
		}
	}
}

func (b *Backend[T]) Ack(ctx context.Context, id string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.inFlight[id]; !ok {
		return fmt.Errorf("unknown item id: %v", id)
	}
	delete(b.inFlight, id)
	return nil
}

// Nack re-arms an in-flight item after the configured retry delay, giving up
// once RetryMax deliveries are spent.
func (b *Backend[T]) Nack(ctx context.Context, id string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.inFlight[id]
	if !ok {
		return fmt.Errorf("unknown item id: %v", id)
	}
	delete(b.inFlight, id)

	entry.item.Attempt++
	if b.cfg.RetryMax > 0 && entry.item.Attempt >= b.cfg.RetryMax {
		return ErrRetriesExceeded
	}

	delay := time.Duration(0)
	if b.cfg.RetryDelay != nil {
		delay = b.cfg.RetryDelay(entry.item.Attempt)
	}
	entry.availAt = b.now().Add(delay)
	entry.seq = b.nextSeqLocked()
	heap.Push(&b.pending, entry)
	b.signalLocked()
	return nil
}

// Len reports pending items. Test hook.
func (b *Backend[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pending.Len()
}

func (b *Backend[T]) nextSeqLocked() uint64 {
	b.seq++
	return b.seq
}

func (b *Backend[T]) signalLocked() {
	select {
	case b.signal <- struct{}{}:
	default:
	}
}

type heapItem[T ~string] struct {
	item    workq.Item[T]
	availAt time.Time
	seq     uint64
}

type itemHeap[T ~string] []*heapItem[T]

func (h itemHeap[T]) Len() int { return len(h) }

func (h itemHeap[T]) Less(i, j int) bool {
	if h[i].availAt.Equal(h[j].availAt) {
		return h[i].seq < h[j].seq
	}
	return h[i].availAt.Before(h[j].availAt)
}

func (h itemHeap[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap[T]) Push(x any) { *h = append(*h, x.(*heapItem[T])) }

func (h *itemHeap[T]) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
