// Package retryqueue implements the bounded-attempt backoff queue of
// spec.md §4.10: failed deliveries are retried up to MaxAttempts times with
// exponential backoff, then dropped.
package retryqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ctirelay/relay/internal/destination"
	"github.com/ctirelay/relay/internal/logger"
)

// MaxAttempts is the per-item retry ceiling (spec.md §4.10).
const MaxAttempts = 3

// tickInterval is the background loop's polling granularity. spec.md
// requires ≤2s granularity; this relay ticks at exactly that bound.
const tickInterval = 2 * time.Second

const initialDelay = 5 * time.Second

// Item is a queued retry, correlated by a UUID for logging.
type Item struct {
	ID              string
	DestinationName string
	Endpoint        string
	Body            string
	MediaPath       string
	Reason          string
	Attempt         int
	NextReadyAt     time.Time
}

// Dispatcher sends one item's payload using the sender appropriate to its
// destination kind, returning the same Result a live send would.
type Dispatcher func(item Item) destination.Result

// Queue is a FIFO-ish, concurrent-enqueue-safe retry queue. Construct with
// New and start its background loop with Run.
type Queue struct {
	mu         sync.Mutex
	items      []Item
	dispatcher Dispatcher
}

// New builds a Queue that dispatches ready items through dispatcher.
func New(dispatcher Dispatcher) *Queue {
	return &Queue{dispatcher: dispatcher}
}

// Enqueue adds a new retry item at attempt=1, ready in initialDelay
// (spec.md §4.10: enqueue sets next_ready_at = now + 5s).
func (q *Queue) Enqueue(destinationName, endpoint, body, mediaPath, reason string) {
	item := Item{
		ID:              uuid.NewString(),
		DestinationName: destinationName,
		Endpoint:        endpoint,
		Body:            body,
		MediaPath:       mediaPath,
		Reason:          reason,
		Attempt:         1,
		NextReadyAt:     time.Now().Add(initialDelay),
	}

	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()

	logger.InfoCF("retryqueue", "enqueued item", map[string]any{
		"id": item.ID, "destination": destinationName, "reason": reason,
	})
}

// Run blocks ticking the queue until ctx is canceled.
func (q *Queue) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.tick()
		}
	}
}

// Len reports the current queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// tick snapshots ready items, dispatches each outside the lock, then
// reconciles results back into the live queue. Concurrent Enqueue calls
// during dispatch are safe: they append to q.items, which this pass
// doesn't touch until the reconciliation step below.
func (q *Queue) tick() {
	now := time.Now()

	q.mu.Lock()
	var ready, pending []Item
	for _, item := range q.items {
		if !item.NextReadyAt.After(now) {
			ready = append(ready, item)
		} else {
			pending = append(pending, item)
		}
	}
	q.items = pending
	q.mu.Unlock()

	if len(ready) == 0 {
		return
	}

	var requeue []Item
	for _, item := range ready {
		if item.Attempt > MaxAttempts {
			logger.WarnCF("retryqueue", "dropping item: attempts exhausted", map[string]any{
				"id": item.ID, "destination": item.DestinationName, "attempt": item.Attempt,
			})
			continue
		}

		result := q.dispatcher(item)
		if result.Outcome == destination.OutcomeOK {
			logger.InfoCF("retryqueue", "retry succeeded", map[string]any{
				"id": item.ID, "destination": item.DestinationName, "attempt": item.Attempt,
			})
			continue
		}

		// attempt is incremented before computing backoff so that the
		// three dispatches land at +5s, +15s, +35s from enqueue, matching
		// the delay sequence this queue is tested against.
		item.Attempt++
		item.NextReadyAt = time.Now().Add(backoff(item.Attempt))
		requeue = append(requeue, item)
	}

	if len(requeue) == 0 {
		return
	}

	q.mu.Lock()
	q.items = append(q.items, requeue...)
	q.mu.Unlock()
}

// backoff computes 5·2^(attempt-1) seconds: 5, 10, 20 for attempts 1..3.
func backoff(attempt int) time.Duration {
	return initialDelay * time.Duration(1<<uint(attempt-1))
}
