package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"

	"github.com/fakero0t/messageAI-sub004/interfaces"
	"github.com/fakero0t/messageAI-sub004/message"
)

const (
	// DefaultMaxRetries is the automatic retry budget per entry.
	DefaultMaxRetries = 5
	// DefaultInitialBackoff is the first retry delay.
	DefaultInitialBackoff = 2 * time.Second
	// DefaultMaxBackoff caps the exponential retry delay.
	DefaultMaxBackoff = 60 * time.Second
)

// Delegate receives the outcome of queue processing. All callbacks run
// on the drain goroutine.
type Delegate interface {
	// SendEntry attempts the remote upsert for the entry. It must be
	// idempotent by message id.
	SendEntry(ctx context.Context, e *message.QueuedEntry) error

	// EntrySent reports a successful send; the entry has been removed.
	EntrySent(messageID string)

	// EntryFailed reports retry exhaustion; the entry has been removed
	// from automatic processing.
	EntryFailed(messageID string)

	// EntryDropped reports that the remote target is gone; the entry has
	// been removed silently.
	EntryDropped(messageID string)
}

// Queue is the offline retry queue. One drain pass runs at a time;
// concurrent triggers coalesce into no-ops.
type Queue struct {
	mu sync.Mutex

	entries  []*message.QueuedEntry
	backoffs map[string]backoff.BackOff

	delegate   Delegate
	clock      interfaces.Clock
	maxRetries int
	initial    time.Duration
	cap        time.Duration

	draining bool

	tickerStop chan struct{}
	tickerWG   sync.WaitGroup
	stopOnce   sync.Once
}

// New creates an empty queue. A nil clock falls back to the system
// clock.
func New(delegate Delegate, clock interfaces.Clock) *Queue {
	if clock == nil {
		clock = interfaces.SystemClock{}
	}
	return &Queue{
		backoffs:   make(map[string]backoff.BackOff),
		delegate:   delegate,
		clock:      clock,
		maxRetries: DefaultMaxRetries,
		initial:    DefaultInitialBackoff,
		cap:        DefaultMaxBackoff,
	}
}

// SetRetryPolicy overrides the retry budget and backoff bounds.
func (q *Queue) SetRetryPolicy(maxRetries int, initial, cap time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if maxRetries > 0 {
		q.maxRetries = maxRetries
	}
	if initial > 0 {
		q.initial = initial
	}
	if cap > 0 {
		q.cap = cap
	}
}

// Enqueue appends an entry in arrival order. An entry already present
// for the same message id is left untouched.
func (q *Queue) Enqueue(e *message.QueuedEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, existing := range q.entries {
		if existing.MessageID == e.MessageID {
			return
		}
	}
	q.entries = append(q.entries, e)

	logrus.WithFields(logrus.Fields{
		"message_id":      e.MessageID,
		"conversation_id": e.ConversationID,
		"queue_depth":     len(q.entries),
	}).Info("Message queued for retry")
}

// Remove deletes an entry by message id, if present. Used when the user
// deletes a still-queued message.
func (q *Queue) Remove(messageID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.removeLocked(messageID)
}

func (q *Queue) removeLocked(messageID string) {
	for i, e := range q.entries {
		if e.MessageID == messageID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			delete(q.backoffs, messageID)
			return
		}
	}
}

// Len returns the number of entries awaiting automatic processing.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Entries returns a snapshot copy of the queue contents.
func (q *Queue) Entries() []message.QueuedEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]message.QueuedEntry, len(q.entries))
	for i, e := range q.entries {
		out[i] = *e
	}
	return out
}

// Drain runs one processing pass. If a pass is already in flight the
// call is a no-op rather than a parallel or deferred pass. Force makes
// every entry eligible immediately, ignoring NextEligibleTime.
func (q *Queue) Drain(ctx context.Context, force bool) {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		logrus.Debug("Queue drain already in flight, coalescing trigger")
		return
	}
	q.draining = true
	snapshot := make([]*message.QueuedEntry, len(q.entries))
	copy(snapshot, q.entries)
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	now := q.clock.Now()
	blocked := make(map[string]bool)

	for _, e := range snapshot {
		if ctx.Err() != nil {
			return
		}
		if blocked[e.ConversationID] {
			continue
		}
		if !force && e.NextEligibleTime.After(now) {
			// Not yet eligible; later entries of this conversation must
			// wait too to preserve send order.
			blocked[e.ConversationID] = true
			continue
		}
		if !q.processEntry(ctx, e) {
			blocked[e.ConversationID] = true
		}
	}
}

// processEntry attempts one send. Returns false when the conversation
// should be blocked for the remainder of the pass.
func (q *Queue) processEntry(ctx context.Context, e *message.QueuedEntry) bool {
	err := q.delegate.SendEntry(ctx, e)
	if err == nil {
		q.mu.Lock()
		q.removeLocked(e.MessageID)
		q.mu.Unlock()
		q.delegate.EntrySent(e.MessageID)
		return true
	}

	if errors.Is(err, interfaces.ErrConversationGone) {
		q.mu.Lock()
		q.removeLocked(e.MessageID)
		q.mu.Unlock()
		logrus.WithFields(logrus.Fields{
			"message_id":      e.MessageID,
			"conversation_id": e.ConversationID,
		}).Info("Remote target gone, dropping queued message")
		q.delegate.EntryDropped(e.MessageID)
		return true
	}

	q.mu.Lock()
	e.RetryCount++
	exhausted := e.RetryCount >= q.maxRetries
	if !exhausted {
		e.NextEligibleTime = q.clock.Now().Add(q.nextDelayLocked(e.MessageID))
	} else {
		q.removeLocked(e.MessageID)
	}
	retries := e.RetryCount
	q.mu.Unlock()

	if exhausted {
		logrus.WithFields(logrus.Fields{
			"message_id": e.MessageID,
			"retries":    retries,
			"error":      err,
		}).Error("Retries exhausted, message failed")
		q.delegate.EntryFailed(e.MessageID)
		return true
	}

	logrus.WithFields(logrus.Fields{
		"message_id":    e.MessageID,
		"retries":       retries,
		"next_eligible": e.NextEligibleTime,
		"error":         err,
	}).Warn("Queued send failed, rescheduled")
	return false
}

// nextDelayLocked returns the next capped exponential delay for the
// message, creating its backoff state on first use.
func (q *Queue) nextDelayLocked(messageID string) time.Duration {
	b, ok := q.backoffs[messageID]
	if !ok {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = q.initial
		eb.MaxInterval = q.cap
		eb.MaxElapsedTime = 0 // the retry count, not elapsed time, bounds retries
		eb.Reset()
		b = eb
		q.backoffs[messageID] = b
	}
	d := b.NextBackOff()
	if d == backoff.Stop || d > q.cap {
		d = q.cap
	}
	return d
}

// StartAutoDrain begins a periodic drain tick. Stop shuts it down.
func (q *Queue) StartAutoDrain(interval time.Duration) {
	q.mu.Lock()
	if q.tickerStop != nil || interval <= 0 {
		q.mu.Unlock()
		return
	}
	q.tickerStop = make(chan struct{})
	stop := q.tickerStop
	q.mu.Unlock()

	q.tickerWG.Add(1)
	go func() {
		defer q.tickerWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				q.Drain(context.Background(), false)
			case <-stop:
				return
			}
		}
	}()
}

// Stop terminates the periodic drain tick, waiting for the loop to
// exit. An in-flight drain pass runs to completion.
func (q *Queue) Stop() {
	q.stopOnce.Do(func() {
		q.mu.Lock()
		stop := q.tickerStop
		q.mu.Unlock()
		if stop != nil {
			close(stop)
			q.tickerWG.Wait()
		}
	})
}
