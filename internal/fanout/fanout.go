// Package fanout delivers event envelopes to sets of subscribers with
// failure isolation: one broken subscriber never blocks the rest.
package fanout

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	model "github.com/okian/huddle/internal/domain/model"
	"github.com/okian/huddle/pkg/logger"
	"github.com/okian/huddle/pkg/metrics"
)

// Subscriber receives envelopes from a Broadcaster. Send must not block
// indefinitely; slow consumers fail fast with an error and are evicted.
type Subscriber interface {
	ID() string
	Send(env model.Envelope) error
	Close() error
}

// activeSubscribers counts subscribers across every broadcaster so the
// gauge reflects the process-wide total.
var activeSubscribers atomic.Int64

// Option applies a configuration option to the Broadcaster.
type Option func(*Broadcaster)

// WithName sets the label the broadcaster uses in logs.
func WithName(name string) Option {
	return func(b *Broadcaster) {
		if name != "" {
			b.name = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(b *Broadcaster) {
		if log != nil {
			b.log = log
		}
	}
}

// Broadcaster fans envelopes out to its registered subscribers.
//
// Connect and Disconnect are idempotent and safe for concurrent use with
// Broadcast. A subscriber whose Send fails is closed, removed, and never
// retried; delivery to the others proceeds regardless.
type Broadcaster struct {
	mu   sync.RWMutex
	name string
	log  logger.Logger
	subs map[string]Subscriber
}

// NewBroadcaster creates a broadcaster with configuration options.
func NewBroadcaster(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		name: "fanout",
		subs: make(map[string]Subscriber),
	}

	// Apply all options
	for _, opt := range opts {
		opt(b)
	}

	if b.log == nil {
		b.log = logger.Get().Named(b.name)
	}

	return b
}

// Connect registers a subscriber. Connecting an ID that is already present
// is a no-op, so retried registrations never double-subscribe.
func (b *Broadcaster) Connect(ctx context.Context, sub Subscriber) {
	if sub == nil {
		return
	}

	b.mu.Lock()
	if _, ok := b.subs[sub.ID()]; ok {
		b.mu.Unlock()
		b.log.Debug(ctx, "subscriber already connected", logger.String("subscriber_id", sub.ID()))
		return
	}
	b.subs[sub.ID()] = sub
	total := len(b.subs)
	b.mu.Unlock()

	metrics.UpdateSubscribersActive(int(activeSubscribers.Add(1)))
	b.log.Info(ctx, "subscriber connected",
		logger.String("subscriber_id", sub.ID()),
		logger.Int("subscribers", total))
}

// Disconnect removes and closes a subscriber. Unknown IDs are a no-op.
func (b *Broadcaster) Disconnect(ctx context.Context, id string) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	total := len(b.subs)
	b.mu.Unlock()

	if !ok {
		return
	}

	if err := sub.Close(); err != nil {
		b.log.Debug(ctx, "subscriber close failed",
			logger.String("subscriber_id", id),
			logger.Error(err))
	}
	metrics.UpdateSubscribersActive(int(activeSubscribers.Add(-1)))
	b.log.Info(ctx, "subscriber disconnected",
		logger.String("subscriber_id", id),
		logger.Int("subscribers", total))
}

// Broadcast delivers one envelope to every subscriber concurrently and
// waits for all sends to finish. It returns how many deliveries succeeded.
func (b *Broadcaster) Broadcast(ctx context.Context, env model.Envelope) int {
	started := time.Now()

	b.mu.RLock()
	targets := make([]Subscriber, 0, len(b.subs))
	for _, sub := range b.subs {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()
	if len(targets) == 0 {
		return 0
	}
	// Stable delivery order keeps behavior reproducible under test.
	sort.Slice(targets, func(i, j int) bool { return targets[i].ID() < targets[j].ID() })

	var (
		wg       sync.WaitGroup
		failedMu sync.Mutex
		failed   []string
	)
	for _, sub := range targets {
		wg.Add(1)
		go func(sub Subscriber) {
			defer wg.Done()
			if err := sub.Send(env); err != nil {
				failedMu.Lock()
				failed = append(failed, sub.ID())
				failedMu.Unlock()
				b.log.Warn(ctx, "subscriber send failed",
					logger.String("subscriber_id", sub.ID()),
					logger.String("event_type", string(env.Type)),
					logger.Error(err))
				return
			}
			metrics.RecordBroadcast()
		}(sub)
	}
	wg.Wait()

	for _, id := range failed {
		metrics.RecordBroadcastFailure()
		metrics.RecordSubscriberEviction()
		b.evict(ctx, id)
	}

	metrics.RecordBroadcastLatency(float64(time.Since(started)) / float64(time.Millisecond))
	return len(targets) - len(failed)
}

// evict removes a failed subscriber without the disconnect info log.
func (b *Broadcaster) evict(ctx context.Context, id string) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()

	if !ok {
		return
	}

	_ = sub.Close()
	metrics.UpdateSubscribersActive(int(activeSubscribers.Add(-1)))
	b.log.Warn(ctx, "subscriber evicted", logger.String("subscriber_id", id))
}

// Count reports how many subscribers are connected.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// CloseAll disconnects every subscriber. Used on shutdown and when a
// replay session completes.
func (b *Broadcaster) CloseAll(ctx context.Context) {
	b.mu.Lock()
	subs := b.subs
	b.subs = make(map[string]Subscriber)
	b.mu.Unlock()

	for id, sub := range subs {
		if err := sub.Close(); err != nil {
			b.log.Debug(ctx, "subscriber close failed",
				logger.String("subscriber_id", id),
				logger.Error(err))
		}
		metrics.UpdateSubscribersActive(int(activeSubscribers.Add(-1)))
	}
	if len(subs) > 0 {
		b.log.Info(ctx, "all subscribers closed", logger.Int("closed", len(subs)))
	}
}
