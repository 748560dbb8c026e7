package demo

import (
	"sync"

	"github.com/google/uuid"

	model "github.com/okian/huddle/internal/domain/model"
)

// recorder is an in-process subscriber that tallies every envelope it
// receives, keyed by event type.
type recorder struct {
	id string

	mu     sync.Mutex
	counts map[model.EventType]int
	closed bool
}

func newRecorder() *recorder {
	return &recorder{
		id:     uuid.NewString(),
		counts: make(map[model.EventType]int),
	}
}

func (r *recorder) ID() string { return r.id }

func (r *recorder) Send(env model.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[env.Type]++
	return nil
}

func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// count reports how many envelopes of one type arrived.
func (r *recorder) count(t model.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[t]
}
