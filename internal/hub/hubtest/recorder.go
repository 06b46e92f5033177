// Package hubtest provides an in-memory broadcaster for controller tests.
package hubtest

import (
	"context"
	"sync"

	"liveclass/pkg/types"
)

// Recorder captures published events instead of delivering them.
type Recorder struct {
	mu     sync.Mutex
	events []*types.Event
	Err    error
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// Publish records event, or returns Err when set.
func (r *Recorder) Publish(ctx context.Context, event *types.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.events = append(r.events, event)
	return nil
}

// Events returns every recorded event in publish order.
func (r *Recorder) Events() []*types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*types.Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events of one type.
func (r *Recorder) OfType(eventType types.EventType) []*types.Event {
	var out []*types.Event
	for _, e := range r.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Last returns the most recent event, or nil.
func (r *Recorder) Last() *types.Event {
	events := r.Events()
	if len(events) == 0 {
		return nil
	}
	return events[len(events)-1]
}

// Reset drops everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
