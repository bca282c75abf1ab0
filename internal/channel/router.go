package channel

import (
	"github.com/narrate-go/narrate/internal/models"
)

// observerKey is the registry key under which all-event observers live. Job
// ids come from the wire, so the key uses a byte no JSON string decodes to
// by accident.
const observerKey = "\x00observers"

// Router dispatches decoded events to the subscribers of the event's job id.
// Subscribers of other job ids are never invoked.
type Router struct {
	jobs      *Registry[models.Event]
	observers *Registry[models.Event]
}

// NewRouter creates a router with no subscriptions.
func NewRouter() *Router {
	return &Router{
		jobs:      NewRegistry[models.Event]("router"),
		observers: NewRegistry[models.Event]("router-observer"),
	}
}

// Subscribe registers handler for events whose JobID equals jobID.
func (r *Router) Subscribe(jobID string, handler func(models.Event)) (cancel func()) {
	return r.jobs.Subscribe(jobID, handler)
}

// Observe registers handler for every event, before job subscribers run.
// It is meant for state models that partition by job id themselves (the
// progress tracker and the reassembler), not for UI consumers.
func (r *Router) Observe(handler func(models.Event)) (cancel func()) {
	return r.observers.Subscribe(observerKey, handler)
}

// Dispatch delivers ev to observers and then to the subscribers of ev.JobID.
// It is the Connection's event sink.
func (r *Router) Dispatch(ev models.Event) {
	r.observers.Publish(observerKey, ev)
	r.jobs.Publish(ev.JobID, ev)
}

// Count returns the number of live subscriptions for jobID.
func (r *Router) Count(jobID string) int {
	return r.jobs.Count(jobID)
}
