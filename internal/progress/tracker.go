// Package progress holds the per-job progress model fed by the router.
package progress

import (
	"sort"
	"sync"

	"github.com/narrate-go/narrate/internal/channel"
	"github.com/narrate-go/narrate/internal/models"
)

// Tracker keeps {percentage, message, terminal} per job id. Only progress
// events change it; callers signal a new run with Reset.
type Tracker struct {
	mu        sync.Mutex
	jobs      map[string]*models.JobProgress
	listeners *channel.Registry[models.JobProgress]
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		jobs:      make(map[string]*models.JobProgress),
		listeners: channel.NewRegistry[models.JobProgress]("progress"),
	}
}

// Attach feeds every progress event routed by r into the tracker.
func (t *Tracker) Attach(r *channel.Router) (cancel func()) {
	return r.Observe(t.Handle)
}

// Handle applies a progress event. The percentage only moves up within a
// run, so late or duplicated frames cannot roll it back; the message always
// reflects the latest frame. A terminal job ignores further events until it
// is Reset.
func (t *Tracker) Handle(ev models.Event) {
	if ev.Kind != models.KindProgress {
		return
	}

	t.mu.Lock()
	p, ok := t.jobs[ev.JobID]
	if !ok {
		p = &models.JobProgress{JobID: ev.JobID}
		t.jobs[ev.JobID] = p
	}
	if p.Terminal {
		t.mu.Unlock()
		return
	}
	p.Percentage = max(p.Percentage, clamp(ev.Percentage))
	p.Message = ev.Message
	p.Terminal = p.Percentage >= 100
	snapshot := *p
	t.mu.Unlock()

	t.listeners.Publish(ev.JobID, snapshot)
}

// Reset puts jobID back to {0, "", not terminal} and notifies listeners.
func (t *Tracker) Reset(jobID string) {
	t.mu.Lock()
	p := &models.JobProgress{JobID: jobID}
	t.jobs[jobID] = p
	snapshot := *p
	t.mu.Unlock()

	t.listeners.Publish(jobID, snapshot)
}

// Get returns the progress of jobID; unknown jobs report zero progress.
func (t *Tracker) Get(jobID string) models.JobProgress {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.jobs[jobID]; ok {
		return *p
	}
	return models.JobProgress{JobID: jobID}
}

// Batch returns the progress of the batch run.
func (t *Tracker) Batch() models.JobProgress {
	return t.Get(models.BatchJobID)
}

// Snapshot returns every known job, batch first, then in natural job id
// order.
func (t *Tracker) Snapshot() []models.JobProgress {
	t.mu.Lock()
	out := make([]models.JobProgress, 0, len(t.jobs))
	for _, p := range t.jobs {
		out = append(out, *p)
	}
	t.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return lessJobID(out[i].JobID, out[j].JobID)
	})
	return out
}

// OnChange registers fn for every change to jobID's progress.
func (t *Tracker) OnChange(jobID string, fn func(models.JobProgress)) (cancel func()) {
	return t.listeners.Subscribe(jobID, fn)
}

func clamp(pct int) int {
	return min(max(pct, 0), 100)
}
