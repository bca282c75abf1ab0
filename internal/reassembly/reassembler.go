// Package reassembly rebuilds streamed model output from its fragments and
// splits it into the reasoning block and the main text.
package reassembly

import (
	"strings"
	"sync"

	"github.com/narrate-go/narrate/internal/channel"
	"github.com/narrate-go/narrate/internal/models"
)

// Default reasoning markers emitted by the analysis model.
const (
	DefaultOpen  = "<think>"
	DefaultClose = "</think>"
)

// Split derives the reasoning and main text from the running concatenation
// s. A block that has opened but not closed yet counts as reasoning up to the
// end of s. open reports whether the block is still streaming.
func Split(s, openMarker, closeMarker string) (reasoning, main string, open bool) {
	start := strings.Index(s, openMarker)
	if start < 0 {
		return "", s, false
	}
	body := start + len(openMarker)
	end := strings.Index(s[body:], closeMarker)
	if end < 0 {
		return s[body:], s[:start], true
	}
	end += body
	return s[body:end], s[:start] + s[end+len(closeMarker):], false
}

// Reassembler keeps the running text of every job that streams model output
// and republishes the split view after each fragment.
type Reassembler struct {
	openMarker  string
	closeMarker string

	mu    sync.Mutex
	texts map[string]*strings.Builder
	views *channel.Registry[models.ReasoningView]
}

// New creates a Reassembler using the given markers. Empty markers fall back
// to DefaultOpen and DefaultClose.
func New(openMarker, closeMarker string) *Reassembler {
	if openMarker == "" {
		openMarker = DefaultOpen
	}
	if closeMarker == "" {
		closeMarker = DefaultClose
	}
	return &Reassembler{
		openMarker:  openMarker,
		closeMarker: closeMarker,
		texts:       make(map[string]*strings.Builder),
		views:       channel.NewRegistry[models.ReasoningView]("reassembly"),
	}
}

// Attach feeds every model output event routed by r into the reassembler.
func (ra *Reassembler) Attach(r *channel.Router) (cancel func()) {
	return r.Observe(ra.Handle)
}

// Handle appends the fragment of a model output event and publishes the
// new view. Other kinds are ignored.
func (ra *Reassembler) Handle(ev models.Event) {
	if ev.Kind != models.KindModelOutput {
		return
	}

	ra.mu.Lock()
	b, ok := ra.texts[ev.JobID]
	if !ok {
		b = &strings.Builder{}
		ra.texts[ev.JobID] = b
	}
	b.WriteString(ev.Fragment)
	view := ra.viewLocked(ev.JobID, b.String())
	ra.mu.Unlock()

	ra.views.Publish(ev.JobID, view)
}

// Reset discards the text of jobID so a new run starts empty, and publishes
// the empty view.
func (ra *Reassembler) Reset(jobID string) {
	ra.mu.Lock()
	delete(ra.texts, jobID)
	ra.mu.Unlock()

	ra.views.Publish(jobID, models.ReasoningView{JobID: jobID})
}

// View returns the current view of jobID.
func (ra *Reassembler) View(jobID string) models.ReasoningView {
	ra.mu.Lock()
	defer ra.mu.Unlock()
	b, ok := ra.texts[jobID]
	if !ok {
		return models.ReasoningView{JobID: jobID}
	}
	return ra.viewLocked(jobID, b.String())
}

// Text returns the raw concatenation received so far for jobID.
func (ra *Reassembler) Text(jobID string) string {
	ra.mu.Lock()
	defer ra.mu.Unlock()
	if b, ok := ra.texts[jobID]; ok {
		return b.String()
	}
	return ""
}

// OnView registers fn for view updates of jobID.
func (ra *Reassembler) OnView(jobID string, fn func(models.ReasoningView)) (cancel func()) {
	return ra.views.Subscribe(jobID, fn)
}

func (ra *Reassembler) viewLocked(jobID, s string) models.ReasoningView {
	reasoning, main, open := Split(s, ra.openMarker, ra.closeMarker)
	return models.ReasoningView{JobID: jobID, Reasoning: reasoning, Main: main, Open: open}
}
