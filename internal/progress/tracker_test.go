package progress

import (
	"testing"

	"github.com/narrate-go/narrate/internal/channel"
	"github.com/narrate-go/narrate/internal/models"
	"github.com/stretchr/testify/assert"
)

func progressEvent(jobID string, pct int, msg string) models.Event {
	return models.Event{Kind: models.KindProgress, JobID: jobID, Percentage: pct, Message: msg}
}

func TestTracker_PercentageIsRunningMaximum(t *testing.T) {
	tr := NewTracker()
	seen := 0
	for _, pct := range []int{0, 10, 10, 35, 60, 60, 99} {
		tr.Handle(progressEvent("ch1", pct, "working"))
		seen = max(seen, pct)
		assert.Equal(t, seen, tr.Get("ch1").Percentage)
	}
}

func TestTracker_OutOfOrderDeliveryKeepsMaximum(t *testing.T) {
	tr := NewTracker()
	tr.Handle(progressEvent("ch1", 50, "Generating (3/6)"))
	tr.Handle(progressEvent("ch1", 33, "Generating (2/6)"))

	p := tr.Get("ch1")
	assert.Equal(t, 50, p.Percentage)
	assert.Equal(t, "Generating (2/6)", p.Message)
	assert.False(t, p.Terminal)
}

func TestTracker_ResetThenRun(t *testing.T) {
	tr := NewTracker()
	tr.Handle(progressEvent("ch1", 100, "Generation Complete!"))
	tr.Reset("ch1")

	var terminal []bool
	for _, pct := range []int{0, 40, 100} {
		tr.Handle(progressEvent("ch1", pct, ""))
		terminal = append(terminal, tr.Get("ch1").Terminal)
	}
	assert.Equal(t, []bool{false, false, true}, terminal)
}

func TestTracker_TerminalIsSticky(t *testing.T) {
	tr := NewTracker()
	tr.Handle(progressEvent("ch1", 100, "Generation Complete!"))
	tr.Handle(progressEvent("ch1", 0, "Initializing TTS..."))

	p := tr.Get("ch1")
	assert.True(t, p.Terminal)
	assert.Equal(t, 100, p.Percentage)
	assert.Equal(t, "Generation Complete!", p.Message)
}

func TestTracker_ClampsPercentage(t *testing.T) {
	tr := NewTracker()
	tr.Handle(progressEvent("a", -5, ""))
	assert.Equal(t, 0, tr.Get("a").Percentage)
	tr.Handle(progressEvent("a", 140, ""))
	assert.Equal(t, 100, tr.Get("a").Percentage)
	assert.True(t, tr.Get("a").Terminal)
}

func TestTracker_BatchAndSnapshot(t *testing.T) {
	r := channel.NewRouter()
	tr := NewTracker()
	tr.Attach(r)

	r.Dispatch(progressEvent("ch10", 5, ""))
	r.Dispatch(progressEvent(models.BatchJobID, 25, "Analyzing Chapter 2 (2/8)..."))
	r.Dispatch(progressEvent("ch2", 7, ""))
	r.Dispatch(models.Event{Kind: models.KindModelOutput, JobID: "ch3", Fragment: "ignored"})

	assert.Equal(t, 25, tr.Batch().Percentage)

	var ids []string
	for _, p := range tr.Snapshot() {
		ids = append(ids, p.JobID)
	}
	assert.Equal(t, []string{"batch", "ch2", "ch10"}, ids)
}

func TestTracker_OnChange(t *testing.T) {
	tr := NewTracker()
	var got []models.JobProgress
	cancel := tr.OnChange("ch1", func(p models.JobProgress) { got = append(got, p) })

	tr.Handle(progressEvent("ch1", 20, "a"))
	tr.Handle(progressEvent("ch2", 20, "other job"))
	tr.Reset("ch1")
	cancel()
	tr.Handle(progressEvent("ch1", 30, "after cancel"))

	assert.Equal(t, []models.JobProgress{
		{JobID: "ch1", Percentage: 20, Message: "a"},
		{JobID: "ch1"},
	}, got)
}
