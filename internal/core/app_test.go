package core_test

import (
	"testing"
	"time"

	"github.com/narrate-go/narrate/internal/channel"
	"github.com/narrate-go/narrate/internal/models"
	"github.com/narrate-go/narrate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApp_ChannelFeedsModels(t *testing.T) {
	app, fb := testutil.SetupTestApp(t)

	var got []models.Event
	done := make(chan struct{})
	cancel := app.Router().Subscribe("ch1", func(ev models.Event) {
		got = append(got, ev)
		if len(got) == 3 {
			close(done)
		}
	})
	defer cancel()

	app.Connection().Connect()
	select {
	case <-fb.Joined():
	case <-time.After(2 * time.Second):
		t.Fatal("channel never connected")
	}
	require.Eventually(t, func() bool { return app.Connection().State() == channel.StateOpen }, time.Second, 5*time.Millisecond)

	fb.Send(t, map[string]any{"type": "log", "chapterId": "", "message": "Connected to server"})
	fb.Send(t, map[string]any{"type": "llm_output", "chapterId": "ch1", "message": "Hello <think>ponder"})
	fb.Send(t, map[string]any{"type": "llm_output", "chapterId": "ch1", "message": "ing</think> world"})
	fb.Send(t, map[string]any{"type": "progress", "chapterId": "ch1", "percentage": 45, "message": "Generating (45%)"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("events were not routed")
	}

	assert.Equal(t, models.ReasoningView{JobID: "ch1", Reasoning: "pondering", Main: "Hello  world"}, app.Reassembler().View("ch1"))
	assert.Equal(t, models.JobProgress{JobID: "ch1", Percentage: 45, Message: "Generating (45%)"}, app.Tracker().Get("ch1"))
	assert.Equal(t, 0, app.Router().Count(""), "the connect log line has no subscriber")
}

func TestApp_ReconnectsAfterBackendRestart(t *testing.T) {
	app, fb := testutil.SetupTestApp(t)

	app.Connection().Connect()
	<-fb.Joined()
	fb.DropClients()

	select {
	case <-fb.Joined():
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not reconnect")
	}
	require.Eventually(t, func() bool { return app.Connection().State() == channel.StateOpen }, time.Second, 5*time.Millisecond)

	fb.Send(t, map[string]any{"type": "progress", "chapterId": "batch", "percentage": 70, "message": "Analyzing"})
	require.Eventually(t, func() bool { return app.Tracker().Batch().Percentage == 70 }, time.Second, 5*time.Millisecond)
}
