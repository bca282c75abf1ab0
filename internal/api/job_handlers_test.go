package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/narrate-go/narrate/internal/models"
	"github.com/narrate-go/narrate/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h http.Handler, method, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	server, _, _ := testutil.SetupTestServer(t)

	rr := serve(t, server.Router(), "GET", "/api/health", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "closed", body["channel"])
}

func TestStartBatch(t *testing.T) {
	t.Run("Accepted and completed by the channel", func(t *testing.T) {
		server, app, fb := testutil.SetupTestServer(t)
		router := server.Router()

		app.Connection().Connect()
		select {
		case <-fb.Joined():
		case <-time.After(2 * time.Second):
			t.Fatal("channel never connected to the fake backend")
		}

		rr := serve(t, router, "POST", "/api/jobs/batch?force=true", "")
		require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
		assert.Contains(t, fb.Requests(), "POST /api/analyze-all?force=true")

		var run models.Run
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &run))
		assert.Equal(t, models.RunRunning, run.State)
		assert.NotEmpty(t, run.RunID)

		fb.Send(t, map[string]any{"type": "progress", "chapterId": "batch", "percentage": 50, "message": "Analyzing Chapter 1 (1/2)..."})
		fb.Send(t, map[string]any{"type": "progress", "chapterId": "batch", "percentage": 100, "message": "Batch analysis complete"})

		require.Eventually(t, func() bool {
			r, _ := app.JobManager().Run(models.RunBatch, models.BatchJobID)
			return r.State == models.RunComplete
		}, 2*time.Second, 10*time.Millisecond)

		rr = serve(t, router, "GET", "/api/jobs/batch", "")
		require.Equal(t, http.StatusOK, rr.Code)
		var details struct {
			Progress models.JobProgress `json:"progress"`
			Runs     []models.Run       `json:"runs"`
			History  []models.Run       `json:"history"`
		}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &details))
		assert.Equal(t, 100, details.Progress.Percentage)
		assert.True(t, details.Progress.Terminal)
		assert.Equal(t, "Batch analysis complete", details.Progress.Message)
		require.Len(t, details.Runs, 1)
		assert.Equal(t, models.RunComplete, details.Runs[0].State)
		require.NotEmpty(t, details.History)
		assert.Equal(t, models.RunComplete, details.History[0].State)
	})

	t.Run("Backend failure maps to bad gateway", func(t *testing.T) {
		server, app, fb := testutil.SetupTestServer(t)
		fb.FailNext("analyze-all", 1)

		rr := serve(t, server.Router(), "POST", "/api/jobs/batch", "")
		assert.Equal(t, http.StatusBadGateway, rr.Code)
		assert.Contains(t, rr.Body.String(), "backend unavailable")
		assert.Equal(t, models.JobProgress{JobID: models.BatchJobID}, app.Tracker().Batch())
	})

	t.Run("Second start replaces an unfinished run", func(t *testing.T) {
		server, _, fb := testutil.SetupTestServer(t)
		router := server.Router()

		var first, second models.Run
		rr := serve(t, router, "POST", "/api/jobs/batch", "")
		require.Equal(t, http.StatusAccepted, rr.Code)
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &first))

		rr = serve(t, router, "POST", "/api/jobs/batch", "")
		require.Equal(t, http.StatusAccepted, rr.Code)
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &second))
		assert.NotEqual(t, first.RunID, second.RunID)
		assert.Len(t, fb.Requests(), 2)
	})

	t.Run("Invalid force flag", func(t *testing.T) {
		server, _, fb := testutil.SetupTestServer(t)
		rr := serve(t, server.Router(), "POST", "/api/jobs/batch?force=maybe", "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Empty(t, fb.Requests())
	})
}

func TestStartBatchGenerate(t *testing.T) {
	server, app, fb := testutil.SetupTestServer(t)
	router := server.Router()

	rr := serve(t, router, "POST", "/api/jobs/batch-generate", "")
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	assert.Contains(t, fb.Requests(), "POST /api/generate-all")

	var body struct {
		Run           models.Run `json:"run"`
		TotalChapters int        `json:"totalChapters"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, models.RunRunning, body.Run.State)
	assert.Equal(t, models.BatchGenerateJobID, body.Run.JobID)
	assert.Equal(t, 2, body.TotalChapters)

	app.Router().Dispatch(models.Event{Kind: models.KindProgress, JobID: models.BatchGenerateJobID, Percentage: 100, Message: "All done! 2 generated, 0 skipped."})
	run, _ := app.JobManager().Run(models.RunBatchGenerate, models.BatchGenerateJobID)
	assert.Equal(t, models.RunComplete, run.State)

	t.Run("Backend refusal", func(t *testing.T) {
		fb.FailNext("generate-all", 1)
		rr := serve(t, router, "POST", "/api/jobs/batch-generate", "")
		assert.Equal(t, http.StatusBadGateway, rr.Code)
		run, _ := app.JobManager().Run(models.RunBatchGenerate, models.BatchGenerateJobID)
		assert.Equal(t, models.RunIdle, run.State)
	})
}

func TestListJobs(t *testing.T) {
	server, app, _ := testutil.SetupTestServer(t)
	for _, id := range []string{"ch10", "batch-generate", "ch2", "batch"} {
		app.Router().Dispatch(models.Event{Kind: models.KindProgress, JobID: id, Percentage: 10, Message: "working"})
	}

	rr := serve(t, server.Router(), "GET", "/api/jobs", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var jobs []models.JobProgress
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &jobs))
	ids := make([]string, len(jobs))
	for i, j := range jobs {
		ids[i] = j.JobID
	}
	assert.Equal(t, []string{"batch", "batch-generate", "ch2", "ch10"}, ids)
}

func TestRelayWebSocket(t *testing.T) {
	server, app, _ := testutil.SetupTestServer(t)
	srv := httptest.NewServer(server.Router())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/progress"
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer client.Close()
	require.Eventually(t, func() bool { return app.WsHub().ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	app.Router().Dispatch(models.Event{Kind: models.KindModelOutput, JobID: "ch1", Fragment: "Hi <think>hmm"})
	app.Router().Dispatch(models.Event{Kind: models.KindProgress, JobID: "ch1", Percentage: 40, Message: "Generating"})

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	var view models.RelayUpdate
	require.NoError(t, client.ReadJSON(&view))
	assert.Equal(t, "view", view.Kind)
	require.NotNil(t, view.View)
	assert.Equal(t, models.ReasoningView{JobID: "ch1", Reasoning: "hmm", Main: "Hi ", Open: true}, *view.View)

	var prog models.RelayUpdate
	require.NoError(t, client.ReadJSON(&prog))
	assert.Equal(t, "progress", prog.Kind)
	require.NotNil(t, prog.Progress)
	assert.Equal(t, 40, prog.Progress.Percentage)
}
