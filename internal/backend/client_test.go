package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/narrate-go/narrate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBackend(t *testing.T) (*Client, *chi.Mux) {
	t.Helper()
	r := chi.NewRouter()
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", 5*time.Second), r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func TestClient_AnalyzeChapter(t *testing.T) {
	client, r := newBackend(t)
	r.Post("/api/analyze/{chapterID}", func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "chapter 1", chi.URLParam(req, "chapterID"))
		assert.Equal(t, "true", req.URL.Query().Get("force"))
		writeJSON(w, http.StatusOK, map[string]any{
			"chapterId": "chapter 1",
			"results":   []models.Segment{{Text: "Hi.", Speaker: "Narrator", Emotion: "calm"}},
		})
	})

	resp, err := client.AnalyzeChapter(context.Background(), "chapter 1", true)
	require.NoError(t, err)
	assert.Equal(t, "chapter 1", resp.ChapterID)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Narrator", resp.Results[0].Speaker)
}

func TestClient_AnalyzeAll(t *testing.T) {
	client, r := newBackend(t)
	var force string
	r.Post("/api/analyze-all", func(w http.ResponseWriter, req *http.Request) {
		force = req.URL.Query().Get("force")
		writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
	})

	require.NoError(t, client.AnalyzeAll(context.Background(), false))
	assert.Equal(t, "false", force)
}

func TestClient_GenerateAll(t *testing.T) {
	client, r := newBackend(t)
	r.Post("/api/generate-all", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "started", "totalChapters": 12})
	})

	resp, err := client.GenerateAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "started", resp.Status)
	assert.Equal(t, 12, resp.TotalChapters)

	empty, r2 := newBackend(t)
	r2.Post("/api/generate-all", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No book loaded"})
	})
	_, err = empty.GenerateAll(context.Background())
	var subErr *SubmissionError
	require.ErrorAs(t, err, &subErr)
	assert.Equal(t, http.StatusBadRequest, subErr.StatusCode)
	assert.Equal(t, "No book loaded", subErr.Message)
}

func TestClient_SubmissionError(t *testing.T) {
	client, r := newBackend(t)
	r.Post("/api/analyze-all", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No book loaded"})
	})
	r.Post("/api/generate/{chapterID}", func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	err := client.AnalyzeAll(context.Background(), true)
	var subErr *SubmissionError
	require.True(t, errors.As(err, &subErr))
	assert.Equal(t, http.StatusBadRequest, subErr.StatusCode)
	assert.Equal(t, "No book loaded", subErr.Message)
	assert.Equal(t, "analyze all: backend returned 400: No book loaded", err.Error())

	err = client.GenerateAudio(context.Background(), "ch1")
	require.True(t, errors.As(err, &subErr))
	assert.Equal(t, "boom", subErr.Message)
}

func TestClient_NetworkError(t *testing.T) {
	client := New("http://127.0.0.1:1", time.Second)
	err := client.AnalyzeAll(context.Background(), true)
	require.Error(t, err)
	var subErr *SubmissionError
	assert.False(t, errors.As(err, &subErr))
	assert.Contains(t, err.Error(), "analyze all")
}

func TestClient_AudioStatus(t *testing.T) {
	client, r := newBackend(t)
	r.Get("/api/audio-status/{chapterID}", func(w http.ResponseWriter, req *http.Request) {
		if chi.URLParam(req, "chapterID") == "done" {
			writeJSON(w, http.StatusOK, map[string]any{"exists": true, "chapterId": "done", "url": "/output/book/done.wav"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"exists": false})
	})

	status, err := client.AudioStatus(context.Background(), "done")
	require.NoError(t, err)
	assert.Equal(t, models.AudioStatus{ChapterID: "done", Exists: true, URL: "/output/book/done.wav"}, *status)

	status, err = client.AudioStatus(context.Background(), "pending")
	require.NoError(t, err)
	assert.Equal(t, models.AudioStatus{ChapterID: "pending"}, *status)
}

func TestClient_MergeCharacters(t *testing.T) {
	client, r := newBackend(t)
	r.Post("/api/characters/merge", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Target  string   `json:"target"`
			Sources []string `json:"sources"`
		}
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		assert.Equal(t, "Alice", body.Target)
		assert.Equal(t, []string{"alice", "Miss A"}, body.Sources)
		writeJSON(w, http.StatusOK, map[string]any{"message": "Characters merged successfully", "count": 2})
	})

	resp, err := client.MergeCharacters(context.Background(), "Alice", []string{"alice", "Miss A"})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Count)
}
