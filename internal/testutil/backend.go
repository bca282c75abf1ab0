package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// FakeBackend is an httptest server speaking the backend's submission API
// and job event channel. Tests push channel frames with Send.
type FakeBackend struct {
	Server *httptest.Server

	mu       sync.Mutex
	sockets  []*websocket.Conn
	requests []string
	failures map[string]int
	audio    map[string]string
	segments []map[string]string
	joined   chan struct{}
}

var fakeUpgrader = websocket.Upgrader{}

// NewFakeBackend starts a fake backend, closed on test cleanup.
func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()
	fb := &FakeBackend{
		failures: make(map[string]int),
		audio:    make(map[string]string),
		segments: []map[string]string{{"text": "Hello.", "speaker": "Narrator", "emotion": "calm"}},
		joined:   make(chan struct{}, 16),
	}

	r := chi.NewRouter()
	r.Get("/api/ws", fb.serveWs)
	r.Post("/api/analyze/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if fb.fail(w, "analyze") {
			return
		}
		fb.mu.Lock()
		segments := fb.segments
		fb.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"chapterId": id, "results": segments})
	})
	r.Post("/api/analyze-all", func(w http.ResponseWriter, r *http.Request) {
		if fb.fail(w, "analyze-all") {
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Batch analysis started"})
	})
	r.Post("/api/generate/{id}", func(w http.ResponseWriter, r *http.Request) {
		if fb.fail(w, "generate") {
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Audio generation started"})
	})
	r.Post("/api/generate-all", func(w http.ResponseWriter, r *http.Request) {
		if fb.fail(w, "generate-all") {
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "started", "totalChapters": 2})
	})
	r.Get("/api/audio-status/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		fb.mu.Lock()
		url, ok := fb.audio[id]
		fb.mu.Unlock()
		if !ok {
			writeJSON(w, http.StatusOK, map[string]any{"exists": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"exists": true, "url": url})
	})
	r.Post("/api/characters/merge", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Target  string   `json:"target"`
			Sources []string `json:"sources"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Target == "" || len(req.Sources) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"message": "Characters merged successfully", "count": len(req.Sources)})
	})

	fb.Server = httptest.NewServer(fb.record(r))
	t.Cleanup(fb.Close)
	return fb
}

// URL is the backend base URL.
func (fb *FakeBackend) URL() string { return fb.Server.URL }

// FailNext makes the next n requests of op ("analyze", "analyze-all",
// "generate", "generate-all") answer 500.
func (fb *FakeBackend) FailNext(op string, n int) {
	fb.mu.Lock()
	fb.failures[op] = n
	fb.mu.Unlock()
}

// SetAudio marks a chapter's audio as rendered.
func (fb *FakeBackend) SetAudio(chapterID, url string) {
	fb.mu.Lock()
	fb.audio[chapterID] = url
	fb.mu.Unlock()
}

// Requests returns "METHOD path" for every request served so far.
func (fb *FakeBackend) Requests() []string {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return append([]string(nil), fb.requests...)
}

// Joined receives once per accepted channel connection.
func (fb *FakeBackend) Joined() <-chan struct{} { return fb.joined }

// Send writes v as a JSON frame to every connected channel client.
func (fb *FakeBackend) Send(t *testing.T, v any) {
	t.Helper()
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for _, c := range fb.sockets {
		if err := c.WriteJSON(v); err != nil {
			t.Fatalf("Failed to write channel frame: %v", err)
		}
	}
}

// DropClients closes every channel connection, as a backend restart would.
func (fb *FakeBackend) DropClients() {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	for _, c := range fb.sockets {
		c.Close()
	}
	fb.sockets = nil
}

// Close drops all clients and stops the server.
func (fb *FakeBackend) Close() {
	fb.DropClients()
	fb.Server.Close()
}

func (fb *FakeBackend) serveWs(w http.ResponseWriter, r *http.Request) {
	c, err := fakeUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	fb.mu.Lock()
	fb.sockets = append(fb.sockets, c)
	fb.mu.Unlock()
	fb.joined <- struct{}{}
}

func (fb *FakeBackend) fail(w http.ResponseWriter, op string) bool {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.failures[op] == 0 {
		return false
	}
	fb.failures[op]--
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "backend unavailable"})
	return true
}

func (fb *FakeBackend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fb.mu.Lock()
		fb.requests = append(fb.requests, r.Method+" "+r.URL.RequestURI())
		fb.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
