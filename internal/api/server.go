// It defines the relay server, sets up the routes (endpoints)
// using chi, and links them to the handler functions.

package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/narrate-go/narrate/internal/core"
)

// Server holds the dependencies for the relay API.
type Server struct {
	app *core.App
}

// NewServer creates a new Server instance.
func NewServer(app *core.App) *Server {
	return &Server{app: app}
}

// Router sets up and returns the main router for the relay.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/api/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		// Single-chapter analysis is synchronous on the backend and can run
		// for minutes; only the snapshot reads get the short timeout.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))
			r.Get("/jobs", s.handleListJobs)
			r.Get("/jobs/{jobID}", s.handleGetJob)
			r.Get("/chapters/{chapterID}/audio-status", s.handleAudioStatus)
		})

		r.Post("/jobs/batch", s.handleStartBatch)
		r.Post("/jobs/batch-generate", s.handleStartBatchGenerate)
		r.Post("/chapters/{chapterID}/analyze", s.handleAnalyzeChapter)
		r.Post("/chapters/{chapterID}/generate", s.handleGenerateAudio)
		r.Post("/characters/merge", s.handleMergeCharacters)
	})

	// WebSocket route
	r.Get("/ws/progress", func(w http.ResponseWriter, r *http.Request) {
		s.app.WsHub().ServeWs(w, r)
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if db := s.app.DB(); db != nil {
		if err := db.Ping(); err != nil {
			RespondWithError(w, http.StatusServiceUnavailable, "Database connection failed")
			return
		}
	}
	RespondWithJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"channel": string(s.app.Connection().State()),
	})
}

// parseForce reads the optional force query flag.
func parseForce(r *http.Request) (bool, bool) {
	raw := r.URL.Query().Get("force")
	if raw == "" {
		return false, true
	}
	force, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return force, true
}

// ListenAndServe serves the relay on addr until ctx is cancelled, then shuts
// down gracefully, allowing existing requests five seconds to finish.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Starting relay server on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("could not start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Println("Server exiting.")
	return nil
}
