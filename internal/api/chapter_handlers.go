package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/narrate-go/narrate/internal/models"
)

func (s *Server) handleAnalyzeChapter(w http.ResponseWriter, r *http.Request) {
	chapterID := chi.URLParam(r, "chapterID")
	force, ok := parseForce(r)
	if !ok {
		RespondWithError(w, http.StatusBadRequest, "Invalid force parameter")
		return
	}

	result, err := s.app.JobManager().AnalyzeChapter(r.Context(), chapterID, force)
	if err != nil {
		respondWithJobError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, result)
}

func (s *Server) handleGenerateAudio(w http.ResponseWriter, r *http.Request) {
	chapterID := chi.URLParam(r, "chapterID")

	if err := s.app.JobManager().GenerateAudio(r.Context(), chapterID); err != nil {
		respondWithJobError(w, err)
		return
	}
	run, _ := s.app.JobManager().Run(models.RunGenerate, chapterID)
	RespondWithJSON(w, http.StatusAccepted, run)
}

func (s *Server) handleAudioStatus(w http.ResponseWriter, r *http.Request) {
	chapterID := chi.URLParam(r, "chapterID")

	status, err := s.app.JobManager().AudioStatus(r.Context(), chapterID)
	if err != nil {
		respondWithJobError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, status)
}

func (s *Server) handleMergeCharacters(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Target  string   `json:"target"`
		Sources []string `json:"sources"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		RespondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if payload.Target == "" || len(payload.Sources) == 0 {
		RespondWithError(w, http.StatusBadRequest, "Target and at least one source are required")
		return
	}

	resp, err := s.app.JobManager().MergeCharacters(r.Context(), payload.Target, payload.Sources)
	if err != nil {
		respondWithJobError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, resp)
}
