package api

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/narrate-go/narrate/internal/models"
)

type jobDetails struct {
	Progress models.JobProgress   `json:"progress"`
	View     models.ReasoningView `json:"view"`
	Runs     []models.Run         `json:"runs"`
	History  []models.Run         `json:"history,omitempty"`
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, s.app.Tracker().Snapshot())
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	details := jobDetails{
		Progress: s.app.Tracker().Get(jobID),
		View:     s.app.Reassembler().View(jobID),
		Runs:     []models.Run{},
	}
	for _, kind := range []models.RunKind{models.RunBatch, models.RunBatchGenerate, models.RunAnalyze, models.RunGenerate} {
		if run, ok := s.app.JobManager().Run(kind, jobID); ok {
			details.Runs = append(details.Runs, run)
		}
	}
	if st := s.app.Store(); st != nil {
		history, err := st.ListRuns(jobID, 10)
		if err != nil {
			log.Printf("[api] Failed to list run history for %s: %v", jobID, err)
		}
		details.History = history
	}
	RespondWithJSON(w, http.StatusOK, details)
}

func (s *Server) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	force, ok := parseForce(r)
	if !ok {
		RespondWithError(w, http.StatusBadRequest, "Invalid force parameter")
		return
	}

	if err := s.app.JobManager().StartBatch(r.Context(), force); err != nil {
		respondWithJobError(w, err)
		return
	}
	run, _ := s.app.JobManager().Run(models.RunBatch, models.BatchJobID)
	RespondWithJSON(w, http.StatusAccepted, run)
}

func (s *Server) handleStartBatchGenerate(w http.ResponseWriter, r *http.Request) {
	resp, err := s.app.JobManager().StartBatchGenerate(r.Context())
	if err != nil {
		respondWithJobError(w, err)
		return
	}
	run, _ := s.app.JobManager().Run(models.RunBatchGenerate, models.BatchGenerateJobID)
	RespondWithJSON(w, http.StatusAccepted, map[string]any{
		"run":           run,
		"totalChapters": resp.TotalChapters,
	})
}
