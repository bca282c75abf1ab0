package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/narrate-go/narrate/internal/backend"
	"github.com/narrate-go/narrate/internal/jobs"
)

// RespondWithJSON writes a JSON response with the given status code and payload.
func RespondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		RespondWithError(w, http.StatusInternalServerError, "Failed to marshal response")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

// RespondWithError writes a standardized JSON error response.
func RespondWithError(w http.ResponseWriter, code int, message string) {
	RespondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithJobError maps a run manager error to a status code. Anything the
// backend refused or never answered is a bad gateway from the relay's view.
func respondWithJobError(w http.ResponseWriter, err error) {
	var subErr *backend.SubmissionError
	switch {
	case errors.Is(err, jobs.ErrAlreadyRunning):
		RespondWithError(w, http.StatusConflict, err.Error())
	case errors.As(err, &subErr):
		RespondWithJSON(w, http.StatusBadGateway, map[string]any{
			"error":         err.Error(),
			"backendStatus": subErr.StatusCode,
		})
	default:
		RespondWithError(w, http.StatusBadGateway, err.Error())
	}
}
