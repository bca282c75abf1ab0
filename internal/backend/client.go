// Package backend is the HTTP client for the backend's job submission API.
// Starting a job here only submits it; progress arrives on the event channel.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/narrate-go/narrate/internal/models"
)

// SubmissionError is returned when the backend answers a submission with a
// non-2xx status.
type SubmissionError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *SubmissionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: backend returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: backend returned %d: %s", e.Op, e.StatusCode, e.Message)
}

// AnalysisResponse is the synchronous result of a single-chapter analysis.
type AnalysisResponse struct {
	ChapterID string           `json:"chapterId"`
	Results   []models.Segment `json:"results"`
	Cached    bool             `json:"cached"`
}

// MergeResponse is the backend's answer to a character merge.
type MergeResponse struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// BatchGenerateResponse acknowledges a batch audio generation.
type BatchGenerateResponse struct {
	Status        string `json:"status"`
	TotalChapters int    `json:"totalChapters"`
}

// Client talks to the backend submission endpoints.
type Client struct {
	client  *http.Client
	baseURL string
}

// New creates a client for the backend at baseURL (e.g. http://localhost:8080).
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// AnalyzeChapter runs analysis of one chapter and waits for the result.
func (c *Client) AnalyzeChapter(ctx context.Context, chapterID string, force bool) (*AnalysisResponse, error) {
	path := fmt.Sprintf("/api/analyze/%s?force=%s", url.PathEscape(chapterID), strconv.FormatBool(force))
	var resp AnalysisResponse
	if err := c.do(ctx, "analyze chapter", http.MethodPost, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AnalyzeAll submits batch analysis of every chapter. Progress is reported
// on the channel under the batch job id.
func (c *Client) AnalyzeAll(ctx context.Context, force bool) error {
	path := "/api/analyze-all?force=" + strconv.FormatBool(force)
	return c.do(ctx, "analyze all", http.MethodPost, path, nil, nil)
}

// GenerateAudio submits audio generation for a chapter. Progress is reported
// on the channel under the chapter id.
func (c *Client) GenerateAudio(ctx context.Context, chapterID string) error {
	path := "/api/generate/" + url.PathEscape(chapterID)
	return c.do(ctx, "generate audio", http.MethodPost, path, nil, nil)
}

// GenerateAll submits audio generation for every chapter of the loaded book.
// Chapters that already have audio are skipped by the backend. Progress is
// reported on the channel under the batch-generate job id.
func (c *Client) GenerateAll(ctx context.Context) (*BatchGenerateResponse, error) {
	var resp BatchGenerateResponse
	if err := c.do(ctx, "generate all", http.MethodPost, "/api/generate-all", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AudioStatus reports whether the chapter's audio has been rendered.
func (c *Client) AudioStatus(ctx context.Context, chapterID string) (*models.AudioStatus, error) {
	path := "/api/audio-status/" + url.PathEscape(chapterID)
	var status models.AudioStatus
	if err := c.do(ctx, "audio status", http.MethodGet, path, nil, &status); err != nil {
		return nil, err
	}
	if status.ChapterID == "" {
		status.ChapterID = chapterID
	}
	return &status, nil
}

// MergeCharacters merges the source characters into target on the backend.
func (c *Client) MergeCharacters(ctx context.Context, target string, sources []string) (*MergeResponse, error) {
	body := map[string]any{"target": target, "sources": sources}
	var resp MergeResponse
	if err := c.do(ctx, "merge characters", http.MethodPost, "/api/characters/merge", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to encode request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &SubmissionError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}

// errorMessage extracts {"error": "..."} from a failed response, falling back
// to the raw body.
func errorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return body.Error
	}
	return strings.TrimSpace(string(raw))
}
