package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/narrate-go/narrate/internal/backend"
	"github.com/narrate-go/narrate/internal/models"
	"github.com/narrate-go/narrate/internal/progress"
	"github.com/narrate-go/narrate/internal/reassembly"
	"github.com/narrate-go/narrate/internal/store"
)

// ErrAlreadyRunning is returned when a job is started while the submission
// of an earlier run of the same kind is still in flight.
var ErrAlreadyRunning = errors.New("job is already running")

// Submitter is the backend's job submission interface.
type Submitter interface {
	AnalyzeChapter(ctx context.Context, chapterID string, force bool) (*backend.AnalysisResponse, error)
	AnalyzeAll(ctx context.Context, force bool) error
	GenerateAudio(ctx context.Context, chapterID string) error
	GenerateAll(ctx context.Context) (*backend.BatchGenerateResponse, error)
	AudioStatus(ctx context.Context, chapterID string) (*models.AudioStatus, error)
	MergeCharacters(ctx context.Context, target string, sources []string) (*backend.MergeResponse, error)
}

// Manager starts backend jobs and follows them through the channel-fed
// progress tracker. It never fabricates progress: a run completes only when
// the channel (or the audio status poller) says so.
type Manager struct {
	submit  Submitter
	tracker *progress.Tracker
	reasm   *reassembly.Reassembler
	store   *store.Store // optional; nil disables the cache and run history

	mu         sync.Mutex
	runs       map[string]*models.Run
	submitting map[string]string // run key -> run id awaiting the backend's answer
	watchers   map[string]func()
	audio      map[string]models.AudioStatus
}

// NewManager creates a manager. st may be nil.
func NewManager(submit Submitter, tracker *progress.Tracker, reasm *reassembly.Reassembler, st *store.Store) *Manager {
	return &Manager{
		submit:   submit,
		tracker:  tracker,
		reasm:    reasm,
		store:    st,
		runs:       make(map[string]*models.Run),
		submitting: make(map[string]string),
		watchers:   make(map[string]func()),
		audio:      make(map[string]models.AudioStatus),
	}
}

func runKey(kind models.RunKind, jobID string) string {
	return string(kind) + ":" + jobID
}

// begin registers a new running run. A previous run that was accepted by
// the backend but never reported finished is superseded, since only the
// channel can end it and its final frame may never come. A previous run
// whose submission is still in flight is refused.
func (m *Manager) begin(kind models.RunKind, jobID string) (*models.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := runKey(kind, jobID)
	if _, ok := m.submitting[key]; ok {
		return nil, fmt.Errorf("%s %q: %w", kind, jobID, ErrAlreadyRunning)
	}
	if prev, ok := m.runs[key]; ok && prev.State == models.RunRunning {
		m.endLocked(key, prev, models.RunSuperseded, nil)
		log.Printf("[jobs] Run %s of %s %s superseded by a new start", prev.RunID, kind, jobID)
	}
	run := &models.Run{
		RunID:     uuid.NewString(),
		JobID:     jobID,
		Kind:      kind,
		State:     models.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	m.runs[key] = run
	m.submitting[key] = run.RunID
	m.record(*run)
	return run, nil
}

// submitted marks the run's submission as answered.
func (m *Manager) submitted(kind models.RunKind, jobID, runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := runKey(kind, jobID)
	if m.submitting[key] == runID {
		delete(m.submitting, key)
	}
}

// finish moves the run identified by runID to state. Calls for a run that
// has since been replaced are ignored.
func (m *Manager) finish(kind models.RunKind, jobID, runID string, state models.RunState, cause error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := runKey(kind, jobID)
	run, ok := m.runs[key]
	if !ok || run.RunID != runID || run.State != models.RunRunning {
		return false
	}
	m.endLocked(key, run, state, cause)
	return true
}

// endLocked closes run with state and records it. m.mu must be held.
func (m *Manager) endLocked(key string, run *models.Run, state models.RunState, cause error) {
	now := time.Now().UTC()
	run.State = state
	run.FinishedAt = &now
	if cause != nil {
		run.Error = cause.Error()
	}
	if m.submitting[key] == run.RunID {
		delete(m.submitting, key)
	}
	if cancel, ok := m.watchers[key]; ok {
		cancel()
		delete(m.watchers, key)
	}

	history := *run
	if state == models.RunIdle {
		// A failed submission never started on the backend; history keeps
		// the failure while the live state returns to idle.
		history.State = models.RunFailed
	}
	m.record(history)
}

func (m *Manager) record(run models.Run) {
	if m.store == nil {
		return
	}
	if err := m.store.RecordRun(run); err != nil {
		log.Printf("[jobs] Failed to record run %s of %s: %v", run.RunID, run.JobID, err)
	}
}

// watchTerminal completes the run once the tracker reports jobID terminal.
// It is registered before the submission so a fast backend cannot finish
// the job unseen.
func (m *Manager) watchTerminal(run *models.Run, onDone func()) {
	key := runKey(run.Kind, run.JobID)
	cancel := m.tracker.OnChange(run.JobID, func(p models.JobProgress) {
		if !p.Terminal {
			return
		}
		if m.finish(run.Kind, run.JobID, run.RunID, models.RunComplete, nil) && onDone != nil {
			onDone()
		}
	})

	m.mu.Lock()
	current, ok := m.runs[key]
	if !ok || current.RunID != run.RunID || current.State != models.RunRunning {
		m.mu.Unlock()
		cancel()
		return
	}
	m.watchers[key] = cancel
	m.mu.Unlock()
}

// StartBatch asks the backend to analyze every chapter. The batch progress
// is reset first; all further progress comes from "batch" channel events.
// If the submission fails the run returns to idle, batch progress stays at
// zero and the error is returned.
func (m *Manager) StartBatch(ctx context.Context, force bool) error {
	log.Printf("[jobs] Starting batch analysis (force=%t)", force)
	err := m.startBatch(models.RunBatch, models.BatchJobID, func() error {
		return m.submit.AnalyzeAll(ctx, force)
	})
	if err != nil {
		return fmt.Errorf("failed to start batch analysis: %w", err)
	}
	return nil
}

// StartBatchGenerate asks the backend to render audio for every chapter that
// has none yet. Progress comes from "batch-generate" channel events.
func (m *Manager) StartBatchGenerate(ctx context.Context) (*backend.BatchGenerateResponse, error) {
	var resp *backend.BatchGenerateResponse
	err := m.startBatch(models.RunBatchGenerate, models.BatchGenerateJobID, func() error {
		var err error
		resp, err = m.submit.GenerateAll(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start batch audio generation: %w", err)
	}
	log.Printf("[jobs] Batch audio generation started for %d chapter(s)", resp.TotalChapters)
	return resp, nil
}

// startBatch resets jobID, watches it for completion and runs submit. A
// failed submission leaves the run idle and the progress at zero.
func (m *Manager) startBatch(kind models.RunKind, jobID string, submit func() error) error {
	run, err := m.begin(kind, jobID)
	if err != nil {
		return err
	}
	m.tracker.Reset(jobID)
	m.watchTerminal(run, nil)

	if err := submit(); err != nil {
		m.finish(kind, jobID, run.RunID, models.RunIdle, err)
		m.tracker.Reset(jobID)
		return err
	}
	m.submitted(kind, jobID, run.RunID)
	return nil
}

// AnalyzeChapter returns the chapter's analysis, from the local cache unless
// force is set. A fresh analysis resets the chapter's streamed model output
// and progress, and is stored with a new version.
func (m *Manager) AnalyzeChapter(ctx context.Context, chapterID string, force bool) (*models.CachedAnalysis, error) {
	if !force && m.store != nil {
		cached, err := m.store.GetAnalysis(chapterID)
		if err != nil {
			log.Printf("[jobs] Cache lookup for %s failed: %v", chapterID, err)
		} else if cached != nil {
			return cached, nil
		}
	}

	run, err := m.begin(models.RunAnalyze, chapterID)
	if err != nil {
		return nil, err
	}
	m.reasm.Reset(chapterID)
	m.tracker.Reset(chapterID)

	log.Printf("[jobs] Analyzing chapter %s (force=%t, run %s)", chapterID, force, run.RunID)
	resp, err := m.submit.AnalyzeChapter(ctx, chapterID, force)
	if err != nil {
		m.finish(models.RunAnalyze, chapterID, run.RunID, models.RunIdle, err)
		return nil, fmt.Errorf("failed to analyze chapter %s: %w", chapterID, err)
	}

	result := &models.CachedAnalysis{ChapterID: chapterID, Segments: resp.Results, FetchedAt: time.Now().UTC()}
	if m.store != nil {
		stored, err := m.store.PutAnalysis(chapterID, resp.Results)
		if err != nil {
			log.Printf("[jobs] Failed to cache analysis for %s: %v", chapterID, err)
		} else {
			result = stored
		}
	}
	m.finish(models.RunAnalyze, chapterID, run.RunID, models.RunComplete, nil)
	return result, nil
}

// GenerateAudio submits audio generation for a chapter. When the channel
// reports 100% the audio status is fetched once.
func (m *Manager) GenerateAudio(ctx context.Context, chapterID string) error {
	run, err := m.begin(models.RunGenerate, chapterID)
	if err != nil {
		return err
	}
	m.tracker.Reset(chapterID)
	m.watchTerminal(run, func() {
		// Runs on the channel's read goroutine; the lookup must not block it.
		go m.refreshAudio(chapterID)
	})

	log.Printf("[jobs] Starting audio generation for %s (run %s)", chapterID, run.RunID)
	if err := m.submit.GenerateAudio(ctx, chapterID); err != nil {
		m.finish(models.RunGenerate, chapterID, run.RunID, models.RunIdle, err)
		m.tracker.Reset(chapterID)
		return fmt.Errorf("failed to start audio generation for %s: %w", chapterID, err)
	}
	m.submitted(models.RunGenerate, chapterID, run.RunID)
	return nil
}

func (m *Manager) refreshAudio(chapterID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := m.AudioStatus(ctx, chapterID); err != nil {
		log.Printf("[jobs] Audio status for %s after completion failed: %v", chapterID, err)
	}
}

// AudioStatus queries the backend for a chapter's rendered audio and
// remembers the answer.
func (m *Manager) AudioStatus(ctx context.Context, chapterID string) (*models.AudioStatus, error) {
	status, err := m.submit.AudioStatus(ctx, chapterID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audio status for %s: %w", chapterID, err)
	}
	m.mu.Lock()
	m.audio[chapterID] = *status
	m.mu.Unlock()
	return status, nil
}

// KnownAudio returns the last audio status seen for a chapter.
func (m *Manager) KnownAudio(chapterID string) (models.AudioStatus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	status, ok := m.audio[chapterID]
	return status, ok
}

// MergeCharacters merges characters on the backend. The merge rewrites
// speakers in every stored analysis, so the whole local cache is dropped.
func (m *Manager) MergeCharacters(ctx context.Context, target string, sources []string) (*backend.MergeResponse, error) {
	resp, err := m.submit.MergeCharacters(ctx, target, sources)
	if err != nil {
		return nil, fmt.Errorf("failed to merge characters into %s: %w", target, err)
	}
	if m.store != nil {
		n, err := m.store.InvalidateAllAnalyses()
		if err != nil {
			return resp, fmt.Errorf("merged, but failed to invalidate cached analyses: %w", err)
		}
		log.Printf("[jobs] Merged %d character(s) into %s; invalidated %d cached analyses", len(sources), target, n)
	}
	return resp, nil
}

// PollAudio checks every running generation against the backend's audio
// status and completes the ones whose audio exists. It recovers runs whose
// final progress event was lost in a reconnect gap.
func (m *Manager) PollAudio(ctx context.Context) {
	for _, run := range m.Runs() {
		if run.Kind != models.RunGenerate || run.State != models.RunRunning {
			continue
		}
		status, err := m.AudioStatus(ctx, run.JobID)
		if err != nil {
			log.Printf("[jobs] %v", err)
			continue
		}
		if status.Exists && m.finish(models.RunGenerate, run.JobID, run.RunID, models.RunComplete, nil) {
			log.Printf("[jobs] Audio for %s found by poller; run %s complete", run.JobID, run.RunID)
		}
	}
}

// Run returns the latest run of kind for jobID.
func (m *Manager) Run(kind models.RunKind, jobID string) (models.Run, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runKey(kind, jobID)]
	if !ok {
		return models.Run{JobID: jobID, Kind: kind, State: models.RunIdle}, false
	}
	return *run, true
}

// Runs returns the latest run of every job, oldest first.
func (m *Manager) Runs() []models.Run {
	m.mu.Lock()
	runs := make([]models.Run, 0, len(m.runs))
	for _, r := range m.runs {
		runs = append(runs, *r)
	}
	m.mu.Unlock()

	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.Before(runs[j].StartedAt) })
	return runs
}

// Close cancels every completion watcher.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, cancel := range m.watchers {
		cancel()
		delete(m.watchers, key)
	}
}
