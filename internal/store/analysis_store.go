package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/narrate-go/narrate/internal/models"
)

// GetAnalysis returns the cached analysis for a chapter, or nil when there
// is no valid entry.
func (s *Store) GetAnalysis(chapterID string) (*models.CachedAnalysis, error) {
	var (
		raw     string
		cached  models.CachedAnalysis
		isValid bool
	)
	err := s.db.QueryRow(
		"SELECT chapter_id, version, segments, valid, fetched_at FROM analysis_cache WHERE chapter_id = ?",
		chapterID,
	).Scan(&cached.ChapterID, &cached.Version, &raw, &isValid, &cached.FetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !isValid {
		return nil, nil
	}
	if err := json.Unmarshal([]byte(raw), &cached.Segments); err != nil {
		return nil, fmt.Errorf("corrupt cached analysis for %s: %w", chapterID, err)
	}
	return &cached, nil
}

// PutAnalysis stores the analysis for a chapter and returns the new entry.
// The version keeps increasing across invalidations.
func (s *Store) PutAnalysis(chapterID string, segments []models.Segment) (*models.CachedAnalysis, error) {
	if segments == nil {
		segments = []models.Segment{}
	}
	raw, err := json.Marshal(segments)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	query := `
		INSERT INTO analysis_cache (chapter_id, version, segments, valid, fetched_at)
		VALUES (?, 1, ?, 1, ?)
		ON CONFLICT(chapter_id) DO UPDATE SET
			version = analysis_cache.version + 1,
			segments = excluded.segments,
			valid = 1,
			fetched_at = excluded.fetched_at;
	`
	if _, err := s.db.Exec(query, chapterID, string(raw), now); err != nil {
		return nil, err
	}

	var version int64
	if err := s.db.QueryRow("SELECT version FROM analysis_cache WHERE chapter_id = ?", chapterID).Scan(&version); err != nil {
		return nil, err
	}
	return &models.CachedAnalysis{ChapterID: chapterID, Version: version, Segments: segments, FetchedAt: now}, nil
}

// InvalidateAnalysis marks one chapter's cached analysis stale.
func (s *Store) InvalidateAnalysis(chapterID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("UPDATE analysis_cache SET valid = 0 WHERE chapter_id = ?", chapterID); err != nil {
		return err
	}
	if err := bumpGeneration(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// InvalidateAllAnalyses marks every cached analysis stale. Used after remote
// writes such as a character merge that change every chapter's speakers.
func (s *Store) InvalidateAllAnalyses() (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec("UPDATE analysis_cache SET valid = 0 WHERE valid = 1")
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := bumpGeneration(tx); err != nil {
		return 0, err
	}
	return affected, tx.Commit()
}

// CacheGeneration returns the number of invalidations performed so far.
func (s *Store) CacheGeneration() (int64, error) {
	var gen int64
	err := s.db.QueryRow("SELECT value FROM cache_meta WHERE key = 'generation'").Scan(&gen)
	return gen, err
}

func bumpGeneration(tx *sql.Tx) error {
	_, err := tx.Exec("UPDATE cache_meta SET value = value + 1 WHERE key = 'generation'")
	return err
}
