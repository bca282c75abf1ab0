package models

import "time"

// Segment is one speaker-attributed line returned by chapter analysis.
type Segment struct {
	Text        string `json:"text"`
	Typesetting string `json:"typesetting,omitempty"`
	Speaker     string `json:"speaker"`
	Emotion     string `json:"emotion"`
}

// CachedAnalysis is a locally cached analysis result. Version increases on
// every write for the same chapter.
type CachedAnalysis struct {
	ChapterID string    `json:"chapterId"`
	Version   int64     `json:"version"`
	Segments  []Segment `json:"segments"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// AudioStatus reports whether a rendered chapter exists on the backend.
type AudioStatus struct {
	ChapterID string `json:"chapterId"`
	Exists    bool   `json:"exists"`
	URL       string `json:"url,omitempty"`
}
