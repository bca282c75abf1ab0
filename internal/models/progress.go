package models

import "time"

// JobProgress is the rendered progress state of one job.
type JobProgress struct {
	JobID      string `json:"jobId"`
	Percentage int    `json:"percentage"`
	Message    string `json:"message"`
	Terminal   bool   `json:"terminal"`
}

// ReasoningView is the reassembled model output of one job, split into the
// reasoning block and the main text.
type ReasoningView struct {
	JobID     string `json:"jobId"`
	Reasoning string `json:"reasoning"`
	Main      string `json:"main"`
	// Open is true while the reasoning block has started but not ended.
	Open bool `json:"open"`
}

// RelayUpdate is the payload the local relay broadcasts to browser clients.
type RelayUpdate struct {
	JobID    string         `json:"jobId"`
	Kind     string         `json:"kind"` // "progress" or "view"
	Progress *JobProgress   `json:"progress,omitempty"`
	View     *ReasoningView `json:"view,omitempty"`
}

// RunKind is the type of backend work a run performs.
type RunKind string

const (
	RunAnalyze       RunKind = "analyze"
	RunBatch         RunKind = "batch"
	RunGenerate      RunKind = "generate"
	RunBatchGenerate RunKind = "batch-generate"
)

// RunState is the lifecycle state of a run.
type RunState string

const (
	RunIdle     RunState = "idle"
	RunRunning  RunState = "running"
	RunComplete RunState = "complete"
	RunFailed   RunState = "failed"
	// RunSuperseded marks a run replaced by a newer start before the
	// channel reported it finished.
	RunSuperseded RunState = "superseded"
)

// Run is one started execution of a job. RunID stamps the run so state from
// an older run of the same job is never mistaken for the current one.
type Run struct {
	RunID      string     `json:"runId"`
	JobID      string     `json:"jobId"`
	Kind       RunKind    `json:"kind"`
	State      RunState   `json:"state"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"startedAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}
