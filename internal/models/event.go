package models

// EventKind tags an Event. The set is open: kinds the console does not know
// are kept verbatim and routed like any other event.
type EventKind string

const (
	KindProgress    EventKind = "progress"
	KindModelOutput EventKind = "model-output"
)

// Reserved job ids for progress that applies to a whole batch run rather
// than one chapter.
const (
	BatchJobID         = "batch"
	BatchGenerateJobID = "batch-generate"
)

// Event is one decoded record from the job event channel.
type Event struct {
	Kind  EventKind `json:"kind"`
	JobID string    `json:"jobId"`
	// Progress events
	Percentage int    `json:"percentage,omitempty"`
	Message    string `json:"message,omitempty"`
	// Model output events
	Fragment string `json:"fragment,omitempty"`
}

// IsBatch reports whether the event is scoped to a batch run.
func (e Event) IsBatch() bool {
	return IsBatchJob(e.JobID)
}

// IsBatchJob reports whether jobID is one of the reserved batch ids.
func IsBatchJob(jobID string) bool {
	return jobID == BatchJobID || jobID == BatchGenerateJobID
}
