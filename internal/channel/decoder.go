package channel

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/narrate-go/narrate/internal/models"
)

// ErrMalformedFrame is returned by Decode for frames that are not valid
// event records. Such frames are dropped; they never close the connection.
var ErrMalformedFrame = errors.New("malformed frame")

// Wire names of the event types sent by the backend.
const (
	wireProgress  = "progress"
	wireLLMOutput = "llm_output"
)

// wireFrame mirrors the backend's frame. Pointers distinguish an absent
// field from an empty one.
type wireFrame struct {
	Type       *string `json:"type"`
	ChapterID  *string `json:"chapterId"`
	Percentage int     `json:"percentage"`
	// Message is the status text of a progress frame and the text fragment
	// of an llm_output frame.
	Message string `json:"message"`
}

// Decode parses one text frame into an Event. type and chapterId must be
// present and be strings; unknown types are kept as-is.
func Decode(data []byte) (models.Event, error) {
	var f wireFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return models.Event{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if f.Type == nil {
		return models.Event{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	if f.ChapterID == nil {
		return models.Event{}, fmt.Errorf("%w: missing chapterId", ErrMalformedFrame)
	}

	ev := models.Event{JobID: *f.ChapterID}
	switch *f.Type {
	case wireProgress:
		ev.Kind = models.KindProgress
		ev.Percentage = f.Percentage
		ev.Message = f.Message
	case wireLLMOutput:
		ev.Kind = models.KindModelOutput
		ev.Fragment = f.Message
	default:
		ev.Kind = models.EventKind(*f.Type)
		ev.Percentage = f.Percentage
		ev.Message = f.Message
	}
	return ev, nil
}
