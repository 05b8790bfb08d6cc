package analysis

import (
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/tidwall/sjson"
)

var (
	streamEndedJSON = []byte(`{"type":"stream_ended"}`)
	errorJSON       = []byte(`{"type":"error"}`)
)

// StreamEnded is the trailer frame appended after the terminal event so
// clients can distinguish a finished stream from a severed connection.
type StreamEnded struct {
	TaskID    uuid.UUID `json:"task_id"`
	Chunks    int       `json:"chunks"`
	ElapsedMS int64     `json:"elapsed_ms"`
}

// MarshalJSON implements custom JSON marshaling for StreamEnded
func (s StreamEnded) MarshalJSON() ([]byte, error) {
	result := streamEndedJSON

	var err error
	result, err = sjson.SetBytes(result, "task_id", s.TaskID.String())
	if err != nil {
		return nil, err
	}

	result, err = sjson.SetBytes(result, "chunks", s.Chunks)
	if err != nil {
		return nil, err
	}

	result, err = sjson.SetBytes(result, "elapsed_ms", s.ElapsedMS)
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Encode renders one stream event as a wire frame. A marshal failure must not
// tear the stream mid-flight, so it degrades to a minimal error frame for the
// same task.
func Encode(taskID uuid.UUID, ev any) []byte {
	frame, err := json.Marshal(ev)
	if err != nil {
		frame, _ = sjson.SetBytes(errorJSON, "task_id", taskID.String())
		frame, _ = sjson.SetBytes(frame, "error", "encode event: "+err.Error())
	}
	return frame
}
