package provider

import (
	"errors"
	"fmt"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	contentJSON  = []byte(`{"type":"content"}`)
	thinkingJSON = []byte(`{"type":"thinking"}`)
	doneJSON     = []byte(`{"type":"done"}`)
	errorJSON    = []byte(`{"type":"error"}`)
)

// StreamEvent is the tagged-variant vocabulary every adapter emits.
type StreamEvent interface {
	streamEvent()
}

// Content is an incremental fragment of the answer text.
type Content struct {
	TaskID    uuid.UUID       `json:"task_id"`
	Text      string          `json:"data"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
}

func (Content) streamEvent() {}

// Thinking is an incremental fragment of vendor reasoning output. Not every
// vendor produces these.
type Thinking struct {
	TaskID    uuid.UUID       `json:"task_id"`
	Text      string          `json:"data"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
}

func (Thinking) streamEvent() {}

// Done terminates a successful stream and carries the full accumulated text.
type Done struct {
	TaskID    uuid.UUID       `json:"task_id"`
	FullText  string          `json:"data"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
}

func (Done) streamEvent() {}

// Error terminates a failed stream.
type Error struct {
	TaskID    uuid.UUID       `json:"task_id"`
	Err       error           `json:"error"`
	Timestamp strfmt.DateTime `json:"timestamp,omitempty"`
}

func (Error) streamEvent() {}

func (e Error) Error() string {
	return fmt.Sprintf("task_id: %s, timestamp: %s, error: %v", e.TaskID, e.Timestamp, e.Err)
}

// MarshalJSON implements custom JSON marshaling for Content
func (c Content) MarshalJSON() ([]byte, error) {
	return marshalFragment(contentJSON, c.TaskID, c.Text, c.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for Content
func (c *Content) UnmarshalJSON(data []byte) error {
	taskID, text, ts, err := unmarshalFragment(data, "content")
	if err != nil {
		return err
	}
	c.TaskID, c.Text, c.Timestamp = taskID, text, ts
	return nil
}

// MarshalJSON implements custom JSON marshaling for Thinking
func (t Thinking) MarshalJSON() ([]byte, error) {
	return marshalFragment(thinkingJSON, t.TaskID, t.Text, t.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for Thinking
func (t *Thinking) UnmarshalJSON(data []byte) error {
	taskID, text, ts, err := unmarshalFragment(data, "thinking")
	if err != nil {
		return err
	}
	t.TaskID, t.Text, t.Timestamp = taskID, text, ts
	return nil
}

// MarshalJSON implements custom JSON marshaling for Done
func (d Done) MarshalJSON() ([]byte, error) {
	return marshalFragment(doneJSON, d.TaskID, d.FullText, d.Timestamp)
}

// UnmarshalJSON implements custom JSON unmarshaling for Done
func (d *Done) UnmarshalJSON(data []byte) error {
	taskID, text, ts, err := unmarshalFragment(data, "done")
	if err != nil {
		return err
	}
	d.TaskID, d.FullText, d.Timestamp = taskID, text, ts
	return nil
}

// MarshalJSON implements custom JSON marshaling for Error
func (e Error) MarshalJSON() ([]byte, error) {
	result := errorJSON

	var err error
	result, err = sjson.SetBytes(result, "task_id", e.TaskID.String())
	if err != nil {
		return nil, err
	}

	if e.Err != nil {
		result, err = sjson.SetBytes(result, "error", e.Err.Error())
		if err != nil {
			return nil, err
		}
	}

	if !e.Timestamp.IsZero() {
		result, err = sjson.SetBytes(result, "timestamp", e.Timestamp.String())
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// UnmarshalJSON implements custom JSON unmarshaling for Error
func (e *Error) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid json: %s", data)
	}

	msgType := gjson.GetBytes(data, "type")
	if !msgType.Exists() || msgType.String() != "error" {
		return fmt.Errorf("missing or invalid type, expected 'error'")
	}

	taskID := gjson.GetBytes(data, "task_id")
	if !taskID.Exists() {
		return fmt.Errorf("missing required field 'task_id'")
	}
	if err := e.TaskID.UnmarshalText([]byte(taskID.String())); err != nil {
		return fmt.Errorf("invalid task_id: %w", err)
	}

	errMsg := gjson.GetBytes(data, "error")
	if !errMsg.Exists() {
		return errors.New("missing required field 'error'")
	}
	e.Err = errors.New(errMsg.String())

	if timestamp := gjson.GetBytes(data, "timestamp"); timestamp.Exists() {
		if err := e.Timestamp.UnmarshalText([]byte(timestamp.String())); err != nil {
			return fmt.Errorf("invalid timestamp: %w", err)
		}
	}

	return nil
}

func marshalFragment(template []byte, taskID uuid.UUID, text string, ts strfmt.DateTime) ([]byte, error) {
	result := template

	var err error
	result, err = sjson.SetBytes(result, "task_id", taskID.String())
	if err != nil {
		return nil, err
	}

	result, err = sjson.SetBytes(result, "data", text)
	if err != nil {
		return nil, err
	}

	if !ts.IsZero() {
		result, err = sjson.SetBytes(result, "timestamp", ts.String())
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

func unmarshalFragment(data []byte, wantType string) (uuid.UUID, string, strfmt.DateTime, error) {
	var taskID uuid.UUID
	var ts strfmt.DateTime

	if !gjson.ValidBytes(data) {
		return taskID, "", ts, fmt.Errorf("invalid json: %s", data)
	}

	msgType := gjson.GetBytes(data, "type")
	if !msgType.Exists() || msgType.String() != wantType {
		return taskID, "", ts, fmt.Errorf("missing or invalid type, expected %q", wantType)
	}

	id := gjson.GetBytes(data, "task_id")
	if !id.Exists() {
		return taskID, "", ts, fmt.Errorf("missing required field 'task_id'")
	}
	if err := taskID.UnmarshalText([]byte(id.String())); err != nil {
		return taskID, "", ts, fmt.Errorf("invalid task_id: %w", err)
	}

	text := gjson.GetBytes(data, "data")
	if !text.Exists() {
		return taskID, "", ts, fmt.Errorf("missing required field 'data'")
	}

	if timestamp := gjson.GetBytes(data, "timestamp"); timestamp.Exists() {
		if err := ts.UnmarshalText([]byte(timestamp.String())); err != nil {
			return taskID, "", ts, fmt.Errorf("invalid timestamp: %w", err)
		}
	}

	return taskID, text.String(), ts, nil
}
