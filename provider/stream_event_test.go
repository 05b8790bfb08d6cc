package provider

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestContent_MarshalJSON(t *testing.T) {
	taskID := uuid.New()
	timestamp := strfmt.DateTime(time.Now().UTC().Truncate(time.Millisecond))

	content := Content{
		TaskID:    taskID,
		Text:      "a storyboard fragment",
		Timestamp: timestamp,
	}

	data, err := json.Marshal(content)
	require.NoError(t, err)

	assert.True(t, gjson.ValidBytes(data))
	result := gjson.ParseBytes(data)
	assert.Equal(t, "content", result.Get("type").String())
	assert.Equal(t, taskID.String(), result.Get("task_id").String())
	assert.Equal(t, "a storyboard fragment", result.Get("data").String())
	assert.Equal(t, timestamp.String(), result.Get("timestamp").String())
}

func TestContent_UnmarshalJSON(t *testing.T) {
	taskID := uuid.New()
	jsonData := []byte(`{
    "type": "content",
    "task_id": "` + taskID.String() + `",
    "data": "a storyboard fragment"
  }`)

	var content Content
	err := json.Unmarshal(jsonData, &content)
	require.NoError(t, err)
	assert.Equal(t, taskID, content.TaskID)
	assert.Equal(t, "a storyboard fragment", content.Text)
}

func TestThinking_RoundTrip(t *testing.T) {
	taskID := uuid.New()
	thinking := Thinking{TaskID: taskID, Text: "considering shot boundaries"}

	data, err := json.Marshal(thinking)
	require.NoError(t, err)
	assert.Equal(t, "thinking", gjson.GetBytes(data, "type").String())

	var decoded Thinking
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, thinking.TaskID, decoded.TaskID)
	assert.Equal(t, thinking.Text, decoded.Text)
}

func TestDone_MarshalJSON(t *testing.T) {
	taskID := uuid.New()
	done := Done{TaskID: taskID, FullText: `[{"id":1}]`}

	data, err := json.Marshal(done)
	require.NoError(t, err)

	result := gjson.ParseBytes(data)
	assert.Equal(t, "done", result.Get("type").String())
	assert.Equal(t, taskID.String(), result.Get("task_id").String())
	assert.Equal(t, `[{"id":1}]`, result.Get("data").String())
}

func TestError_MarshalJSON(t *testing.T) {
	taskID := uuid.New()
	event := Error{TaskID: taskID, Err: errors.New("vendor timed out")}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	result := gjson.ParseBytes(data)
	assert.Equal(t, "error", result.Get("type").String())
	assert.Equal(t, taskID.String(), result.Get("task_id").String())
	assert.Equal(t, "vendor timed out", result.Get("error").String())
}

func TestError_UnmarshalJSON(t *testing.T) {
	taskID := uuid.New()
	jsonData := []byte(`{
    "type": "error",
    "task_id": "` + taskID.String() + `",
    "error": "vendor timed out"
  }`)

	var event Error
	err := json.Unmarshal(jsonData, &event)
	require.NoError(t, err)
	assert.Equal(t, taskID, event.TaskID)
	assert.EqualError(t, event.Err, "vendor timed out")
}

func TestUnmarshal_RejectsWrongType(t *testing.T) {
	var content Content
	err := json.Unmarshal([]byte(`{"type":"done","task_id":"`+uuid.NewString()+`","data":"x"}`), &content)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected \"content\"")
}

func TestError_ErrorString(t *testing.T) {
	taskID := uuid.New()
	event := Error{TaskID: taskID, Err: errors.New("boom")}
	assert.Contains(t, event.Error(), taskID.String())
	assert.Contains(t, event.Error(), "boom")
}
