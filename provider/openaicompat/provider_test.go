package openaicompat

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/shotlist/shotlist/provider"
)

func sseChunk(delta string) string {
	return "data: " + delta + "\n\n"
}

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL string) provider.Config {
	return provider.Config{
		ModelID: "m1",
		Name:    "glm-4v-flash",
		Vendor:  "openai",
		APIKey:  "test-key",
		BaseURL: baseURL,
	}
}

func collect(t *testing.T, events <-chan provider.StreamEvent) []provider.StreamEvent {
	t.Helper()
	var all []provider.StreamEvent
	for event := range events {
		all = append(all, event)
	}
	return all
}

func TestAnalyzeVideo_StreamsContent(t *testing.T) {
	var gotBody []byte
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseChunk(`{"choices":[{"delta":{"content":"Shot 1: "}}]}`))
		fmt.Fprint(w, sseChunk(`{"choices":[{"delta":{"content":"wide angle"}}]}`))
		fmt.Fprint(w, sseChunk(`{"choices":[{"delta":{},"finish_reason":"stop"}]}`))
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	p := New(testConfig(srv.URL))
	taskID := uuid.New()
	events, err := p.AnalyzeVideo(context.Background(), provider.Request{
		TaskID:   taskID,
		VideoURL: "https://cdn.example.org/v/clip.mp4",
		Prompt:   "describe each shot",
	})
	require.NoError(t, err)

	all := collect(t, events)
	require.Len(t, all, 3)

	first, ok := all[0].(provider.Content)
	require.True(t, ok)
	assert.Equal(t, taskID, first.TaskID)
	assert.Equal(t, "Shot 1: ", first.Text)

	second, ok := all[1].(provider.Content)
	require.True(t, ok)
	assert.Equal(t, "wide angle", second.Text)

	done, ok := all[2].(provider.Done)
	require.True(t, ok)
	assert.Equal(t, "Shot 1: wide angle", done.FullText)

	// The adapter owns the wire shape: video goes out as a video_url part.
	msg := gjson.GetBytes(gotBody, "messages.0.content.0")
	assert.Equal(t, "video_url", msg.Get("type").String())
	assert.Equal(t, "https://cdn.example.org/v/clip.mp4", msg.Get("video_url.url").String())
	assert.Equal(t, "describe each shot", gjson.GetBytes(gotBody, "messages.0.content.1.text").String())
}

func TestAnalyzeVideo_ThinkingParamsMergedIntoBody(t *testing.T) {
	var gotBody []byte
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseChunk(`{"choices":[{"delta":{"reasoning_content":"the clip opens on"}}]}`))
		fmt.Fprint(w, sseChunk(`{"choices":[{"delta":{"content":"done"}}]}`))
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	p := New(testConfig(srv.URL))
	events, err := p.AnalyzeVideo(context.Background(), provider.Request{
		TaskID:         uuid.New(),
		VideoURL:       "https://cdn.example.org/v/clip.mp4",
		Prompt:         "describe each shot",
		Thinking:       true,
		ThinkingParams: map[string]any{"enable_thinking": true},
	})
	require.NoError(t, err)

	all := collect(t, events)
	require.Len(t, all, 3)

	thinking, ok := all[0].(provider.Thinking)
	require.True(t, ok)
	assert.Equal(t, "the clip opens on", thinking.Text)
	_, ok = all[1].(provider.Content)
	require.True(t, ok)
	_, ok = all[2].(provider.Done)
	require.True(t, ok)

	assert.True(t, gjson.GetBytes(gotBody, "enable_thinking").Bool())
}

func TestAnalyzeVideo_ThinkingWithoutParamsLeavesBodyAlone(t *testing.T) {
	var gotBody []byte
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, sseChunk(`{"choices":[{"delta":{"content":"ok"}}]}`))
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	p := New(testConfig(srv.URL))
	events, err := p.AnalyzeVideo(context.Background(), provider.Request{
		TaskID:   uuid.New(),
		VideoURL: "https://cdn.example.org/v/clip.mp4",
		Prompt:   "describe each shot",
		Thinking: true,
	})
	require.NoError(t, err)

	all := collect(t, events)
	require.Len(t, all, 2)
	_, ok := all[0].(provider.Content)
	assert.True(t, ok)
	_, ok = all[1].(provider.Done)
	assert.True(t, ok)

	assert.False(t, gjson.GetBytes(gotBody, "enable_thinking").Exists())
	assert.False(t, gjson.GetBytes(gotBody, "thinking").Exists())
}

func TestAnalyzeVideo_AuthFailureYieldsSingleError(t *testing.T) {
	srv := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"invalid api key"}}`)
	})

	p := New(testConfig(srv.URL))
	taskID := uuid.New()
	events, err := p.AnalyzeVideo(context.Background(), provider.Request{
		TaskID:   taskID,
		VideoURL: "https://cdn.example.org/v/clip.mp4",
		Prompt:   "describe each shot",
	})
	require.NoError(t, err)

	all := collect(t, events)
	require.Len(t, all, 1)
	failure, ok := all[0].(provider.Error)
	require.True(t, ok)
	assert.Equal(t, taskID, failure.TaskID)
	assert.Error(t, failure.Err)
}
