package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/shotlist/shotlist/analysis"
	"github.com/shotlist/shotlist/pkg/uuidx"
	"github.com/shotlist/shotlist/store"
)

type fakeAnalyzer struct {
	frames      [][]byte
	analyzeErr  error
	lastReq     analysis.AnalyzeRequest
	task        *store.AnalysisTask
	tasks       []store.AnalysisTask
	taskErr     error
	invalidated []string
}

func (f *fakeAnalyzer) Analyze(_ context.Context, req analysis.AnalyzeRequest) (*analysis.TaskStream, error) {
	f.lastReq = req
	if f.analyzeErr != nil {
		return nil, f.analyzeErr
	}
	ch := make(chan []byte, len(f.frames))
	for _, frame := range f.frames {
		ch <- frame
	}
	close(ch)
	return &analysis.TaskStream{Task: &store.AnalysisTask{ID: uuidx.New()}, Events: ch}, nil
}

func (f *fakeAnalyzer) Task(_ context.Context, _, _ uuid.UUID) (*store.AnalysisTask, error) {
	if f.taskErr != nil {
		return nil, f.taskErr
	}
	return f.task, nil
}

func (f *fakeAnalyzer) Tasks(context.Context, uuid.UUID, int, int) ([]store.AnalysisTask, error) {
	return f.tasks, nil
}

func (f *fakeAnalyzer) InvalidateModel(modelID string) {
	f.invalidated = append(f.invalidated, modelID)
}

type fakeSweeper struct {
	report analysis.Report
	err    error
}

func (f *fakeSweeper) Run(context.Context) (analysis.Report, error) {
	return f.report, f.err
}

func newTestServer(analyzer *fakeAnalyzer, sweeper *fakeSweeper) *httptest.Server {
	return httptest.NewServer(New(analyzer, sweeper).Router())
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func authedRequest(t *testing.T, method, url, body string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("X-User-ID", uuidx.NewString())
	return req
}

func TestStream_RequiresIdentity(t *testing.T) {
	ts := newTestServer(&fakeAnalyzer{}, &fakeSweeper{})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/analysis/stream", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStream_ValidatesBody(t *testing.T) {
	ts := newTestServer(&fakeAnalyzer{}, &fakeSweeper{})
	defer ts.Close()

	req := authedRequest(t, http.MethodPost, ts.URL+"/api/analysis/stream", `{"video_url":""}`)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestStream_PreflightErrorsAreJSON(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"insufficient credits", analysis.ErrInsufficientCredits, http.StatusPaymentRequired},
		{"unknown model", analysis.ErrModelNotFound, http.StatusNotFound},
		{"missing credential", analysis.ErrMissingCredential, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(&fakeAnalyzer{analyzeErr: tt.err}, &fakeSweeper{})
			defer ts.Close()

			req := authedRequest(t, http.MethodPost, ts.URL+"/api/analysis/stream",
				`{"video_url":"https://videos.mysite.com/a.mp4","model_id":"glm-4v"}`)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.want, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
		})
	}
}

func TestStream_RelaysFramesAsSSE(t *testing.T) {
	analyzer := &fakeAnalyzer{frames: [][]byte{
		[]byte(`{"type":"content","data":"a"}`),
		[]byte(`{"type":"done","data":"a"}`),
		[]byte(`{"type":"stream_ended","chunks":1}`),
	}}
	ts := newTestServer(analyzer, &fakeSweeper{})
	defer ts.Close()

	req := authedRequest(t, http.MethodPost, ts.URL+"/api/analysis/stream",
		`{"video_url":"https://videos.mysite.com/a.mp4","model_id":"glm-4v","enable_thinking":true}`)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body := readBody(t, resp)

	lines := strings.Split(strings.TrimSpace(body), "\n\n")
	require.Len(t, lines, 3)
	assert.Equal(t, `data: {"type":"content","data":"a"}`, lines[0])
	assert.Equal(t, `data: {"type":"stream_ended","chunks":1}`, lines[2])
	assert.True(t, analyzer.lastReq.Thinking)
}

func TestGetTask(t *testing.T) {
	msg := "upstream returned 500"
	analyzer := &fakeAnalyzer{task: &store.AnalysisTask{
		ID: uuidx.New(), Status: store.TaskFailed, ErrorMessage: &msg,
	}}
	ts := newTestServer(analyzer, &fakeSweeper{})
	defer ts.Close()

	req := authedRequest(t, http.MethodGet, ts.URL+"/api/analysis/tasks/"+analyzer.task.ID.String(), "")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.Equal(t, "failed", gjson.Get(body, "status").String())
	assert.Equal(t, msg, gjson.Get(body, "error_message").String())
}

func TestGetTask_NotFound(t *testing.T) {
	ts := newTestServer(&fakeAnalyzer{taskErr: store.ErrNotFound}, &fakeSweeper{})
	defer ts.Close()

	req := authedRequest(t, http.MethodGet, ts.URL+"/api/analysis/tasks/"+uuidx.NewString(), "")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	req = authedRequest(t, http.MethodGet, ts.URL+"/api/analysis/tasks/not-a-uuid", "")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListTasks(t *testing.T) {
	analyzer := &fakeAnalyzer{tasks: []store.AnalysisTask{
		{ID: uuidx.New(), Status: store.TaskCompleted, Result: []byte(`[{"id":1}]`)},
		{ID: uuidx.New(), Status: store.TaskPending},
	}}
	ts := newTestServer(analyzer, &fakeSweeper{})
	defer ts.Close()

	req := authedRequest(t, http.MethodGet, ts.URL+"/api/analysis/tasks?limit=10", "")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	tasks := gjson.Get(body, "tasks")
	assert.Len(t, tasks.Array(), 2)
	assert.Equal(t, "completed", tasks.Get("0.status").String())
	assert.Equal(t, int64(1), tasks.Get("0.result.0.id").Int())
}

func TestReap(t *testing.T) {
	sweeper := &fakeSweeper{report: analysis.Report{
		Updated:      3,
		StatusCounts: map[store.TaskStatus]int{store.TaskFailed: 3, store.TaskCompleted: 7},
	}}
	ts := newTestServer(&fakeAnalyzer{}, sweeper)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/admin/tasks/reap", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	assert.EqualValues(t, 3, gjson.Get(body, "updated").Int())
	assert.EqualValues(t, 7, gjson.Get(body, "status_counts.completed").Int())
}

func TestInvalidateModel(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	ts := newTestServer(analyzer, &fakeSweeper{})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/admin/models/glm-4v/invalidate", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"glm-4v"}, analyzer.invalidated)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(&fakeAnalyzer{}, &fakeSweeper{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
