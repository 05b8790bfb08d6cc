package zhipu

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fogfish/opts"
	"github.com/go-openapi/strfmt"
	json "github.com/goccy/go-json"
	"github.com/tidwall/gjson"

	"github.com/shotlist/shotlist/pkg/slogx"
	"github.com/shotlist/shotlist/pkg/streamx"
	"github.com/shotlist/shotlist/provider"
)

const defaultBaseURL = "https://open.bigmodel.cn/api/paas/v4"

// WithHTTPClient overrides the HTTP client, mainly for tests.
var WithHTTPClient = opts.ForName[Provider, *http.Client]("client")

// Provider speaks the native GLM chat-completion dialect: video_url content
// parts and a structured thinking enable/disable object.
type Provider struct {
	cfg     provider.Config
	baseURL string
	client  *http.Client
}

// New builds the native Zhipu adapter for one model config.
func New(cfg provider.Config, options ...opts.Option[Provider]) *Provider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	p := &Provider{
		cfg:     cfg,
		baseURL: baseURL,
		// No client-enforced timeout: long generations are bounded by the
		// caller's context and the stale-task sweep.
		client: &http.Client{},
	}
	if err := opts.Apply(p, options); err != nil {
		panic(err)
	}
	return p
}

type chatRequest struct {
	Model     string         `json:"model"`
	Messages  []chatMessage  `json:"messages"`
	Thinking  *thinkingParam `json:"thinking,omitempty"`
	Stream    bool           `json:"stream"`
	MaxTokens int            `json:"max_tokens"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	VideoURL *videoURL `json:"video_url,omitempty"`
}

type videoURL struct {
	URL string `json:"url"`
}

type thinkingParam struct {
	Type string `json:"type"`
}

func (p *Provider) buildRequest(req provider.Request) chatRequest {
	// Thinking defaults to disabled unless the toggle is on.
	thinking := &thinkingParam{Type: "disabled"}
	if req.Thinking {
		thinking = &thinkingParam{Type: "enabled"}
	}

	return chatRequest{
		Model: p.cfg.Name,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []contentPart{
					{Type: "video_url", VideoURL: &videoURL{URL: req.VideoURL}},
					{Type: "text", Text: req.Prompt},
				},
			},
		},
		Thinking:  thinking,
		Stream:    true,
		MaxTokens: provider.MaxOutputTokens,
	}
}

// AnalyzeVideo opens the GLM streaming call and normalizes each SSE delta.
func (p *Provider) AnalyzeVideo(ctx context.Context, req provider.Request) (<-chan provider.StreamEvent, error) {
	body, err := json.Marshal(p.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	events := make(chan provider.StreamEvent, 10)
	go func() {
		defer close(events)
		p.runStream(ctx, req, body, events)
	}()
	return events, nil
}

func (p *Provider) runStream(ctx context.Context, req provider.Request, body []byte, events chan<- provider.StreamEvent) {
	start := time.Now()

	resp, err := p.post(ctx, body)
	if err != nil {
		provider.Emit(ctx, events, provider.Error{
			TaskID:    req.TaskID,
			Err:       err,
			Timestamp: strfmt.DateTime(time.Now()),
		})
		return
	}
	defer resp.Body.Close()

	// The response body is a blocking reader; drain it on the bridge worker.
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	bridged := streamx.Bridge(ctx, 16, func() (gjson.Result, bool, error) {
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" || payload == "[DONE]" {
				return gjson.Result{}, false, nil
			}
			return gjson.Parse(payload), true, nil
		}
		return gjson.Result{}, false, scanner.Err()
	})

	var full strings.Builder
	var chunks int
	for frame := range bridged.Items() {
		chunks++
		delta := frame.Get("choices.0.delta")
		if !delta.Exists() {
			continue
		}

		if reasoning := delta.Get("reasoning_content").String(); reasoning != "" {
			if !provider.Emit(ctx, events, provider.Thinking{
				TaskID:    req.TaskID,
				Text:      reasoning,
				Timestamp: strfmt.DateTime(time.Now()),
			}) {
				return
			}
		}

		if text := delta.Get("content").String(); text != "" {
			full.WriteString(text)
			if !provider.Emit(ctx, events, provider.Content{
				TaskID:    req.TaskID,
				Text:      text,
				Timestamp: strfmt.DateTime(time.Now()),
			}) {
				return
			}
		}
	}

	if err := bridged.Err(); err != nil {
		provider.Emit(ctx, events, provider.Error{
			TaskID:    req.TaskID,
			Err:       fmt.Errorf("glm stream: %w", err),
			Timestamp: strfmt.DateTime(time.Now()),
		})
		return
	}

	slog.Debug("glm stream finished",
		slogx.TaskID(req.TaskID),
		slog.String("model_id", p.cfg.ModelID),
		slog.Int("chunks", chunks),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))

	provider.Emit(ctx, events, provider.Done{
		TaskID:    req.TaskID,
		FullText:  full.String(),
		Timestamp: strfmt.DateTime(time.Now()),
	})
}

func (p *Provider) post(ctx context.Context, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("glm call: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := gjson.GetBytes(payload, "error.message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(payload))
		}
		return nil, fmt.Errorf("glm call failed with status %d: %s", resp.StatusCode, msg)
	}
	return resp, nil
}
