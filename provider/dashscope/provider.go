package dashscope

import (
	"bufio"
	"bytes"
	"context"
	"errors"
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

const (
	defaultBaseURL = "https://dashscope.aliyuncs.com/api/v1"
	generationPath = "/services/aigc/multimodal-generation/generation"

	systemPrompt = "You are a professional video analysis assistant."
)

// WithHTTPClient overrides the HTTP client, mainly for tests.
var WithHTTPClient = opts.ForName[Provider, *http.Client]("client")

// Provider speaks the native DashScope multimodal-generation dialect: bare
// video/text content fields and a boolean enable_thinking parameter.
//
// When the streaming call fails to initialize, the adapter retries once with
// a non-streaming call and replays the answer as a Content/Done pair. This
// degrade-gracefully path is specific to DashScope; the other adapters
// surface the initialization failure directly.
type Provider struct {
	cfg     provider.Config
	baseURL string
	client  *http.Client
}

// New builds the native DashScope adapter for one model config.
func New(cfg provider.Config, options ...opts.Option[Provider]) *Provider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	p := &Provider{
		cfg:     cfg,
		baseURL: baseURL,
		client:  &http.Client{},
	}
	if err := opts.Apply(p, options); err != nil {
		panic(err)
	}
	return p
}

type generationRequest struct {
	Model      string           `json:"model"`
	Input      generationInput  `json:"input"`
	Parameters generationParams `json:"parameters"`
}

type generationInput struct {
	Messages []generationMessage `json:"messages"`
}

type generationMessage struct {
	Role    string              `json:"role"`
	Content []generationContent `json:"content"`
}

type generationContent struct {
	Video string `json:"video,omitempty"`
	Text  string `json:"text,omitempty"`
}

type generationParams struct {
	IncrementalOutput bool `json:"incremental_output,omitempty"`
	EnableThinking    bool `json:"enable_thinking"`
	MaxTokens         int  `json:"max_tokens"`
}

func (p *Provider) buildRequest(req provider.Request, stream bool) generationRequest {
	return generationRequest{
		Model: p.cfg.Name,
		Input: generationInput{
			Messages: []generationMessage{
				{
					Role:    "system",
					Content: []generationContent{{Text: systemPrompt}},
				},
				{
					Role: "user",
					Content: []generationContent{
						{Video: req.VideoURL},
						{Text: req.Prompt},
					},
				},
			},
		},
		Parameters: generationParams{
			IncrementalOutput: stream,
			// Passed through as-is; the model decides whether it supports
			// thinking.
			EnableThinking: req.Thinking,
			MaxTokens:      provider.MaxOutputTokens,
		},
	}
}

// AnalyzeVideo opens the DashScope streaming call and normalizes each frame.
func (p *Provider) AnalyzeVideo(ctx context.Context, req provider.Request) (<-chan provider.StreamEvent, error) {
	events := make(chan provider.StreamEvent, 10)
	go func() {
		defer close(events)
		p.runStream(ctx, req, events)
	}()
	return events, nil
}

func (p *Provider) runStream(ctx context.Context, req provider.Request, events chan<- provider.StreamEvent) {
	start := time.Now()

	resp, err := p.post(ctx, req, true)
	if err != nil {
		slog.Warn("dashscope streaming call failed to initialize, retrying non-streaming",
			slogx.TaskID(req.TaskID),
			slog.String("model_id", p.cfg.ModelID),
			slogx.Error(err))
		p.runOnce(ctx, req, err, events)
		return
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	bridged := streamx.Bridge(ctx, 16, func() (gjson.Result, bool, error) {
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" {
				continue
			}
			return gjson.Parse(payload), true, nil
		}
		return gjson.Result{}, false, scanner.Err()
	})

	var full strings.Builder
	var chunks int
	for frame := range bridged.Items() {
		chunks++

		// Vendor error frames carry a code/message pair instead of output.
		if code := frame.Get("code").String(); code != "" {
			provider.Emit(ctx, events, provider.Error{
				TaskID:    req.TaskID,
				Err:       fmt.Errorf("dashscope stream error %s: %s", code, frame.Get("message").String()),
				Timestamp: strfmt.DateTime(time.Now()),
			})
			return
		}

		message := frame.Get("output.choices.0.message")
		if !message.Exists() {
			continue
		}

		if reasoning := message.Get("reasoning_content").String(); reasoning != "" {
			if !provider.Emit(ctx, events, provider.Thinking{
				TaskID:    req.TaskID,
				Text:      reasoning,
				Timestamp: strfmt.DateTime(time.Now()),
			}) {
				return
			}
		}

		if text := message.Get("content.0.text").String(); text != "" {
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
			Err:       fmt.Errorf("dashscope stream: %w", err),
			Timestamp: strfmt.DateTime(time.Now()),
		})
		return
	}

	slog.Debug("dashscope stream finished",
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

// runOnce replays a one-shot non-streaming call as a Content/Done pair. When
// the retry also fails, the original streaming fault wins.
func (p *Provider) runOnce(ctx context.Context, req provider.Request, streamErr error, events chan<- provider.StreamEvent) {
	resp, err := p.post(ctx, req, false)
	if err != nil {
		provider.Emit(ctx, events, provider.Error{
			TaskID:    req.TaskID,
			Err:       errors.Join(streamErr, err),
			Timestamp: strfmt.DateTime(time.Now()),
		})
		return
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		provider.Emit(ctx, events, provider.Error{
			TaskID:    req.TaskID,
			Err:       errors.Join(streamErr, err),
			Timestamp: strfmt.DateTime(time.Now()),
		})
		return
	}

	frame := gjson.ParseBytes(payload)
	if code := frame.Get("code").String(); code != "" {
		provider.Emit(ctx, events, provider.Error{
			TaskID:    req.TaskID,
			Err:       errors.Join(streamErr, fmt.Errorf("dashscope call failed %s: %s", code, frame.Get("message").String())),
			Timestamp: strfmt.DateTime(time.Now()),
		})
		return
	}

	message := frame.Get("output.choices.0.message")
	if reasoning := message.Get("reasoning_content").String(); reasoning != "" {
		if !provider.Emit(ctx, events, provider.Thinking{
			TaskID:    req.TaskID,
			Text:      reasoning,
			Timestamp: strfmt.DateTime(time.Now()),
		}) {
			return
		}
	}

	text := message.Get("content.0.text").String()
	if text != "" {
		if !provider.Emit(ctx, events, provider.Content{
			TaskID:    req.TaskID,
			Text:      text,
			Timestamp: strfmt.DateTime(time.Now()),
		}) {
			return
		}
	}
	provider.Emit(ctx, events, provider.Done{
		TaskID:    req.TaskID,
		FullText:  text,
		Timestamp: strfmt.DateTime(time.Now()),
	})
}

func (p *Provider) post(ctx context.Context, req provider.Request, stream bool) (*http.Response, error) {
	body, err := json.Marshal(p.buildRequest(req, stream))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+generationPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	if stream {
		httpReq.Header.Set("X-DashScope-SSE", "enable")
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("dashscope call: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := gjson.GetBytes(payload, "message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(payload))
		}
		return nil, fmt.Errorf("dashscope call failed with status %d: %s", resp.StatusCode, msg)
	}
	return resp, nil
}
