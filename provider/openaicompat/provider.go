package openaicompat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"

	"github.com/shotlist/shotlist/pkg/streamx"
	"github.com/shotlist/shotlist/provider"
)

// Provider talks to any vendor exposing an OpenAI-compatible chat-completion
// surface. It is the default route for unknown vendors and the
// compatibility-mode route for vendors that also have a native adapter.
type Provider struct {
	cfg    provider.Config
	client *openai.Client
}

// New builds the adapter for one model config. Extra request options are
// applied to every call, after the credential and endpoint derived from the
// config.
func New(cfg provider.Config, options ...option.RequestOption) *Provider {
	clientOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
	}
	clientOpts = append(clientOpts, options...)

	return &Provider{
		cfg:    cfg,
		client: openai.NewClient(clientOpts...),
	}
}

func (p *Provider) buildRequest(req provider.Request) (openai.ChatCompletionNewParams, []option.RequestOption) {
	params := openai.ChatCompletionNewParams{
		Model:     openai.F(p.cfg.Name),
		Messages:  openai.F([]openai.ChatCompletionMessageParamUnion{openai.UserMessage(req.Prompt)}),
		N:         openai.Int(1),
		MaxTokens: openai.Int(provider.MaxOutputTokens),
	}

	// The SDK's typed content parts have no video variant, so the message
	// array is overridden with the OpenAI-compatible video_url shape.
	ropts := []option.RequestOption{
		option.WithJSONSet("messages", compatMessages(req.VideoURL, req.Prompt)),
	}

	if req.Thinking {
		if len(req.ThinkingParams) == 0 {
			slog.Info("thinking toggle ignored, model config carries no thinking parameters",
				slog.String("model_id", p.cfg.ModelID))
		}
		for key, value := range req.ThinkingParams {
			ropts = append(ropts, option.WithJSONSet(key, value))
		}
	}

	return params, ropts
}

// AnalyzeVideo streams the chat completion and normalizes each delta into the
// internal event vocabulary. The SDK stream is a blocking iterator, so it is
// drained through the bridge on its own worker.
func (p *Provider) AnalyzeVideo(ctx context.Context, req provider.Request) (<-chan provider.StreamEvent, error) {
	params, ropts := p.buildRequest(req)

	events := make(chan provider.StreamEvent, 10)
	go func() {
		defer close(events)
		p.runStream(ctx, req, params, ropts, events)
	}()
	return events, nil
}

func (p *Provider) runStream(ctx context.Context, req provider.Request, params openai.ChatCompletionNewParams, ropts []option.RequestOption, events chan<- provider.StreamEvent) {
	start := time.Now()

	strm := p.client.Chat.Completions.NewStreaming(ctx, params, ropts...)
	if strm.Err() != nil {
		provider.Emit(ctx, events, provider.Error{
			TaskID:    req.TaskID,
			Err:       strm.Err(),
			Timestamp: strfmt.DateTime(time.Now()),
		})
		strm.Close()
		return
	}
	defer strm.Close()

	bridged := streamx.Bridge(ctx, 16, func() (openai.ChatCompletionChunk, bool, error) {
		if !strm.Next() {
			return openai.ChatCompletionChunk{}, false, strm.Err()
		}
		return strm.Current(), true, nil
	})

	var full strings.Builder
	var chunks int
	for chunk := range bridged.Items() {
		if len(chunk.Choices) == 0 {
			continue
		}
		chunks++
		delta := chunk.Choices[0].Delta

		if reasoning := deltaReasoning(delta); reasoning != "" {
			if !provider.Emit(ctx, events, provider.Thinking{
				TaskID:    req.TaskID,
				Text:      reasoning,
				Timestamp: strfmt.DateTime(time.Now()),
			}) {
				return
			}
		}

		if delta.Content != "" {
			full.WriteString(delta.Content)
			if !provider.Emit(ctx, events, provider.Content{
				TaskID:    req.TaskID,
				Text:      delta.Content,
				Timestamp: strfmt.DateTime(time.Now()),
			}) {
				return
			}
		}
	}

	if err := bridged.Err(); err != nil {
		provider.Emit(ctx, events, provider.Error{
			TaskID:    req.TaskID,
			Err:       err,
			Timestamp: strfmt.DateTime(time.Now()),
		})
		return
	}

	slog.Debug("chat completion stream finished",
		slog.String("model_id", p.cfg.ModelID),
		slog.Int("chunks", chunks),
		slog.Int64("elapsed_ms", time.Since(start).Milliseconds()))

	provider.Emit(ctx, events, provider.Done{
		TaskID:    req.TaskID,
		FullText:  full.String(),
		Timestamp: strfmt.DateTime(time.Now()),
	})
}

// deltaReasoning pulls the non-standard reasoning_content field some
// compatible endpoints attach to deltas when thinking mode is on.
func deltaReasoning(delta openai.ChatCompletionChunkChoicesDelta) string {
	field, ok := delta.JSON.ExtraFields["reasoning_content"]
	if !ok {
		return ""
	}
	return gjson.Parse(field.Raw()).String()
}

func compatMessages(videoURL, prompt string) []map[string]any {
	return []map[string]any{
		{
			"role": "user",
			"content": []map[string]any{
				{"type": "video_url", "video_url": map[string]any{"url": videoURL}},
				{"type": "text", "text": prompt},
			},
		},
	}
}
