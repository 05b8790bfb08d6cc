package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fogfish/opts"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/shotlist/shotlist/internal/registry"
	"github.com/shotlist/shotlist/pkg/jsonx"
	"github.com/shotlist/shotlist/pkg/slogx"
	"github.com/shotlist/shotlist/pkg/uuidx"
	"github.com/shotlist/shotlist/provider"
	"github.com/shotlist/shotlist/provider/vendors"
	"github.com/shotlist/shotlist/store"
)

// DefaultCost is the credit price of one analysis. Charged only when the
// analysis completes.
const DefaultCost = 5

// defaultPrompt is the fallback storyboard instruction used when neither the
// request nor the model config carries one.
const defaultPrompt = `分析这个视频，生成详细的分镜脚本。
请按照以下JSON格式返回结果：
[
  {
    "id": 1,
    "startTime": "00:00",
    "endTime": "00:05",
    "visual": "画面描述",
    "content": "口播内容",
    "audio": "音频/备注"
  }
]
只返回JSON数组，不要其他内容。`

var (
	// ErrInsufficientCredits rejects an analysis before a task row exists.
	ErrInsufficientCredits = errors.New("insufficient credits")

	// ErrModelNotFound covers unknown and deactivated models alike.
	ErrModelNotFound = errors.New("model not found or inactive")

	// ErrMissingCredential means the model config has no API key.
	ErrMissingCredential = errors.New("model has no API key configured")

	// ErrUserNotFound means the requesting account does not exist.
	ErrUserNotFound = errors.New("user not found")
)

// TaskStore is the slice of task persistence the orchestrator needs.
type TaskStore interface {
	Create(ctx context.Context, task *store.AnalysisTask) error
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	Complete(ctx context.Context, id uuid.UUID, result []byte, creditsCharged int) error
	Fail(ctx context.Context, id uuid.UUID, reason string) error
	GetByID(ctx context.Context, ownerID, id uuid.UUID) (*store.AnalysisTask, error)
	List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]store.AnalysisTask, error)
}

// UserStore reads balances and charges credits.
type UserStore interface {
	Get(ctx context.Context, id uuid.UUID) (*store.User, error)
	DebitCredits(ctx context.Context, id uuid.UUID, amount int) error
}

// ModelStore resolves active model configurations.
type ModelStore interface {
	Active(ctx context.Context, modelID string) (*provider.Config, error)
}

// Service orchestrates analysis requests end to end.
type Service struct {
	tasks    TaskStore
	users    UserStore
	models   ModelStore
	adapters registry.Registry[provider.Provider]
	factory  func(provider.Config) provider.Provider
	cost     int
	log      *slog.Logger
}

var (
	// WithCost overrides the per-analysis credit price.
	WithCost = opts.ForName[Service, int]("cost")

	// WithLogger overrides the service logger.
	WithLogger = opts.ForName[Service, *slog.Logger]("log")

	// WithProviderFactory overrides adapter construction, mainly for tests.
	WithProviderFactory = opts.ForName[Service, func(provider.Config) provider.Provider]("factory")
)

// NewService wires the orchestrator. Options follow the functional pattern;
// invalid options are a programmer error and panic.
func NewService(tasks TaskStore, users UserStore, models ModelStore, options ...opts.Option[Service]) *Service {
	s := &Service{
		tasks:    tasks,
		users:    users,
		models:   models,
		adapters: registry.New[provider.Provider](),
		factory:  vendors.New,
		cost:     DefaultCost,
		log:      slog.Default(),
	}
	if err := opts.Apply(s, options); err != nil {
		panic(err)
	}
	return s
}

// AnalyzeRequest is one client-initiated analysis.
type AnalyzeRequest struct {
	OwnerID  uuid.UUID
	ModelID  string
	VideoURL string
	Prompt   string
	Thinking bool

	// Prevents unkeyed literals
	_ struct{}
}

// TaskStream pairs the persisted task with its live frame stream. Events
// carries pre-encoded JSON frames and is closed after the stream_ended
// trailer.
type TaskStream struct {
	Task   *store.AnalysisTask
	Events <-chan []byte
}

// Analyze runs the pre-flight checks, persists the task, and starts the
// vendor stream. Pre-flight failures return before any task row exists, so a
// rejected request leaves no trace.
func (s *Service) Analyze(ctx context.Context, req AnalyzeRequest) (*TaskStream, error) {
	user, err := s.users.Get(ctx, req.OwnerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user.Credits < s.cost {
		return nil, ErrInsufficientCredits
	}

	cfg, err := s.models.Active(ctx, req.ModelID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrModelNotFound
		}
		return nil, fmt.Errorf("load model config: %w", err)
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingCredential
	}

	task := &store.AnalysisTask{
		ID:              uuidx.New(),
		OwnerID:         req.OwnerID,
		VideoURL:        req.VideoURL,
		ModelID:         req.ModelID,
		ThinkingEnabled: req.Thinking,
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	preq := provider.Request{
		TaskID:   task.ID,
		VideoURL: req.VideoURL,
		Prompt:   s.prompt(req.Prompt, cfg),
		Thinking: req.Thinking,
	}
	if req.Thinking {
		preq.ThinkingParams = jsonx.ParseObject(cfg.ThinkingParams)
		if preq.ThinkingParams == nil && cfg.ThinkingParams != "" {
			s.log.WarnContext(ctx, "ignoring malformed thinking params",
				slog.String("model_id", req.ModelID),
				slog.String("thinking_params", cfg.ThinkingParams))
		}
	}

	events, err := s.adapter(*cfg).AnalyzeVideo(ctx, preq)
	if err != nil {
		if ferr := s.tasks.Fail(ctx, task.ID, err.Error()); ferr != nil {
			s.log.ErrorContext(ctx, "failed to record stream init failure", slogx.TaskID(task.ID), slogx.Error(ferr))
		}
		return nil, fmt.Errorf("start stream: %w", err)
	}

	out := make(chan []byte, 16)
	go s.run(ctx, task, events, out)

	return &TaskStream{Task: task, Events: out}, nil
}

// Task fetches one of the owner's tasks.
func (s *Service) Task(ctx context.Context, ownerID, id uuid.UUID) (*store.AnalysisTask, error) {
	return s.tasks.GetByID(ctx, ownerID, id)
}

// Tasks lists the owner's tasks, newest first. Limit is clamped to [1, 100]
// with a default of 20.
func (s *Service) Tasks(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]store.AnalysisTask, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.tasks.List(ctx, ownerID, limit, offset)
}

// InvalidateModel evicts the cached adapter for one model so the next request
// rebuilds it from fresh configuration.
func (s *Service) InvalidateModel(modelID string) {
	s.adapters.Del(modelID)
}

// InvalidateAll drops every cached adapter.
func (s *Service) InvalidateAll() {
	s.adapters.Clear()
}

func (s *Service) prompt(requested string, cfg *provider.Config) string {
	if requested != "" {
		return requested
	}
	if cfg.DefaultPrompt != "" {
		return cfg.DefaultPrompt
	}
	return defaultPrompt
}

func (s *Service) adapter(cfg provider.Config) provider.Provider {
	p, _ := s.adapters.GetOrAdd(cfg.ModelID, func() provider.Provider {
		return s.factory(cfg)
	})
	return p
}

// run drives one vendor stream through the task lifecycle. The first event
// flips the task to processing before it is forwarded; the terminal event
// settles the row; a close without a terminal event is treated as a vendor
// fault.
func (s *Service) run(ctx context.Context, task *store.AnalysisTask, events <-chan provider.StreamEvent, out chan<- []byte) {
	defer close(out)

	started := time.Now()
	chunks := 0
	first := true
	terminal := false
	var accumulated strings.Builder

	for {
		select {
		case <-ctx.Done():
			if !terminal {
				s.disconnect(task)
			}
			return
		case ev, ok := <-events:
			if !ok {
				if !terminal {
					reason := "stream ended without a result"
					if err := s.tasks.Fail(ctx, task.ID, reason); err != nil {
						s.log.ErrorContext(ctx, "failed to mark task failed", slogx.TaskID(task.ID), slogx.Error(err))
					}
					frame := Encode(task.ID, provider.Error{TaskID: task.ID, Err: errors.New(reason)})
					if !s.send(ctx, out, frame) {
						return
					}
				}
				trailer := Encode(task.ID, StreamEnded{
					TaskID:    task.ID,
					Chunks:    chunks,
					ElapsedMS: time.Since(started).Milliseconds(),
				})
				s.send(ctx, out, trailer)
				return
			}

			if first {
				first = false
				if err := s.tasks.MarkProcessing(ctx, task.ID); err != nil {
					s.log.ErrorContext(ctx, "failed to mark task processing", slogx.TaskID(task.ID), slogx.Error(err))
				}
			}

			switch ev := ev.(type) {
			case provider.Content:
				accumulated.WriteString(ev.Text)
				chunks++
			case provider.Thinking:
				chunks++
			case provider.Done:
				terminal = true
				s.complete(ctx, task, ev.FullText, accumulated.String())
			case provider.Error:
				terminal = true
				if err := s.tasks.Fail(ctx, task.ID, ev.Err.Error()); err != nil {
					s.log.ErrorContext(ctx, "failed to mark task failed", slogx.TaskID(task.ID), slogx.Error(err))
				}
			}

			if !s.send(ctx, out, Encode(task.ID, ev)) {
				if !terminal {
					s.disconnect(task)
				}
				return
			}
		}
	}
}

func (s *Service) complete(ctx context.Context, task *store.AnalysisTask, fullText, accumulated string) {
	text := fullText
	if text == "" {
		text = accumulated
	}

	result := resultPayload(text)
	if err := s.tasks.Complete(ctx, task.ID, result, s.cost); err != nil {
		s.log.ErrorContext(ctx, "failed to mark task completed", slogx.TaskID(task.ID), slogx.Error(err))
		return
	}
	if err := s.users.DebitCredits(ctx, task.OwnerID, s.cost); err != nil {
		s.log.ErrorContext(ctx, "failed to debit credits", slogx.TaskID(task.ID), slogx.Error(err))
	}
}

// disconnect settles the task after the client went away. The request context
// is already canceled, so the write uses a short-lived background context.
func (s *Service) disconnect(task *store.AnalysisTask) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.tasks.Fail(ctx, task.ID, "client disconnected before analysis finished"); err != nil {
		s.log.Error("failed to record client disconnect", slogx.TaskID(task.ID), slogx.Error(err))
	}
}

func (s *Service) send(ctx context.Context, out chan<- []byte, frame []byte) bool {
	select {
	case out <- frame:
		return true
	case <-ctx.Done():
		return false
	}
}

// resultPayload stores valid JSON verbatim and wraps free text in a minimal
// object so the result column stays queryable either way.
func resultPayload(text string) []byte {
	if gjson.Valid(text) {
		return []byte(text)
	}
	wrapped, _ := sjson.SetBytes([]byte(`{}`), "content", text)
	return wrapped
}
