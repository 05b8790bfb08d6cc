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

	"github.com/shotlist/shotlist/pkg/slogx"
	"github.com/shotlist/shotlist/store"
)

// Timeouts after which an unfinished task is considered abandoned.
const (
	DefaultPendingTimeout    = 10 * time.Minute
	DefaultProcessingTimeout = 30 * time.Minute
)

// DefaultTestKeywords flag video URLs that only ever appear in manual or
// automated testing. Stale tasks pointing at them fail with a distinct
// message so operators can tell noise from real timeouts.
var DefaultTestKeywords = []string{
	"invalid_url", "test", "http://example.com",
	"testuser", "demo", "https://invalid.com",
	"fake.com", "test.com", "sample-videos.com",
}

// ReaperStore is the slice of task persistence the reaper needs.
type ReaperStore interface {
	Stale(ctx context.Context, status store.TaskStatus, cutoff time.Time) ([]store.AnalysisTask, error)
	MissingVideo(ctx context.Context) ([]store.AnalysisTask, error)
	StatusCounts(ctx context.Context) (map[store.TaskStatus]int, error)
	Fail(ctx context.Context, id uuid.UUID, reason string) error
}

// Reaper sweeps tasks that will never finish on their own: pending rows whose
// stream never started, processing rows whose stream died without settling,
// and rows with no usable video reference.
type Reaper struct {
	tasks             ReaperStore
	pendingTimeout    time.Duration
	processingTimeout time.Duration
	keywords          []string
	log               *slog.Logger
	now               func() time.Time
}

var (
	// WithPendingTimeout overrides how long a task may sit in pending.
	WithPendingTimeout = opts.ForName[Reaper, time.Duration]("pendingTimeout")

	// WithProcessingTimeout overrides how long a stream may run.
	WithProcessingTimeout = opts.ForName[Reaper, time.Duration]("processingTimeout")

	// WithTestKeywords overrides the test-URL keyword list.
	WithTestKeywords = opts.ForName[Reaper, []string]("keywords")

	// WithReaperLogger overrides the reaper logger.
	WithReaperLogger = opts.ForName[Reaper, *slog.Logger]("log")

	// WithClock overrides the time source, for tests.
	WithClock = opts.ForName[Reaper, func() time.Time]("now")
)

// NewReaper wires a sweep over the given task store.
func NewReaper(tasks ReaperStore, options ...opts.Option[Reaper]) *Reaper {
	r := &Reaper{
		tasks:             tasks,
		pendingTimeout:    DefaultPendingTimeout,
		processingTimeout: DefaultProcessingTimeout,
		keywords:          DefaultTestKeywords,
		log:               slog.Default(),
		now:               time.Now,
	}
	if err := opts.Apply(r, options); err != nil {
		panic(err)
	}
	return r
}

// Report summarizes one sweep.
type Report struct {
	Updated      int                      `json:"updated"`
	StatusCounts map[store.TaskStatus]int `json:"status_counts"`
}

// Run performs one sweep. Each pass is idempotent: a task failed by one run
// no longer matches the stale queries of the next.
func (r *Reaper) Run(ctx context.Context) (Report, error) {
	now := r.now()
	var report Report
	settled := make(map[uuid.UUID]struct{})

	pending, err := r.tasks.Stale(ctx, store.TaskPending, now.Add(-r.pendingTimeout))
	if err != nil {
		return report, fmt.Errorf("query stale pending tasks: %w", err)
	}
	for _, task := range pending {
		reason := fmt.Sprintf("timed out after %d minutes without starting", int(r.pendingTimeout.Minutes()))
		if r.isTestURL(task.VideoURL) {
			reason = fmt.Sprintf("test task marked failed (url: %s)", task.VideoURL)
		}
		if r.fail(ctx, task.ID, reason) {
			settled[task.ID] = struct{}{}
			report.Updated++
		}
	}

	processing, err := r.tasks.Stale(ctx, store.TaskProcessing, now.Add(-r.processingTimeout))
	if err != nil {
		return report, fmt.Errorf("query stale processing tasks: %w", err)
	}
	for _, task := range processing {
		reason := fmt.Sprintf("processing ran longer than %d minutes", int(r.processingTimeout.Minutes()))
		if r.fail(ctx, task.ID, reason) {
			settled[task.ID] = struct{}{}
			report.Updated++
		}
	}

	missing, err := r.tasks.MissingVideo(ctx)
	if err != nil {
		return report, fmt.Errorf("query tasks without video: %w", err)
	}
	for _, task := range missing {
		if _, done := settled[task.ID]; done {
			continue
		}
		if r.fail(ctx, task.ID, "video URL is missing") {
			report.Updated++
		}
	}

	report.StatusCounts, err = r.tasks.StatusCounts(ctx)
	if err != nil {
		return report, fmt.Errorf("query status counts: %w", err)
	}

	if report.Updated > 0 {
		r.log.InfoContext(ctx, "reaped stale tasks", slog.Int("updated", report.Updated))
	}
	return report, nil
}

// RunEvery sweeps on a fixed interval until the context is canceled.
func (r *Reaper) RunEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Run(ctx); err != nil {
				r.log.ErrorContext(ctx, "reaper sweep failed", slogx.Error(err))
			}
		}
	}
}

func (r *Reaper) fail(ctx context.Context, id uuid.UUID, reason string) bool {
	if err := r.tasks.Fail(ctx, id, reason); err != nil {
		// The task settled between the scan and the write; nothing to reap.
		if errors.Is(err, store.ErrNotFound) {
			return false
		}
		r.log.ErrorContext(ctx, "failed to settle stale task", slogx.TaskID(id), slogx.Error(err))
		return false
	}
	r.log.InfoContext(ctx, "stale task failed", slogx.TaskID(id), slog.String("reason", reason))
	return true
}

func (r *Reaper) isTestURL(url string) bool {
	if url == "" {
		return true
	}
	lower := strings.ToLower(url)
	for _, keyword := range r.keywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
