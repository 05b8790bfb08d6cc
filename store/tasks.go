package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TaskStatus is the lifecycle state of an analysis task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// AnalysisTask is one video analysis request and its outcome. Result holds
// the raw JSONB payload written at completion and stays nil until then.
type AnalysisTask struct {
	ID              uuid.UUID
	OwnerID         uuid.UUID
	VideoURL        string
	ModelID         string
	ThinkingEnabled bool
	Status          TaskStatus
	Result          []byte
	ErrorMessage    *string
	CreditsCharged  int
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

// Tasks persists analysis task rows.
type Tasks struct {
	pool *pgxpool.Pool
}

// NewTasks creates a task accessor backed by PostgreSQL.
func NewTasks(pool *pgxpool.Pool) *Tasks {
	return &Tasks{pool: pool}
}

const taskColumns = `id, owner_id, video_url, model_id, thinking_enabled, status, result, error_message, credits_charged, created_at, started_at, completed_at`

// Create inserts a new pending task.
func (t *Tasks) Create(ctx context.Context, task *AnalysisTask) error {
	query := `
INSERT INTO analysis_tasks (id, owner_id, video_url, model_id, thinking_enabled, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
RETURNING created_at;
`
	task.Status = TaskPending
	return t.pool.QueryRow(ctx, query,
		task.ID,
		task.OwnerID,
		task.VideoURL,
		task.ModelID,
		task.ThinkingEnabled,
		task.Status,
	).Scan(&task.CreatedAt)
}

// MarkProcessing moves a pending task to processing and stamps started_at.
// Tasks already past pending are left untouched.
func (t *Tasks) MarkProcessing(ctx context.Context, id uuid.UUID) error {
	query := `
UPDATE analysis_tasks
SET status = $2, started_at = now()
WHERE id = $1 AND status = $3;
`
	_, err := t.pool.Exec(ctx, query, id, TaskProcessing, TaskPending)
	return err
}

// Complete records a successful result and the credits charged for it.
func (t *Tasks) Complete(ctx context.Context, id uuid.UUID, result []byte, creditsCharged int) error {
	query := `
UPDATE analysis_tasks
SET status = $2, result = $3, credits_charged = $4, completed_at = now()
WHERE id = $1;
`
	_, err := t.pool.Exec(ctx, query, id, TaskCompleted, result, creditsCharged)
	return err
}

// Fail marks an unfinished task failed with a human-readable reason. No
// credits are recorded on failure. Rows that settled since the caller last
// looked are left untouched and reported as ErrNotFound, so a sweep racing a
// completion cannot overwrite the result.
func (t *Tasks) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
UPDATE analysis_tasks
SET status = $2, error_message = $3, completed_at = now()
WHERE id = $1 AND status IN ($4, $5);
`
	tag, err := t.pool.Exec(ctx, query, id, TaskFailed, reason, TaskPending, TaskProcessing)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetByID fetches one task, scoped to its owner.
func (t *Tasks) GetByID(ctx context.Context, ownerID, id uuid.UUID) (*AnalysisTask, error) {
	query := `SELECT ` + taskColumns + ` FROM analysis_tasks WHERE id = $1 AND owner_id = $2;`

	row := t.pool.QueryRow(ctx, query, id, ownerID)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return task, nil
}

// List returns the owner's tasks, newest first.
func (t *Tasks) List(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]AnalysisTask, error) {
	query := `
SELECT ` + taskColumns + `
FROM analysis_tasks
WHERE owner_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3;
`
	rows, err := t.pool.Query(ctx, query, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTasks(rows)
}

// Stale returns tasks stuck in the given status since before the cutoff.
// Pending tasks are aged by created_at, processing tasks by started_at.
func (t *Tasks) Stale(ctx context.Context, status TaskStatus, cutoff time.Time) ([]AnalysisTask, error) {
	ageColumn := "created_at"
	if status == TaskProcessing {
		ageColumn = "started_at"
	}
	query := `
SELECT ` + taskColumns + `
FROM analysis_tasks
WHERE status = $1 AND ` + ageColumn + ` < $2
ORDER BY ` + ageColumn + `;
`
	rows, err := t.pool.Query(ctx, query, status, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTasks(rows)
}

// MissingVideo returns unfinished tasks whose video URL is null or empty.
func (t *Tasks) MissingVideo(ctx context.Context) ([]AnalysisTask, error) {
	query := `
SELECT ` + taskColumns + `
FROM analysis_tasks
WHERE status IN ($1, $2) AND (video_url IS NULL OR video_url = '');
`
	rows, err := t.pool.Query(ctx, query, TaskPending, TaskProcessing)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectTasks(rows)
}

// StatusCounts returns the number of tasks per lifecycle status.
func (t *Tasks) StatusCounts(ctx context.Context) (map[TaskStatus]int, error) {
	query := `SELECT status, count(*) FROM analysis_tasks GROUP BY status;`

	rows, err := t.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[TaskStatus]int)
	for rows.Next() {
		var status TaskStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func scanTask(row pgx.Row) (*AnalysisTask, error) {
	var task AnalysisTask
	if err := row.Scan(
		&task.ID,
		&task.OwnerID,
		&task.VideoURL,
		&task.ModelID,
		&task.ThinkingEnabled,
		&task.Status,
		&task.Result,
		&task.ErrorMessage,
		&task.CreditsCharged,
		&task.CreatedAt,
		&task.StartedAt,
		&task.CompletedAt,
	); err != nil {
		return nil, err
	}
	return &task, nil
}

func collectTasks(rows pgx.Rows) ([]AnalysisTask, error) {
	var tasks []AnalysisTask
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}
	return tasks, rows.Err()
}
