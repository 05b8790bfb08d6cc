package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shotlist/shotlist/provider"
)

// Models reads admin-managed AI model configurations.
type Models struct {
	pool *pgxpool.Pool
}

// NewModels creates a model-config accessor backed by PostgreSQL.
func NewModels(pool *pgxpool.Pool) *Models {
	return &Models{pool: pool}
}

// Active fetches the configuration for one active model. Inactive and
// unknown models both come back as ErrNotFound; callers cannot tell the two
// apart, which keeps disabled models indistinguishable from deleted ones.
func (m *Models) Active(ctx context.Context, modelID string) (*provider.Config, error) {
	query := `
SELECT model_id, name, vendor, api_key, base_url, use_native_sdk, default_prompt, thinking_params, active
FROM ai_models
WHERE model_id = $1 AND active;
`
	row := m.pool.QueryRow(ctx, query, modelID)
	var cfg provider.Config
	if err := row.Scan(
		&cfg.ModelID,
		&cfg.Name,
		&cfg.Vendor,
		&cfg.APIKey,
		&cfg.BaseURL,
		&cfg.UseNativeSDK,
		&cfg.DefaultPrompt,
		&cfg.ThinkingParams,
		&cfg.Active,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &cfg, nil
}
