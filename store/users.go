package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// User is the slice of the account row the analysis flow cares about.
type User struct {
	ID      uuid.UUID
	Credits int
}

// Users reads and adjusts account credit balances.
type Users struct {
	pool *pgxpool.Pool
}

// NewUsers creates a user accessor backed by PostgreSQL.
func NewUsers(pool *pgxpool.Pool) *Users {
	return &Users{pool: pool}
}

// Get fetches a user's credit balance.
func (u *Users) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `SELECT id, credits FROM users WHERE id = $1;`

	var user User
	if err := u.pool.QueryRow(ctx, query, id).Scan(&user.ID, &user.Credits); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// DebitCredits subtracts amount from the user's balance. The balance was
// checked before the task was accepted, not at charge time, so concurrent
// streams for one account can drive the balance negative.
func (u *Users) DebitCredits(ctx context.Context, id uuid.UUID, amount int) error {
	query := `UPDATE users SET credits = credits - $2 WHERE id = $1;`

	tag, err := u.pool.Exec(ctx, query, id, amount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
