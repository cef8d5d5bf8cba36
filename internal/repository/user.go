package repository

import (
	"context"
	"errors"

	"github.com/deba607/AbJee-Travel-sub001/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("not found")

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := r.pool.QueryRow(ctx, `
		SELECT id, username, display_name, role, subscription_tier, is_active, is_online, last_seen_at, created_at
		FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Username, &u.DisplayName, &u.Role, &u.SubscriptionTier, &u.IsActive, &u.IsOnline, &u.LastSeenAt, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// SetOnline flips the presence flag and stamps last_seen in one statement.
func (r *UserRepository) SetOnline(ctx context.Context, id string, online bool) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users SET is_online = $2, last_seen_at = NOW(), updated_at = NOW() WHERE id = $1
	`, id, online)
	return err
}

func (r *UserRepository) CountTotal(ctx context.Context) (int64, error) {
	var n int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}
