package postgres

import (
	"context"
	"database/sql"
	"time"

	"docvault/internal/model"
	"docvault/internal/repository"
)

// TokenPostgres keeps download tokens in the temporary_tokens table.
type TokenPostgres struct {
	db *sql.DB
}

func NewTokenPostgres(db *sql.DB) *TokenPostgres {
	return &TokenPostgres{db: db}
}

var _ repository.TokenRepository = (*TokenPostgres)(nil)

func (r *TokenPostgres) Save(ctx context.Context, t *model.TemporaryToken) error {
	const q = `
		INSERT INTO temporary_tokens (token, document_id, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.ExecContext(ctx, q, t.Token, t.DocumentID, t.UserID, t.ExpiresAt, t.CreatedAt)
	return err
}

// Consume deletes and returns the row in a single statement; concurrent callers
// race on the row lock and only one of them sees it.
func (r *TokenPostgres) Consume(ctx context.Context, token string) (*model.TemporaryToken, error) {
	const q = `
		DELETE FROM temporary_tokens
		WHERE token = $1
		RETURNING token, document_id, user_id, expires_at, created_at
	`
	var t model.TemporaryToken
	if err := r.db.QueryRowContext(ctx, q, token).Scan(
		&t.Token,
		&t.DocumentID,
		&t.UserID,
		&t.ExpiresAt,
		&t.CreatedAt,
	); err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

func (r *TokenPostgres) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM temporary_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
