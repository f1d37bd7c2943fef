package postgres

import (
	"context"
	"database/sql"

	"docvault/internal/model"
	"docvault/internal/repository"
)

// ViewPostgres appends rows to document_views.
type ViewPostgres struct {
	db *sql.DB
}

func NewViewPostgres(db *sql.DB) *ViewPostgres {
	return &ViewPostgres{db: db}
}

var _ repository.ViewRepository = (*ViewPostgres)(nil)

func (r *ViewPostgres) Create(ctx context.Context, v *model.DocumentView) (*model.DocumentView, error) {
	const q = `
		INSERT INTO document_views (id, document_id, viewer_id, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, document_id, viewer_id, created_at
	`
	var out model.DocumentView
	if err := r.db.QueryRowContext(ctx, q, v.ID, v.DocumentID, v.ViewerID, v.CreatedAt).Scan(
		&out.ID,
		&out.DocumentID,
		&out.ViewerID,
		&out.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &out, nil
}
