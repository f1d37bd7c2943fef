package postgres

import (
	"context"
	"database/sql"

	"docvault/internal/model"
	"docvault/internal/repository"
)

// CatalogPostgres resolves category and department ids within one company.
type CatalogPostgres struct {
	db *sql.DB
}

func NewCatalogPostgres(db *sql.DB) *CatalogPostgres {
	return &CatalogPostgres{db: db}
}

var _ repository.CatalogRepository = (*CatalogPostgres)(nil)

func (r *CatalogPostgres) FindCategories(ctx context.Context, companyID string, ids []int64) ([]model.Category, error) {
	items := make([]model.Category, 0, len(ids))
	if len(ids) == 0 {
		return items, nil
	}

	q := `
		SELECT c.id, c.name, d.id, d.name, d.company_id
		FROM categories c
		JOIN departments d ON d.id = c.department_id
		WHERE d.company_id = $1 AND c.id IN (` + placeholders(2, len(ids)) + `)
		ORDER BY c.id`
	rows, err := r.db.QueryContext(ctx, q, idArgs(companyID, ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Department.ID, &c.Department.Name, &c.Department.CompanyID); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *CatalogPostgres) FindDepartments(ctx context.Context, companyID string, ids []int64) ([]model.Department, error) {
	items := make([]model.Department, 0, len(ids))
	if len(ids) == 0 {
		return items, nil
	}

	q := `
		SELECT id, name, company_id
		FROM departments
		WHERE company_id = $1 AND id IN (` + placeholders(2, len(ids)) + `)
		ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, idArgs(companyID, ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var d model.Department
		if err := rows.Scan(&d.ID, &d.Name, &d.CompanyID); err != nil {
			return nil, err
		}
		items = append(items, d)
	}
	return items, rows.Err()
}

func idArgs(companyID string, ids []int64) []any {
	args := make([]any, 0, len(ids)+1)
	args = append(args, companyID)
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}
