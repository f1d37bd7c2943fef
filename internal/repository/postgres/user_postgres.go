package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"docvault/internal/model"
	"docvault/internal/repository"
)

// UserPostgres reads users and their department memberships.
type UserPostgres struct {
	db *sql.DB
}

func NewUserPostgres(db *sql.DB) *UserPostgres {
	return &UserPostgres{db: db}
}

var _ repository.UserRepository = (*UserPostgres)(nil)

// FindPrincipal loads memberships only for departments of the user's own company.
func (r *UserPostgres) FindPrincipal(ctx context.Context, userID string) (*model.Principal, error) {
	const qUser = `SELECT id, name, role, company_id FROM users WHERE id = $1`

	var (
		p    model.Principal
		role string
	)
	if err := r.db.QueryRowContext(ctx, qUser, userID).Scan(&p.UserID, &p.Name, &role, &p.CompanyID); err != nil {
		return nil, notFound(err)
	}
	p.Role = model.Role(role)

	const qDepartments = `
		SELECT ud.department_id
		FROM user_departments ud
		JOIN departments d ON d.id = ud.department_id
		WHERE ud.user_id = $1 AND d.company_id = $2
		ORDER BY ud.department_id
	`
	rows, err := r.db.QueryContext(ctx, qDepartments, p.UserID, p.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("load departments: %w", err)
	}
	defer rows.Close()

	p.DepartmentIDs = make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		p.DepartmentIDs = append(p.DepartmentIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &p, nil
}
