package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"docvault/internal/model"
	"docvault/internal/repository"
)

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type DocumentPostgres struct {
	db *sql.DB
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

const documentSelect = `
		SELECT d.id, d.title, d.file_path, d.description, d.status, d.company_id,
		       d.uploaded_by_id, u.name, d.approved_by_id, a.name, d.created_at, d.updated_at
		FROM documents d
		JOIN users u ON u.id = d.uploaded_by_id
		LEFT JOIN users a ON a.id = d.approved_by_id`

// CreateWithInitialVersion writes the document, its links and version 1 atomically.
func (r *DocumentPostgres) CreateWithInitialVersion(ctx context.Context, doc *model.Document, first *model.DocumentVersion) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(tx)

	const qDoc = `
		INSERT INTO documents (id, title, file_path, description, status, company_id, uploaded_by_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err := tx.ExecContext(ctx, qDoc,
		doc.ID,
		doc.Title,
		doc.FilePath,
		doc.Description,
		string(doc.Status),
		doc.CompanyID,
		doc.UploadedBy.ID,
		doc.CreatedAt,
		doc.UpdatedAt,
	); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}

	const qCategory = `INSERT INTO document_categories (document_id, category_id) VALUES ($1, $2)`
	for _, c := range doc.Categories {
		if _, err := tx.ExecContext(ctx, qCategory, doc.ID, c.ID); err != nil {
			return fmt.Errorf("link category %d: %w", c.ID, err)
		}
	}

	const qRestriction = `INSERT INTO document_restricted_departments (document_id, department_id) VALUES ($1, $2)`
	for _, dep := range doc.RestrictedTo {
		if _, err := tx.ExecContext(ctx, qRestriction, doc.ID, dep.ID); err != nil {
			return fmt.Errorf("restrict to department %d: %w", dep.ID, err)
		}
	}

	if err := insertVersion(ctx, tx, first); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// FindByID fetches a single document with its relations.
func (r *DocumentPostgres) FindByID(ctx context.Context, id string) (*model.Document, error) {
	row := r.db.QueryRowContext(ctx, documentSelect+` WHERE d.id = $1`, id)
	d, err := scanDocument(row)
	if err != nil {
		return nil, notFound(err)
	}
	if err := loadRelations(ctx, r.db, d); err != nil {
		return nil, err
	}
	return d, nil
}

// List returns the company's documents matching f, newest first.
func (r *DocumentPostgres) List(ctx context.Context, f repository.DocumentFilter) ([]model.Document, error) {
	conds := []string{"d.company_id = $1"}
	args := []any{f.CompanyID}
	where := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Status != "" {
		where("d.status = $%d", string(f.Status))
	}
	if f.Title != "" {
		where("d.title ILIKE $%d", likePattern(f.Title))
	}
	if f.DepartmentID != 0 {
		where(`EXISTS (
			SELECT 1 FROM document_categories dc
			JOIN categories c ON c.id = dc.category_id
			WHERE dc.document_id = d.id AND c.department_id = $%d)`, f.DepartmentID)
	}
	if f.UploadedBy != "" {
		where("d.uploaded_by_id = $%d", f.UploadedBy)
	}

	q := documentSelect + ` WHERE ` + strings.Join(conds, " AND ") + ` ORDER BY d.created_at DESC, d.id DESC`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}

	items := make([]model.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		items = append(items, *d)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	for i := range items {
		if err := loadRelations(ctx, r.db, &items[i]); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// UpdateStatus changes the status; a nil approvedBy keeps the current approver.
func (r *DocumentPostgres) UpdateStatus(ctx context.Context, id string, status model.Status, approvedBy *string) error {
	const q = `
		UPDATE documents
		SET status = $2, approved_by_id = COALESCE($3::uuid, approved_by_id), updated_at = now()
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, q, id, string(status), approvedBy)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// AppendVersion serializes concurrent appends on the document row lock so version numbers stay gap free.
func (r *DocumentPostgres) AppendVersion(ctx context.Context, v *model.DocumentVersion) (*model.DocumentVersion, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer rollback(tx)

	var locked string
	if err := tx.QueryRowContext(ctx, `SELECT id FROM documents WHERE id = $1 FOR UPDATE`, v.DocumentID).Scan(&locked); err != nil {
		return nil, notFound(err)
	}

	var next int
	const qNext = `SELECT COALESCE(MAX(version), 0) + 1 FROM document_versions WHERE document_id = $1`
	if err := tx.QueryRowContext(ctx, qNext, v.DocumentID).Scan(&next); err != nil {
		return nil, fmt.Errorf("next version: %w", err)
	}

	out := *v
	out.Version = next
	if err := insertVersion(ctx, tx, &out); err != nil {
		return nil, err
	}

	const qPoint = `UPDATE documents SET file_path = $2, updated_at = $3 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, qPoint, out.DocumentID, out.FilePath, out.CreatedAt); err != nil {
		return nil, fmt.Errorf("update file path: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &out, nil
}

// ListVersions returns the version chain, newest first.
func (r *DocumentPostgres) ListVersions(ctx context.Context, documentID string) ([]model.DocumentVersion, error) {
	const q = `
		SELECT id, document_id, version, file_path, created_at
		FROM document_versions
		WHERE document_id = $1
		ORDER BY version DESC
	`
	rows, err := r.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.DocumentVersion, 0)
	for rows.Next() {
		var v model.DocumentVersion
		if err := rows.Scan(&v.ID, &v.DocumentID, &v.Version, &v.FilePath, &v.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

func insertVersion(ctx context.Context, q querier, v *model.DocumentVersion) error {
	const qVersion = `
		INSERT INTO document_versions (id, document_id, version, file_path, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := q.ExecContext(ctx, qVersion, v.ID, v.DocumentID, v.Version, v.FilePath, v.CreatedAt); err != nil {
		return fmt.Errorf("insert version %d: %w", v.Version, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(s rowScanner) (*model.Document, error) {
	var (
		d            model.Document
		status       string
		description  sql.NullString
		approverID   sql.NullString
		approverName sql.NullString
	)
	if err := s.Scan(
		&d.ID,
		&d.Title,
		&d.FilePath,
		&description,
		&status,
		&d.CompanyID,
		&d.UploadedBy.ID,
		&d.UploadedBy.Name,
		&approverID,
		&approverName,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d.Status = model.Status(status)
	if description.Valid {
		d.Description = &description.String
	}
	if approverID.Valid {
		d.ApprovedBy = &model.UserRef{ID: approverID.String, Name: approverName.String}
	}
	return &d, nil
}

func loadRelations(ctx context.Context, q querier, d *model.Document) error {
	const qCategories = `
		SELECT c.id, c.name, dep.id, dep.name, dep.company_id
		FROM document_categories dc
		JOIN categories c ON c.id = dc.category_id
		JOIN departments dep ON dep.id = c.department_id
		WHERE dc.document_id = $1
		ORDER BY c.id
	`
	rows, err := q.QueryContext(ctx, qCategories, d.ID)
	if err != nil {
		return fmt.Errorf("load categories: %w", err)
	}
	d.Categories = make([]model.Category, 0)
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.Department.ID, &c.Department.Name, &c.Department.CompanyID); err != nil {
			rows.Close()
			return err
		}
		d.Categories = append(d.Categories, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	const qRestricted = `
		SELECT dep.id, dep.name, dep.company_id
		FROM document_restricted_departments r
		JOIN departments dep ON dep.id = r.department_id
		WHERE r.document_id = $1
		ORDER BY dep.id
	`
	rows, err = q.QueryContext(ctx, qRestricted, d.ID)
	if err != nil {
		return fmt.Errorf("load restrictions: %w", err)
	}
	defer rows.Close()
	d.RestrictedTo = make([]model.Department, 0)
	for rows.Next() {
		var dep model.Department
		if err := rows.Scan(&dep.ID, &dep.Name, &dep.CompanyID); err != nil {
			return err
		}
		d.RestrictedTo = append(d.RestrictedTo, dep)
	}
	return rows.Err()
}
