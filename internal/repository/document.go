package repository

import (
	"context"

	"docvault/internal/model"
)

// DocumentFilter narrows a company's documents. Zero values mean "no filter".
type DocumentFilter struct {
	CompanyID    string
	Status       model.Status
	DepartmentID int64
	Title        string
	UploadedBy   string
}

// DocumentRepository defines data access for documents and their versions using SQL queries only.
// No business logic here: strictly persistence operations.
type DocumentRepository interface {
	// CreateWithInitialVersion inserts the document, its category and restriction links,
	// and version 1 in one transaction. Nothing is left behind if any insert fails.
	CreateWithInitialVersion(ctx context.Context, doc *model.Document, first *model.DocumentVersion) error

	// FindByID returns a document with uploader, approver, categories and restrictions loaded.
	FindByID(ctx context.Context, id string) (*model.Document, error)

	// List returns the documents matching f, newest first, with relations loaded.
	List(ctx context.Context, f DocumentFilter) ([]model.Document, error)

	// UpdateStatus sets the status and, when approvedBy is non-nil, the approver.
	UpdateStatus(ctx context.Context, id string, status model.Status, approvedBy *string) error

	// AppendVersion locks the document row, assigns v.Version = max+1, inserts v and
	// repoints the document's file path, all in one transaction.
	AppendVersion(ctx context.Context, v *model.DocumentVersion) (*model.DocumentVersion, error)

	// ListVersions returns versions ordered from newest to oldest.
	ListVersions(ctx context.Context, documentID string) ([]model.DocumentVersion, error)
}

// ViewRepository records document views.
type ViewRepository interface {
	Create(ctx context.Context, v *model.DocumentView) (*model.DocumentView, error)
}

// CatalogRepository resolves categories and departments scoped to one company.
type CatalogRepository interface {
	// FindCategories returns the categories among ids whose department belongs to companyID.
	FindCategories(ctx context.Context, companyID string, ids []int64) ([]model.Category, error)
	// FindDepartments returns the departments among ids that belong to companyID.
	FindDepartments(ctx context.Context, companyID string, ids []int64) ([]model.Department, error)
}

// UserRepository loads the caller's authorization attributes.
type UserRepository interface {
	// FindPrincipal returns role, company and department memberships (within the
	// user's company) as currently stored.
	FindPrincipal(ctx context.Context, userID string) (*model.Principal, error)
}
