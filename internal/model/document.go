package model

import "time"

// Status is the approval state of a document.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is expected from s.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// UserRef is the minimal view of a user embedded in documents.
type UserRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Department belongs to exactly one company.
type Department struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CompanyID string `json:"company_id,omitempty"`
}

// Category is a department-owned tag linking documents to that department.
type Category struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	Department Department `json:"department"`
}

// Document represents a controlled-access file and its metadata.
// FilePath always points at the blob of the highest version.
type Document struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	FilePath     string            `json:"file_path"`
	Description  *string           `json:"description"`
	Status       Status            `json:"status"`
	CompanyID    string            `json:"company_id"`
	UploadedBy   UserRef           `json:"uploaded_by"`
	ApprovedBy   *UserRef          `json:"approved_by"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Categories   []Category        `json:"categories"`
	RestrictedTo []Department      `json:"restricted_to_departments"`
	Versions     []DocumentVersion `json:"versions,omitempty"`
}

// CategoryDepartmentIDs returns the ids of the departments owning the document's categories.
func (d *Document) CategoryDepartmentIDs() []int64 {
	ids := make([]int64, 0, len(d.Categories))
	for _, c := range d.Categories {
		ids = append(ids, c.Department.ID)
	}
	return ids
}

// RestrictedDepartmentIDs returns the ids in the document's restriction set.
func (d *Document) RestrictedDepartmentIDs() []int64 {
	ids := make([]int64, 0, len(d.RestrictedTo))
	for _, dep := range d.RestrictedTo {
		ids = append(ids, dep.ID)
	}
	return ids
}

// DocumentVersion is one immutable file revision of a document.
type DocumentVersion struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Version    int       `json:"version"`
	FilePath   string    `json:"file_path"`
	CreatedAt  time.Time `json:"created_at"`
}

// DocumentView is an append-only audit record of a viewer opening a document.
type DocumentView struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	ViewerID   string    `json:"viewer_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// TemporaryToken grants a single download of one document.
type TemporaryToken struct {
	Token      string    `json:"token"`
	DocumentID string    `json:"document_id"`
	UserID     string    `json:"user_id"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// Expired reports whether the token is past its expiry at now.
func (t *TemporaryToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
