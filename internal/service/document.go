package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"docvault/internal/access"
	"docvault/internal/model"
	"docvault/internal/repository"
	"docvault/internal/storage"
)

var tracer = otel.Tracer("docvault/service")

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// DocumentListResult is the service-level DTO for paginated documents.
type DocumentListResult struct {
	Items []model.Document `json:"data"`
	Total int              `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

// ListQuery filters the document listing. Zero values mean "no filter".
type ListQuery struct {
	Status       string
	DepartmentID int64
	Title        string
	Page         int
	Limit        int
}

// UploadInput describes an uploaded file. Category and restriction ids are
// ignored when adding a version.
type UploadInput struct {
	Reader                  io.Reader
	Filename                string
	ContentType             string
	Size                    int64
	Description             *string
	CategoryIDs             []int64
	RestrictedDepartmentIDs []int64
}

// DocumentService defines the use cases for handling documents.
// Every read of a single document goes through Authorize.
type DocumentService interface {
	// Upload stores the file, then creates the document with version 1 in one
	// transaction. The blob is deleted again if the database write fails.
	Upload(ctx context.Context, p model.Principal, in UploadInput) (*model.Document, error)

	// AddVersion stores a new file and appends it as the next version.
	AddVersion(ctx context.Context, p model.Principal, id string, in UploadInput) (*model.DocumentVersion, error)

	// List returns the documents of the caller's company the caller may see.
	List(ctx context.Context, p model.Principal, q ListQuery) (*DocumentListResult, error)

	// ListMine returns documents uploaded by the caller.
	ListMine(ctx context.Context, p model.Principal) ([]model.Document, error)

	// Get returns the document detail with its versions, newest first.
	Get(ctx context.Context, p model.Principal, id string) (*model.Document, error)

	// Versions returns the version chain of a visible document.
	Versions(ctx context.Context, p model.Principal, id string) ([]model.DocumentVersion, error)

	// LogView records that the caller viewed the document. A failed write
	// returns (nil, nil); only lookup and authorization errors are returned.
	LogView(ctx context.Context, p model.Principal, id string) (*model.DocumentView, error)

	// Approve and Reject are restricted to ADMIN and VALIDATOR.
	Approve(ctx context.Context, p model.Principal, id string) (*model.Document, error)
	Reject(ctx context.Context, p model.Principal, id string) (*model.Document, error)

	// Authorize loads the document and runs the access evaluator for p.
	Authorize(ctx context.Context, p model.Principal, id string) (*model.Document, error)
}

// Option configures a DocumentService.
type Option func(*documentService)

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *documentService) { s.log = l }
}

// WithStrictTransitions makes approve/reject fail with ErrConflict on approved or rejected documents.
func WithStrictTransitions(strict bool) Option {
	return func(s *documentService) { s.strict = strict }
}

// WithViewLogTimeout bounds how long a view-log write may take.
func WithViewLogTimeout(d time.Duration) Option {
	return func(s *documentService) {
		if d > 0 {
			s.viewTimeout = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *documentService) { s.now = now }
}

// documentService is a concrete implementation of DocumentService.
type documentService struct {
	store   storage.Storage
	repo    repository.DocumentRepository
	views   repository.ViewRepository
	catalog repository.CatalogRepository

	log         *zap.Logger
	strict      bool
	viewTimeout time.Duration
	now         func() time.Time
}

// NewDocumentService constructs a new DocumentService.
func NewDocumentService(
	store storage.Storage,
	repo repository.DocumentRepository,
	views repository.ViewRepository,
	catalog repository.CatalogRepository,
	opts ...Option,
) DocumentService {
	s := &documentService{
		store:       store,
		repo:        repo,
		views:       views,
		catalog:     catalog,
		log:         zap.NewNop(),
		viewTimeout: 2 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *documentService) Upload(ctx context.Context, p model.Principal, in UploadInput) (*model.Document, error) {
	ctx, span := tracer.Start(ctx, "DocumentService.Upload")
	defer span.End()

	if !p.HasRole(model.RoleAdmin, model.RoleValidator, model.RoleEditor) {
		return nil, fmt.Errorf("%w: role %s cannot upload", ErrForbidden, p.Role)
	}
	if in.Reader == nil {
		return nil, ErrReaderNil
	}
	categoryIDs := uniqueIDs(in.CategoryIDs)
	if len(categoryIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one category is required", ErrInvalidInput)
	}

	categories, err := s.catalog.FindCategories(ctx, p.CompanyID, categoryIDs)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	if len(categories) != len(categoryIDs) {
		return nil, fmt.Errorf("%w: unknown category id", ErrInvalidInput)
	}

	restrictedIDs := uniqueIDs(in.RestrictedDepartmentIDs)
	restricted, err := s.catalog.FindDepartments(ctx, p.CompanyID, restrictedIDs)
	if err != nil {
		return nil, fmt.Errorf("load departments: %w", err)
	}
	if len(restricted) != len(restrictedIDs) {
		return nil, fmt.Errorf("%w: unknown department id", ErrInvalidInput)
	}

	key, err := s.putBlob(ctx, in)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	doc := &model.Document{
		ID:           uuid.New().String(),
		Title:        titleFromFilename(in.Filename),
		FilePath:     key,
		Description:  in.Description,
		Status:       model.StatusPending,
		CompanyID:    p.CompanyID,
		UploadedBy:   model.UserRef{ID: p.UserID, Name: p.Name},
		CreatedAt:    now,
		UpdatedAt:    now,
		Categories:   categories,
		RestrictedTo: restricted,
	}
	first := &model.DocumentVersion{
		ID:         uuid.New().String(),
		DocumentID: doc.ID,
		Version:    1,
		FilePath:   key,
		CreatedAt:  now,
	}

	if err := s.repo.CreateWithInitialVersion(ctx, doc, first); err != nil {
		// Rollback: delete the object from storage
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.log.Error("upload_rollback_failed", zap.String("key", key), zap.Error(delErr))
			return nil, fmt.Errorf("db save failed: %w; rollback delete failed: %w", err, delErr)
		}
		return nil, fmt.Errorf("db save failed: %w", err)
	}

	span.SetAttributes(attribute.String("document.id", doc.ID))
	s.log.Info("document_uploaded",
		zap.String("document_id", doc.ID),
		zap.String("user_id", p.UserID),
		zap.String("key", key),
	)

	doc.Versions = []model.DocumentVersion{*first}
	return doc, nil
}

func (s *documentService) AddVersion(ctx context.Context, p model.Principal, id string, in UploadInput) (*model.DocumentVersion, error) {
	if !p.HasRole(model.RoleAdmin, model.RoleValidator, model.RoleEditor) {
		return nil, fmt.Errorf("%w: role %s cannot upload", ErrForbidden, p.Role)
	}
	if in.Reader == nil {
		return nil, ErrReaderNil
	}
	if _, err := s.Authorize(ctx, p, id); err != nil {
		return nil, err
	}

	key, err := s.putBlob(ctx, in)
	if err != nil {
		return nil, err
	}

	v, err := s.repo.AppendVersion(ctx, &model.DocumentVersion{
		ID:         uuid.New().String(),
		DocumentID: id,
		FilePath:   key,
		CreatedAt:  s.now().UTC(),
	})
	if err != nil {
		// Only the new blob is discarded; the document and its earlier versions stay intact.
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.log.Error("version_rollback_failed", zap.String("key", key), zap.Error(delErr))
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("append version: %w", err)
	}

	s.log.Info("document_version_added",
		zap.String("document_id", id),
		zap.Int("version", v.Version),
		zap.String("user_id", p.UserID),
	)
	return v, nil
}

// List filters in SQL first, then drops what the evaluator denies, then pages.
func (s *documentService) List(ctx context.Context, p model.Principal, q ListQuery) (*DocumentListResult, error) {
	if p.Role != model.RoleAdmin && len(p.DepartmentIDs) == 0 {
		return nil, fmt.Errorf("%w: caller belongs to no department", ErrForbidden)
	}

	status := model.Status(q.Status)
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, q.Status)
	}

	page, limit := q.Page, q.Limit
	if page < 0 || limit < 0 {
		return nil, fmt.Errorf("%w: page and limit must be positive", ErrInvalidInput)
	}
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	docs, err := s.repo.List(ctx, repository.DocumentFilter{
		CompanyID:    p.CompanyID,
		Status:       status,
		DepartmentID: q.DepartmentID,
		Title:        strings.TrimSpace(q.Title),
	})
	if err != nil {
		return nil, err
	}

	visible := make([]model.Document, 0, len(docs))
	for i := range docs {
		if access.CanAccess(p, &docs[i]) {
			visible = append(visible, docs[i])
		}
	}

	res := repository.Paginate(visible, repository.PageQuery{Limit: limit, Offset: (page - 1) * limit})
	return &DocumentListResult{Items: res.Items, Total: res.Total, Page: page, Limit: limit}, nil
}

func (s *documentService) ListMine(ctx context.Context, p model.Principal) ([]model.Document, error) {
	return s.repo.List(ctx, repository.DocumentFilter{CompanyID: p.CompanyID, UploadedBy: p.UserID})
}

// Get returns the detail of a document by ID.
func (s *documentService) Get(ctx context.Context, p model.Principal, id string) (*model.Document, error) {
	doc, err := s.Authorize(ctx, p, id)
	if err != nil {
		return nil, err
	}
	versions, err := s.repo.ListVersions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load versions: %w", err)
	}
	doc.Versions = versions
	return doc, nil
}

func (s *documentService) Versions(ctx context.Context, p model.Principal, id string) ([]model.DocumentVersion, error) {
	if _, err := s.Authorize(ctx, p, id); err != nil {
		return nil, err
	}
	return s.repo.ListVersions(ctx, id)
}

func (s *documentService) LogView(ctx context.Context, p model.Principal, id string) (*model.DocumentView, error) {
	if _, err := s.Authorize(ctx, p, id); err != nil {
		return nil, err
	}

	// Detached from the request so a client hang-up does not cancel the write,
	// and bounded so a slow database cannot hold the response.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.viewTimeout)
	defer cancel()

	view, err := s.views.Create(wctx, &model.DocumentView{
		ID:         uuid.New().String(),
		DocumentID: id,
		ViewerID:   p.UserID,
		CreatedAt:  s.now().UTC(),
	})
	if err != nil {
		s.log.Warn("view_log_failed",
			zap.String("document_id", id),
			zap.String("user_id", p.UserID),
			zap.Error(err),
		)
		return nil, nil
	}
	return view, nil
}

func (s *documentService) Approve(ctx context.Context, p model.Principal, id string) (*model.Document, error) {
	return s.transition(ctx, p, id, model.StatusApproved)
}

func (s *documentService) Reject(ctx context.Context, p model.Principal, id string) (*model.Document, error) {
	return s.transition(ctx, p, id, model.StatusRejected)
}

func (s *documentService) transition(ctx context.Context, p model.Principal, id string, to model.Status) (*model.Document, error) {
	if !p.HasRole(model.RoleAdmin, model.RoleValidator) {
		return nil, fmt.Errorf("%w: role %s cannot change status", ErrForbidden, p.Role)
	}
	doc, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := access.SameTenant(p, doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrForbidden, err)
	}
	if s.strict && doc.Status.Terminal() {
		return nil, fmt.Errorf("%w: document is already %s", ErrConflict, doc.Status)
	}

	var approvedBy *string
	if to == model.StatusApproved {
		approvedBy = &p.UserID
	}
	if err := s.repo.UpdateStatus(ctx, id, to, approvedBy); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	s.log.Info("document_status_changed",
		zap.String("document_id", id),
		zap.String("from", string(doc.Status)),
		zap.String("to", string(to)),
		zap.String("user_id", p.UserID),
	)

	doc.Status = to
	if approvedBy != nil {
		doc.ApprovedBy = &model.UserRef{ID: p.UserID, Name: p.Name}
	}
	doc.UpdatedAt = s.now().UTC()
	return doc, nil
}

func (s *documentService) Authorize(ctx context.Context, p model.Principal, id string) (*model.Document, error) {
	doc, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	decision := access.Evaluate(p, doc)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("access.reason", string(decision.Reason)))
	if err := decision.Err(); err != nil {
		s.log.Debug("access_denied",
			zap.String("document_id", id),
			zap.String("user_id", p.UserID),
			zap.String("reason", string(decision.Reason)),
		)
		return nil, fmt.Errorf("%w: %w", ErrForbidden, err)
	}
	return doc, nil
}

func (s *documentService) find(ctx context.Context, id string) (*model.Document, error) {
	if id == "" {
		return nil, ErrIDRequired
	}
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return doc, nil
}

// putBlob stores the upload under uploads/<uuid><ext> and returns the key.
func (s *documentService) putBlob(ctx context.Context, in UploadInput) (string, error) {
	ext := strings.ToLower(filepath.Ext(in.Filename))
	key := "uploads/" + uuid.New().String() + ext

	contentType := in.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if _, err := s.store.Put(ctx, key, in.Reader, storage.PutObjectOptions{
		Size:        in.Size,
		ContentType: contentType,
		Metadata: map[string]string{
			"original-filename": SafeFilename(filepath.Base(in.Filename)),
		},
	}); err != nil {
		return "", fmt.Errorf("%w: upload to storage: %w", ErrStorage, err)
	}
	return key, nil
}

// titleFromFilename keeps the base name without its extension.
func titleFromFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	title := strings.TrimSuffix(base, filepath.Ext(base))
	if title == "" {
		return base
	}
	return title
}

func uniqueIDs(ids []int64) []int64 {
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
