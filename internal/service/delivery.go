package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"docvault/internal/model"
	"docvault/internal/repository"
	"docvault/internal/storage"
)

// tokenBytes is the amount of randomness in a download token (64 hex chars).
const tokenBytes = 32

// Disposition selects how the browser should treat a delivered file.
type Disposition string

const (
	DispositionInline     Disposition = "inline"
	DispositionAttachment Disposition = "attachment"
)

// SignedURL is a one-time link to a document's current file.
type SignedURL struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Delivery is an opened file ready to stream. The caller owns Body and must close it.
type Delivery struct {
	DocumentID  string
	Body        io.ReadCloser
	Size        int64
	ContentType string
	Filename    string
	Disposition Disposition
}

// ContentDisposition renders the Content-Disposition header value.
func (d *Delivery) ContentDisposition() string {
	return fmt.Sprintf(`%s; filename="%s"`, d.Disposition, d.Filename)
}

// DeliveryService issues and redeems single-use download tokens.
type DeliveryService interface {
	// IssueSignedURL re-runs authorization and mints a token valid for the configured TTL.
	IssueSignedURL(ctx context.Context, p model.Principal, documentID string) (*SignedURL, error)

	// Open consumes token and, if it is valid for documentID, opens the document's file.
	// The token is gone after this call whatever the outcome.
	Open(ctx context.Context, documentID, token string, disposition Disposition) (*Delivery, error)
}

// DeliveryConfig holds DeliveryService settings.
type DeliveryConfig struct {
	// BaseURL is the public origin signed URLs point at, without a trailing slash.
	BaseURL string
	TTL     time.Duration
	Logger  *zap.Logger
	Metrics *DeliveryMetrics
	Now     func() time.Time
}

type deliveryService struct {
	docs   DocumentService
	repo   repository.DocumentRepository
	tokens repository.TokenRepository
	store  storage.Storage

	baseURL string
	ttl     time.Duration
	log     *zap.Logger
	metrics *DeliveryMetrics
	now     func() time.Time
}

// NewDeliveryService wires the token flow. docs is used for authorization on
// issue; repo resolves documents on redeem, where no principal is present.
func NewDeliveryService(
	docs DocumentService,
	repo repository.DocumentRepository,
	tokens repository.TokenRepository,
	store storage.Storage,
	cfg DeliveryConfig,
) DeliveryService {
	s := &deliveryService{
		docs:    docs,
		repo:    repo,
		tokens:  tokens,
		store:   store,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		ttl:     cfg.TTL,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		now:     cfg.Now,
	}
	if s.ttl <= 0 {
		s.ttl = 120 * time.Second
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *deliveryService) IssueSignedURL(ctx context.Context, p model.Principal, documentID string) (*SignedURL, error) {
	ctx, span := tracer.Start(ctx, "DeliveryService.IssueSignedURL")
	defer span.End()

	if _, err := s.docs.Authorize(ctx, p, documentID); err != nil {
		return nil, err
	}

	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	now := s.now().UTC()
	t := &model.TemporaryToken{
		Token:      token,
		DocumentID: documentID,
		UserID:     p.UserID,
		ExpiresAt:  now.Add(s.ttl),
		CreatedAt:  now,
	}
	if err := s.tokens.Save(ctx, t); err != nil {
		return nil, fmt.Errorf("save token: %w", err)
	}
	s.metrics.tokenIssued()

	s.log.Info("token_issued",
		zap.String("document_id", documentID),
		zap.String("user_id", p.UserID),
		zap.Time("expires_at", t.ExpiresAt),
	)

	u := fmt.Sprintf("%s/documents/%s/file?token=%s", s.baseURL, url.PathEscape(documentID), url.QueryEscape(token))
	return &SignedURL{URL: u, ExpiresAt: t.ExpiresAt}, nil
}

func (s *deliveryService) Open(ctx context.Context, documentID, token string, disposition Disposition) (*Delivery, error) {
	ctx, span := tracer.Start(ctx, "DeliveryService.Open")
	defer span.End()
	span.SetAttributes(attribute.String("document.id", documentID), attribute.String("disposition", string(disposition)))

	if token == "" {
		s.metrics.tokenConsumed(OutcomeUnknown)
		return nil, ErrInvalidToken
	}

	t, err := s.tokens.Consume(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.reject(documentID, OutcomeUnknown)
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("consume token: %w", err)
	}
	if t.Expired(s.now()) {
		s.reject(documentID, OutcomeExpired)
		return nil, ErrInvalidToken
	}
	if t.DocumentID != documentID {
		s.reject(documentID, OutcomeMismatch)
		return nil, ErrInvalidToken
	}

	doc, err := s.repo.FindByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.tokenConsumed(OutcomeNoDocument)
			return nil, ErrNotFound
		}
		return nil, err
	}

	if _, err := s.store.Stat(ctx, doc.FilePath); err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			s.metrics.tokenConsumed(OutcomeBlobMissing)
			s.log.Error("blob_missing",
				zap.String("document_id", documentID),
				zap.String("key", doc.FilePath),
			)
			return nil, ErrBlobMissing
		}
		return nil, fmt.Errorf("%w: stat: %w", ErrStorage, err)
	}

	body, info, err := s.store.Get(ctx, doc.FilePath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			s.metrics.tokenConsumed(OutcomeBlobMissing)
			return nil, ErrBlobMissing
		}
		return nil, fmt.Errorf("%w: open: %w", ErrStorage, err)
	}
	s.metrics.tokenConsumed(OutcomeServed)

	ext := filepath.Ext(doc.FilePath)
	return &Delivery{
		DocumentID:  documentID,
		Body:        body,
		Size:        info.Size,
		ContentType: ContentTypeFor(doc.FilePath),
		Filename:    SafeFilename(doc.Title) + ext,
		Disposition: disposition,
	}, nil
}

func (s *deliveryService) reject(documentID, outcome string) {
	s.metrics.tokenConsumed(outcome)
	s.log.Info("token_rejected", zap.String("document_id", documentID), zap.String("outcome", outcome))
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ContentTypeFor infers the content type from the file extension: PDF or generic binary.
func ContentTypeFor(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return "application/pdf"
	}
	return "application/octet-stream"
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9_.\-]`)

// SafeFilename replaces every character outside [A-Za-z0-9_.-] with '_'.
func SafeFilename(name string) string {
	safe := unsafeFilenameChars.ReplaceAllString(name, "_")
	if safe == "" {
		return "document"
	}
	return safe
}
