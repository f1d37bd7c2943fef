package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"docvault/internal/access"
	"docvault/internal/http/middleware"
	"docvault/internal/model"
	"docvault/internal/service"
	serviceMocks "docvault/internal/service/mocks"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testPrincipal = model.Principal{
	UserID:        "u1",
	Name:          "Ed",
	Role:          model.RoleEditor,
	CompanyID:     "c1",
	DepartmentIDs: []int64{10},
}

// withPrincipal stands in for the auth middleware.
func withPrincipal(p model.Principal) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Locals(middleware.PrincipalLocalKey, p)
		return c.Next()
	}
}

func newApp() *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Use(middleware.RequestID())
	return app
}

func decodeError(t *testing.T, r io.Reader) errorPayload {
	t.Helper()
	var body errorPayload
	require.NoError(t, json.NewDecoder(r).Decode(&body))
	return body
}

func TestHealthCheck(t *testing.T) {
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	app := fiber.New()
	app.Get("/health", HealthCheck(db))

	t.Run("healthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(nil)

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(errors.New("db error"))

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "SERVICE_UNAVAILABLE", decodeError(t, resp.Body).Error.Code)
	})
}

func TestLivenessProbe(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", LivenessProbe())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListDocuments(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		setupMock  func(m *serviceMocks.MockDocumentService)
		wantStatus int
		wantCode   string
	}{
		{
			name:   "success with filters",
			target: "/documents?status=approved&departmentId=10&title=policy&page=2&limit=5",
			setupMock: func(m *serviceMocks.MockDocumentService) {
				m.On("List", mock.Anything, testPrincipal, service.ListQuery{
					Status: "approved", DepartmentID: 10, Title: "policy", Page: 2, Limit: 5,
				}).Return(&service.DocumentListResult{
					Items: []model.Document{{ID: uuid.NewString(), Title: "policy"}},
					Total: 6, Page: 2, Limit: 5,
				}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "invalid limit",
			target:     "/documents?limit=abc",
			setupMock:  func(*serviceMocks.MockDocumentService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
		{
			name:       "negative page",
			target:     "/documents?page=-1",
			setupMock:  func(*serviceMocks.MockDocumentService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
		{
			name:       "zero page",
			target:     "/documents?page=0",
			setupMock:  func(*serviceMocks.MockDocumentService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
		{
			name:       "zero limit",
			target:     "/documents?limit=0",
			setupMock:  func(*serviceMocks.MockDocumentService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
		{
			name:   "caller without department",
			target: "/documents",
			setupMock: func(m *serviceMocks.MockDocumentService) {
				m.On("List", mock.Anything, testPrincipal, service.ListQuery{}).
					Return(nil, fmt.Errorf("%w: caller belongs to no department", service.ErrForbidden))
			},
			wantStatus: http.StatusForbidden,
			wantCode:   "FORBIDDEN",
		},
		{
			name:   "service error",
			target: "/documents",
			setupMock: func(m *serviceMocks.MockDocumentService) {
				m.On("List", mock.Anything, testPrincipal, service.ListQuery{}).Return(nil, errors.New("db down"))
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := new(serviceMocks.MockDocumentService)
			tt.setupMock(mockSvc)

			app := newApp()
			app.Get("/documents", withPrincipal(testPrincipal), ListDocuments(mockSvc))

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, tt.target, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			if tt.wantCode != "" {
				body := decodeError(t, resp.Body)
				assert.Equal(t, tt.wantCode, body.Error.Code)
				assert.NotEmpty(t, body.RequestID)
				assert.NotContains(t, body.Error.Message, "db down")
			} else {
				var result map[string]any
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
				assert.Len(t, result["data"], 1)
				assert.Equal(t, float64(6), result["total"])
				assert.Equal(t, float64(2), result["page"])
				assert.Equal(t, float64(5), result["limit"])
			}
			mockSvc.AssertExpectations(t)
		})
	}
}

func TestListDocuments_Unauthenticated(t *testing.T) {
	app := newApp()
	app.Get("/documents", ListDocuments(new(serviceMocks.MockDocumentService)))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/documents", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMyUploads(t *testing.T) {
	mockSvc := new(serviceMocks.MockDocumentService)
	mockSvc.On("ListMine", mock.Anything, testPrincipal).Return(nil, nil)

	app := newApp()
	app.Get("/documents/my-uploads", withPrincipal(testPrincipal), MyUploads(mockSvc))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/documents/my-uploads", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	raw, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"data":[]}`, string(raw))
}

func multipartBody(t *testing.T, fields map[string]string, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return body, w.FormDataContentType()
}

func TestUploadDocument(t *testing.T) {
	tests := []struct {
		name       string
		fields     map[string]string
		filename   string
		setupMock  func(m *serviceMocks.MockDocumentService)
		wantStatus int
		wantCode   string
	}{
		{
			name: "success with mixed id encodings",
			fields: map[string]string{
				"categoryIds":             `[1, "2"]`,
				"restrictedDepartmentIds": "20,30",
				"description":             "quarterly numbers",
			},
			filename: "report.pdf",
			setupMock: func(m *serviceMocks.MockDocumentService) {
				m.On("Upload", mock.Anything, testPrincipal, mock.MatchedBy(func(in service.UploadInput) bool {
					return in.Filename == "report.pdf" &&
						assert.ObjectsAreEqual([]int64{1, 2}, in.CategoryIDs) &&
						assert.ObjectsAreEqual([]int64{20, 30}, in.RestrictedDepartmentIDs) &&
						in.Description != nil && *in.Description == "quarterly numbers" &&
						in.Size == 11
				})).Return(&model.Document{ID: "d1", Title: "report", Status: model.StatusPending}, nil)
			},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "no file",
			fields:     map[string]string{"categoryIds": "[1]"},
			setupMock:  func(*serviceMocks.MockDocumentService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
		{
			name:       "malformed category ids",
			fields:     map[string]string{"categoryIds": "[1.5]"},
			filename:   "a.pdf",
			setupMock:  func(*serviceMocks.MockDocumentService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
		{
			name:     "viewer rejected by service",
			fields:   map[string]string{"categoryIds": "[1]"},
			filename: "a.pdf",
			setupMock: func(m *serviceMocks.MockDocumentService) {
				m.On("Upload", mock.Anything, testPrincipal, mock.Anything).Return(nil, service.ErrForbidden)
			},
			wantStatus: http.StatusForbidden,
			wantCode:   "FORBIDDEN",
		},
		{
			name:     "storage failure",
			fields:   map[string]string{"categoryIds": "[1]"},
			filename: "a.pdf",
			setupMock: func(m *serviceMocks.MockDocumentService) {
				m.On("Upload", mock.Anything, testPrincipal, mock.Anything).
					Return(nil, fmt.Errorf("%w: upload to storage: timeout", service.ErrStorage))
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := new(serviceMocks.MockDocumentService)
			tt.setupMock(mockSvc)

			app := newApp()
			app.Post("/documents/upload", withPrincipal(testPrincipal), UploadDocument(mockSvc))

			body, contentType := multipartBody(t, tt.fields, tt.filename, "hello world")
			req := httptest.NewRequest(http.MethodPost, "/documents/upload", body)
			req.Header.Set("Content-Type", contentType)

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, resp.Body).Error.Code)
			} else {
				var doc model.Document
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
				assert.Equal(t, "d1", doc.ID)
			}
			mockSvc.AssertExpectations(t)
		})
	}
}

func TestGetDocument(t *testing.T) {
	id := uuid.NewString()

	tests := []struct {
		name       string
		target     string
		setupMock  func(m *serviceMocks.MockDocumentService)
		wantStatus int
		wantCode   string
	}{
		{
			name:   "success",
			target: "/documents/" + id,
			setupMock: func(m *serviceMocks.MockDocumentService) {
				m.On("Get", mock.Anything, testPrincipal, id).Return(&model.Document{
					ID: id, Versions: []model.DocumentVersion{{Version: 2}, {Version: 1}},
				}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "invalid id",
			target:     "/documents/invalid-uuid",
			setupMock:  func(*serviceMocks.MockDocumentService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_INPUT",
		},
		{
			name:   "not found",
			target: "/documents/" + id,
			setupMock: func(m *serviceMocks.MockDocumentService) {
				m.On("Get", mock.Anything, testPrincipal, id).Return(nil, service.ErrNotFound)
			},
			wantStatus: http.StatusNotFound,
			wantCode:   "NOT_FOUND",
		},
		{
			name:   "denied without leaking the reason",
			target: "/documents/" + id,
			setupMock: func(m *serviceMocks.MockDocumentService) {
				denied := &access.DeniedError{Reason: access.ReasonCrossTenant}
				m.On("Get", mock.Anything, testPrincipal, id).Return(nil, fmt.Errorf("%w: %w", service.ErrForbidden, denied))
			},
			wantStatus: http.StatusForbidden,
			wantCode:   "FORBIDDEN",
		},
		{
			name:   "service error",
			target: "/documents/" + id,
			setupMock: func(m *serviceMocks.MockDocumentService) {
				m.On("Get", mock.Anything, testPrincipal, id).Return(nil, errors.New("db error"))
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := new(serviceMocks.MockDocumentService)
			tt.setupMock(mockSvc)

			app := newApp()
			app.Get("/documents/:id", withPrincipal(testPrincipal), GetDocument(mockSvc))

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, tt.target, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			raw, _ := io.ReadAll(resp.Body)
			assert.NotContains(t, string(raw), "cross_tenant")
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, bytes.NewReader(raw)).Error.Code)
			} else {
				var doc model.Document
				require.NoError(t, json.Unmarshal(raw, &doc))
				assert.Equal(t, id, doc.ID)
				assert.Len(t, doc.Versions, 2)
			}
			mockSvc.AssertExpectations(t)
		})
	}
}

func TestLogView(t *testing.T) {
	id := uuid.NewString()

	t.Run("recorded", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockDocumentService)
		mockSvc.On("LogView", mock.Anything, testPrincipal, id).
			Return(&model.DocumentView{ID: "v1", DocumentID: id, ViewerID: "u1"}, nil)

		app := newApp()
		app.Post("/documents/:id/log-view", withPrincipal(testPrincipal), LogView(mockSvc))

		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/documents/"+id+"/log-view", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body logViewResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.True(t, body.Success)
		require.NotNil(t, body.Log)
		assert.Equal(t, "v1", body.Log.ID)
	})

	t.Run("write failed silently", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockDocumentService)
		mockSvc.On("LogView", mock.Anything, testPrincipal, id).Return(nil, nil)

		app := newApp()
		app.Post("/documents/:id/log-view", withPrincipal(testPrincipal), LogView(mockSvc))

		resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/documents/"+id+"/log-view", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		raw, _ := io.ReadAll(resp.Body)
		assert.JSONEq(t, `{"success":false,"log":null}`, string(raw))
	})
}

func TestSignedURL(t *testing.T) {
	id := uuid.NewString()
	expires := time.Date(2026, 3, 1, 9, 2, 0, 0, time.UTC)

	mockSvc := new(serviceMocks.MockDeliveryService)
	mockSvc.On("IssueSignedURL", mock.Anything, testPrincipal, id).
		Return(&service.SignedURL{URL: "http://localhost:8080/documents/" + id + "/file?token=abc", ExpiresAt: expires}, nil)

	app := newApp()
	app.Get("/documents/:id/signed-url", withPrincipal(testPrincipal), SignedURL(mockSvc))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/documents/"+id+"/signed-url", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "http://localhost:8080/documents/"+id+"/file?token=abc", body["url"])
	assert.Equal(t, "2026-03-01T09:02:00Z", body["expires_at"])
}

type trackedBody struct {
	io.Reader
	closed atomic.Int32
}

func (b *trackedBody) Close() error {
	b.closed.Add(1)
	return nil
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk read error") }

// flakyReader serves zeros until limit bytes have been read, then fails.
type flakyReader struct {
	limit int
	read  int
}

func (r *flakyReader) Read(p []byte) (int, error) {
	if r.read >= r.limit {
		return 0, errors.New("disk died")
	}
	n := min(len(p), r.limit-r.read)
	clear(p[:n])
	r.read += n
	return n, nil
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

func TestServeFile(t *testing.T) {
	id := uuid.NewString()

	t.Run("inline stream", func(t *testing.T) {
		body := &trackedBody{Reader: strings.NewReader("%PDF-1.7 content")}
		mockSvc := new(serviceMocks.MockDeliveryService)
		mockSvc.On("Open", mock.Anything, id, "tok", service.DispositionInline).Return(&service.Delivery{
			DocumentID:  id,
			Body:        body,
			Size:        16,
			ContentType: "application/pdf",
			Filename:    "report.pdf",
			Disposition: service.DispositionInline,
		}, nil)

		app := newApp()
		app.Get("/documents/:id/file", ServeFile(mockSvc, service.DispositionInline, nil))

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/documents/"+id+"/file?token=tok", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
		assert.Equal(t, `inline; filename="report.pdf"`, resp.Header.Get("Content-Disposition"))

		raw, _ := io.ReadAll(resp.Body)
		assert.Equal(t, "%PDF-1.7 content", string(raw))
		assert.Equal(t, int32(1), body.closed.Load())
	})

	t.Run("attachment of an empty file", func(t *testing.T) {
		body := &trackedBody{Reader: strings.NewReader("")}
		mockSvc := new(serviceMocks.MockDeliveryService)
		mockSvc.On("Open", mock.Anything, id, "tok", service.DispositionAttachment).Return(&service.Delivery{
			DocumentID:  id,
			Body:        body,
			Size:        0,
			ContentType: "application/octet-stream",
			Filename:    "notes.txt",
			Disposition: service.DispositionAttachment,
		}, nil)

		app := newApp()
		app.Get("/documents/:id/download", ServeFile(mockSvc, service.DispositionAttachment, nil))

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/documents/"+id+"/download?token=tok", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, `attachment; filename="notes.txt"`, resp.Header.Get("Content-Disposition"))
	})

	t.Run("read failure before headers", func(t *testing.T) {
		body := &trackedBody{Reader: failingReader{}}
		mockSvc := new(serviceMocks.MockDeliveryService)
		mockSvc.On("Open", mock.Anything, id, "tok", service.DispositionInline).Return(&service.Delivery{
			DocumentID: id, Body: body, Size: 10, ContentType: "application/pdf", Filename: "a.pdf",
			Disposition: service.DispositionInline,
		}, nil)

		app := newApp()
		app.Get("/documents/:id/file", ServeFile(mockSvc, service.DispositionInline, nil))

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/documents/"+id+"/file?token=tok", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.Equal(t, "INTERNAL_ERROR", decodeError(t, resp.Body).Error.Code)
		assert.Equal(t, int32(1), body.closed.Load())
	})

	t.Run("read failure after headers", func(t *testing.T) {
		const total = 200 * 1024
		body := &trackedBody{Reader: &flakyReader{limit: 100 * 1024}}
		mockSvc := new(serviceMocks.MockDeliveryService)
		mockSvc.On("Open", mock.Anything, id, "tok", service.DispositionInline).Return(&service.Delivery{
			DocumentID: id, Body: body, Size: total, ContentType: "application/pdf", Filename: "a.pdf",
			Disposition: service.DispositionInline,
		}, nil)

		app := newApp()
		app.Get("/documents/:id/file", ServeFile(mockSvc, service.DispositionInline, nil))

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/documents/"+id+"/file?token=tok", nil), -1)
		if err == nil {
			raw, readErr := io.ReadAll(resp.Body)
			assert.True(t, readErr != nil || len(raw) < total, "truncated stream must not look complete")
		}
		assert.Eventually(t, func() bool { return body.closed.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("client disconnect mid transfer", func(t *testing.T) {
		body := &trackedBody{Reader: io.LimitReader(zeroReader{}, 1<<30)}
		mockSvc := new(serviceMocks.MockDeliveryService)
		mockSvc.On("Open", mock.Anything, id, "tok", service.DispositionAttachment).Return(&service.Delivery{
			DocumentID: id, Body: body, Size: 1 << 30, ContentType: "application/octet-stream", Filename: "big.bin",
			Disposition: service.DispositionAttachment,
		}, nil)

		app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(), DisableStartupMessage: true})
		app.Get("/documents/:id/download", ServeFile(mockSvc, service.DispositionAttachment, nil))

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		go func() { _ = app.Listener(ln) }()
		t.Cleanup(func() { _ = app.Shutdown() })

		conn, err := net.Dial("tcp", ln.Addr().String())
		require.NoError(t, err)
		_, err = fmt.Fprintf(conn, "GET /documents/%s/download?token=tok HTTP/1.1\r\nHost: vault.test\r\n\r\n", id)
		require.NoError(t, err)

		buf := make([]byte, 64*1024)
		_, err = io.ReadFull(conn, buf)
		require.NoError(t, err)
		assert.Contains(t, string(buf[:32]), "HTTP/1.1 200")
		require.NoError(t, conn.Close())

		assert.Eventually(t, func() bool { return body.closed.Load() == 1 }, 5*time.Second, 20*time.Millisecond)
	})

	errorCases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid token", service.ErrInvalidToken, http.StatusForbidden, "FORBIDDEN"},
		{"blob missing", service.ErrBlobMissing, http.StatusNotFound, "NOT_FOUND"},
		{"storage down", fmt.Errorf("%w: stat: timeout", service.ErrStorage), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range errorCases {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := new(serviceMocks.MockDeliveryService)
			mockSvc.On("Open", mock.Anything, id, "tok", service.DispositionInline).Return(nil, tt.err)

			app := newApp()
			app.Get("/documents/:id/file", ServeFile(mockSvc, service.DispositionInline, nil))

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/documents/"+id+"/file?token=tok", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantCode, decodeError(t, resp.Body).Error.Code)
		})
	}
}

func TestTransitions(t *testing.T) {
	id := uuid.NewString()
	validator := model.Principal{UserID: "u2", Role: model.RoleValidator, CompanyID: "c1"}

	t.Run("approve", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockDocumentService)
		mockSvc.On("Approve", mock.Anything, validator, id).Return(&model.Document{
			ID: id, Status: model.StatusApproved, ApprovedBy: &model.UserRef{ID: "u2"},
		}, nil)

		app := newApp()
		app.Patch("/documents/:id/approve", withPrincipal(validator), Approve(mockSvc))

		resp, err := app.Test(httptest.NewRequest(http.MethodPatch, "/documents/"+id+"/approve", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var doc model.Document
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
		assert.Equal(t, model.StatusApproved, doc.Status)
	})

	t.Run("reject conflict in strict mode", func(t *testing.T) {
		mockSvc := new(serviceMocks.MockDocumentService)
		mockSvc.On("Reject", mock.Anything, validator, id).
			Return(nil, fmt.Errorf("%w: document is already approved", service.ErrConflict))

		app := newApp()
		app.Patch("/documents/:id/reject", withPrincipal(validator), Reject(mockSvc))

		resp, err := app.Test(httptest.NewRequest(http.MethodPatch, "/documents/"+id+"/reject", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "CONFLICT", decodeError(t, resp.Body).Error.Code)
	})
}

func TestRouting(t *testing.T) {
	id := uuid.NewString()
	docSvc := new(serviceMocks.MockDocumentService)
	delivery := new(serviceMocks.MockDeliveryService)
	delivery.On("Open", mock.Anything, id, "", service.DispositionInline).Return(nil, service.ErrInvalidToken)

	viewer := model.Principal{UserID: "u3", Role: model.RoleViewer, CompanyID: "c1", DepartmentIDs: []int64{10}}

	newRouted := func(auth fiber.Handler) *fiber.App {
		app := newApp()
		RegisterRoutes(app, nil, Deps{Documents: docSvc, Delivery: delivery, Auth: auth})
		return app
	}

	t.Run("not found route", func(t *testing.T) {
		resp, err := newRouted(nil).Test(httptest.NewRequest(http.MethodGet, "/non-existent", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", decodeError(t, resp.Body).Error.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		resp, err := newRouted(nil).Test(httptest.NewRequest(http.MethodPost, "/health", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		assert.Equal(t, "METHOD_NOT_ALLOWED", decodeError(t, resp.Body).Error.Code)
	})

	t.Run("bearer routes need auth", func(t *testing.T) {
		resp, err := newRouted(nil).Test(httptest.NewRequest(http.MethodGet, "/documents/"+id, nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "UNAUTHORIZED", decodeError(t, resp.Body).Error.Code)
	})

	t.Run("file route is token authenticated only", func(t *testing.T) {
		resp, err := newRouted(nil).Test(httptest.NewRequest(http.MethodGet, "/documents/"+id+"/file", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	})

	t.Run("viewer cannot approve", func(t *testing.T) {
		resp, err := newRouted(withPrincipal(viewer)).Test(httptest.NewRequest(http.MethodPatch, "/documents/"+id+"/approve", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		docSvc.AssertNotCalled(t, "Approve", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("viewer cannot upload", func(t *testing.T) {
		body, contentType := multipartBody(t, map[string]string{"categoryIds": "[1]"}, "a.pdf", "x")
		req := httptest.NewRequest(http.MethodPost, "/documents/upload", body)
		req.Header.Set("Content-Type", contentType)

		resp, err := newRouted(withPrincipal(viewer)).Test(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})
}

func TestParseIDList(t *testing.T) {
	tests := []struct {
		name    string
		values  []string
		want    []int64
		wantErr bool
	}{
		{name: "json numbers", values: []string{"[1,2,3]"}, want: []int64{1, 2, 3}},
		{name: "json strings", values: []string{`["4","5"]`}, want: []int64{4, 5}},
		{name: "comma list", values: []string{"6, 7"}, want: []int64{6, 7}},
		{name: "repeated field", values: []string{"8", "9"}, want: []int64{8, 9}},
		{name: "empty", values: []string{""}, want: nil},
		{name: "empty array", values: []string{"[]"}, want: nil},
		{name: "fraction", values: []string{"[1.5]"}, wantErr: true},
		{name: "garbage", values: []string{"abc"}, wantErr: true},
		{name: "broken json", values: []string{"[1,"}, wantErr: true},
		{name: "object in array", values: []string{`[{"id":1}]`}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseIDList("categoryIds", tt.values)
			if tt.wantErr {
				assert.ErrorIs(t, err, service.ErrInvalidInput)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
