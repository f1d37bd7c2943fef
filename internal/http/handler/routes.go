package handler

import (
	"database/sql"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"docvault/internal/http/middleware"
	"docvault/internal/model"
	"docvault/internal/service"
)

// Deps are the collaborators the HTTP routes need.
type Deps struct {
	Documents service.DocumentService
	Delivery  service.DeliveryService
	// Auth authenticates bearer requests and stores the principal. When nil
	// every authenticated route answers 401.
	Auth   fiber.Handler
	Logger *zap.Logger
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
func RegisterRoutes(app *fiber.App, db *sql.DB, d Deps) {
	auth := d.Auth
	if auth == nil {
		auth = func(*fiber.Ctx) error { return fiber.ErrUnauthorized }
	}
	reviewers := middleware.RequireRoles(model.RoleAdmin, model.RoleValidator)
	uploaders := middleware.RequireRoles(model.RoleAdmin, model.RoleValidator, model.RoleEditor)
	noStore := middleware.NoStore()

	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	docs := app.Group("/documents")

	// Token-authenticated; registered without the bearer middleware.
	docs.Get("/:id/file", noStore, ServeFile(d.Delivery, service.DispositionInline, d.Logger))
	docs.Get("/:id/download", noStore, ServeFile(d.Delivery, service.DispositionAttachment, d.Logger))

	docs.Get("/", auth, ListDocuments(d.Documents))
	docs.Get("/my-uploads", auth, MyUploads(d.Documents))
	docs.Post("/upload", auth, uploaders, UploadDocument(d.Documents))
	docs.Get("/:id", auth, GetDocument(d.Documents))
	docs.Get("/:id/versions", auth, ListVersions(d.Documents))
	docs.Post("/:id/versions", auth, uploaders, AddVersion(d.Documents))
	docs.Post("/:id/log-view", auth, LogView(d.Documents))
	docs.Get("/:id/signed-url", auth, noStore, SignedURL(d.Delivery))
	docs.Patch("/:id/approve", auth, reviewers, Approve(d.Documents))
	docs.Patch("/:id/reject", auth, reviewers, Reject(d.Documents))
}
