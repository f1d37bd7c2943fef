package handler

import (
	"context"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"

	"docvault/internal/model"
	"docvault/internal/service"
)

type listResponse[T any] struct {
	Data []T `json:"data"`
}

type logViewResponse struct {
	Success bool                `json:"success"`
	Log     *model.DocumentView `json:"log"`
}

// ListDocuments lists the documents of the caller's company the caller may see.
//
// @Summary      List documents
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        status        query  string  false  "pending | approved | rejected"
// @Param        departmentId  query  int     false  "department owning a category"
// @Param        title         query  string  false  "case-insensitive title substring"
// @Param        page          query  int     false  "page, 1-based"  default(1)
// @Param        limit         query  int     false  "page size"      default(10)
// @Success      200  {object}  service.DocumentListResult
// @Failure      400  {object}  errorPayload
// @Failure      403  {object}  errorPayload
// @Router       /documents [get]
func ListDocuments(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := principal(c)
		if !ok {
			return unauthenticated(c)
		}

		var q service.ListQuery
		page, err := queryPage(c, "page")
		if err != nil {
			return writeServiceError(c, err)
		}
		limit, err := queryPage(c, "limit")
		if err != nil {
			return writeServiceError(c, err)
		}
		dept, err := queryInt(c, "departmentId")
		if err != nil {
			return writeServiceError(c, err)
		}
		q.Page, q.Limit, q.DepartmentID = page, limit, dept
		q.Status = c.Query("status")
		q.Title = c.Query("title")

		res, err := svc.List(c.UserContext(), p, q)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// MyUploads lists documents uploaded by the caller.
//
// @Summary   Documents uploaded by the caller
// @Tags      documents
// @Security  BearerAuth
// @Produce   json
// @Success   200  {object}  listResponse[model.Document]
// @Router    /documents/my-uploads [get]
func MyUploads(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := principal(c)
		if !ok {
			return unauthenticated(c)
		}
		docs, err := svc.ListMine(c.UserContext(), p)
		if err != nil {
			return writeServiceError(c, err)
		}
		if docs == nil {
			docs = []model.Document{}
		}
		return c.JSON(listResponse[model.Document]{Data: docs})
	}
}

// UploadDocument creates a document from a multipart upload.
//
// @Summary      Upload a document
// @Tags         documents
// @Security     BearerAuth
// @Accept       mpfd
// @Produce      json
// @Param        file                     formData  file    true   "document file"
// @Param        categoryIds              formData  string  true   "JSON array of category ids"
// @Param        restrictedDepartmentIds  formData  string  false  "JSON array of department ids"
// @Param        description              formData  string  false  "free text"
// @Success      201  {object}  model.Document
// @Failure      400  {object}  errorPayload
// @Failure      403  {object}  errorPayload
// @Router       /documents/upload [post]
func UploadDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := principal(c)
		if !ok {
			return unauthenticated(c)
		}

		form, err := c.MultipartForm()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "file is required")
		}
		fh := firstFile(form, "file")
		if fh == nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "file is required")
		}

		categoryIDs, err := parseIDList("categoryIds", form.Value["categoryIds"])
		if err != nil {
			return writeServiceError(c, err)
		}
		restrictedIDs, err := parseIDList("restrictedDepartmentIds", form.Value["restrictedDepartmentIds"])
		if err != nil {
			return writeServiceError(c, err)
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "cannot open uploaded file")
		}
		defer f.Close()

		in := service.UploadInput{
			Reader:                  f,
			Filename:                fh.Filename,
			ContentType:             fh.Header.Get("Content-Type"),
			Size:                    fh.Size,
			CategoryIDs:             categoryIDs,
			RestrictedDepartmentIDs: restrictedIDs,
		}
		if vals := form.Value["description"]; len(vals) > 0 && vals[0] != "" {
			desc := vals[0]
			in.Description = &desc
		}

		doc, err := svc.Upload(c.UserContext(), p, in)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(doc)
	}
}

// GetDocument returns the document detail with its versions.
//
// @Summary      Document detail
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "document id"
// @Success      200  {object}  model.Document
// @Failure      403  {object}  errorPayload
// @Failure      404  {object}  errorPayload
// @Router       /documents/{id} [get]
func GetDocument(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := principal(c)
		if !ok {
			return unauthenticated(c)
		}
		id, ok := documentID(c)
		if !ok {
			return invalidID(c)
		}
		doc, err := svc.Get(c.UserContext(), p, id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(doc)
	}
}

// ListVersions returns the version chain, newest first.
//
// @Summary   Document versions
// @Tags      documents
// @Security  BearerAuth
// @Produce   json
// @Param     id   path      string  true  "document id"
// @Success   200  {object}  listResponse[model.DocumentVersion]
// @Router    /documents/{id}/versions [get]
func ListVersions(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := principal(c)
		if !ok {
			return unauthenticated(c)
		}
		id, ok := documentID(c)
		if !ok {
			return invalidID(c)
		}
		versions, err := svc.Versions(c.UserContext(), p, id)
		if err != nil {
			return writeServiceError(c, err)
		}
		if versions == nil {
			versions = []model.DocumentVersion{}
		}
		return c.JSON(listResponse[model.DocumentVersion]{Data: versions})
	}
}

// AddVersion uploads a new file revision.
//
// @Summary   Add a version
// @Tags      documents
// @Security  BearerAuth
// @Accept    mpfd
// @Produce   json
// @Param     id    path      string  true  "document id"
// @Param     file  formData  file    true  "new file"
// @Success   201   {object}  model.DocumentVersion
// @Router    /documents/{id}/versions [post]
func AddVersion(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := principal(c)
		if !ok {
			return unauthenticated(c)
		}
		id, ok := documentID(c)
		if !ok {
			return invalidID(c)
		}
		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "file is required")
		}
		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_INPUT", "cannot open uploaded file")
		}
		defer f.Close()

		v, err := svc.AddVersion(c.UserContext(), p, id, service.UploadInput{
			Reader:      f,
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
		})
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(v)
	}
}

// LogView records that the caller opened the document. A failed write still
// answers 200, with success false and a null log.
//
// @Summary   Record a view
// @Tags      documents
// @Security  BearerAuth
// @Produce   json
// @Param     id   path      string  true  "document id"
// @Success   200  {object}  logViewResponse
// @Router    /documents/{id}/log-view [post]
func LogView(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := principal(c)
		if !ok {
			return unauthenticated(c)
		}
		id, ok := documentID(c)
		if !ok {
			return invalidID(c)
		}
		view, err := svc.LogView(c.UserContext(), p, id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(logViewResponse{Success: view != nil, Log: view})
	}
}

// SignedURL issues a one-time link to the current file.
//
// @Summary   Issue a signed URL
// @Tags      delivery
// @Security  BearerAuth
// @Produce   json
// @Param     id   path      string  true  "document id"
// @Success   200  {object}  service.SignedURL
// @Failure   403  {object}  errorPayload
// @Router    /documents/{id}/signed-url [get]
func SignedURL(svc service.DeliveryService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := principal(c)
		if !ok {
			return unauthenticated(c)
		}
		id, ok := documentID(c)
		if !ok {
			return invalidID(c)
		}
		signed, err := svc.IssueSignedURL(c.UserContext(), p, id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(signed)
	}
}

// Approve moves a document to approved.
//
// @Summary   Approve a document
// @Tags      workflow
// @Security  BearerAuth
// @Produce   json
// @Param     id   path      string  true  "document id"
// @Success   200  {object}  model.Document
// @Failure   409  {object}  errorPayload
// @Router    /documents/{id}/approve [patch]
func Approve(svc service.DocumentService) fiber.Handler {
	return transition(svc.Approve)
}

// Reject moves a document to rejected.
//
// @Summary   Reject a document
// @Tags      workflow
// @Security  BearerAuth
// @Produce   json
// @Param     id   path      string  true  "document id"
// @Success   200  {object}  model.Document
// @Failure   409  {object}  errorPayload
// @Router    /documents/{id}/reject [patch]
func Reject(svc service.DocumentService) fiber.Handler {
	return transition(svc.Reject)
}

type transitionFunc = func(ctx context.Context, p model.Principal, id string) (*model.Document, error)

func transition(fn transitionFunc) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := principal(c)
		if !ok {
			return unauthenticated(c)
		}
		id, ok := documentID(c)
		if !ok {
			return invalidID(c)
		}
		doc, err := fn(c.UserContext(), p, id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(doc)
	}
}

func firstFile(form *multipart.Form, field string) *multipart.FileHeader {
	if form == nil {
		return nil
	}
	if files := form.File[field]; len(files) > 0 {
		return files[0]
	}
	return nil
}
