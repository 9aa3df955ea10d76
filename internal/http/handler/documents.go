package handler

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"docvault/internal/http/middleware"
	"docvault/internal/service"
)

// UploadDocument stores one file from a multipart form.
//
// @Summary Upload a document
// @Tags documents
// @Accept multipart/form-data
// @Produce json
// @Param X-Owner-ID header string true "Caller identity"
// @Param file formData file true "Document file"
// @Param title formData string false "Title, defaults to the file name"
// @Param description formData string false "Description"
// @Param tags formData string false "Comma separated tags"
// @Param folder_name formData string false "Folder"
// @Success 201 {object} model.Document
// @Failure 400 {object} errorPayload
// @Failure 502 {object} errorPayload
// @Router /documents [post]
func UploadDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		fh, err := c.FormFile("file")
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_REQUIRED", "file is required")
		}

		f, err := fh.Open()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
		}
		defer f.Close()

		content, err := io.ReadAll(f)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot read uploaded file")
		}

		// Multipart writers default to octet-stream; let the service derive a better type.
		ct := fh.Header.Get("Content-Type")
		if ct == "application/octet-stream" {
			ct = ""
		}

		doc, err := docSvc.Upload(c.UserContext(), service.UploadInput{
			OwnerID:          middleware.OwnerFromCtx(c),
			Content:          content,
			OriginalFileName: fh.Filename,
			MimeType:         ct,
			Title:            c.FormValue("title"),
			Description:      c.FormValue("description"),
			Tags:             splitTags(c.FormValue("tags")),
			FolderName:       c.FormValue("folder_name"),
		})
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(doc)
	}
}

func splitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// ListDocuments returns a page of the caller's active documents, newest first.
//
// @Summary List documents
// @Tags documents
// @Produce json
// @Param X-Owner-ID header string true "Caller identity"
// @Param category query string false "transcript, certificate, graduation, award or other"
// @Param date_from query string false "Inclusive lower bound (RFC3339 or YYYY-MM-DD)"
// @Param date_to query string false "Exclusive upper bound (RFC3339 or YYYY-MM-DD)"
// @Param page query int false "1-based page" default(1)
// @Param limit query int false "Page size" default(10)
// @Success 200 {object} service.DocumentListResult
// @Failure 400 {object} errorPayload
// @Router /documents [get]
func ListDocuments(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		page, err := strconv.Atoi(c.Query("page", "1"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_PAGE", "invalid page")
		}
		limit, err := strconv.Atoi(c.Query("limit", "10"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_LIMIT", "invalid limit")
		}
		from, err := parseDate(c.Query("date_from"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_DATE", "invalid date_from")
		}
		to, err := parseDate(c.Query("date_to"))
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_DATE", "invalid date_to")
		}

		res, err := docSvc.List(c.UserContext(), middleware.OwnerFromCtx(c), service.ListQuery{
			Category: c.Query("category"),
			DateFrom: from,
			DateTo:   to,
			Page:     page,
			Limit:    limit,
		})
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	}
}

// parseDate accepts RFC3339 timestamps and plain dates (UTC midnight).
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetDownloadLink issues a signed URL for one document.
//
// @Summary Get a download link
// @Tags documents
// @Produce json
// @Param X-Owner-ID header string true "Caller identity"
// @Param id path string true "Document ID"
// @Success 200 {object} service.DownloadLink
// @Failure 404 {object} errorPayload
// @Failure 502 {object} errorPayload
// @Router /documents/{id}/download [get]
func GetDownloadLink(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		link, err := docSvc.GetDownloadLink(c.UserContext(), c.Params("id"), middleware.OwnerFromCtx(c))
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(link)
	}
}

// DeleteDocument soft-deletes a document.
//
// @Summary Delete a document
// @Tags documents
// @Param X-Owner-ID header string true "Caller identity"
// @Param id path string true "Document ID"
// @Success 204
// @Failure 404 {object} errorPayload
// @Router /documents/{id} [delete]
func DeleteDocument(docSvc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := docSvc.Delete(c.UserContext(), c.Params("id"), middleware.OwnerFromCtx(c)); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
