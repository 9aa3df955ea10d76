package handler

import (
	"github.com/gofiber/fiber/v2"

	"docvault/internal/export"
	"docvault/internal/http/middleware"
	"docvault/internal/service"
)

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Every /documents route requires the X-Owner-ID caller identity.
func RegisterRoutes(app *fiber.App, db Pinger, docSvc service.DocumentService, exp export.Exporter) {
	app.Get("/health", HealthCheck(db))
	app.Get("/healthz", LivenessProbe())

	docs := app.Group("/documents", middleware.Owner())
	docs.Get("/", ListDocuments(docSvc))
	docs.Post("/", UploadDocument(docSvc))
	docs.Post("/export", ExportDocuments(exp))
	docs.Get("/:id/download", GetDownloadLink(docSvc))
	docs.Delete("/:id", DeleteDocument(docSvc))
}
