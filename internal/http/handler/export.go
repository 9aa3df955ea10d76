package handler

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"docvault/internal/export"
	"docvault/internal/http/middleware"
)

type exportRequest struct {
	DocumentIDs []string `json:"document_ids"`
}

// exportSummary is returned when no archive could be offered.
type exportSummary struct {
	Mode           export.Mode            `json:"mode"`
	SucceededCount int                    `json:"succeeded_count"`
	FailedCount    int                    `json:"failed_count"`
	Errors         []string               `json:"errors"`
	Links          []export.ScheduledLink `json:"links"`
}

const (
	headerExportSucceeded = "X-Export-Succeeded"
	headerExportFailed    = "X-Export-Failed"
)

// ExportDocuments bundles the caller's documents. With an archive the response
// is the zip itself; otherwise it lists one signed link per exported file,
// each with the offset after which the client should start it.
//
// @Summary Export documents
// @Tags documents
// @Accept json
// @Produce application/zip,json
// @Param X-Owner-ID header string true "Caller identity"
// @Param body body exportRequest false "Documents to export; all when empty"
// @Success 200 {object} exportSummary
// @Failure 400 {object} errorPayload
// @Router /documents/export [post]
func ExportDocuments(exp export.Exporter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req exportRequest
		if len(c.Body()) > 0 {
			if err := c.BodyParser(&req); err != nil {
				return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
			}
		}

		links := &export.LinkCollector{}
		res, err := exp.BatchExport(c.UserContext(), middleware.OwnerFromCtx(c), req.DocumentIDs, links)
		if err != nil {
			return writeServiceError(c, err)
		}

		if res.Archive != nil {
			c.Set(headerExportSucceeded, strconv.Itoa(res.SucceededCount))
			c.Set(headerExportFailed, strconv.Itoa(res.FailedCount))
			c.Set(fiber.HeaderContentType, "application/zip")
			c.Attachment(fmt.Sprintf("documents-%s.zip", time.Now().UTC().Format("20060102-150405")))
			return c.Send(res.Archive)
		}

		return c.JSON(exportSummary{
			Mode:           res.Mode,
			SucceededCount: res.SucceededCount,
			FailedCount:    res.FailedCount,
			Errors:         res.Errors,
			Links:          links.Links(),
		})
	}
}
