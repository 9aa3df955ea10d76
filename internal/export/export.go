// Package export bundles a user's documents for download.
//
// A batch export first tries to build a single zip archive. When archive
// packaging is unavailable it falls back to handing out one transfer per
// file, throttled so the caller's download manager is not flooded.
package export

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"docvault/internal/service"
)

// ErrArchiveUnavailable means the archive could not be built at all, as
// opposed to individual files failing. It triggers the sequential fallback.
var ErrArchiveUnavailable = errors.New("archive packaging unavailable")

// Mode names the strategy that produced a Result.
type Mode string

const (
	ModeArchive    Mode = "archive"
	ModeSequential Mode = "sequential"
	// ModeEmpty is reported when the owner has nothing to export.
	ModeEmpty Mode = "empty"
)

// Result summarizes a batch export. Every document is counted exactly once
// in SucceededCount or FailedCount. Archive is set only in archive mode and
// only when at least one file made it in.
type Result struct {
	Mode           Mode     `json:"mode"`
	SucceededCount int      `json:"succeeded_count"`
	FailedCount    int      `json:"failed_count"`
	Errors         []string `json:"errors"`
	Archive        []byte   `json:"-"`
}

// Total is the number of documents attempted.
func (r *Result) Total() int { return r.SucceededCount + r.FailedCount }

// Exporter is what the HTTP layer depends on.
type Exporter interface {
	BatchExport(ctx context.Context, ownerID string, documentIDs []string, t Transferer) (*Result, error)
}

// DocumentSource is the slice of the document service an export needs.
type DocumentSource interface {
	List(ctx context.Context, ownerID string, q service.ListQuery) (*service.DocumentListResult, error)
	IssueDownloadLink(ctx context.Context, id, ownerID string, opt service.LinkOptions) (*service.DownloadLink, error)
}

var (
	exportRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docvault_export_runs_total",
		Help: "Batch exports by the mode that completed them.",
	}, []string{"mode"})

	exportFiles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docvault_export_files_total",
		Help: "Files processed by batch exports, by mode and outcome.",
	}, []string{"mode", "status"})
)
