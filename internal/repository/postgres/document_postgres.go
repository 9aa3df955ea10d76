package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"docvault/internal/model"
	"docvault/internal/repository"
)

// PostgreSQL error codes the repository translates.
const (
	codeNotNullViolation     = "23502"
	codeCheckViolation       = "23514"
	codeInvalidTextRepresent = "22P02"
)

const documentColumns = `id, owner_id, title, description, folder_name, tags, original_file_name, storage_key,
		size_bytes, mime_type, category, content_digest, status, download_count, created_at, updated_at`

// DocumentPostgres is a PostgreSQL implementation of repository.DocumentRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type DocumentPostgres struct {
	db *sql.DB
}

// NewDocumentPostgres creates a new DocumentPostgres repository.
func NewDocumentPostgres(db *sql.DB) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

var _ repository.DocumentRepository = (*DocumentPostgres)(nil)

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (*model.Document, error) {
	var (
		d        model.Document
		tags     []byte
		category string
		status   string
	)
	if err := row.Scan(
		&d.ID,
		&d.OwnerID,
		&d.Title,
		&d.Description,
		&d.FolderName,
		&tags,
		&d.OriginalFileName,
		&d.StorageKey,
		&d.SizeBytes,
		&d.MimeType,
		&category,
		&d.ContentDigest,
		&status,
		&d.DownloadCount,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		return nil, err
	}
	d.Category = model.Category(category)
	d.Status = model.Status(status)
	d.Tags = []string{}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &d.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}
	return &d, nil
}

// mapError translates driver errors into repository sentinels.
func mapError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeNotNullViolation, codeCheckViolation:
			return fmt.Errorf("%w: %s", model.ErrValidation, pgErr.Message)
		case codeInvalidTextRepresent:
			// A malformed UUID can never match a row.
			return repository.ErrNotFound
		}
	}
	return err
}

// Create inserts a new document row and returns the stored record.
func (r *DocumentPostgres) Create(ctx context.Context, doc *model.Document) (*model.Document, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", model.ErrValidation)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	tags := doc.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("encode tags: %w", err)
	}

	q := `
		INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING ` + documentColumns
	row := r.db.QueryRowContext(ctx, q,
		doc.ID,
		doc.OwnerID,
		doc.Title,
		doc.Description,
		doc.FolderName,
		string(tagsJSON),
		doc.OriginalFileName,
		doc.StorageKey,
		doc.SizeBytes,
		doc.MimeType,
		string(doc.Category),
		doc.ContentDigest,
		string(doc.Status),
		doc.DownloadCount,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	out, err := scanDocument(row)
	if err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

// GetByID fetches a single active document owned by ownerID.
func (r *DocumentPostgres) GetByID(ctx context.Context, id, ownerID string) (*model.Document, error) {
	q := `
		SELECT ` + documentColumns + `
		FROM documents
		WHERE id = $1 AND owner_id = $2 AND status = 'active'
	`
	d, err := scanDocument(r.db.QueryRowContext(ctx, q, id, ownerID))
	if err != nil {
		return nil, mapError(err)
	}
	return d, nil
}

// List returns documents using LIMIT/OFFSET pagination and a total count.
func (r *DocumentPostgres) List(ctx context.Context, ownerID string, f repository.ListFilter, pq repository.PageQuery) (*repository.PageResult[model.Document], error) {
	where := []string{"owner_id = $1", "status = 'active'"}
	args := []any{ownerID}
	if f.Category != "" {
		args = append(args, string(f.Category))
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.DateFrom != nil {
		args = append(args, *f.DateFrom)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if f.DateTo != nil {
		args = append(args, *f.DateTo)
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, err
	}

	qList := fmt.Sprintf(`
		SELECT %s
		FROM documents
		WHERE %s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d OFFSET $%d
	`, documentColumns, cond, len(args)+1, len(args)+2)
	rows, err := r.db.QueryContext(ctx, qList, append(args, pq.Limit, pq.Offset)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Document, 0)
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Document]{
		Items: items,
		Total: total,
	}, nil
}

// SoftDelete flips an active document to deleted.
func (r *DocumentPostgres) SoftDelete(ctx context.Context, id, ownerID string) error {
	const q = `
		UPDATE documents SET status = 'deleted', updated_at = now()
		WHERE id = $1 AND owner_id = $2 AND status = 'active'
	`
	res, err := r.db.ExecContext(ctx, q, id, ownerID)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// IncrementDownloadCount bumps the counter of an active document.
func (r *DocumentPostgres) IncrementDownloadCount(ctx context.Context, id string) error {
	const q = `
		UPDATE documents SET download_count = download_count + 1, updated_at = now()
		WHERE id = $1 AND status = 'active'
	`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return mapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
