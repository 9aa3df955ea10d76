package model

import (
	"fmt"
	"strings"
	"time"
)

// Category is the document classification derived from the uploaded file name.
type Category string

const (
	CategoryTranscript  Category = "transcript"
	CategoryCertificate Category = "certificate"
	CategoryGraduation  Category = "graduation"
	CategoryAward       Category = "award"
	CategoryOther       Category = "other"
)

// ParseCategory accepts the lowercase category names. An unknown name is a
// validation error.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: unsupported category %q", ErrValidation, s)
	}
	return c, nil
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryTranscript, CategoryCertificate, CategoryGraduation, CategoryAward, CategoryOther:
		return true
	}
	return false
}

// Status is the lifecycle state of a Document. Deleted is terminal.
type Status string

const (
	StatusActive  Status = "active"
	StatusDeleted Status = "deleted"
)

// Document is a stored file owned by a single user.
// StorageKey is internal to the object store and never serialized to clients;
// OriginalFileName is what users see and what downloads are offered as.
type Document struct {
	ID               string    `json:"id"`
	OwnerID          string    `json:"owner_id"`
	Title            string    `json:"title"`
	Description      string    `json:"description,omitempty"`
	FolderName       string    `json:"folder_name,omitempty"`
	Tags             []string  `json:"tags"`
	OriginalFileName string    `json:"original_file_name"`
	StorageKey       string    `json:"-"`
	SizeBytes        int64     `json:"size_bytes"`
	MimeType         string    `json:"mime_type"`
	Category         Category  `json:"category"`
	ContentDigest    string    `json:"content_digest"`
	Status           Status    `json:"status"`
	DownloadCount    int64     `json:"download_count"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Validate checks the fields every persisted record must carry.
func (d *Document) Validate() error {
	var missing []string
	if d.ID == "" {
		missing = append(missing, "id")
	}
	if d.OwnerID == "" {
		missing = append(missing, "owner_id")
	}
	if strings.TrimSpace(d.Title) == "" {
		missing = append(missing, "title")
	}
	if d.OriginalFileName == "" {
		missing = append(missing, "original_file_name")
	}
	if d.StorageKey == "" {
		missing = append(missing, "storage_key")
	}
	if d.ContentDigest == "" {
		missing = append(missing, "content_digest")
	}
	if d.MimeType == "" {
		missing = append(missing, "mime_type")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrValidation, strings.Join(missing, ", "))
	}
	if d.SizeBytes < 0 {
		return fmt.Errorf("%w: negative size", ErrValidation)
	}
	if !d.Category.Valid() {
		return fmt.Errorf("%w: unsupported category %q", ErrValidation, d.Category)
	}
	if d.Status != StatusActive && d.Status != StatusDeleted {
		return fmt.Errorf("%w: unsupported status %q", ErrValidation, d.Status)
	}
	return nil
}
