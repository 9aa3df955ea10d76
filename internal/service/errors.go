package service

import (
	"errors"

	"docvault/internal/model"
	"docvault/internal/repository"
)

// Error taxonomy surfaced to the HTTP layer. Storage errors wrap the backend
// cause, so both errors.Is(err, ErrStorageWrite) and the cause are inspectable.
var (
	ErrValidation    = model.ErrValidation
	ErrNotFound      = repository.ErrNotFound
	ErrStorageWrite  = errors.New("storage write failed")
	ErrStorageRead   = errors.New("storage read failed")
	ErrStorageDelete = errors.New("storage delete failed")
)
