// Package model contains domain models shared by the storage, repository,
// service and HTTP layers. Keep it free of persistence and transport details.
package model

import "errors"

// ErrValidation marks a missing or invalid required field.
var ErrValidation = errors.New("validation failed")
