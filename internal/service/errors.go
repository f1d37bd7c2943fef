package service

import (
	"errors"
	"fmt"
)

// Error kinds returned by the services. Handlers map them to HTTP statuses with errors.Is.
var (
	ErrNotFound     = errors.New("document not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrStorage      = errors.New("storage failure")
)

var (
	ErrIDRequired = fmt.Errorf("%w: id is required", ErrInvalidInput)
	ErrReaderNil  = fmt.Errorf("%w: reader is nil", ErrInvalidInput)

	// ErrBlobMissing means the metadata exists but its file does not: storage corruption, not a client error.
	ErrBlobMissing = fmt.Errorf("%w: file missing from storage", ErrNotFound)

	// ErrInvalidToken covers unknown, expired and mismatched tokens alike.
	ErrInvalidToken = fmt.Errorf("%w: invalid or expired token", ErrForbidden)
)
