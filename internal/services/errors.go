package services

import "errors"

// Analysis service errors
var (
	// Upload errors
	ErrEmptyUpload = errors.New("uploaded file is empty")
	ErrNoHeaderRow = errors.New("no header row found")

	// General errors
	ErrServiceUnavailable = errors.New("service temporarily unavailable")
)
