package model

import "errors"

var (
	// ErrInvalidInput marks malformed or incomplete input rejected before any side effect.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks a referenced user, list or document that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotConfigured marks a missing credential or setting.
	ErrNotConfigured = errors.New("not configured")
)
