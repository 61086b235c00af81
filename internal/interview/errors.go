package interview

import "github.com/rotisserie/eris"

var (
	// ErrMissingCatalog is returned when a session has no usable issue catalog.
	ErrMissingCatalog = eris.New("interview: session has no issue catalog")
	// ErrSessionNotFound is returned for an unknown session token.
	ErrSessionNotFound = eris.New("interview: session not found")
	// ErrEmptyMessage is returned when the participant message is blank.
	ErrEmptyMessage = eris.New("interview: message is empty")

	errEmptyReply      = eris.New("interview: reasoning service returned no text")
	errEmptyExtraction = eris.New("interview: extraction returned no text")
)
