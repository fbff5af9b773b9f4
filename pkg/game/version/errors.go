package version

import "errors"

var (
	// ErrMissingArtifact is returned when a version has no client download.
	ErrMissingArtifact = errors.New("missing client artifact")
	// ErrMalformedDocument is returned when a required field is absent after
	// every fallback was tried.
	ErrMalformedDocument = errors.New("malformed version document")
)
