package util

import "errors"

// Sentinel errors for common failure modes
var (
	// ErrInvalidPath indicates an input path that is neither a file nor a directory
	ErrInvalidPath = errors.New("invalid input path")

	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrNotObject indicates a JSON document whose top level is not an object
	ErrNotObject = errors.New("record is not a JSON object")

	// ErrNarrowing indicates a migration would drop existing columns
	ErrNarrowing = errors.New("migration drops columns")

	// ErrSchemaOutdated indicates the canonical table lacks columns an operation needs
	ErrSchemaOutdated = errors.New("schema outdated, run migrate")

	// ErrInvalidMedia indicates a downloaded payload that is not the expected media type
	ErrInvalidMedia = errors.New("unexpected media content")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")
)
