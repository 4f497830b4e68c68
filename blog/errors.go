package blog

import "errors"

var (
	// ErrMalformedRequest is returned when a submitted post lacks a required
	// field or carries an unusable value.
	ErrMalformedRequest = errors.New("malformed request")

	// ErrIndexUnavailable is returned when the index document cannot be fetched.
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrIndexCorrupt is returned when the index document is not a JSON array of
	// post summaries.
	ErrIndexCorrupt = errors.New("index corrupt")

	// ErrIndexConflict is returned by Save when another writer saved the index
	// after it was loaded.
	ErrIndexConflict = errors.New("index changed since it was loaded")

	// ErrStorageWrite wraps backend failures on writes.
	ErrStorageWrite = errors.New("storage write failed")
)
