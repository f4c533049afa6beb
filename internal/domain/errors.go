package domain

import "errors"

var (
	// ErrSourceUnavailable: the connector exhausted its retries. Halts that
	// bank's run; other banks are unaffected.
	ErrSourceUnavailable = errors.New("review source unavailable")

	// ErrIncomplete: the quality gate failed and the batch was not written.
	// Requires operator action (force or more scraping), never auto-retried.
	ErrIncomplete = errors.New("batch incomplete")

	// ErrStorageUnavailable: the sink could not durably write; the batch was
	// rolled back.
	ErrStorageUnavailable = errors.New("storage unavailable")

	ErrUnknownBank = errors.New("unknown bank")

	// ErrNotFound is returned by read paths for absent rows.
	ErrNotFound = errors.New("not found")
)
