package model

import "errors"

var (
	// ErrArchiveUnreadable is returned when the mail archive cannot be read.
	ErrArchiveUnreadable = errors.New("archive unreadable")

	// ErrNoItems is returned when a run has nothing to process.
	ErrNoItems = errors.New("no items to process")

	// ErrMalformedResponse marks service output that could not be parsed
	// into the expected structure.
	ErrMalformedResponse = errors.New("malformed service response")
)
