package errors

import "errors"

// Resync errors.
var (
	// ErrCancelled marks a cooperative cancellation requested by the user.
	// Rollback paths check for it with errors.Is to report "cancelled"
	// rather than "errored".
	ErrCancelled        = errors.New("operation cancelled by user")
	ErrResyncInProgress = errors.New("a resync is already in progress")
	ErrNoRootFolder     = errors.New("no root folder found")
)

// Mutation errors.
var (
	ErrInvalidState = errors.New("invalid local state")
	ErrNodeNotFound = errors.New("node not found")
	ErrCrossVolume  = errors.New("the node and the new parent must be inside the same volume")
)

// Transport errors.
var (
	ErrAPIRequest  = errors.New("API request failed")
	ErrAPIResponse = errors.New("unexpected API response")
)
