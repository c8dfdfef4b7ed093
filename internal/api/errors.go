package api

import (
	"errors"
	"fmt"
)

// API error codes the orchestration layers branch on.
const (
	// CodeItemOrParentDeleted means the item or its parent was already
	// deleted server-side. Trash and delete flows treat it as an implicit
	// success for local cleanup.
	CodeItemOrParentDeleted = 2501
)

// Error is a structured error returned by the Drive API.
type Error struct {
	Code    int    `json:"Code"`
	Message string `json:"Error"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Code, e.Message)
}

// ErrorCode extracts the API error code from err, or 0 when err does not
// wrap an API error.
func ErrorCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

// Err builds the error for a PartialFailure entry.
func (p PartialFailure) Err() error {
	return &Error{Code: p.Code, Message: p.Message}
}
