package service

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the post service. Controllers translate these
// into HTTP statuses and app codes; none of them is ever folded into a
// success response.
var (
	// ErrPostNotFound signals an unknown post id.
	ErrPostNotFound = errors.New("post not found")
	// ErrMemberNotFound signals an unknown member id.
	ErrMemberNotFound = errors.New("member not found")
	// ErrUnauthorized signals that the authorization predicates denied the
	// operation for this actor.
	ErrUnauthorized = errors.New("operation not permitted")
	// ErrPostRemoved signals an operation against a soft-deleted post.
	// Removal is terminal, so the operation can never succeed.
	ErrPostRemoved = errors.New("post has been removed")
	// ErrInvalidTransition signals a lifecycle transition that does not
	// apply to the post's current state, such as restoring an active post.
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
	// ErrConflict signals that a conditional update lost a race against a
	// concurrent writer. Callers may retry; the service never retries.
	ErrConflict = errors.New("post was modified concurrently")
)

// ValidationError reports a missing or malformed required field. It is
// detected before any mutation, so a validation failure is side-effect free.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func missingField(field string) error {
	return &ValidationError{Field: field, Reason: "required"}
}
