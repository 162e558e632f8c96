// Package services defines the business logic of the hub: the friend
// workflow, the conversation store, call signaling, and the user directory.
// This file centralizes service-level errors so that they are returned
// consistently by service methods and mapped uniformly by both transports.
//
// Every error a service returns carries a Kind. Translation into HTTP status
// codes or realtime failure frames is performed at the handler and session
// layers.
package services

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Kind classifies a service failure.
type Kind string

const (
	KindValidation Kind = "validation_error"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindStaleEvent Kind = "stale_event"
	KindStorage    Kind = "storage_error"
)

// Error is a classified service failure. Sentinels below are *Error values
// and are compared with errors.Is by identity.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Validation errors.
var (
	// ErrSelfReference is returned when both parties of an operation are the
	// same user.
	ErrSelfReference = &Error{Kind: KindValidation, Message: "from and to must be different users"}

	// ErrMissingUser is returned when a required user id is empty.
	ErrMissingUser = &Error{Kind: KindValidation, Message: "user id is required"}

	// ErrInvalidMessage is returned when a message's to/from are not the two
	// participants of the conversation, or its body does not match its kind.
	ErrInvalidMessage = &Error{Kind: KindValidation, Message: "invalid message"}

	// ErrMessageTooLong is returned when message text exceeds the configured limit.
	ErrMessageTooLong = &Error{Kind: KindValidation, Message: "message too long"}

	// ErrNoProfileFields is returned by a profile update that carries no
	// editable field.
	ErrNoProfileFields = &Error{Kind: KindValidation, Message: "no editable fields supplied"}
)

// Lookup errors.
var (
	ErrUserNotFound         = &Error{Kind: KindNotFound, Message: "user not found"}
	ErrRequestNotFound      = &Error{Kind: KindNotFound, Message: "friend request not found"}
	ErrConversationNotFound = &Error{Kind: KindNotFound, Message: "conversation not found"}
)

// State errors.
var (
	// ErrDuplicateRequest is returned when the ordered pair already has a
	// pending friend request.
	ErrDuplicateRequest = &Error{Kind: KindConflict, Message: "friend request already pending"}

	// ErrAlreadyFriends is returned when a request targets an existing friend.
	ErrAlreadyFriends = &Error{Kind: KindConflict, Message: "users are already friends"}

	// ErrCallInProgress is returned when the pair already has a ringing call.
	ErrCallInProgress = &Error{Kind: KindConflict, Message: "call in progress"}

	// ErrStaleCallEvent is returned for a call signal that matches no ringing
	// call in the required state. No record is mutated.
	ErrStaleCallEvent = &Error{Kind: KindStaleEvent, Message: "no ringing call for this pair"}
)

// storageError wraps a persistence failure.
func storageError(err error) error {
	return &Error{Kind: KindStorage, Message: "storage failure", Err: err}
}

// KindOf returns the Kind of err. Errors that are not service errors are
// reported as storage errors; nil yields the empty Kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindStorage
}

// MessageOf returns a client-safe description of err. Storage failures never
// leak driver text.
func MessageOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Message
	}
	return "storage failure"
}

// isUniqueViolation reports whether err is a unique-index failure. The
// driver translation is checked first, then the SQLite message text.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
