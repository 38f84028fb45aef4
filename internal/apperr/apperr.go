// Package apperr defines the closed set of error kinds the bot distinguishes.
// Callers branch on Kind, never on message text.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidDate
	KindTargetNotFound
	KindSelfFollow
	KindDuplicateRecord
	KindTransientDeliveryFailure
	KindStorageUnavailable
	KindNotFound
	KindForbidden
)

var kindNames = map[Kind]string{
	KindUnknown:                  "unknown",
	KindInvalidDate:              "invalid_date",
	KindTargetNotFound:           "target_not_found",
	KindSelfFollow:               "self_follow",
	KindDuplicateRecord:          "duplicate_record",
	KindTransientDeliveryFailure: "transient_delivery_failure",
	KindStorageUnavailable:       "storage_unavailable",
	KindNotFound:                 "not_found",
	KindForbidden:                "forbidden",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error carries a Kind, a human-readable message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// Is reports whether err carries kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func InvalidDate(message string) *Error {
	return &Error{Kind: KindInvalidDate, Message: message}
}

func TargetNotFound(handle string) *Error {
	return &Error{Kind: KindTargetNotFound, Message: fmt.Sprintf("no user with handle @%s", handle)}
}

func SelfFollow() *Error {
	return &Error{Kind: KindSelfFollow, Message: "cannot follow yourself"}
}

// DuplicateRecord marks an insert that lost a race against an identical row.
func DuplicateRecord(resource string) *Error {
	return &Error{Kind: KindDuplicateRecord, Message: resource + " already recorded"}
}

func TransientDeliveryFailure(recipient int64, err error) *Error {
	return &Error{Kind: KindTransientDeliveryFailure, Message: fmt.Sprintf("deliver to %d", recipient), Err: err}
}

func StorageUnavailable(err error) *Error {
	return &Error{Kind: KindStorageUnavailable, Message: "storage unavailable", Err: err}
}

func NotFound(resource, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s %s not found", resource, id)}
}

// Forbidden is returned when a non-admin invokes an admin command.
func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}
