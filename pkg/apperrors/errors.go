// Package apperrors defines the error taxonomy shared by the IAM packages.
//
// Every failure returned across a package boundary is an *Error carrying a
// Kind. Callers branch on the kind with errors.Is against the exported
// sentinels or with KindOf, never on message text.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is a machine-readable error category
type Kind string

const (
	KindUnknown                 Kind = "UNKNOWN"
	KindNotFound                Kind = "NOT_FOUND"
	KindAlreadyExists           Kind = "ALREADY_EXISTS"
	KindInvalidInput            Kind = "INVALID_INPUT"
	KindInvalidPermission       Kind = "INVALID_PERMISSION"
	KindInvalidLevel            Kind = "INVALID_LEVEL"
	KindRoleInUse               Kind = "ROLE_IN_USE"
	KindDuplicateLiveInvitation Kind = "DUPLICATE_LIVE_INVITATION"
	KindInvalidTransition       Kind = "INVALID_TRANSITION"
	KindExpired                 Kind = "EXPIRED"
	KindAlreadyResolved         Kind = "ALREADY_RESOLVED"
	KindStoreUnavailable        Kind = "STORE_UNAVAILABLE"
	KindAuditWriteFailed        Kind = "AUDIT_WRITE_FAILED"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrNotFound                = &Error{Kind: KindNotFound}
	ErrAlreadyExists           = &Error{Kind: KindAlreadyExists}
	ErrInvalidInput            = &Error{Kind: KindInvalidInput}
	ErrInvalidPermission       = &Error{Kind: KindInvalidPermission}
	ErrInvalidLevel            = &Error{Kind: KindInvalidLevel}
	ErrRoleInUse               = &Error{Kind: KindRoleInUse}
	ErrDuplicateLiveInvitation = &Error{Kind: KindDuplicateLiveInvitation}
	ErrInvalidTransition       = &Error{Kind: KindInvalidTransition}
	ErrExpired                 = &Error{Kind: KindExpired}
	ErrAlreadyResolved         = &Error{Kind: KindAlreadyResolved}
	ErrStoreUnavailable        = &Error{Kind: KindStoreUnavailable}
	ErrAuditWriteFailed        = &Error{Kind: KindAuditWriteFailed}
)

// Error is a categorized failure
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "rbac.RoleService.Update"
	Message string
	Err     error
}

// New creates an error of the given kind
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Wrap categorizes an underlying error
func Wrap(kind Kind, op string, err error, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(strings.ToLower(strings.ReplaceAll(string(e.Kind), "_", " ")))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether the caller may retry the operation
func Retryable(err error) bool {
	return IsKind(err, KindStoreUnavailable)
}

var userMessages = map[Kind]string{
	KindNotFound:                "The requested item could not be found.",
	KindAlreadyExists:           "An item with that name already exists.",
	KindInvalidInput:            "Some of the submitted values are invalid.",
	KindInvalidPermission:       "One or more permissions are not recognized.",
	KindInvalidLevel:            "The role level is outside the allowed range.",
	KindRoleInUse:               "This role is still assigned to users. Reassign them before deleting it.",
	KindDuplicateLiveInvitation: "An invitation is already pending for this email address.",
	KindInvalidTransition:       "This invitation can no longer be changed.",
	KindExpired:                 "This invitation has expired. Ask for a new one.",
	KindAlreadyResolved:         "This invitation has already been used or cancelled.",
	KindStoreUnavailable:        "Something went wrong on our side. Please try again.",
}

// UserMessage returns display text for err
func UserMessage(err error) string {
	if msg, ok := userMessages[KindOf(err)]; ok {
		return msg
	}
	return userMessages[KindStoreUnavailable]
}
