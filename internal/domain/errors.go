package domain

import "errors"

// Form validation errors. These block submission without a network call.
var (
	ErrPasswordTooShort   = errors.New("password must be at least 8 characters")
	ErrPasswordMismatch   = errors.New("passwords do not match")
	ErrUsernameRequired   = errors.New("username is required")
	ErrEmailRequired      = errors.New("email is required")
	ErrInvalidRole        = errors.New("role must be USER or ADMIN")
	ErrEmptyChatName      = errors.New("group chat name is required")
	ErrNoParticipants     = errors.New("group chat needs at least one participant")
	ErrSingleCounterpart  = errors.New("direct chat needs exactly one counterpart")
	ErrEmptyMessage       = errors.New("message is empty")
	ErrNoActiveChat       = errors.New("no chat selected")
	ErrCredentialsMissing = errors.New("username and password are required")
)

// Authorization errors
var (
	ErrForbidden = errors.New("access denied: administrator role required")
)

// MinPasswordLength is enforced client-side on every account form.
const MinPasswordLength = 8
