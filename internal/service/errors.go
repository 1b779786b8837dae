package service

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrMalformedInput     = errors.New("malformed input: check the username, email and password format")
	ErrUsernameTaken      = errors.New("username is already taken")
	ErrEmailTaken         = errors.New("email is already registered")
)

var (
	// ErrSuperseded means a fetch finished after the state it was issued for
	// had changed; its result was discarded.
	ErrSuperseded = errors.New("result discarded: superseded by a newer request")
	// ErrNotConfirmed means a destructive operation was declined before any
	// request was sent.
	ErrNotConfirmed = errors.New("operation not confirmed")
)
