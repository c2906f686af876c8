// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across controller/repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates the caller exhausted its draw allowance for the current window.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., draw recorded twice).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidArgument indicates a request that fails validation.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotAuthenticated rejects a gated action outside the Authenticated state.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrInvalidTransition rejects a trigger the current session state does not accept.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrBusy rejects a trigger while another asynchronous transition is in flight.
	ErrBusy = errors.New("transition in flight")

	// ErrSuperseded reports an asynchronous result discarded because the state moved on meanwhile.
	ErrSuperseded = errors.New("superseded by a later transition")

	// ErrNoFortune rejects sharing before anything was drawn.
	ErrNoFortune = errors.New("no fortune drawn")

	// ErrInvalidToken indicates an identity token that is empty or cannot be decoded/verified.
	ErrInvalidToken = errors.New("invalid token")

	// ErrUnsupported indicates the host cannot perform the requested action in this environment.
	ErrUnsupported = errors.New("unsupported in this environment")
)
