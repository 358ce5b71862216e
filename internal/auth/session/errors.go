package session

import "errors"

// Rejection causes for Authenticate. They exist for logging and tests;
// the HTTP boundary maps all three to the same 401 so clients cannot
// distinguish them.
var (
	// ErrRevoked: a blacklist entry exists for this exact token string.
	ErrRevoked = errors.New("token revoked")

	// ErrInvalid: malformed structure, bad signature, or missing subject.
	ErrInvalid = errors.New("token invalid")

	// ErrExpired: signature fine, lifetime over.
	ErrExpired = errors.New("token expired")
)
