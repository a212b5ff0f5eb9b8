package domain

import "errors"

var (
	// ErrInvalidRequest indicates a malformed query request
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUnauthorized indicates no active Oura session
	ErrUnauthorized = errors.New("unauthorized")
	// ErrRateLimited indicates the upstream model rate-limited us
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrNotFound indicates resource not found
	ErrNotFound = errors.New("resource not found")
)
