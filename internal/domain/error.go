package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound                = errors.New("entity not found")
	ErrInvalidArgument         = errors.New("invalid argument")
	ErrNoCredentialsConfigured = errors.New("no bot credentials configured")
	ErrRateLimited             = errors.New("rate limit exceeded")
	ErrUnauthorized            = errors.New("caller is not authorized")
	ErrDispatchFailed          = errors.New("outbound dispatch failed")
)
