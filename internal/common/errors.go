// Package common defines shared constants and sentinel errors used across
// the fitsync packages. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound = errors.New("not found")

	// Configuration errors (missing OAuth client credentials and similar).
	ErrConfiguration = errors.New("configuration error")

	// Interactive authorization errors.
	ErrAuthorization  = errors.New("authorization failed")
	ErrUserCancelled  = errors.New("authorization cancelled by user")
	ErrNotConfigured  = errors.New("auth session is not configured")
	ErrStateMismatch  = errors.New("oauth state mismatch")
	ErrAuthInProgress = errors.New("authorization already in progress")

	// Token lifecycle errors.
	ErrNotAuthenticated        = errors.New("not authenticated")
	ErrReauthorizationRequired = errors.New("reauthorization required")

	// Remote store errors.
	ErrRemoteRead  = errors.New("remote read failed")
	ErrRemoteWrite = errors.New("remote write failed")

	// Validation errors.
	ErrUnknownCollection = errors.New("unknown collection")
	ErrInvalidRecord     = errors.New("invalid record")
)
