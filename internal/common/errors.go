package common

import "errors"

var (

	// repository specific errors
	ErrNotFound = errors.New("not found")

	// guard/resolver specific errors
	ErrVersionConflict   = errors.New("version conflict")
	ErrImmutableRecord   = errors.New("immutable record violation")
	ErrUnknownEntityType = errors.New("unknown entity type")

	// sync-layer errors
	ErrNetwork    = errors.New("network interruption")
	ErrValidation = errors.New("validation failure")

	// service specific errors
	ErrInternal     = errors.New("internal error")
	ErrUnauthorized = errors.New("unauthorized")

	ErrInvalidToken = errors.New("invalid token")
)
