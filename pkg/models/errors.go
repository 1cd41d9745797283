package models

import "errors"

var (
	ErrValidation           = errors.New("validation error")
	ErrAccessDenied         = errors.New("access denied")
	ErrNotFound             = errors.New("order not found")
	ErrStorageUnavailable   = errors.New("storage unavailable")
	ErrInvalidOfferCode     = errors.New("invalid offer code")
	ErrDuplicateOrderNumber = errors.New("duplicate order number")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrUnauthenticated      = errors.New("unauthenticated")
)
