package domain

import "errors"

// Terminal failure kinds returned by the core services. None are retried
// internally; handlers translate them to HTTP status codes with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrUserExists          = errors.New("user id already registered")
	ErrStoreExists         = errors.New("store name already registered")
	ErrSlotTaken           = errors.New("slot already reserved")
	ErrReviewExists        = errors.New("review already exists for this visit")
	ErrValidation          = errors.New("missing or invalid field")
	ErrBadCredentials      = errors.New("bad credentials")
	ErrNotStoreOwner       = errors.New("caller does not own the store")
	ErrReviewerMismatch    = errors.New("reviewer does not match reservation holder")
	ErrAlreadyRefused      = errors.New("reservation already refused")
	ErrInvalidConfirmation = errors.New("invalid arrival confirmation")
	ErrInvalidCriterion    = errors.New("invalid ranking criterion")
	ErrMissingCoordinates  = errors.New("latitude, longitude and radius are required for distance ranking")
)
