package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors carry no infrastructure dependency.

var (
	// Engine errors
	ErrInvalidAmount = errors.New("xp amount must be positive and within the award cap")
	ErrUnknownAction = errors.New("unknown xp action")
	ErrInvalidGoal   = errors.New("invalid goal progress")

	// Profile errors
	ErrMissingProfile = errors.New("profile id is required")

	// Persistence errors
	ErrRecordNotFound       = errors.New("engagement record not found")
	ErrUnsupportedVersion   = errors.New("engagement record version not supported")
	ErrPersistence          = errors.New("engagement persistence failure")
	ErrRevisionConflict     = errors.New("engagement record changed by another writer")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrUnknownStoreDriver   = errors.New("unknown store driver")
)
