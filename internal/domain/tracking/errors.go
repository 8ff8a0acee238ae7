package tracking

import "errors"

var (
	// ErrAlreadyTracking is returned when the vehicle already has an active session.
	ErrAlreadyTracking = errors.New("vehicle is already tracked")
	// ErrNotFound is returned for unknown session ids.
	ErrNotFound = errors.New("session not found")
	// ErrSessionNotActive is returned when a stopped session receives a position.
	ErrSessionNotActive = errors.New("session is not active")
	// ErrNoPositionAvailable is returned when an emergency has neither a fresh nor a last known fix.
	ErrNoPositionAvailable = errors.New("no position available")
	// ErrInvalidArgument is returned for malformed requests.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDeliveryFailed is returned when an emergency could not be delivered.
	ErrDeliveryFailed = errors.New("alert delivery failed")
	// ErrShuttingDown is returned when the tracker no longer accepts sessions.
	ErrShuttingDown = errors.New("tracker is shutting down")
)
