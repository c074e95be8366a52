package reminder

import "errors"

var (
	// ErrMalformedReminder marks a reminder whose time or date cannot be parsed.
	// It is scoped to that single reminder.
	ErrMalformedReminder = errors.New("malformed reminder")

	// ErrDeliveryFailed marks a notification sink failure. Job state still advances.
	ErrDeliveryFailed = errors.New("notification delivery failed")

	// ErrPersistenceIO marks a failed save or load. In-memory state is unaffected.
	ErrPersistenceIO = errors.New("reminder persistence failed")
)
