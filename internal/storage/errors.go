package storage

import "errors"

// Storage errors shared by every backend.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists. Append-only stores do not allow updates.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrSequenceConflict is returned when a ledger append lost the race for
	// the next sequence number. The append may be retried.
	ErrSequenceConflict = errors.New("ledger sequence conflict")

	// ErrStatusConflict is returned when a conditional status update finds the
	// record in a different state than expected.
	ErrStatusConflict = errors.New("status changed concurrently")
)
