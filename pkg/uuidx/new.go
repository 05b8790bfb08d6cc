package uuidx

import "github.com/google/uuid"

// New returns a fresh version 7 UUID. V7 identifiers sort by creation time,
// which keeps task listings in insertion order without an extra sort key.
// It panics if the UUID generation fails.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString returns a fresh version 7 UUID as a string.
func NewString() string {
	return New().String()
}
