package harness

import "github.com/google/uuid"

// NewRunID returns a time-ordered UUIDv7 run identifier.
func NewRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
