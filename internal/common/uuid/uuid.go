// Package uuid wraps github.com/google/uuid with UUIDv7 as the default version.
// Version 7 ids are time ordered, which keeps session ids sortable by creation.
package uuid

import (
	"github.com/google/uuid"
)

type UUID = uuid.UUID

// NewRandom returns a new UUIDv7.
func NewRandom() (UUID, error) {
	return uuid.NewV7()
}

// New returns a new UUIDv7 and panics if the random source fails.
func New() UUID {
	uuidv7, err := uuid.NewV7()
	if err != nil {
		panic(err)
	}
	return uuidv7
}
