package profiles

import (
	"time"

	"github.com/google/uuid"
)

// UUID identifies a session (the owner of a record's lock).
type UUID uuid.UUID

// NilUUID is the zero-value UUID, used by documents that hold no session.
var NilUUID UUID

// ParseUUID converts a string to a UUID. It returns an error if the input is not a valid UUID.
func ParseUUID(id string) (UUID, error) {
	u, err := uuid.Parse(id)
	return UUID(u), err
}

// NewUUID returns a new random UUID, retrying briefly if the random source fails.
func NewUUID() UUID {
	var err error
	for i := 0; i < 10; i++ {
		var id uuid.UUID
		if id, err = uuid.NewRandom(); err == nil {
			return UUID(id)
		}
		time.Sleep(time.Millisecond)
	}
	// Session ids are a must, nothing sensible to do without one.
	panic(err)
}

// IsNil reports whether the UUID equals the zero-value UUID.
func (id UUID) IsNil() bool {
	return id == NilUUID
}

// String returns the canonical string representation of the UUID.
func (id UUID) String() string {
	return uuid.UUID(id).String()
}
