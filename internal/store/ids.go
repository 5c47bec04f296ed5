package store

import "github.com/google/uuid"

// IDGenerator produces write log IDs.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator produces time-ordered RFC 9562 UUIDs.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 string.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
