package core

import (
	"time"

	"github.com/google/uuid"
)

// Clock is a narrow port over time.Now so scheduling and expiry logic
// can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock, backed by the real wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// IDGenerator is a narrow port over id allocation (plan ids, step ids,
// task ids, audit ids, ...). Production code uses UUIDv4; tests can
// substitute a sequential generator for reproducible fixtures.
type IDGenerator interface {
	New() string
}

// UUIDGenerator is the production IDGenerator.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }
