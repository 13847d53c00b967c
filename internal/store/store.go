package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("resource not found")

// Store is the data access interface for persisted job slots.
// A slot is a named, opaque string value owned by one session.
type Store interface {
	Ping(ctx context.Context) error

	GetSlot(ctx context.Context, name string) ([]byte, error)
	PutSlot(ctx context.Context, name string, value []byte) error
	DeleteSlot(ctx context.Context, name string) error
}
