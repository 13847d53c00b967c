package jobstore

import (
	"context"
	"errors"

	"github.com/r2clabs/bulkstudy/internal/store"
)

// PostgresSlot keeps the slot as one row of the job_slots table.
type PostgresSlot struct {
	store store.Store
	name  string
}

func NewPostgresSlot(s store.Store, name string) *PostgresSlot {
	return &PostgresSlot{store: s, name: name}
}

func (p *PostgresSlot) Load(ctx context.Context) ([]byte, bool, error) {
	data, err := p.store.GetSlot(ctx, p.name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (p *PostgresSlot) Save(ctx context.Context, data []byte) error {
	return p.store.PutSlot(ctx, p.name, data)
}

func (p *PostgresSlot) Clear(ctx context.Context) error {
	return p.store.DeleteSlot(ctx, p.name)
}

var _ Slot = (*PostgresSlot)(nil)
