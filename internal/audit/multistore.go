package audit

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// MultiStore fans each batch out to every configured backend in parallel and
// requires all of them to acknowledge before the batch counts as persisted.
// Reads are served from the first backend, which is the source of truth for
// sequence recovery.
type MultiStore struct {
	stores []Store
}

// NewMultiStore panics on an empty store list; wiring code must always
// configure at least one backend.
func NewMultiStore(stores ...Store) *MultiStore {
	if len(stores) == 0 {
		panic("audit: MultiStore requires at least one backend")
	}
	return &MultiStore{stores: stores}
}

func (m *MultiStore) Append(ctx context.Context, batch []Record) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, store := range m.stores {
		g.Go(func() error {
			if err := store.Append(ctx, batch); err != nil {
				return fmt.Errorf("backend %T: %w", store, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (m *MultiStore) Read(ctx context.Context, from, to uint64) ([]Record, error) {
	return m.stores[0].Read(ctx, from, to)
}

func (m *MultiStore) Last(ctx context.Context) (*Record, error) {
	return m.stores[0].Last(ctx)
}

// VerifyAll verifies every backend's chain independently and returns the
// first failure, labelled with the backend that produced it.
func (m *MultiStore) VerifyAll(ctx context.Context) error {
	for _, store := range m.stores {
		if err := Verify(ctx, store); err != nil {
			return fmt.Errorf("backend %T: %w", store, err)
		}
	}
	return nil
}
