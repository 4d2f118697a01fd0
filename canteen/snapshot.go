/*
snapshot.go - Point-in-time catalog view for a terminal session

PURPOSE:
  A Snapshot is the advisory copy of the sellable catalog a terminal
  builds its cart against. It is owned by one session, refreshed on
  demand, and may be briefly stale relative to the durable state the
  checkout engine re-checks at commit. Nothing here gates the commit.
*/
package canteen

import (
	"context"
	"sort"
	"time"
)

// Snapshot is a read-only catalog view as of TakenAt.
type Snapshot struct {
	TakenAt  time.Time
	products map[string]Product
}

// TakeSnapshot reads the full catalog into a session-local snapshot.
func TakeSnapshot(ctx context.Context, store ProductStore) (*Snapshot, error) {
	products, err := store.Products(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	return &Snapshot{TakenAt: time.Now().UTC(), products: byID}, nil
}

// Refresh replaces the snapshot contents with the current catalog.
func (s *Snapshot) Refresh(ctx context.Context, store ProductStore) error {
	fresh, err := TakeSnapshot(ctx, store)
	if err != nil {
		return err
	}
	s.TakenAt = fresh.TakenAt
	s.products = fresh.products
	return nil
}

// Product returns the snapshot copy of a product, if present.
func (s *Snapshot) Product(id string) (Product, bool) {
	p, ok := s.products[id]
	return p, ok
}

// Products returns all snapshot products, sellable items first,
// then by name — the order the POS product grid displays.
func (s *Snapshot) Products() []Product {
	out := make([]Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Sellable() != out[j].Sellable() {
			return out[i].Sellable()
		}
		return out[i].Name < out[j].Name
	})
	return out
}
