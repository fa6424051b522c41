// Package storedids tracks which product ids have ever been fully stored,
// across all runs for a retailer. A product seen here only needs the short
// incremental review window; an unseen one gets the full history scrape.
package storedids

import (
	"context"

	"github.com/consumer-puls/insights-scraper/internal/kv"
)

// Set is the persisted product-id set.
type Set struct {
	store kv.Store
	ids   map[string]struct{}
}

// Load reads the stored-ids set; absent state starts empty.
func Load(ctx context.Context, store kv.Store) (*Set, error) {
	var ids []string
	if _, err := kv.GetJSON(ctx, store, kv.KeyStoredIDs, &ids); err != nil {
		return nil, err
	}

	set := &Set{store: store, ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		set.ids[id] = struct{}{}
	}
	return set, nil
}

// Contains reports whether id was stored by an earlier run.
func (s *Set) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Add marks id as stored. Durable only after Persist.
func (s *Set) Add(id string) {
	s.ids[id] = struct{}{}
}

// Len reports the number of stored ids.
func (s *Set) Len() int {
	return len(s.ids)
}

// Persist writes the set back to the durable store.
func (s *Set) Persist(ctx context.Context) error {
	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	return kv.SetJSON(ctx, s.store, kv.KeyStoredIDs, ids)
}
