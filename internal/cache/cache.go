// Package cache accumulates partially scraped product records across a run.
// Repeated fragments for the same product merge into one record: detail
// fields overwrite last-write-wins, reviews and Q&A threads append in
// arrival order. The whole map snapshots to the durable store so an
// interrupted run resumes where it left off.
package cache

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/consumer-puls/insights-scraper/internal/kv"
	"github.com/consumer-puls/insights-scraper/internal/model"
)

// Cache holds the partial records of the current run, keyed by product id.
//
// Safe for concurrent use: the run loop merges while the checkpointer
// snapshots from its own goroutine. A merge is a compound update (append
// then overwrite) and holds the lock for its whole duration, so a snapshot
// observes whole fragments, never a torn one.
type Cache struct {
	store kv.Store

	mu       sync.Mutex
	products map[string]*model.PartialRecord
}

// New creates an empty cache persisting through store.
func New(store kv.Store) *Cache {
	return &Cache{
		store:    store,
		products: map[string]*model.PartialRecord{},
	}
}

// Init loads the persisted snapshot. An absent snapshot initializes an
// empty map, never an error.
func (c *Cache) Init(ctx context.Context) error {
	products := map[string]*model.PartialRecord{}
	if _, err := kv.GetJSON(ctx, c.store, kv.KeyCache, &products); err != nil {
		return err
	}
	if products == nil {
		products = map[string]*model.PartialRecord{}
	}

	c.mu.Lock()
	c.products = products
	c.mu.Unlock()
	return nil
}

// AddProduct merges a fragment into the record for id, creating the record
// on first contact. An empty fragment is a no-op merge.
func (c *Cache) AddProduct(id string, frag model.Fragment) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.products[id]
	if !ok {
		rec = model.NewPartialRecord()
		c.products[id] = rec
	}

	rec.Reviews = append(rec.Reviews, frag.Reviews...)
	rec.QuestionsAndAnswers = append(rec.QuestionsAndAnswers, frag.QuestionsAndAnswers...)
	for k, v := range frag.Details {
		rec.Details[k] = v
	}
}

// Product returns the partial record for id. The record is the live one:
// callers read it, only AddProduct writes it.
func (c *Cache) Product(id string) (*model.PartialRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.products[id]
	return rec, ok
}

// DeleteProduct removes the record for id, once it is flushed to the sink
// or permanently rejected.
func (c *Cache) DeleteProduct(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.products, id)
}

// Len reports the number of in-flight records.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.products)
}

// PersistState writes the full snapshot to the durable store. The lock is
// held across the write so the snapshot is consistent with respect to
// in-flight merges.
func (c *Cache) PersistState(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := kv.SetJSON(ctx, c.store, kv.KeyCache, c.products); err != nil {
		return err
	}
	zap.L().Debug("cache persisted", zap.Int("products", len(c.products)))
	return nil
}

// Clear wipes every record and immediately persists the empty state.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.products = map[string]*model.PartialRecord{}
	if err := kv.SetJSON(ctx, c.store, kv.KeyCache, c.products); err != nil {
		return err
	}
	zap.L().Debug("cache deleted")
	return nil
}
