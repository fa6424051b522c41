package cache

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consumer-puls/insights-scraper/internal/kv"
	"github.com/consumer-puls/insights-scraper/internal/model"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	s, err := kv.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))

	c := New(s)
	require.NoError(t, c.Init(context.Background()))
	return c
}

func TestAddProduct(t *testing.T) {
	t.Run("CreatesSkeletonOnFirstFragment", func(t *testing.T) {
		c := newTestCache(t)
		c.AddProduct("p1", model.Fragment{Details: map[string]any{"productName": "Soap"}})

		rec, ok := c.Product("p1")
		require.True(t, ok)
		assert.Equal(t, "Soap", rec.Details["productName"])
		assert.Empty(t, rec.Reviews)
		assert.Empty(t, rec.QuestionsAndAnswers)
	})

	t.Run("DetailsLastWriteWins", func(t *testing.T) {
		c := newTestCache(t)
		c.AddProduct("p1", model.Fragment{Details: map[string]any{"rating": 4.1, "brand": "Acme"}})
		c.AddProduct("p1", model.Fragment{Details: map[string]any{"rating": 4.5}})

		rec, ok := c.Product("p1")
		require.True(t, ok)
		assert.Equal(t, 4.5, rec.Details["rating"])
		assert.Equal(t, "Acme", rec.Details["brand"])
	})

	t.Run("ReviewsAppendAcrossMerges", func(t *testing.T) {
		c := newTestCache(t)
		c.AddProduct("p1", model.Fragment{Reviews: []model.Review{
			{InternalReviewID: "r1"}, {InternalReviewID: "r2"},
		}})
		c.AddProduct("p1", model.Fragment{Reviews: []model.Review{
			{InternalReviewID: "r3"},
		}})
		c.AddProduct("p1", model.Fragment{})

		rec, ok := c.Product("p1")
		require.True(t, ok)
		require.Len(t, rec.Reviews, 3)
		assert.Equal(t, "r1", rec.Reviews[0].InternalReviewID)
		assert.Equal(t, "r3", rec.Reviews[2].InternalReviewID)
	})

	t.Run("QuestionsAppendWithNestedAnswers", func(t *testing.T) {
		c := newTestCache(t)
		c.AddProduct("p1", model.Fragment{QuestionsAndAnswers: []model.Question{
			{QuestionID: "q1", Answers: []model.Answer{{AnswerID: "a1", Answer: "yes"}}},
		}})
		c.AddProduct("p1", model.Fragment{QuestionsAndAnswers: []model.Question{
			{QuestionID: "q2"},
		}})

		rec, ok := c.Product("p1")
		require.True(t, ok)
		require.Len(t, rec.QuestionsAndAnswers, 2)
		assert.Equal(t, "yes", rec.QuestionsAndAnswers[0].Answers[0].Answer)
	})

	t.Run("EmptyFragmentIsNoOp", func(t *testing.T) {
		c := newTestCache(t)
		c.AddProduct("p1", model.Fragment{})

		rec, ok := c.Product("p1")
		require.True(t, ok)
		assert.Empty(t, rec.Details)
		assert.Empty(t, rec.Reviews)
	})
}

func TestDeleteProduct(t *testing.T) {
	c := newTestCache(t)
	c.AddProduct("p1", model.Fragment{Details: map[string]any{"productName": "Soap"}})
	c.AddProduct("p2", model.Fragment{})

	c.DeleteProduct("p1")
	_, ok := c.Product("p1")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())
}

func TestSnapshotRoundTrip(t *testing.T) {
	s, err := kv.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))

	c := New(s)
	require.NoError(t, c.Init(ctx))

	// Populated record plus one with deliberately empty reviews/Q&A.
	c.AddProduct("p1", model.Fragment{
		Details: map[string]any{"productName": "Soap", "rating": "4.5"},
		Reviews: []model.Review{{InternalReviewID: "r1", ReviewDateISO: "2023-06-09T00:00:00Z"}},
		QuestionsAndAnswers: []model.Question{
			{QuestionID: "q1", Answers: []model.Answer{{AnswerID: "a1"}}},
		},
	})
	c.AddProduct("p2", model.Fragment{})
	require.NoError(t, c.PersistState(ctx))

	resumed := New(s)
	require.NoError(t, resumed.Init(ctx))

	assert.Equal(t, 2, resumed.Len())
	got, ok := resumed.Product("p1")
	require.True(t, ok)
	want, _ := c.Product("p1")
	assert.Equal(t, want, got)

	empty, ok := resumed.Product("p2")
	require.True(t, ok)
	assert.NotNil(t, empty.Reviews)
	assert.Len(t, empty.Reviews, 0)
	assert.NotNil(t, empty.QuestionsAndAnswers)
}

func TestClear(t *testing.T) {
	s, err := kv.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))

	c := New(s)
	require.NoError(t, c.Init(ctx))
	c.AddProduct("p1", model.Fragment{})
	require.NoError(t, c.PersistState(ctx))

	require.NoError(t, c.Clear(ctx))
	assert.Equal(t, 0, c.Len())

	// The wipe must be durable, not just in-memory.
	resumed := New(s)
	require.NoError(t, resumed.Init(ctx))
	assert.Equal(t, 0, resumed.Len())
}

func TestInitAbsentSnapshot(t *testing.T) {
	c := newTestCache(t)
	assert.Equal(t, 0, c.Len())
}

// The run loop merges while the checkpointer snapshots from its own
// goroutine; run with -race.
func TestConcurrentMergeAndPersist(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			id := "p" + strconv.Itoa(i%5)
			c.AddProduct(id, model.Fragment{
				Details: map[string]any{"rating": i},
				Reviews: []model.Review{{InternalReviewID: strconv.Itoa(i)}},
			})
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			assert.NoError(t, c.PersistState(ctx))
		}
	}()
	wg.Wait()

	assert.Equal(t, 5, c.Len())
	rec, ok := c.Product("p0")
	require.True(t, ok)
	assert.Len(t, rec.Reviews, 40)
}
