package monitor

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consumer-puls/insights-scraper/internal/dataset"
	"github.com/consumer-puls/insights-scraper/internal/kv"
)

type staticInfo struct {
	info  dataset.Info
	calls int
}

func (s *staticInfo) Describe(ctx context.Context) (*dataset.Info, error) {
	s.calls++
	cp := s.info
	return &cp, nil
}

func newTestStore(t *testing.T) kv.Store {
	t.Helper()
	s, err := kv.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testInfo() *staticInfo {
	return &staticInfo{info: dataset.Info{
		ID:        "ds-1",
		Name:      "walmart-us",
		CreatedAt: time.Date(2023, 6, 15, 10, 0, 0, 0, time.UTC),
	}}
}

func TestInitFresh(t *testing.T) {
	store := newTestStore(t)
	m := New(store)
	info := testInfo()

	require.NoError(t, m.Init(context.Background(), info, map[string]any{"categoriesTotal": 12}))

	s := m.Stats()
	assert.Equal(t, "ds-1", s.DefaultDatasetID)
	assert.Equal(t, "walmart-us", s.DatasetName)
	assert.Equal(t, "2023-06-15T10:00:00Z", s.DatasetDate)
	assert.Equal(t, 12, m.CustomStat("categoriesTotal"))
	assert.Equal(t, 1, info.calls)
}

func TestInitResume(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first := New(store)
	require.NoError(t, first.Init(ctx, testInfo(), nil))
	for i := 0; i < 5; i++ {
		first.AddOk()
	}
	first.AddProductsDone(2)
	first.AddRequestsPerLabel("DETAIL", 3)
	require.NoError(t, first.SaveStats(ctx))

	// A resumed run must restore the persisted counters verbatim and
	// ignore both fresh custom stats and freshly computed metadata.
	freshInfo := &staticInfo{info: dataset.Info{ID: "ds-2", Name: "other", CreatedAt: time.Now()}}
	resumed := New(store)
	require.NoError(t, resumed.Init(ctx, freshInfo, map[string]any{"categoriesTotal": 99}))

	s := resumed.Stats()
	assert.Equal(t, int64(5), s.OK)
	assert.Equal(t, int64(2), s.ProductsDone)
	assert.Equal(t, int64(3), resumed.RequestsPerLabel("DETAIL"))
	assert.Equal(t, "ds-1", s.DefaultDatasetID)
	assert.Equal(t, "walmart-us", s.DatasetName)
	assert.Nil(t, resumed.CustomStat("categoriesTotal"))
	assert.Equal(t, 0, freshInfo.calls, "dataset info must not be consulted on resume")
}

func TestCounters(t *testing.T) {
	m := New(newTestStore(t))
	require.NoError(t, m.Init(context.Background(), testInfo(), nil))

	m.AddOk()
	m.AddOk()
	m.AddFailed()
	m.AddDenied()
	m.AddSkipped()
	m.AddEmptyList()
	m.AddDuplicities()
	m.AddProducts(10)
	m.AddProductsDone(4)
	m.AddInvalidOutput(1)
	m.AddReviews(25)
	m.AddQuestionAndAnswers(7)

	s := m.Stats()
	assert.Equal(t, int64(2), s.OK)
	assert.Equal(t, int64(1), s.Failed)
	assert.Equal(t, int64(1), s.Denied)
	assert.Equal(t, int64(1), s.Skipped)
	assert.Equal(t, int64(1), s.EmptyList)
	assert.Equal(t, int64(1), s.Duplicities)
	assert.Equal(t, int64(10), s.Products)
	assert.Equal(t, int64(4), s.ProductsDone)
	assert.Equal(t, int64(1), s.InvalidOutput)
	assert.Equal(t, int64(25), s.Reviews)
	assert.Equal(t, int64(7), s.QuestionAndAnswers)
}

func TestKeyedBreakdowns(t *testing.T) {
	m := New(newTestStore(t))
	require.NoError(t, m.Init(context.Background(), testInfo(), nil))

	assert.Equal(t, int64(0), m.RequestsPerLabel("LIST"))
	m.AddRequestsPerLabel("LIST", 1)
	m.AddRequestsPerLabel("LIST", 2)
	assert.Equal(t, int64(3), m.RequestsPerLabel("LIST"))

	assert.Equal(t, int64(0), m.ProductsDonePerSubcategory("Beauty", "Soap"))
	m.AddProductsDonePerSubcategory("Beauty", "Soap", 1)
	m.AddProductsDonePerSubcategory("Beauty", "Soap", 1)
	assert.Equal(t, int64(2), m.ProductsDonePerSubcategory("Beauty", "Soap"))
	assert.Equal(t, int64(2), m.Stats().ProductsDonePerSubcategory["Beauty > Soap"])
}

func TestCustomStats(t *testing.T) {
	m := New(newTestStore(t))
	require.NoError(t, m.Init(context.Background(), testInfo(), nil))

	assert.Nil(t, m.CustomStat("listingPages"))
	m.SetCustomStat("listingPages", 17)
	assert.Equal(t, 17, m.CustomStat("listingPages"))
	m.SetCustomStat("listingPages", 18)
	assert.Equal(t, 18, m.CustomStat("listingPages"))
}

func TestSummarizeBlockRatio(t *testing.T) {
	t.Run("OkThreeDeniedOne", func(t *testing.T) {
		m := New(newTestStore(t))
		require.NoError(t, m.Init(context.Background(), testInfo(), nil))
		m.AddOk()
		m.AddOk()
		m.AddOk()
		m.AddDenied()

		assert.InDelta(t, 25.0, m.Summarize().BlockRatio, 0.0001)
	})

	t.Run("NoRequestsIsZeroNotNaN", func(t *testing.T) {
		m := New(newTestStore(t))
		require.NoError(t, m.Init(context.Background(), testInfo(), nil))
		assert.Equal(t, 0.0, m.Summarize().BlockRatio)
	})
}

func TestSummarizePartitioning(t *testing.T) {
	m := New(newTestStore(t))
	require.NoError(t, m.Init(context.Background(), testInfo(), nil))

	// Empty breakdowns are omitted from the report entirely.
	r := m.Summarize()
	assert.Empty(t, r.Keyed)

	m.AddRequestsPerLabel("LIST", 2)
	r = m.Summarize()
	require.Len(t, r.Keyed, 1)
	assert.Equal(t, "requestsPerLabel", r.Keyed[0].Name)
	assert.Equal(t, int64(2), r.Keyed[0].Table.(map[string]int64)["LIST"])

	m.AddProductsDonePerSubcategory("Beauty", "Soap", 1)
	r = m.Summarize()
	require.Len(t, r.Keyed, 2)
	assert.Equal(t, "productsDonePerSubcategory", r.Keyed[1].Name)

	// Custom stats partition like the fixed counters: scalars join the
	// scalar block, map values become keyed blocks of their own.
	m.SetCustomStat("listingPages", 17)
	m.SetCustomStat("retriesPerLabel", map[string]int64{"LIST": 4})
	r = m.Summarize()
	assert.Equal(t, 17, r.ScalarCustom["listingPages"])
	require.Len(t, r.Keyed, 3)
	assert.Equal(t, "retriesPerLabel", r.Keyed[2].Name)
}

func TestReportRender(t *testing.T) {
	m := New(newTestStore(t))
	require.NoError(t, m.Init(context.Background(), testInfo(), nil))
	m.AddOk()
	m.AddDenied()
	m.AddRequestsPerLabel("LIST", 1)

	out := m.Summarize().Render()
	assert.Contains(t, out, "ok: 1")
	assert.Contains(t, out, "denied: 1")
	assert.Contains(t, out, "requestsPerLabel:")
	assert.Contains(t, out, "LIST: 1")
	assert.Contains(t, out, "[BLOCK RATIO] 50.00%")
}

func TestReportRenderScalarCustomInFirstBlock(t *testing.T) {
	m := New(newTestStore(t))
	require.NoError(t, m.Init(context.Background(), testInfo(), nil))
	m.AddOk()
	m.AddRequestsPerLabel("LIST", 1)
	m.SetCustomStat("listingPages", 17)

	out := m.Summarize().Render()
	assert.Contains(t, out, "listingPages: 17")

	// The scalar custom stat belongs to the first block, before any
	// keyed breakdown.
	custom := strings.Index(out, "listingPages:")
	keyed := strings.Index(out, "requestsPerLabel:")
	require.NotEqual(t, -1, custom)
	require.NotEqual(t, -1, keyed)
	assert.Less(t, custom, keyed)
	assert.NotContains(t, out[:keyed], "\n\nlistingPages", "scalar custom must not open its own block")
}

func TestPersistState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := New(store)
	require.NoError(t, m.Init(ctx, testInfo(), nil))
	m.AddOk()
	m.AddProductsDone(3)
	m.AddReviews(11)

	require.NoError(t, m.PersistState(ctx))

	var stats Stats
	found, err := kv.GetJSON(ctx, store, kv.KeyStats, &stats)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(1), stats.OK)

	var d map[string]any
	found, err = kv.GetJSON(ctx, store, kv.KeyDetails, &d)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, float64(3), d["itemsCount"])
	assert.Equal(t, float64(11), d["reviewsCount"])
	assert.Equal(t, "walmart-us", d["datasetName"])
}

// The run loop keeps bumping counters while the checkpointer saves and
// prints from its own goroutine; run with -race.
func TestConcurrentCountersAndPersist(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	m := New(store)
	require.NoError(t, m.Init(ctx, testInfo(), nil))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			m.AddOk()
			m.AddRequestsPerLabel("DETAIL", 1)
			m.AddProductsDonePerSubcategory("Beauty", "Soap", 1)
			m.SetCustomStat("listingPages", i)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			assert.NoError(t, m.PersistState(ctx))
		}
	}()
	wg.Wait()

	s := m.Stats()
	assert.Equal(t, int64(200), s.OK)
	assert.Equal(t, int64(200), s.RequestsPerLabel["DETAIL"])
}
