// Package monitor tracks run-wide counters: request outcomes, product
// progress, per-label and per-subcategory breakdowns, and the block ratio
// operators watch to spot a blocked run. Counters resume verbatim from the
// durable store; a resumed run keeps its original dataset metadata.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/consumer-puls/insights-scraper/internal/dataset"
	"github.com/consumer-puls/insights-scraper/internal/kv"
)

// Stats is the persisted counter state of one run. Every counter only
// grows within a run; the Custom map is the one escape hatch that allows
// overwrite. JSON field names are the wire contract with previously
// persisted runs and must not change.
type Stats struct {
	OK                         int64            `json:"ok"`
	Failed                     int64            `json:"failed"`
	Denied                     int64            `json:"denied"`
	Skipped                    int64            `json:"skipped"`
	Products                   int64            `json:"products"`
	ProductsDone               int64            `json:"productsDone"`
	ProductsDonePerSubcategory map[string]int64 `json:"productsDonePerSubcategory"`
	InvalidOutput              int64            `json:"invalidOutput"`
	EmptyList                  int64            `json:"emptyList"`
	Duplicities                int64            `json:"duplicities"`
	Reviews                    int64            `json:"reviews"`
	QuestionAndAnswers         int64            `json:"questionAndAnswers"`
	RequestsPerLabel           map[string]int64 `json:"requestsPerLabel"`
	DatasetDate                string           `json:"datasetDate,omitempty"`
	DefaultDatasetID           string           `json:"defaultDatasetId,omitempty"`
	DatasetName                string           `json:"datasetName,omitempty"`
	Custom                     map[string]any   `json:"custom,omitempty"`
}

func defaultStats() *Stats {
	return &Stats{
		ProductsDonePerSubcategory: map[string]int64{},
		RequestsPerLabel:           map[string]int64{},
		Custom:                     map[string]any{},
	}
}

// details is the small summary blob written alongside stats for quick
// external inspection.
type details struct {
	ItemsCount               int64  `json:"itemsCount"`
	ReviewsCount             int64  `json:"reviewsCount"`
	QuestionsAndAnswersCount int64  `json:"questionsAndAnswersCount"`
	DatasetName              string `json:"datasetName"`
	DatasetDate              string `json:"datasetDate"`
	DefaultDatasetID         string `json:"defaultDatasetId"`
}

// Monitor owns the run counters. Safe for concurrent use: the run loop
// bumps counters while the checkpointer saves and prints from its own
// goroutine.
type Monitor struct {
	store kv.Store

	mu    sync.Mutex
	stats *Stats
}

// New creates a Monitor persisting through store.
func New(store kv.Store) *Monitor {
	return &Monitor{store: store, stats: defaultStats()}
}

// Init restores persisted counters when present; custom initial values and
// freshly computed metadata are ignored on resume. On a fresh run the
// dataset-info collaborator supplies the run metadata stamped once into
// the stats.
func (m *Monitor) Init(ctx context.Context, info dataset.Describer, custom map[string]any) error {
	restored := defaultStats()
	found, err := kv.GetJSON(ctx, m.store, kv.KeyStats, restored)
	if err != nil {
		return err
	}
	if found {
		if restored.ProductsDonePerSubcategory == nil {
			restored.ProductsDonePerSubcategory = map[string]int64{}
		}
		if restored.RequestsPerLabel == nil {
			restored.RequestsPerLabel = map[string]int64{}
		}
		if restored.Custom == nil {
			restored.Custom = map[string]any{}
		}
		m.setStats(restored)
		return nil
	}

	stats := defaultStats()
	for k, v := range custom {
		stats.Custom[k] = v
	}

	di, err := info.Describe(ctx)
	if err != nil {
		return err
	}
	stats.DatasetDate = di.CreatedAt.UTC().Format(time.RFC3339)
	stats.DefaultDatasetID = di.ID
	stats.DatasetName = di.Name

	m.setStats(stats)
	return nil
}

func (m *Monitor) setStats(s *Stats) {
	m.mu.Lock()
	m.stats = s
	m.mu.Unlock()
}

// Stats exposes the current counter state. The returned struct is live;
// read it only once the counters are quiescent (after Init, or after the
// run loop and checkpointer have stopped).
func (m *Monitor) Stats() *Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// AddDenied counts a blocked request.
func (m *Monitor) AddDenied() { m.add(func(s *Stats) { s.Denied++ }) }

// AddFailed counts a failed request.
func (m *Monitor) AddFailed() { m.add(func(s *Stats) { s.Failed++ }) }

// AddSkipped counts a skipped request.
func (m *Monitor) AddSkipped() { m.add(func(s *Stats) { s.Skipped++ }) }

// AddOk counts a successful request.
func (m *Monitor) AddOk() { m.add(func(s *Stats) { s.OK++ }) }

// AddEmptyList counts a listing page that yielded no products.
func (m *Monitor) AddEmptyList() { m.add(func(s *Stats) { s.EmptyList++ }) }

// AddDuplicities counts a product seen more than once.
func (m *Monitor) AddDuplicities() { m.add(func(s *Stats) { s.Duplicities++ }) }

func (m *Monitor) AddProducts(n int64)      { m.add(func(s *Stats) { s.Products += n }) }
func (m *Monitor) AddProductsDone(n int64)  { m.add(func(s *Stats) { s.ProductsDone += n }) }
func (m *Monitor) AddInvalidOutput(n int64) { m.add(func(s *Stats) { s.InvalidOutput += n }) }
func (m *Monitor) AddReviews(n int64)       { m.add(func(s *Stats) { s.Reviews += n }) }
func (m *Monitor) AddQuestionAndAnswers(n int64) {
	m.add(func(s *Stats) { s.QuestionAndAnswers += n })
}

func (m *Monitor) add(fn func(*Stats)) {
	m.mu.Lock()
	fn(m.stats)
	m.mu.Unlock()
}

// AddRequestsPerLabel bumps the per-label request breakdown, creating the
// label on first use.
func (m *Monitor) AddRequestsPerLabel(label string, n int64) {
	m.add(func(s *Stats) { s.RequestsPerLabel[label] += n })
}

// RequestsPerLabel returns the request count for label, 0 when absent.
func (m *Monitor) RequestsPerLabel(label string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats.RequestsPerLabel[label]
}

// AddProductsDonePerSubcategory bumps the "category > subcategory" breakdown.
func (m *Monitor) AddProductsDonePerSubcategory(category, subcategory string, n int64) {
	key := subcategoryKey(category, subcategory)
	m.add(func(s *Stats) { s.ProductsDonePerSubcategory[key] += n })
}

// ProductsDonePerSubcategory returns the finished-product count for the
// given category pair, 0 when absent.
func (m *Monitor) ProductsDonePerSubcategory(category, subcategory string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats.ProductsDonePerSubcategory[subcategoryKey(category, subcategory)]
}

func subcategoryKey(category, subcategory string) string {
	return fmt.Sprintf("%s > %s", category, subcategory)
}

// CustomStat reads an ad hoc stat outside the fixed counter set.
func (m *Monitor) CustomStat(name string) any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats.Custom[name]
}

// SetCustomStat overwrites an ad hoc stat.
func (m *Monitor) SetCustomStat(name string, value any) {
	m.add(func(s *Stats) { s.Custom[name] = value })
}

// SaveStats writes the counter blob to the durable store. The lock is held
// across the write so the blob is a consistent snapshot.
func (m *Monitor) SaveStats(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := kv.SetJSON(ctx, m.store, kv.KeyStats, m.stats); err != nil {
		return err
	}
	zap.L().Info("key value store STATS saved")
	return nil
}

// SaveDetails writes the summary blob for quick external inspection.
func (m *Monitor) SaveDetails(ctx context.Context) error {
	m.mu.Lock()
	d := details{
		ItemsCount:               m.stats.ProductsDone,
		ReviewsCount:             m.stats.Reviews,
		QuestionsAndAnswersCount: m.stats.QuestionAndAnswers,
		DatasetName:              m.stats.DatasetName,
		DatasetDate:              m.stats.DatasetDate,
		DefaultDatasetID:         m.stats.DefaultDatasetID,
	}
	m.mu.Unlock()

	if err := kv.SetJSON(ctx, m.store, kv.KeyDetails, d); err != nil {
		return err
	}
	zap.L().Info("key value store DETAILS saved")
	return nil
}

// PrintStats logs the rendered progress report.
func (m *Monitor) PrintStats() {
	report := m.Summarize()
	zap.L().Info(fmt.Sprintf("[MONITOR]\n\n  %s", report.renderBlocks("\n  ")))
	zap.L().Info(fmt.Sprintf("[BLOCK RATIO] %.2f%%", report.BlockRatio))
}

// PersistState writes stats and the details summary and prints the report,
// all concurrently. Every task is attempted even when another fails; the
// failures are aggregated and surfaced together.
func (m *Monitor) PersistState(ctx context.Context) error {
	var (
		mu     sync.Mutex
		result *multierror.Error
		wg     sync.WaitGroup
	)

	run := func(fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil {
				mu.Lock()
				result = multierror.Append(result, err)
				mu.Unlock()
			}
		}()
	}

	run(func() error { return m.SaveStats(ctx) })
	run(func() error { return m.SaveDetails(ctx) })
	run(func() error { m.PrintStats(); return nil })

	wg.Wait()
	return result.ErrorOrNil()
}
