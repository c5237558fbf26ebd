package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"dropscout/internal/notify"
	"dropscout/internal/profit"
	"dropscout/internal/scraper"
	"dropscout/internal/store"
	"dropscout/services/publisher"
)

// mockHarvester implements the Harvester interface for testing
type mockHarvester struct {
	entities []scraper.RawEntity
	err      error
}

var _ Harvester = (*mockHarvester)(nil)

func (m *mockHarvester) Harvest(_ context.Context) ([]scraper.RawEntity, scraper.HarvestStats, error) {
	return m.entities, scraper.HarvestStats{Pages: 1, Extracted: len(m.entities)}, m.err
}

// mockSearcher implements the Searcher interface for testing
type mockSearcher struct {
	mu      sync.Mutex
	results map[string]*scraper.SearchResult
	errs    map[string]error
	queries []string
}

var _ Searcher = (*mockSearcher)(nil)

func (m *mockSearcher) Search(_ context.Context, query string) (*scraper.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, query)
	if err := m.errs[query]; err != nil {
		return nil, err
	}
	if r, ok := m.results[query]; ok {
		return r, nil
	}
	return &scraper.SearchResult{Query: query}, nil
}

// mockCatalog implements the Catalog interface for testing
type mockCatalog struct {
	mu           sync.Mutex
	stale        []store.StaleEntity
	reconcileErr error
	replaceErr   error
	replaced     map[int64][]scraper.Listing
	profits      map[int64]profit.Result
	touched      []int64
}

var _ Catalog = (*mockCatalog)(nil)

func newMockCatalog(stale ...store.StaleEntity) *mockCatalog {
	return &mockCatalog{
		stale:    stale,
		replaced: make(map[int64][]scraper.Listing),
		profits:  make(map[int64]profit.Result),
	}
}

func (m *mockCatalog) Reconcile(_ context.Context, fresh []scraper.RawEntity, _ int) ([]store.StaleEntity, store.ReconcileStats, error) {
	if m.reconcileErr != nil {
		return nil, store.ReconcileStats{}, m.reconcileErr
	}
	return m.stale, store.ReconcileStats{Inserted: len(fresh), Stale: len(m.stale)}, nil
}

func (m *mockCatalog) ReplaceComparisonListings(_ context.Context, entityID int64, listings []scraper.Listing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.replaced[entityID] = listings
	return nil
}

func (m *mockCatalog) UpdateProfit(_ context.Context, entityID int64, result profit.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profits[entityID] = result
	return nil
}

func (m *mockCatalog) TouchComparisonCheck(_ context.Context, entityID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched = append(m.touched, entityID)
	return nil
}

// mockNotifier implements the DealNotifier interface for testing
type mockNotifier struct {
	mu    sync.Mutex
	deals []notify.Deal
}

var _ DealNotifier = (*mockNotifier)(nil)

func (m *mockNotifier) Notify(_ context.Context, deal notify.Deal) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !deal.Result.IsProfitable {
		return false
	}
	m.deals = append(m.deals, deal)
	return true
}

// mockPublisher implements the publisher.Publisher interface for testing
type mockPublisher struct {
	mu       sync.Mutex
	messages map[string][][]byte
	trimmed  bool
}

var _ publisher.Publisher = (*mockPublisher)(nil)

func newMockPublisher() *mockPublisher {
	return &mockPublisher{messages: make(map[string][][]byte)}
}

func (m *mockPublisher) Publish(key string, message []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	messageCopy := make([]byte, len(message))
	copy(messageCopy, message)
	m.messages[key] = append(m.messages[key], messageCopy)
	return nil
}

func (m *mockPublisher) TrimStreams() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trimmed = true
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func testConfig() Config {
	return Config{
		ThresholdDays:   14,
		MinMargin:       decimal.NewFromInt(20),
		MaxWorkers:      2,
		RateLimit:       0,
		PublishEntities: true,
	}
}

func staleEntity(id int64, name string, price int64) store.StaleEntity {
	return store.StaleEntity{
		ID:        id,
		Name:      name,
		Price:     decimal.NewFromInt(price),
		SourceURL: "https://www.idealo.de/preisvergleich/OffersOfProduct/1.html",
		Reason:    store.ReasonStale,
	}
}

func searchResultWithPrice(query string, price int64) *scraper.SearchResult {
	return &scraper.SearchResult{
		Query: query,
		BestMatches: []scraper.Listing{
			{Title: query, Price: decimal.NewFromInt(price), SourceURL: "https://www.ebay.de/itm/1", Tier: scraper.TierHigh},
		},
	}
}

func TestRunCycleProfitableEntity(t *testing.T) {
	harvester := &mockHarvester{entities: []scraper.RawEntity{
		{Name: "AirPods", Price: decimal.NewFromInt(100), SourceURL: "https://idealo.de/1"},
	}}
	catalog := newMockCatalog(staleEntity(1, "AirPods", 100))
	searcher := &mockSearcher{results: map[string]*scraper.SearchResult{
		"AirPods": searchResultWithPrice("AirPods", 180),
	}}
	notifier := &mockNotifier{}
	pub := newMockPublisher()

	w := NewWorker(context.Background(), harvester, searcher, catalog, notifier, pub, testConfig())
	stats, err := w.RunCycle()
	assert.NoError(t, err)

	assert.Equal(t, 1, stats.Harvested)
	assert.Equal(t, 1, stats.Stale)
	assert.Equal(t, 1, stats.Checked)
	assert.Equal(t, 1, stats.Profitable)
	assert.Equal(t, 1, stats.Notified)
	assert.Equal(t, 0, stats.Failed)

	assert.Len(t, catalog.replaced[1], 1)
	assert.True(t, catalog.profits[1].IsProfitable)
	assert.Contains(t, catalog.touched, int64(1))
	assert.Len(t, notifier.deals, 1)

	assert.Len(t, pub.messages["idealo"], 1)
	assert.Len(t, pub.messages["deal"], 1)
	assert.True(t, pub.trimmed)
}

func TestRunCycleUnprofitableEntityStillPersisted(t *testing.T) {
	catalog := newMockCatalog(staleEntity(1, "AirPods", 100))
	searcher := &mockSearcher{results: map[string]*scraper.SearchResult{
		"AirPods": searchResultWithPrice("AirPods", 105),
	}}
	notifier := &mockNotifier{}
	pub := newMockPublisher()

	w := NewWorker(context.Background(), &mockHarvester{}, searcher, catalog, notifier, pub, testConfig())
	stats, err := w.RunCycle()
	assert.NoError(t, err)

	assert.Equal(t, 1, stats.Checked)
	assert.Equal(t, 0, stats.Profitable)
	assert.Equal(t, 0, stats.Notified)

	// the comparison set, score and check stamp land regardless
	assert.Len(t, catalog.replaced[1], 1)
	assert.False(t, catalog.profits[1].IsProfitable)
	assert.Contains(t, catalog.touched, int64(1))
	assert.Empty(t, notifier.deals)
	assert.Empty(t, pub.messages["deal"])
}

func TestRunCycleEmptySearchClearsComparisons(t *testing.T) {
	catalog := newMockCatalog(staleEntity(1, "Obscure", 100))
	searcher := &mockSearcher{}

	w := NewWorker(context.Background(), &mockHarvester{}, searcher, catalog, &mockNotifier{}, nil, testConfig())
	_, err := w.RunCycle()
	assert.NoError(t, err)

	// an empty result still replaces (clears) the stored comparison set
	stored, ok := catalog.replaced[1]
	assert.True(t, ok)
	assert.Empty(t, stored)
	assert.Contains(t, catalog.touched, int64(1))
	assert.False(t, catalog.profits[1].IsProfitable)
}

func TestRunCycleHarvestFailureAborts(t *testing.T) {
	harvester := &mockHarvester{err: errors.New("site unreachable")}
	catalog := newMockCatalog(staleEntity(1, "AirPods", 100))

	w := NewWorker(context.Background(), harvester, &mockSearcher{}, catalog, &mockNotifier{}, nil, testConfig())
	_, err := w.RunCycle()
	assert.Error(t, err)
	assert.Empty(t, catalog.touched)
}

func TestRunCycleReconcileFailureAborts(t *testing.T) {
	catalog := newMockCatalog()
	catalog.reconcileErr = errors.New("database down")
	searcher := &mockSearcher{}

	w := NewWorker(context.Background(), &mockHarvester{}, searcher, catalog, &mockNotifier{}, nil, testConfig())
	_, err := w.RunCycle()
	assert.Error(t, err)
	assert.Empty(t, searcher.queries)
}

func TestRunCycleSearchFailureIsLocalToEntity(t *testing.T) {
	catalog := newMockCatalog(
		staleEntity(1, "Broken", 100),
		staleEntity(2, "Working", 100),
	)
	searcher := &mockSearcher{
		errs: map[string]error{"Broken": errors.New("blocked")},
		results: map[string]*scraper.SearchResult{
			"Working": searchResultWithPrice("Working", 180),
		},
	}

	w := NewWorker(context.Background(), &mockHarvester{}, searcher, catalog, &mockNotifier{}, nil, testConfig())
	stats, err := w.RunCycle()
	assert.NoError(t, err)

	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Checked)

	// the failed entity keeps its old state: nothing replaced, no stamp
	_, replaced := catalog.replaced[1]
	assert.False(t, replaced)
	assert.NotContains(t, catalog.touched, int64(1))
	assert.Contains(t, catalog.touched, int64(2))
}

func TestRunCyclePersistenceFailureSkipsProfitAndStamp(t *testing.T) {
	catalog := newMockCatalog(staleEntity(1, "AirPods", 100))
	catalog.replaceErr = errors.New("constraint violation")
	searcher := &mockSearcher{results: map[string]*scraper.SearchResult{
		"AirPods": searchResultWithPrice("AirPods", 180),
	}}

	w := NewWorker(context.Background(), &mockHarvester{}, searcher, catalog, &mockNotifier{}, nil, testConfig())
	stats, err := w.RunCycle()
	assert.NoError(t, err)

	assert.Equal(t, 1, stats.Failed)
	assert.Empty(t, catalog.profits)
	assert.Empty(t, catalog.touched)
}

func TestRunCycleWithoutPublisher(t *testing.T) {
	catalog := newMockCatalog(staleEntity(1, "AirPods", 100))
	searcher := &mockSearcher{results: map[string]*scraper.SearchResult{
		"AirPods": searchResultWithPrice("AirPods", 180),
	}}

	w := NewWorker(context.Background(), &mockHarvester{}, searcher, catalog, &mockNotifier{}, nil, testConfig())
	stats, err := w.RunCycle()
	assert.NoError(t, err)
	assert.Equal(t, 1, stats.Profitable)
}
