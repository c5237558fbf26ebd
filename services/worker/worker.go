package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"dropscout/internal/notify"
	"dropscout/internal/profit"
	"dropscout/internal/scraper"
	"dropscout/internal/store"
	"dropscout/logger"
	"dropscout/services/publisher"

	"github.com/shopspring/decimal"
)

// Harvester produces the fresh entity batch from the primary marketplace.
type Harvester interface {
	Harvest(ctx context.Context) ([]scraper.RawEntity, scraper.HarvestStats, error)
}

// Searcher runs one comparison query against the secondary marketplace.
type Searcher interface {
	Search(ctx context.Context, query string) (*scraper.SearchResult, error)
}

// Catalog is the persistence surface the pipeline drives.
type Catalog interface {
	Reconcile(ctx context.Context, fresh []scraper.RawEntity, thresholdDays int) ([]store.StaleEntity, store.ReconcileStats, error)
	ReplaceComparisonListings(ctx context.Context, entityID int64, listings []scraper.Listing) error
	UpdateProfit(ctx context.Context, entityID int64, result profit.Result) error
	TouchComparisonCheck(ctx context.Context, entityID int64) error
}

// DealNotifier raises an alert for a profitable deal.
type DealNotifier interface {
	Notify(ctx context.Context, deal notify.Deal) bool
}

// Config tunes one pipeline worker.
type Config struct {
	Interval       time.Duration
	ThresholdDays  int
	MinMargin      decimal.Decimal
	MaxWorkers     int
	RateLimit      time.Duration
	PublishEntities bool
}

// CycleStats summarizes one pipeline cycle.
type CycleStats struct {
	mu         sync.Mutex
	Harvested  int
	Stale      int
	Checked    int
	Profitable int
	Notified   int
	Failed     int
}

func (s *CycleStats) record(profitable, notified, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if failed {
		s.Failed++
		return
	}
	s.Checked++
	if profitable {
		s.Profitable++
	}
	if notified {
		s.Notified++
	}
}

// Worker runs the harvest-reconcile-compare pipeline on an interval.
type Worker struct {
	ctx       context.Context
	harvester Harvester
	searcher  Searcher
	catalog   Catalog
	notifier  DealNotifier
	publisher publisher.Publisher
	cfg       Config
	log       *logger.Logger
}

// NewWorker creates a pipeline worker.
func NewWorker(
	ctx context.Context,
	harvester Harvester,
	searcher Searcher,
	catalog Catalog,
	notifier DealNotifier,
	pub publisher.Publisher,
	cfg Config,
) *Worker {
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 1
	}
	return &Worker{
		ctx:       ctx,
		harvester: harvester,
		searcher:  searcher,
		catalog:   catalog,
		notifier:  notifier,
		publisher: pub,
		cfg:       cfg,
		log:       logger.ForWorker(),
	}
}

// Start runs pipeline cycles until the context is cancelled.
func (w *Worker) Start() {
	for {
		start := time.Now()
		if _, err := w.RunCycle(); err != nil {
			w.log.Error().Err(err).Msg("Pipeline cycle failed")
		}
		w.log.Info().Dur("elapsed", time.Since(start)).Msg("Pipeline cycle finished")

		select {
		case <-w.ctx.Done():
			return
		case <-time.After(w.cfg.Interval):
		}
	}
}

// RunCycle executes one full pipeline pass: harvest, reconcile, then the
// comparison phase over the staleness work-list.
func (w *Worker) RunCycle() (*CycleStats, error) {
	stats := &CycleStats{}

	entities, hstats, err := w.harvester.Harvest(w.ctx)
	if err != nil {
		return stats, err
	}
	stats.Harvested = len(entities)
	w.log.Info().
		Int("entities", len(entities)).
		Int("pages", hstats.Pages).
		Int("skipped", hstats.Skipped).
		Msg("Harvest phase done")

	w.publishEntities(entities)

	staleList, _, err := w.catalog.Reconcile(w.ctx, entities, w.cfg.ThresholdDays)
	if err != nil {
		return stats, err
	}
	stats.Stale = len(staleList)

	p := newPool(w.cfg.MaxWorkers, w.cfg.RateLimit)
	for _, entity := range staleList {
		entity := entity
		p.submit(func() {
			w.checkEntity(entity, stats)
		})
	}
	p.wait()

	if w.publisher != nil {
		if err := w.publisher.TrimStreams(); err != nil {
			w.log.Error().Err(err).Msg("Stream trimming failed")
		}
	}

	w.log.Info().
		Int("stale", stats.Stale).
		Int("checked", stats.Checked).
		Int("profitable", stats.Profitable).
		Int("notified", stats.Notified).
		Int("failed", stats.Failed).
		Msg("Comparison phase done")
	return stats, nil
}

// checkEntity runs the expensive cross-marketplace lookup for one
// work-list entry. A failure here is local to the entity: other entries
// in the batch still get their comparison pass.
func (w *Worker) checkEntity(entity store.StaleEntity, stats *CycleStats) {
	log := w.log.WithFields(logger.Fields{
		"name":   entity.Name,
		"reason": string(entity.Reason),
	})

	result, err := w.searcher.Search(w.ctx, entity.Name)
	if err != nil {
		log.Error().Err(err).Msg("Comparison search failed")
		stats.record(false, false, true)
		return
	}

	listings := result.Listings()
	if err := w.catalog.ReplaceComparisonListings(w.ctx, entity.ID, listings); err != nil {
		log.Error().Err(err).Msg("Comparison listings replace failed")
		stats.record(false, false, true)
		return
	}

	score := profit.Score(entity.Price, listings, w.cfg.MinMargin)
	if err := w.catalog.UpdateProfit(w.ctx, entity.ID, score); err != nil {
		log.Error().Err(err).Msg("Profitability update failed")
		stats.record(false, false, true)
		return
	}
	if err := w.catalog.TouchComparisonCheck(w.ctx, entity.ID); err != nil {
		log.Error().Err(err).Msg("Comparison check stamp failed")
		stats.record(false, false, true)
		return
	}

	notified := false
	if w.notifier != nil {
		notified = w.notifier.Notify(w.ctx, notify.Deal{
			Name:           entity.Name,
			ReferencePrice: entity.Price,
			SourceURL:      entity.SourceURL,
			Result:         score,
			BestMatches:    result.BestMatches,
			LessRelevant:   result.LessRelevant,
		})
	}

	if score.IsProfitable {
		w.publishDeal(entity, score)
	}
	stats.record(score.IsProfitable, notified, false)
}

func (w *Worker) publishEntities(entities []scraper.RawEntity) {
	if w.publisher == nil || !w.cfg.PublishEntities {
		return
	}
	for _, entity := range entities {
		data, err := json.Marshal(entity)
		if err != nil {
			w.log.Error().Err(err).Msg("Entity marshal failed")
			continue
		}
		if err := w.publisher.Publish("idealo", data); err != nil {
			w.log.Error().Err(err).Msg("Entity publish failed")
		}
	}
}

func (w *Worker) publishDeal(entity store.StaleEntity, score profit.Result) {
	if w.publisher == nil {
		return
	}
	event := map[string]interface{}{
		"name":       entity.Name,
		"source_url": entity.SourceURL,
		"price":      entity.Price,
	}
	if score.PotentialProfit != nil {
		event["potential_profit"] = *score.PotentialProfit
	}
	if score.MinComparisonPrice != nil {
		event["min_comparison_price"] = *score.MinComparisonPrice
	}
	data, err := json.Marshal(event)
	if err != nil {
		w.log.Error().Err(err).Msg("Deal marshal failed")
		return
	}
	if err := w.publisher.Publish("deal", data); err != nil {
		w.log.Error().Err(err).Msg("Deal publish failed")
	}
}
