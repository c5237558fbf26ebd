// Package store persists the tracked-entity catalog, its price history
// and the comparison listings backing the profitability signal.
package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"dropscout/internal/profit"
	"dropscout/internal/scraper"
	"dropscout/logger"
	pkgerrors "dropscout/pkg/errors"
)

// StaleReason explains why an entity landed on the comparison work-list.
type StaleReason string

const (
	ReasonNew          StaleReason = "new"
	ReasonNeverChecked StaleReason = "never_checked"
	ReasonStale        StaleReason = "stale"
)

// StaleEntity is one work-list item needing a cross-marketplace lookup.
type StaleEntity struct {
	ID        int64
	Name      string
	Price     decimal.Decimal
	SourceURL string
	Reason    StaleReason
}

// ReconcileStats summarizes one reconciliation pass.
type ReconcileStats struct {
	Inserted int
	Updated  int
	Stale    int
}

// Staleness comparisons use a fixed reference zone so the day arithmetic
// does not drift with the host clock.
var referenceZone = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		return time.UTC
	}
	return loc
}()

// Store wraps the Postgres connection behind the catalog operations.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// Open connects to Postgres, waits for it to become reachable, and runs
// schema migrations.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, pkgerrors.NewPersistence("failed to open database", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, pkgerrors.NewPersistence("database unreachable after retries", err)
	}

	s := &Store{db: db, log: logger.ForStore()}
	if err := s.migrate(); err != nil {
		return nil, pkgerrors.NewPersistence("migration failed", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tracked_entities (
			id                    SERIAL PRIMARY KEY,
			name                  TEXT          NOT NULL,
			price                 NUMERIC(12,2) NOT NULL,
			discount              INTEGER,
			source_url            TEXT          UNIQUE NOT NULL,
			image_url             TEXT          NOT NULL DEFAULT '',
			is_active             BOOLEAN       NOT NULL DEFAULT TRUE,
			category              TEXT          NOT NULL DEFAULT '',
			last_comparison_check TIMESTAMPTZ,
			potential_profit      NUMERIC(12,2),
			profit_percentage     NUMERIC(8,2),
			is_profitable         BOOLEAN       NOT NULL DEFAULT FALSE,
			min_comparison_price  NUMERIC(12,2),
			created_at            TIMESTAMPTZ   NOT NULL DEFAULT NOW(),
			updated_at            TIMESTAMPTZ   NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS price_history (
			id          SERIAL PRIMARY KEY,
			entity_id   INTEGER       NOT NULL REFERENCES tracked_entities(id) ON DELETE CASCADE,
			price       NUMERIC(12,2) NOT NULL,
			observed_at TIMESTAMPTZ   NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS comparison_listings (
			id          SERIAL PRIMARY KEY,
			entity_id   INTEGER       NOT NULL REFERENCES tracked_entities(id) ON DELETE CASCADE,
			title       TEXT          NOT NULL,
			subtitle    TEXT          NOT NULL DEFAULT '',
			price       NUMERIC(12,2) NOT NULL,
			source_url  TEXT          NOT NULL,
			image_url   TEXT          NOT NULL DEFAULT '',
			observed_at TIMESTAMPTZ   NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_tracked_entities_active ON tracked_entities(is_active);
		CREATE INDEX IF NOT EXISTS idx_price_history_entity    ON price_history(entity_id);
		CREATE INDEX IF NOT EXISTS idx_comparison_entity       ON comparison_listings(entity_id);
	`)
	return err
}

// Reconcile merges a freshly harvested batch into the catalog inside one
// transaction: every entity is deactivated first, then each harvested
// entity is upserted by source URL and reactivated, a price-history row
// is appended, and the staleness work-list is computed.
func (s *Store) Reconcile(ctx context.Context, fresh []scraper.RawEntity, thresholdDays int) ([]StaleEntity, ReconcileStats, error) {
	stats := ReconcileStats{}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, stats, pkgerrors.NewPersistence("failed to begin reconciliation", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE tracked_entities SET is_active = FALSE`); err != nil {
		return nil, stats, pkgerrors.NewPersistence("failed to deactivate catalog", err)
	}

	now := time.Now().In(referenceZone)
	seen := make(map[string]bool, len(fresh))
	var stale []StaleEntity

	for _, entity := range fresh {
		if seen[entity.SourceURL] {
			continue
		}
		seen[entity.SourceURL] = true

		var (
			id        int64
			lastCheck sql.NullTime
			isNew     bool
		)
		err := tx.QueryRowContext(ctx,
			`SELECT id, last_comparison_check FROM tracked_entities WHERE source_url = $1`,
			entity.SourceURL,
		).Scan(&id, &lastCheck)

		switch {
		case err == sql.ErrNoRows:
			isNew = true
			err = tx.QueryRowContext(ctx, `
				INSERT INTO tracked_entities (name, price, discount, source_url, image_url, category)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING id`,
				entity.Name, entity.Price, entity.Discount, entity.SourceURL,
				entity.ImageURL, entity.Category,
			).Scan(&id)
			if err != nil {
				return nil, stats, pkgerrors.NewPersistence("failed to insert entity", err)
			}
			stats.Inserted++
		case err != nil:
			return nil, stats, pkgerrors.NewPersistence("failed to look up entity", err)
		default:
			_, err = tx.ExecContext(ctx, `
				UPDATE tracked_entities
				SET name = $1, price = $2, discount = $3, image_url = $4,
				    category = $5, is_active = TRUE, updated_at = NOW()
				WHERE id = $6`,
				entity.Name, entity.Price, entity.Discount, entity.ImageURL,
				entity.Category, id,
			)
			if err != nil {
				return nil, stats, pkgerrors.NewPersistence("failed to update entity", err)
			}
			stats.Updated++
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO price_history (entity_id, price) VALUES ($1, $2)`,
			id, entity.Price,
		); err != nil {
			return nil, stats, pkgerrors.NewPersistence("failed to append price history", err)
		}

		var last *time.Time
		if lastCheck.Valid {
			last = &lastCheck.Time
		}
		if reason, needed := stalenessReason(isNew, last, now, thresholdDays); needed {
			stale = append(stale, StaleEntity{
				ID:        id,
				Name:      entity.Name,
				Price:     entity.Price,
				SourceURL: entity.SourceURL,
				Reason:    reason,
			})
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, stats, pkgerrors.NewPersistence("failed to commit reconciliation", err)
	}

	stats.Stale = len(stale)
	s.log.Info().
		Int("inserted", stats.Inserted).
		Int("updated", stats.Updated).
		Int("stale", stats.Stale).
		Msg("Catalog reconciled")
	return stale, stats, nil
}

// stalenessReason decides whether an entity needs a comparison check.
// An entity qualifies exactly when it is newly inserted, has never been
// checked, or was last checked more than thresholdDays ago.
func stalenessReason(isNew bool, last *time.Time, now time.Time, thresholdDays int) (StaleReason, bool) {
	if isNew {
		return ReasonNew, true
	}
	if last == nil {
		return ReasonNeverChecked, true
	}
	days := int(now.Sub(last.In(referenceZone)).Hours() / 24)
	if days > thresholdDays {
		return ReasonStale, true
	}
	return "", false
}

// ReplaceComparisonListings swaps the comparison set for an entity
// wholesale in one transaction. An empty result still clears the old
// set, so a stale comparison snapshot never outlives the search that
// invalidated it.
func (s *Store) ReplaceComparisonListings(ctx context.Context, entityID int64, listings []scraper.Listing) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return pkgerrors.NewPersistence("failed to begin comparison replace", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM comparison_listings WHERE entity_id = $1`, entityID,
	); err != nil {
		return pkgerrors.NewPersistence("failed to clear comparison listings", err)
	}

	for _, l := range listings {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO comparison_listings (entity_id, title, subtitle, price, source_url, image_url)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			entityID, l.Title, l.Subtitle, l.Price, l.SourceURL, l.ImageURL,
		); err != nil {
			return pkgerrors.NewPersistence("failed to insert comparison listing", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return pkgerrors.NewPersistence("failed to commit comparison replace", err)
	}
	return nil
}

// UpdateProfit writes the profitability fields for an entity.
func (s *Store) UpdateProfit(ctx context.Context, entityID int64, result profit.Result) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tracked_entities
		SET min_comparison_price = $1, potential_profit = $2,
		    profit_percentage = $3, is_profitable = $4, updated_at = NOW()
		WHERE id = $5`,
		decimalOrNil(result.MinComparisonPrice), decimalOrNil(result.PotentialProfit),
		floatOrNil(result.ProfitPercent), result.IsProfitable, entityID,
	)
	if err != nil {
		return pkgerrors.NewPersistence("failed to update profitability", err)
	}
	return nil
}

// TouchComparisonCheck stamps the comparison-check time. Called on every
// completed lookup, profitable or not, so the staleness clock restarts.
func (s *Store) TouchComparisonCheck(ctx context.Context, entityID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tracked_entities
		SET last_comparison_check = NOW(), updated_at = NOW()
		WHERE id = $1`,
		entityID,
	)
	if err != nil {
		return pkgerrors.NewPersistence("failed to stamp comparison check", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func decimalOrNil(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return *d
}

func floatOrNil(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}
