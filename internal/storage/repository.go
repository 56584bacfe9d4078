package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"farewatch/internal/model"
	"farewatch/internal/quota"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertQuoteSQL = `INSERT INTO fare_quotes (
        origin,
        destination,
        carrier_code,
        price,
        currency,
        observed_at,
        source_id
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (source_id, observed_at) DO NOTHING;`

	listQuotesSinceSQL = `SELECT
        origin,
        destination,
        carrier_code,
        price,
        currency,
        observed_at,
        source_id
    FROM fare_quotes
    WHERE origin = $1
      AND destination = $2
      AND observed_at >= $3
    ORDER BY observed_at;`

	listRecentQuotesSQL = `SELECT
        origin,
        destination,
        carrier_code,
        price,
        currency,
        observed_at,
        source_id
    FROM fare_quotes
    WHERE origin = $1
      AND destination = $2
    ORDER BY observed_at DESC
    LIMIT $3;`

	deleteQuotesBeforeSQL = `DELETE FROM fare_quotes WHERE observed_at < $1;`

	getSeenSQL = `SELECT fingerprint, last_seen_at
    FROM seen_records
    WHERE fingerprint = $1;`

	upsertSeenSQL = `INSERT INTO seen_records (fingerprint, last_seen_at)
    VALUES ($1,$2)
    ON CONFLICT (fingerprint) DO UPDATE
    SET last_seen_at = EXCLUDED.last_seen_at;`

	deleteSeenBeforeSQL = `DELETE FROM seen_records WHERE last_seen_at < $1;`

	loadQuotaSQL = `SELECT provider, used, period_start FROM quota_usage;`

	saveQuotaSQL = `INSERT INTO quota_usage (provider, used, period_start)
    VALUES ($1,$2,$3)
    ON CONFLICT (provider) DO UPDATE
    SET used = EXCLUDED.used,
        period_start = EXCLUDED.period_start;`

	insertAlertSQL = `INSERT INTO alerts (
        event_id,
        origin,
        destination,
        carrier_code,
        price,
        currency,
        rating,
        reference_price,
        savings_amount,
        savings_percent,
        best_program,
        decided_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
    );`

	listRecentAlertsSQL = `SELECT
        id,
        event_id,
        origin,
        destination,
        carrier_code,
        price,
        currency,
        rating,
        reference_price,
        savings_amount,
        savings_percent,
        best_program,
        decided_at,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`
)

// QuoteStore defines operations for fare observation persistence.
type QuoteStore interface {
	InsertQuotes(ctx context.Context, quotes []model.PriceQuote) error
	ListQuotesSince(ctx context.Context, route model.Route, since time.Time) ([]model.PriceQuote, error)
	ListRecentQuotes(ctx context.Context, route model.Route, limit int) ([]model.PriceQuote, error)
	DeleteQuotesBefore(ctx context.Context, olderThan time.Time) error
}

// SeenStore defines operations for the fingerprint table.
type SeenStore interface {
	GetSeen(ctx context.Context, fingerprint string) (*model.SeenRecord, error)
	UpsertSeen(ctx context.Context, record model.SeenRecord) error
	DeleteSeenBefore(ctx context.Context, olderThan time.Time) error
}

// QuotaStore persists per-provider usage counters across invocations.
type QuotaStore interface {
	LoadQuota(ctx context.Context) ([]quota.Usage, error)
	SaveQuota(ctx context.Context, usages []quota.Usage) error
}

// AlertStore defines operations for alert auditing.
type AlertStore interface {
	InsertAlert(ctx context.Context, event model.AlertEvent) error
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
}

// Store aggregates access to quotes, seen records, quota counters, and
// alert audit rows.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertQuotes persists fare observations, skipping already-seen
// (source_id, observed_at) pairs.
func (s *Store) InsertQuotes(ctx context.Context, quotes []model.PriceQuote) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	for _, q := range quotes {
		if _, execErr := pool.Exec(ctx, insertQuoteSQL,
			q.Origin,
			q.Destination,
			q.CarrierCode,
			q.Price.String(),
			q.Currency,
			q.ObservedAt,
			q.SourceID,
		); execErr != nil {
			return fmt.Errorf("insert fare quote: %w", execErr)
		}
	}
	return nil
}

// ListQuotesSince lists observations for a route from the given time,
// oldest first.
func (s *Store) ListQuotesSince(ctx context.Context, route model.Route, since time.Time) ([]model.PriceQuote, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listQuotesSinceSQL, route.Origin, route.Destination, since)
	if queryErr != nil {
		return nil, fmt.Errorf("list quotes since: %w", queryErr)
	}
	defer rows.Close()

	return collectQuotes(rows)
}

// ListRecentQuotes lists the most recent observations, newest first.
func (s *Store) ListRecentQuotes(ctx context.Context, route model.Route, limit int) ([]model.PriceQuote, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentQuotesSQL, route.Origin, route.Destination, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent quotes: %w", queryErr)
	}
	defer rows.Close()

	return collectQuotes(rows)
}

// DeleteQuotesBefore trims observations outside the retention window.
func (s *Store) DeleteQuotesBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteQuotesBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete quotes before: %w", execErr)
	}
	return nil
}

// GetSeen fetches a fingerprint record, or nil when absent.
func (s *Store) GetSeen(ctx context.Context, fingerprint string) (*model.SeenRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	var record model.SeenRecord
	scanErr := pool.QueryRow(ctx, getSeenSQL, fingerprint).Scan(&record.Fingerprint, &record.LastSeenAt)
	if scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get seen record: %w", scanErr)
	}
	return &record, nil
}

// UpsertSeen records a fingerprint emission time.
func (s *Store) UpsertSeen(ctx context.Context, record model.SeenRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, upsertSeenSQL, record.Fingerprint, record.LastSeenAt); execErr != nil {
		return fmt.Errorf("upsert seen record: %w", execErr)
	}
	return nil
}

// DeleteSeenBefore prunes fingerprints last seen before the cutoff.
func (s *Store) DeleteSeenBefore(ctx context.Context, olderThan time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteSeenBeforeSQL, olderThan); execErr != nil {
		return fmt.Errorf("delete seen records before: %w", execErr)
	}
	return nil
}

// LoadQuota reads all persisted provider counters.
func (s *Store) LoadQuota(ctx context.Context) ([]quota.Usage, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, loadQuotaSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("load quota usage: %w", queryErr)
	}
	defer rows.Close()

	usages := make([]quota.Usage, 0)
	for rows.Next() {
		var u quota.Usage
		if err := rows.Scan(&u.Provider, &u.Used, &u.PeriodStart); err != nil {
			return nil, err
		}
		usages = append(usages, u)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return usages, nil
}

// SaveQuota writes the provider counters back.
func (s *Store) SaveQuota(ctx context.Context, usages []quota.Usage) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, u := range usages {
		if _, execErr := pool.Exec(ctx, saveQuotaSQL, u.Provider, u.Used, u.PeriodStart); execErr != nil {
			return fmt.Errorf("save quota usage: %w", execErr)
		}
	}
	return nil
}

// InsertAlert persists an emitted alert for auditing.
func (s *Store) InsertAlert(ctx context.Context, event model.AlertEvent) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var bestProgram interface{}
	if event.BestMiles != nil {
		bestProgram = event.BestMiles.Program
	}

	offer := event.Offer
	if _, execErr := pool.Exec(ctx, insertAlertSQL,
		event.ID,
		offer.Quote.Origin,
		offer.Quote.Destination,
		offer.Quote.CarrierCode,
		offer.Quote.Price.String(),
		offer.Quote.Currency,
		string(offer.Rating),
		offer.ReferencePrice.String(),
		offer.SavingsAmount.String(),
		offer.SavingsPercent.String(),
		bestProgram,
		event.DecidedAt,
	); execErr != nil {
		return fmt.Errorf("insert alert: %w", execErr)
	}
	return nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var (
			rec         AlertRecord
			priceStr    string
			refStr      string
			savingsStr  string
			pctStr      string
			bestProgram sql.NullString
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.EventID,
			&rec.Origin,
			&rec.Destination,
			&rec.CarrierCode,
			&priceStr,
			&rec.Currency,
			&rec.Rating,
			&refStr,
			&savingsStr,
			&pctStr,
			&bestProgram,
			&rec.DecidedAt,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}

		var convErr error
		if rec.Price, convErr = decimal.NewFromString(priceStr); convErr != nil {
			return nil, fmt.Errorf("parse alert price: %w", convErr)
		}
		if rec.ReferencePrice, convErr = decimal.NewFromString(refStr); convErr != nil {
			return nil, fmt.Errorf("parse reference price: %w", convErr)
		}
		if rec.SavingsAmount, convErr = decimal.NewFromString(savingsStr); convErr != nil {
			return nil, fmt.Errorf("parse savings amount: %w", convErr)
		}
		if rec.SavingsPercent, convErr = decimal.NewFromString(pctStr); convErr != nil {
			return nil, fmt.Errorf("parse savings percent: %w", convErr)
		}
		if bestProgram.Valid {
			program := bestProgram.String
			rec.BestProgram = &program
		}

		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

func collectQuotes(rows pgx.Rows) ([]model.PriceQuote, error) {
	quotes := make([]model.PriceQuote, 0)
	for rows.Next() {
		var (
			q        model.PriceQuote
			priceStr string
		)
		if err := rows.Scan(
			&q.Origin,
			&q.Destination,
			&q.CarrierCode,
			&priceStr,
			&q.Currency,
			&q.ObservedAt,
			&q.SourceID,
		); err != nil {
			return nil, err
		}

		price, convErr := decimal.NewFromString(priceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse quote price: %w", convErr)
		}
		q.Price = price
		quotes = append(quotes, q)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return quotes, nil
}
