// Package dedupe suppresses repeated alerts for an unchanged offer
// condition. It is intentionally independent of the decision thresholds so
// threshold tuning cannot reintroduce notification storms.
package dedupe

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"farewatch/internal/model"
)

// Gate decides whether an alert fingerprint may be emitted now. A true
// result records the fingerprint as seen.
type Gate interface {
	ShouldEmit(ctx context.Context, fingerprint string, now time.Time) (bool, error)
}

// Fingerprint derives the identity of an offer condition from the route,
// the price bucketed to the given width, and the rating.
func Fingerprint(route model.Route, price decimal.Decimal, bucketWidth decimal.Decimal, rating model.Rating) string {
	bucket := price.Div(bucketWidth).Floor().Mul(bucketWidth)
	raw := fmt.Sprintf("%s|%s|%s", route, bucket.StringFixed(0), rating)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:8])
}

// SeenStore persists fingerprint last-seen records.
type SeenStore interface {
	GetSeen(ctx context.Context, fingerprint string) (*model.SeenRecord, error)
	UpsertSeen(ctx context.Context, record model.SeenRecord) error
}

// StoreGate suppresses fingerprints seen within the window, backed by a
// persisted seen-record table.
type StoreGate struct {
	store  SeenStore
	window time.Duration
}

// NewStoreGate wires a seen-record store into a gate.
func NewStoreGate(store SeenStore, window time.Duration) *StoreGate {
	return &StoreGate{store: store, window: window}
}

// ShouldEmit reports whether the fingerprint was last seen outside the
// suppression window and records it when emission is allowed.
func (g *StoreGate) ShouldEmit(ctx context.Context, fingerprint string, now time.Time) (bool, error) {
	record, err := g.store.GetSeen(ctx, fingerprint)
	if err != nil {
		return false, fmt.Errorf("get seen record: %w", err)
	}

	if record != nil && now.Sub(record.LastSeenAt) < g.window {
		return false, nil
	}

	if err := g.store.UpsertSeen(ctx, model.SeenRecord{Fingerprint: fingerprint, LastSeenAt: now}); err != nil {
		return false, fmt.Errorf("upsert seen record: %w", err)
	}
	return true, nil
}

// NopGate always allows emission. Used by the alert simulation path.
type NopGate struct{}

func (NopGate) ShouldEmit(context.Context, string, time.Time) (bool, error) {
	return true, nil
}

var (
	_ Gate = (*StoreGate)(nil)
	_ Gate = NopGate{}
)
