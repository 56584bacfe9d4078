// Package baseline maintains the rolling price history used as the
// scoring reference.
package baseline

import (
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"farewatch/internal/model"
)

// ErrNoData indicates the retention window holds no quotes. Callers must
// treat this as "cannot score", never as a zero price.
var ErrNoData = errors.New("baseline: no data in retention window")

type entryKey struct {
	sourceID   string
	observedAt int64
}

// Baseline is an append-only, time-windowed collection of past quotes.
// Eviction is lazy: it happens on append and on read, never in the
// background.
type Baseline struct {
	retention time.Duration
	quotes    []model.PriceQuote
	keys      map[entryKey]struct{}
}

// New builds an empty baseline with the given retention window.
func New(retention time.Duration) *Baseline {
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &Baseline{
		retention: retention,
		keys:      make(map[entryKey]struct{}),
	}
}

// Append records a quote. Quotes sharing (source_id, observed_at) with an
// existing entry are ignored.
func (b *Baseline) Append(quote model.PriceQuote) {
	b.evict(quote.ObservedAt)

	key := entryKey{sourceID: quote.SourceID, observedAt: quote.ObservedAt.UnixNano()}
	if _, seen := b.keys[key]; seen {
		return
	}
	b.keys[key] = struct{}{}
	b.quotes = append(b.quotes, quote)
}

// ReferencePrice returns the median price of all quotes retained as of the
// given time. The median resists single-spike distortion better than the
// mean.
func (b *Baseline) ReferencePrice(asOf time.Time) (decimal.Decimal, error) {
	b.evict(asOf)

	if len(b.quotes) == 0 {
		return decimal.Decimal{}, ErrNoData
	}

	prices := make([]decimal.Decimal, len(b.quotes))
	for i, q := range b.quotes {
		prices[i] = q.Price
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].LessThan(prices[j]) })

	mid := len(prices) / 2
	if len(prices)%2 == 1 {
		return prices[mid], nil
	}
	return prices[mid-1].Add(prices[mid]).Div(decimal.NewFromInt(2)), nil
}

// Len reports the number of retained quotes without evicting.
func (b *Baseline) Len() int {
	return len(b.quotes)
}

// Quotes returns the retained quotes as of the given time, oldest first.
func (b *Baseline) Quotes(asOf time.Time) []model.PriceQuote {
	b.evict(asOf)
	out := make([]model.PriceQuote, len(b.quotes))
	copy(out, b.quotes)
	sort.Slice(out, func(i, j int) bool { return out[i].ObservedAt.Before(out[j].ObservedAt) })
	return out
}

func (b *Baseline) evict(asOf time.Time) {
	cutoff := asOf.Add(-b.retention)
	kept := b.quotes[:0]
	for _, q := range b.quotes {
		if q.ObservedAt.Before(cutoff) {
			delete(b.keys, entryKey{sourceID: q.SourceID, observedAt: q.ObservedAt.UnixNano()})
			continue
		}
		kept = append(kept, q)
	}
	b.quotes = kept
}
