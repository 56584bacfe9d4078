// Package scoring converts price quotes into rated offers.
package scoring

import (
	"errors"

	"github.com/shopspring/decimal"

	"farewatch/internal/baseline"
	"farewatch/internal/model"
)

// ErrInsufficientHistory indicates the baseline holds no data for the
// quote's observation time, so the quote cannot be scored.
var ErrInsufficientHistory = errors.New("scoring: insufficient history")

// Thresholds are the rating ladder cutoffs. They are policy constants, not
// business law, and come from configuration.
type Thresholds struct {
	ExcellentMaxPrice      decimal.Decimal
	ExcellentMinSavingsPct decimal.Decimal
	GoodMaxPrice           decimal.Decimal
	GoodMinSavingsPct      decimal.Decimal
}

// DefaultThresholds mirrors the observed market bands for the route.
func DefaultThresholds() Thresholds {
	return Thresholds{
		ExcellentMaxPrice:      decimal.NewFromInt(300),
		ExcellentMinSavingsPct: decimal.NewFromFloat(0.30),
		GoodMaxPrice:           decimal.NewFromInt(500),
		GoodMinSavingsPct:      decimal.NewFromFloat(0.15),
	}
}

// Scorer rates quotes against a baseline reference price.
type Scorer struct {
	thresholds Thresholds
}

// NewScorer constructs a scorer with the given cutoffs.
func NewScorer(thresholds Thresholds) *Scorer {
	return &Scorer{thresholds: thresholds}
}

// Score derives an Offer from a quote and the current baseline.
func (s *Scorer) Score(quote model.PriceQuote, b *baseline.Baseline) (model.Offer, error) {
	reference, err := b.ReferencePrice(quote.ObservedAt)
	if err != nil {
		if errors.Is(err, baseline.ErrNoData) {
			return model.Offer{}, ErrInsufficientHistory
		}
		return model.Offer{}, err
	}

	savings := reference.Sub(quote.Price)
	savingsPct := savings.Div(reference)

	return model.Offer{
		Quote:          quote,
		Rating:         s.rate(quote.Price, savingsPct),
		ReferencePrice: reference,
		SavingsAmount:  savings,
		SavingsPercent: savingsPct,
	}, nil
}

// rate applies the ladder in order; the first matching band wins.
func (s *Scorer) rate(price, savingsPct decimal.Decimal) model.Rating {
	switch {
	case price.LessThan(s.thresholds.ExcellentMaxPrice) && savingsPct.GreaterThanOrEqual(s.thresholds.ExcellentMinSavingsPct):
		return model.RatingExcellent
	case price.LessThan(s.thresholds.GoodMaxPrice) && savingsPct.GreaterThanOrEqual(s.thresholds.GoodMinSavingsPct):
		return model.RatingGood
	case savingsPct.GreaterThanOrEqual(decimal.Zero):
		return model.RatingRegular
	default:
		return model.RatingPoor
	}
}
