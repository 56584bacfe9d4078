// Package decision applies the emission gates that turn a scored offer
// into an alert or a suppression.
package decision

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"farewatch/internal/dedupe"
	"farewatch/internal/model"
)

// Reason explains a suppression.
type Reason string

const (
	ReasonRatingTooLow        Reason = "rating_too_low"
	ReasonInsufficientSavings Reason = "insufficient_savings"
	ReasonPriceTooHigh        Reason = "price_too_high"
	ReasonDuplicate           Reason = "duplicate"
	ReasonNoData              Reason = "no_data"
)

// Outcome is the terminal result of one decision: emit with an event, or
// suppress with a reason.
type Outcome struct {
	Emit   bool
	Reason Reason
	Event  *model.AlertEvent
}

// Suppressed builds a suppression outcome.
func Suppressed(reason Reason) Outcome {
	return Outcome{Reason: reason}
}

// Gates are the three independent numeric gates plus the fingerprint
// bucket width. All values are configuration, not fixed law.
type Gates struct {
	SavingsFloor decimal.Decimal
	PriceCeiling decimal.Decimal
	PriceBucket  decimal.Decimal
}

// DefaultGates mirrors the "only truly good, fresh offers" policy.
func DefaultGates() Gates {
	return Gates{
		SavingsFloor: decimal.NewFromInt(50),
		PriceCeiling: decimal.NewFromInt(500),
		PriceBucket:  decimal.NewFromInt(10),
	}
}

// Decider composes the offer gates with the dedupe gate.
type Decider struct {
	route model.Route
	gates Gates
	gate  dedupe.Gate
}

// New constructs a decider for the monitored route.
func New(route model.Route, gates Gates, gate dedupe.Gate) *Decider {
	return &Decider{route: route, gates: gates, gate: gate}
}

// Decide runs the gates in order: rating, savings floor, price ceiling,
// then dedupe. All must pass for an emission.
func (d *Decider) Decide(ctx context.Context, offer model.Offer, options []model.MilesOption, best *model.MilesOption, traffic *model.TrafficReading, now time.Time) (Outcome, error) {
	if offer.Rating != model.RatingExcellent && offer.Rating != model.RatingGood {
		return Suppressed(ReasonRatingTooLow), nil
	}
	if offer.SavingsAmount.LessThan(d.gates.SavingsFloor) {
		return Suppressed(ReasonInsufficientSavings), nil
	}
	if !offer.Quote.Price.LessThan(d.gates.PriceCeiling) {
		return Suppressed(ReasonPriceTooHigh), nil
	}

	fingerprint := dedupe.Fingerprint(d.route, offer.Quote.Price, d.gates.PriceBucket, offer.Rating)
	emit, err := d.gate.ShouldEmit(ctx, fingerprint, now)
	if err != nil {
		return Outcome{}, err
	}
	if !emit {
		return Suppressed(ReasonDuplicate), nil
	}

	event := &model.AlertEvent{
		ID:           uuid.New(),
		Offer:        offer,
		MilesOptions: options,
		BestMiles:    best,
		Traffic:      traffic,
		DecidedAt:    now,
	}
	return Outcome{Emit: true, Event: event}, nil
}
