package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"farewatch/internal/baseline"
	"farewatch/internal/decision"
	"farewatch/internal/dedupe"
	"farewatch/internal/miles"
	"farewatch/internal/model"
	"farewatch/internal/scoring"
)

// SimulateAlert pushes a synthetic fare through the scoring and decision
// pipeline and delivers the result through the configured channels. The
// duplicate gate is bypassed so repeated simulations always evaluate.
func (a *App) SimulateAlert(ctx context.Context, price, reference decimal.Decimal) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	now := time.Now().UTC()
	route := a.route()

	hist := baseline.New(a.Config.Baseline.Retention)
	hist.Append(model.PriceQuote{
		Origin:      route.Origin,
		Destination: route.Destination,
		Price:       reference,
		Currency:    a.Config.Route.Currency,
		ObservedAt:  now.Add(-time.Hour),
		SourceID:    "simulated",
	})

	quote := model.PriceQuote{
		Origin:      route.Origin,
		Destination: route.Destination,
		CarrierCode: "XX",
		Price:       price,
		Currency:    a.Config.Route.Currency,
		ObservedAt:  now,
		SourceID:    "simulated",
	}

	scorer := scoring.NewScorer(a.scoringThresholds())
	offer, err := scorer.Score(quote, hist)
	if err != nil {
		return err
	}

	options, bestMiles := miles.NewValuator(a.milesPrograms()).Evaluate(offer.Quote.Price)

	decider := decision.New(route, a.decisionGates(), dedupe.NopGate{})
	outcome, err := decider.Decide(ctx, offer, options, bestMiles, nil, now)
	if err != nil {
		return err
	}

	if !outcome.Emit {
		a.Logger.Info().
			Str("reason", string(outcome.Reason)).
			Str("rating", string(offer.Rating)).
			Msg("simulated fare would not trigger an alert")
		return nil
	}

	if err := notifier.Notify(ctx, *outcome.Event); err != nil {
		return err
	}

	a.Logger.Info().
		Str("event_id", outcome.Event.ID.String()).
		Str("rating", string(offer.Rating)).
		Msg("simulated alert delivered")
	return nil
}
