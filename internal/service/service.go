package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"farewatch/internal/alerting"
	"farewatch/internal/baseline"
	"farewatch/internal/decision"
	"farewatch/internal/fetcher"
	"farewatch/internal/miles"
	"farewatch/internal/model"
	"farewatch/internal/quota"
	"farewatch/internal/scheduler"
	"farewatch/internal/scoring"
	"farewatch/internal/storage"
)

// Deps wires the evaluation pipeline together. Store and notifier fields
// are optional; a nil store disables persistence for that concern.
type Deps struct {
	Route        model.Route
	FareSources  []fetcher.FareSource
	Traffic      fetcher.TrafficSource
	Tracker      *quota.Tracker
	Scorer       *scoring.Scorer
	Valuator     *miles.Valuator
	Decider      *decision.Decider
	Retention    time.Duration
	DedupeWindow time.Duration
	QuoteStore   storage.QuoteStore
	SeenStore    storage.SeenStore
	QuotaStore   storage.QuotaStore
	AlertStore   storage.AlertStore
	Notifier     alerting.Notifier
	Scheduler    *scheduler.Scheduler
}

// Service orchestrates fetching, scoring, deciding, and persistence.
type Service struct {
	deps   Deps
	logger zerolog.Logger
}

// New constructs the evaluation service.
func New(deps Deps, logger zerolog.Logger) *Service {
	return &Service{
		deps:   deps,
		logger: logger.With().Str("component", "service").Logger(),
	}
}

// Run begins the scheduled evaluation loop.
func (s *Service) Run(ctx context.Context) error {
	if s.deps.Scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.deps.Scheduler.Run(ctx, func(ctx context.Context, tick time.Time) error {
		_, err := s.Evaluate(ctx, tick)
		return err
	})
}

// Evaluate performs one full evaluation pass: load state, fetch sources
// sequentially, score, value miles, decide, emit, persist. A failed source
// never aborts the pass.
func (s *Service) Evaluate(ctx context.Context, now time.Time) (decision.Outcome, error) {
	now = now.UTC()

	if err := s.loadQuota(ctx); err != nil {
		return decision.Outcome{}, err
	}

	hist, err := s.loadBaseline(ctx, now)
	if err != nil {
		return decision.Outcome{}, err
	}

	traffic := s.fetchTraffic(ctx)
	quotes, failures := s.fetchFares(ctx)

	for _, failure := range failures {
		s.logger.Warn().Err(failure).Msg("fare source unavailable")
	}

	outcome := decision.Suppressed(decision.ReasonNoData)
	if len(quotes) > 0 {
		outcome, err = s.decide(ctx, hist, quotes, traffic, now)
		if err != nil {
			return decision.Outcome{}, err
		}
	} else {
		s.logger.Warn().Int("failed_sources", len(failures)).Msg("no fare observations this pass")
	}

	if outcome.Emit {
		s.emit(ctx, outcome.Event)
	} else {
		s.logger.Info().Str("reason", string(outcome.Reason)).Msg("alert suppressed")
	}

	s.persist(ctx, quotes, now)
	s.reportUsage()

	return outcome, nil
}

func (s *Service) loadQuota(ctx context.Context) error {
	if s.deps.QuotaStore == nil {
		return nil
	}
	usages, err := s.deps.QuotaStore.LoadQuota(ctx)
	if err != nil {
		return fmt.Errorf("load quota counters: %w", err)
	}
	s.deps.Tracker.Restore(usages)
	return nil
}

func (s *Service) loadBaseline(ctx context.Context, now time.Time) (*baseline.Baseline, error) {
	hist := baseline.New(s.deps.Retention)
	if s.deps.QuoteStore == nil {
		return hist, nil
	}

	since := now.Add(-s.deps.Retention)
	quotes, err := s.deps.QuoteStore.ListQuotesSince(ctx, s.deps.Route, since)
	if err != nil {
		return nil, fmt.Errorf("load baseline quotes: %w", err)
	}
	for _, q := range quotes {
		hist.Append(q)
	}
	return hist, nil
}

func (s *Service) fetchTraffic(ctx context.Context) *model.TrafficReading {
	if s.deps.Traffic == nil {
		return nil
	}

	reading, err := s.deps.Traffic.FetchTraffic(ctx)
	if err != nil {
		if errors.Is(err, fetcher.ErrQuotaExceeded) {
			s.logger.Debug().Msg("traffic source skipped: quota exhausted")
		} else {
			s.logger.Warn().Err(err).Msg("traffic source unavailable")
		}
		return nil
	}
	return &reading
}

func (s *Service) fetchFares(ctx context.Context) ([]model.PriceQuote, []error) {
	quotes := make([]model.PriceQuote, 0, len(s.deps.FareSources))
	failures := make([]error, 0)

	// Sources run sequentially: call volume is tiny and quota reservation
	// must stay deterministic.
	for _, source := range s.deps.FareSources {
		quote, err := source.FetchFare(ctx, s.deps.Route)
		if err != nil {
			if errors.Is(err, fetcher.ErrQuotaExceeded) {
				s.logger.Debug().Msg("fare source skipped: quota exhausted")
				continue
			}
			failures = append(failures, err)
			continue
		}
		if quote.Price.IsNegative() {
			failures = append(failures, fmt.Errorf("source %s returned negative price", quote.SourceID))
			continue
		}
		quotes = append(quotes, quote)
	}
	return quotes, failures
}

// decide scores the fetched quotes against history, picks the cheapest
// scorable offer, values miles, and runs the emission gates. Quotes are
// appended to the baseline only after scoring so an observation never
// serves as its own reference.
func (s *Service) decide(ctx context.Context, hist *baseline.Baseline, quotes []model.PriceQuote, traffic *model.TrafficReading, now time.Time) (decision.Outcome, error) {
	var best *model.Offer
	for _, quote := range quotes {
		offer, err := s.deps.Scorer.Score(quote, hist)
		if err != nil {
			if errors.Is(err, scoring.ErrInsufficientHistory) {
				s.logger.Info().
					Str("source", quote.SourceID).
					Msg("quote dropped: baseline has no history yet")
				continue
			}
			return decision.Outcome{}, err
		}
		if best == nil || offer.Quote.Price.LessThan(best.Quote.Price) {
			chosen := offer
			best = &chosen
		}
	}

	for _, quote := range quotes {
		hist.Append(quote)
	}

	if best == nil {
		return decision.Suppressed(decision.ReasonNoData), nil
	}

	options, bestMiles := s.deps.Valuator.Evaluate(best.Quote.Price)

	outcome, err := s.deps.Decider.Decide(ctx, *best, options, bestMiles, traffic, now)
	if err != nil {
		return decision.Outcome{}, fmt.Errorf("decide alert: %w", err)
	}

	s.logger.Info().
		Str("rating", string(best.Rating)).
		Str("price", best.Quote.Price.String()).
		Str("reference", best.ReferencePrice.String()).
		Str("savings", best.SavingsAmount.String()).
		Bool("emit", outcome.Emit).
		Msg("offer evaluated")

	return outcome, nil
}

func (s *Service) emit(ctx context.Context, event *model.AlertEvent) {
	if s.deps.AlertStore != nil {
		if err := s.deps.AlertStore.InsertAlert(ctx, *event); err != nil {
			s.logger.Error().Err(err).Msg("failed to persist alert record")
		}
	}
	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.Notify(ctx, *event); err != nil {
			s.logger.Error().Err(err).Msg("failed to dispatch alert")
		}
	}
}

func (s *Service) persist(ctx context.Context, quotes []model.PriceQuote, now time.Time) {
	if s.deps.QuoteStore != nil {
		if len(quotes) > 0 {
			if err := s.deps.QuoteStore.InsertQuotes(ctx, quotes); err != nil {
				s.logger.Error().Err(err).Msg("failed to persist quotes")
			}
		}
		if err := s.deps.QuoteStore.DeleteQuotesBefore(ctx, now.Add(-s.deps.Retention)); err != nil {
			s.logger.Error().Err(err).Msg("failed to trim quote history")
		}
	}

	if s.deps.SeenStore != nil && s.deps.DedupeWindow > 0 {
		if err := s.deps.SeenStore.DeleteSeenBefore(ctx, now.Add(-s.deps.DedupeWindow)); err != nil {
			s.logger.Error().Err(err).Msg("failed to prune seen records")
		}
	}

	if s.deps.QuotaStore != nil {
		if err := s.deps.QuotaStore.SaveQuota(ctx, s.deps.Tracker.Snapshot()); err != nil {
			s.logger.Error().Err(err).Msg("failed to persist quota counters")
		}
	}
}

func (s *Service) reportUsage() {
	for _, usage := range s.deps.Tracker.Snapshot() {
		s.logger.Info().
			Str("provider", usage.Provider).
			Int("used", usage.Used).
			Int("limit", usage.Limit).
			Msg("provider usage")
	}
}
