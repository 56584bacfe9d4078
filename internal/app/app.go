package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"farewatch/internal/alerting"
	"farewatch/internal/config"
	"farewatch/internal/decision"
	"farewatch/internal/dedupe"
	"farewatch/internal/fetcher"
	"farewatch/internal/miles"
	"farewatch/internal/model"
	"farewatch/internal/quota"
	"farewatch/internal/scheduler"
	"farewatch/internal/scoring"
	"farewatch/internal/service"
	"farewatch/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) route() model.Route {
	return model.Route{
		Origin:      a.Config.Route.Origin,
		Destination: a.Config.Route.Destination,
	}
}

func (a *App) newTracker() *quota.Tracker {
	return quota.NewTracker(a.Config.Quota.Limits)
}

func (a *App) newSources(tracker *quota.Tracker) (fetcher.FareSource, fetcher.TrafficSource) {
	amadeus := fetcher.NewAmadeus(fetcher.AmadeusOptions{
		BaseURL:      a.Config.Amadeus.BaseURL,
		ClientID:     a.Config.Amadeus.ClientID,
		ClientSecret: a.Config.Amadeus.ClientSecret,
		Currency:     a.Config.Route.Currency,
		Timeout:      a.Config.Amadeus.RequestTimeout,
		Retry: fetcher.RetryPolicy{
			MaxRetries: a.Config.Amadeus.MaxRetries,
			Backoff:    a.Config.Amadeus.RetryBackoff,
		},
		UserAgent: a.Config.Amadeus.UserAgent,
	}, tracker, a.Logger)

	opensky := fetcher.NewOpenSky(fetcher.OpenSkyOptions{
		BaseURL:      a.Config.OpenSky.BaseURL,
		ClientID:     a.Config.OpenSky.ClientID,
		ClientSecret: a.Config.OpenSky.ClientSecret,
		Box: fetcher.BoundingBox{
			LatMin: a.Config.OpenSky.LatMin,
			LatMax: a.Config.OpenSky.LatMax,
			LonMin: a.Config.OpenSky.LonMin,
			LonMax: a.Config.OpenSky.LonMax,
		},
		Timeout: a.Config.OpenSky.RequestTimeout,
		Retry: fetcher.RetryPolicy{
			MaxRetries: a.Config.OpenSky.MaxRetries,
			Backoff:    a.Config.OpenSky.RetryBackoff,
		},
	}, tracker, a.Logger)

	return amadeus, opensky
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Enabled && a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

func (a *App) newDedupeGate(store *storage.Store) (dedupe.Gate, func()) {
	window := a.Config.Dedupe.Window

	if a.Config.Dedupe.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     a.Config.Redis.Addr,
			Password: a.Config.Redis.Password,
			DB:       a.Config.Redis.DB,
		})
		return dedupe.NewRedisGate(client, window), func() { _ = client.Close() }
	}

	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; duplicate suppression disabled")
		return dedupe.NopGate{}, nil
	}
	return dedupe.NewStoreGate(store, window), nil
}

func (a *App) scoringThresholds() scoring.Thresholds {
	cfg := a.Config.Scoring
	return scoring.Thresholds{
		ExcellentMaxPrice:      decimal.NewFromFloat(cfg.ExcellentMaxPrice),
		ExcellentMinSavingsPct: decimal.NewFromFloat(cfg.ExcellentMinSavingsPct),
		GoodMaxPrice:           decimal.NewFromFloat(cfg.GoodMaxPrice),
		GoodMinSavingsPct:      decimal.NewFromFloat(cfg.GoodMinSavingsPct),
	}
}

func (a *App) decisionGates() decision.Gates {
	cfg := a.Config.Decision
	return decision.Gates{
		SavingsFloor: decimal.NewFromFloat(cfg.SavingsFloor),
		PriceCeiling: decimal.NewFromFloat(cfg.PriceCeiling),
		PriceBucket:  decimal.NewFromFloat(a.Config.Dedupe.PriceBucket),
	}
}

func (a *App) milesPrograms() []miles.Program {
	if len(a.Config.Miles.Programs) == 0 {
		return miles.DefaultPrograms()
	}

	programs := make([]miles.Program, 0, len(a.Config.Miles.Programs))
	for _, p := range a.Config.Miles.Programs {
		brackets := make([]miles.Bracket, 0, len(p.Brackets))
		for _, b := range p.Brackets {
			brackets = append(brackets, miles.Bracket{
				Price: decimal.NewFromFloat(b.Price),
				Miles: b.Miles,
			})
		}
		programs = append(programs, miles.Program{
			Name:       p.Name,
			PointValue: decimal.NewFromFloat(p.PointValue),
			Fees:       decimal.NewFromFloat(p.Fees),
			MinMiles:   p.MinMiles,
			Brackets:   brackets,
		})
	}
	return programs
}

func (a *App) newService(store *storage.Store, gate dedupe.Gate, tracker *quota.Tracker, sched *scheduler.Scheduler) *service.Service {
	fare, traffic := a.newSources(tracker)

	deps := service.Deps{
		Route:        a.route(),
		FareSources:  []fetcher.FareSource{fare},
		Traffic:      traffic,
		Tracker:      tracker,
		Scorer:       scoring.NewScorer(a.scoringThresholds()),
		Valuator:     miles.NewValuator(a.milesPrograms()),
		Decider:      decision.New(a.route(), a.decisionGates(), gate),
		Retention:    a.Config.Baseline.Retention,
		DedupeWindow: a.Config.Dedupe.Window,
		Notifier:     a.newNotifier(),
		Scheduler:    sched,
	}
	if store != nil {
		deps.QuoteStore = store
		deps.SeenStore = store
		deps.QuotaStore = store
		deps.AlertStore = store
	}

	return service.New(deps, a.Logger)
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	gate, closeGate := a.newDedupeGate(store)
	if closeGate != nil {
		defer closeGate()
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToStart,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	svc := a.newService(store, gate, a.newTracker(), sched)

	a.Logger.Info().Msg("starting fare monitoring service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("fare monitoring service stopped")
	return nil
}

// Evaluate runs exactly one evaluation pass, the mode used by an external
// scheduler tick.
func (a *App) Evaluate(ctx context.Context) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	gate, closeGate := a.newDedupeGate(store)
	if closeGate != nil {
		defer closeGate()
	}

	svc := a.newService(store, gate, a.newTracker(), nil)

	outcome, err := svc.Evaluate(ctx, time.Now().UTC())
	if err != nil {
		return err
	}

	if outcome.Emit {
		a.Logger.Info().Str("event_id", outcome.Event.ID.String()).Msg("evaluation emitted an alert")
	} else {
		a.Logger.Info().Str("reason", string(outcome.Reason)).Msg("evaluation suppressed")
	}
	return nil
}

// ExportOptions hold parameters for exporting fare history.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}
