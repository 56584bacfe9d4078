package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"farewatch/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Route     RouteConfig     `mapstructure:"route"`
	Amadeus   AmadeusConfig   `mapstructure:"amadeus"`
	OpenSky   OpenSkyConfig   `mapstructure:"opensky"`
	Quota     QuotaConfig     `mapstructure:"quota"`
	Baseline  BaselineConfig  `mapstructure:"baseline"`
	Scoring   ScoringConfig   `mapstructure:"scoring"`
	Decision  DecisionConfig  `mapstructure:"decision"`
	Dedupe    DedupeConfig    `mapstructure:"dedupe"`
	Miles     MilesConfig     `mapstructure:"miles"`
	Alerting  AlertingConfig  `mapstructure:"alerting"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig covers the optional Redis dedupe backend.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SchedulerConfig governs evaluation cadence in daemon mode.
type SchedulerConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	AlignToStart bool          `mapstructure:"align_to_start"`
	StartupDelay time.Duration `mapstructure:"startup_delay"`
}

// RouteConfig pins the monitored origin-destination pair.
type RouteConfig struct {
	Origin      string `mapstructure:"origin"`
	Destination string `mapstructure:"destination"`
	Currency    string `mapstructure:"currency"`
}

// AmadeusConfig parameterises the authenticated fare source.
type AmadeusConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	ClientID       string        `mapstructure:"client_id"`
	ClientSecret   string        `mapstructure:"client_secret"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// OpenSkyConfig parameterises the traffic-context source.
type OpenSkyConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	ClientID       string        `mapstructure:"client_id"`
	ClientSecret   string        `mapstructure:"client_secret"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	LatMin         float64       `mapstructure:"lat_min"`
	LatMax         float64       `mapstructure:"lat_max"`
	LonMin         float64       `mapstructure:"lon_min"`
	LonMax         float64       `mapstructure:"lon_max"`
}

// QuotaConfig caps monthly API calls per provider.
type QuotaConfig struct {
	Limits map[string]int `mapstructure:"limits"`
}

// BaselineConfig tunes the rolling price history window.
type BaselineConfig struct {
	Retention time.Duration `mapstructure:"retention"`
}

// ScoringConfig holds the rating ladder cutoffs.
type ScoringConfig struct {
	ExcellentMaxPrice      float64 `mapstructure:"excellent_max_price"`
	ExcellentMinSavingsPct float64 `mapstructure:"excellent_min_savings_pct"`
	GoodMaxPrice           float64 `mapstructure:"good_max_price"`
	GoodMinSavingsPct      float64 `mapstructure:"good_min_savings_pct"`
}

// DecisionConfig holds the independent emission gates.
type DecisionConfig struct {
	SavingsFloor float64 `mapstructure:"savings_floor"`
	PriceCeiling float64 `mapstructure:"price_ceiling"`
}

// DedupeConfig tunes duplicate-alert suppression.
type DedupeConfig struct {
	Backend     string        `mapstructure:"backend"`
	Window      time.Duration `mapstructure:"window"`
	PriceBucket float64       `mapstructure:"price_bucket"`
}

// MilesProgramConfig describes one mileage program's redemption table.
type MilesProgramConfig struct {
	Name       string               `mapstructure:"name"`
	PointValue float64              `mapstructure:"point_value"`
	Fees       float64              `mapstructure:"fees"`
	MinMiles   int64                `mapstructure:"min_miles"`
	Brackets   []MilesBracketConfig `mapstructure:"brackets"`
}

// MilesBracketConfig anchors miles required at a cash price.
type MilesBracketConfig struct {
	Price float64 `mapstructure:"price"`
	Miles int64   `mapstructure:"miles"`
}

// MilesConfig lists configured mileage programs.
type MilesConfig struct {
	Programs []MilesProgramConfig `mapstructure:"programs"`
}

// AlertingConfig defines alert routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram delivery channel.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	APIBase  string `mapstructure:"api_base"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	MaxDataPoints int `mapstructure:"max_data_points"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FAREWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "farewatch")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("scheduler.interval", "2h")
	v.SetDefault("scheduler.align_to_start", true)
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("route.origin", "GRU")
	v.SetDefault("route.destination", "REC")
	v.SetDefault("route.currency", "BRL")

	v.SetDefault("amadeus.base_url", "https://test.api.amadeus.com")
	v.SetDefault("amadeus.request_timeout", "10s")
	v.SetDefault("amadeus.max_retries", 2)
	v.SetDefault("amadeus.retry_backoff", "1s")
	v.SetDefault("amadeus.user_agent", "farewatch/1.0")

	v.SetDefault("opensky.base_url", "https://opensky-network.org")
	v.SetDefault("opensky.request_timeout", "10s")
	v.SetDefault("opensky.max_retries", 2)
	v.SetDefault("opensky.retry_backoff", "1s")
	// Bounding box around REC.
	v.SetDefault("opensky.lat_min", -8.5)
	v.SetDefault("opensky.lat_max", -7.5)
	v.SetDefault("opensky.lon_min", -35.5)
	v.SetDefault("opensky.lon_max", -34.5)

	v.SetDefault("quota.limits", map[string]int{
		"amadeus": 2000,
		"opensky": 4000,
	})

	v.SetDefault("baseline.retention", "720h")

	v.SetDefault("scoring.excellent_max_price", 300.0)
	v.SetDefault("scoring.excellent_min_savings_pct", 0.30)
	v.SetDefault("scoring.good_max_price", 500.0)
	v.SetDefault("scoring.good_min_savings_pct", 0.15)

	v.SetDefault("decision.savings_floor", 50.0)
	v.SetDefault("decision.price_ceiling", 500.0)

	v.SetDefault("dedupe.backend", "postgres")
	v.SetDefault("dedupe.window", "24h")
	v.SetDefault("dedupe.price_bucket", 10.0)

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")

	v.SetDefault("export.max_data_points", 100000)

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.db", 0)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Route.Origin == "" || c.Route.Destination == "" {
		return fmt.Errorf("route.origin and route.destination must be configured")
	}
	if c.Baseline.Retention <= 0 {
		return fmt.Errorf("baseline.retention must be greater than zero")
	}
	if c.Scoring.ExcellentMinSavingsPct < 0 || c.Scoring.GoodMinSavingsPct < 0 {
		return fmt.Errorf("scoring savings cutoffs cannot be negative")
	}
	if c.Decision.SavingsFloor < 0 {
		return fmt.Errorf("decision.savings_floor cannot be negative")
	}
	if c.Decision.PriceCeiling <= 0 {
		return fmt.Errorf("decision.price_ceiling must be greater than zero")
	}
	if c.Dedupe.Window <= 0 {
		return fmt.Errorf("dedupe.window must be greater than zero")
	}
	if c.Dedupe.PriceBucket <= 0 {
		return fmt.Errorf("dedupe.price_bucket must be greater than zero")
	}
	switch c.Dedupe.Backend {
	case "postgres", "redis":
	default:
		return fmt.Errorf("dedupe.backend must be postgres or redis")
	}
	if c.Dedupe.Backend == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr must be configured for the redis dedupe backend")
	}
	if c.Export.MaxDataPoints <= 0 {
		return fmt.Errorf("export.max_data_points must be greater than zero")
	}
	for name, limit := range c.Quota.Limits {
		if limit < 0 {
			return fmt.Errorf("quota.limits.%s cannot be negative", name)
		}
	}
	for _, p := range c.Miles.Programs {
		if err := validateProgram(p); err != nil {
			return err
		}
	}
	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token must be configured")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id must be configured")
		}
	}
	return nil
}

func validateProgram(p MilesProgramConfig) error {
	if p.Name == "" {
		return fmt.Errorf("miles program name must not be empty")
	}
	if p.PointValue <= 0 {
		return fmt.Errorf("miles.programs.%s.point_value must be greater than zero", p.Name)
	}
	if len(p.Brackets) == 0 {
		return fmt.Errorf("miles.programs.%s requires at least one bracket", p.Name)
	}
	for i := 1; i < len(p.Brackets); i++ {
		prev, cur := p.Brackets[i-1], p.Brackets[i]
		if cur.Price <= prev.Price {
			return fmt.Errorf("miles.programs.%s brackets must have strictly increasing prices", p.Name)
		}
		if cur.Miles < prev.Miles {
			return fmt.Errorf("miles.programs.%s brackets must have non-decreasing miles", p.Name)
		}
	}
	return nil
}

// ResolveMaxPoints returns either the CLI override or config default.
func (c *Config) ResolveMaxPoints(override int) int {
	if override > 0 {
		return override
	}
	return c.Export.MaxDataPoints
}
