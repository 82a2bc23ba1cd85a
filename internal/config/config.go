package config

import (
	"maps"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/propane-pricer/internal/db"
	"github.com/sells-group/propane-pricer/internal/ingest"
	"github.com/sells-group/propane-pricer/internal/pricing"
)

// LevelTrace is accepted as a log level. Zap has nothing below debug, so it
// logs at debug and additionally turns on per-row log lines.
const LevelTrace = "trace"

var (
	logLevels  = []string{LevelTrace, "debug", "info", "warn", "error"}
	logFormats = []string{"json", "console"}
	drivers    = []string{"postgres", "sqlite"}
	modes      = []string{string(db.ModeUpsert), string(db.ModeUpdate)}
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Upload   UploadConfig   `yaml:"upload" mapstructure:"upload"`
	Discount DiscountConfig `yaml:"discount" mapstructure:"discount"`
	CSV      CSVConfig      `yaml:"csv" mapstructure:"csv"`
	Metrics  MetricsConfig  `yaml:"metrics" mapstructure:"metrics"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string         `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string         `yaml:"database_url" mapstructure:"database_url"`
	Table       string         `yaml:"table" mapstructure:"table"`
	Mode        string         `yaml:"mode" mapstructure:"mode"`
	MaxConns    int32          `yaml:"max_conns" mapstructure:"max_conns"`
	Columns     db.ColumnNames `yaml:"columns" mapstructure:"columns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Trace reports whether per-row logging is enabled.
func (l LogConfig) Trace() bool { return strings.EqualFold(l.Level, LevelTrace) }

// UploadConfig bounds how rows are written.
type UploadConfig struct {
	Concurrency       int     `yaml:"concurrency" mapstructure:"concurrency"`
	UpsertTimeoutSecs int     `yaml:"upsert_timeout_secs" mapstructure:"upsert_timeout_secs"`
	RateLimit         float64 `yaml:"rate_limit" mapstructure:"rate_limit"` // rows/sec; 0 = unlimited
}

// UpsertTimeout returns the per-call timeout; zero means none.
func (u UploadConfig) UpsertTimeout() time.Duration {
	return time.Duration(u.UpsertTimeoutSecs) * time.Second
}

// DiscountConfig holds the pricing policy as rule strings ("40%", "5.00").
type DiscountConfig struct {
	Default string            `yaml:"default" mapstructure:"default"`
	Codes   map[string]string `yaml:"codes" mapstructure:"codes"`
}

// CSVConfig configures input decoding.
type CSVConfig struct {
	Delimiter  string         `yaml:"delimiter" mapstructure:"delimiter"`
	LazyQuotes bool           `yaml:"lazy_quotes" mapstructure:"lazy_quotes"`
	Sheet      string         `yaml:"sheet" mapstructure:"sheet"`
	Columns    ingest.Columns `yaml:"columns" mapstructure:"columns"`
}

// MetricsConfig configures the end-of-run metrics dump.
type MetricsConfig struct {
	Textfile string `yaml:"textfile" mapstructure:"textfile"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PRICER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("store.database_url", "PRICER_STORE_DATABASE_URL", "DATABASE_URL"); err != nil {
		return nil, eris.Wrap(err, "config: bind database url")
	}

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.table", "products")
	v.SetDefault("store.mode", string(db.ModeUpsert))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("upload.concurrency", 20)
	v.SetDefault("upload.upsert_timeout_secs", 30)
	v.SetDefault("upload.rate_limit", 0)
	v.SetDefault("discount.default", pricing.DefaultRule)
	v.SetDefault("discount.codes", maps.Clone(pricing.DefaultCodes))
	v.SetDefault("csv.delimiter", ",")

	cols := db.DefaultColumnNames()
	v.SetDefault("store.columns.sku", cols.SKU)
	v.SetDefault("store.columns.description", cols.Description)
	v.SetDefault("store.columns.category", cols.Category)
	v.SetDefault("store.columns.discount_code", cols.DiscountCode)
	v.SetDefault("store.columns.list_price", cols.ListPrice)
	v.SetDefault("store.columns.discounted_price", cols.DiscountedPrice)
	v.SetDefault("store.columns.updated_at", cols.UpdatedAt)

	aliases := ingest.DefaultColumns()
	v.SetDefault("csv.columns.sku", aliases.SKU)
	v.SetDefault("csv.columns.description", aliases.Description)
	v.SetDefault("csv.columns.category", aliases.Category)
	v.SetDefault("csv.columns.list_price", aliases.ListPrice)
	v.SetDefault("csv.columns.discount_code", aliases.DiscountCode)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the configuration. The database URL may be empty only
// for dry runs.
func (c *Config) Validate(dryRun bool) error {
	var errs []string

	if !slices.Contains(logLevels, strings.ToLower(c.Log.Level)) {
		errs = append(errs, "log.level must be one of "+strings.Join(logLevels, "|"))
	}
	if !slices.Contains(logFormats, c.Log.Format) {
		errs = append(errs, "log.format must be one of "+strings.Join(logFormats, "|"))
	}
	if !slices.Contains(drivers, c.Store.Driver) {
		errs = append(errs, "store.driver must be one of "+strings.Join(drivers, "|"))
	}
	if !slices.Contains(modes, c.Store.Mode) {
		errs = append(errs, "store.mode must be one of "+strings.Join(modes, "|"))
	}
	if c.Store.Table == "" {
		errs = append(errs, "store.table is required")
	}
	if c.Store.DatabaseURL == "" && !dryRun {
		errs = append(errs, "store.database_url is required")
	}
	if c.Store.MaxConns < 0 {
		errs = append(errs, "store.max_conns must be >= 0")
	}
	if c.Upload.Concurrency <= 0 {
		errs = append(errs, "upload.concurrency must be > 0")
	}
	if c.Upload.UpsertTimeoutSecs < 0 {
		errs = append(errs, "upload.upsert_timeout_secs must be >= 0")
	}
	if c.Upload.RateLimit < 0 {
		errs = append(errs, "upload.rate_limit must be >= 0")
	}
	if utf8.RuneCountInString(c.CSV.Delimiter) > 1 {
		errs = append(errs, "csv.delimiter must be a single character")
	}
	if _, err := c.Policy(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Policy builds the discount policy.
func (c *Config) Policy() (pricing.Policy, error) {
	return pricing.NewPolicy(c.Discount.Default, c.Discount.Codes)
}

// SourceOptions returns the input reader options.
func (c *Config) SourceOptions() ingest.Options {
	delim, _ := utf8.DecodeRuneInString(c.CSV.Delimiter)
	if delim == utf8.RuneError {
		delim = 0
	}
	return ingest.Options{
		Columns:    c.CSV.Columns,
		Delimiter:  delim,
		LazyQuotes: c.CSV.LazyQuotes,
		Sheet:      c.CSV.Sheet,
	}
}

// StoreOptions returns the upserter options.
func (c *Config) StoreOptions() db.Options {
	return db.Options{
		Table:    c.Store.Table,
		Mode:     db.Mode(c.Store.Mode),
		Columns:  c.Store.Columns,
		Timeout:  c.Upload.UpsertTimeout(),
		MaxConns: c.Store.MaxConns,
	}
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	lvl := cfg.Level
	if cfg.Trace() {
		lvl = "debug"
	}
	level, err := zapcore.ParseLevel(lvl)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
