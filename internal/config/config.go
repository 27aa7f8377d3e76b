package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/quote-rollup/internal/transform"
)

// Config holds the full application configuration.
type Config struct {
	Dynamo    DynamoConfig    `yaml:"dynamo" mapstructure:"dynamo"`
	Quotable  QuotableConfig  `yaml:"quotable" mapstructure:"quotable"`
	Transform TransformConfig `yaml:"transform" mapstructure:"transform"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Ledger    LedgerConfig    `yaml:"ledger" mapstructure:"ledger"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// DynamoConfig locates the raw quote table.
type DynamoConfig struct {
	Table       string `yaml:"table" mapstructure:"table"`
	Region      string `yaml:"region" mapstructure:"region"`
	Endpoint    string `yaml:"endpoint" mapstructure:"endpoint"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// QuotableConfig configures the upstream quote API.
type QuotableConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// TransformConfig configures the daily rollup run.
type TransformConfig struct {
	ScratchDir    string `yaml:"scratch_dir" mapstructure:"scratch_dir"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	PartitionDate string `yaml:"partition_date" mapstructure:"partition_date"`
}

// IngestConfig configures the ingestion job.
type IngestConfig struct {
	Concurrency  int     `yaml:"concurrency" mapstructure:"concurrency"`
	WritesPerSec float64 `yaml:"writes_per_sec" mapstructure:"writes_per_sec"`
}

// LedgerConfig configures where run history is recorded.
type LedgerConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Ledger drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// Load reads configuration from config.yaml, environment variables, and defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("QUOTES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("dynamo.table", "quotes_raw")
	v.SetDefault("dynamo.region", "us-east-1")
	v.SetDefault("dynamo.endpoint", "")
	v.SetDefault("dynamo.timeout_secs", 30)
	v.SetDefault("quotable.base_url", "https://api.quotable.io")
	v.SetDefault("quotable.timeout_secs", 10)
	v.SetDefault("transform.scratch_dir", filepath.Join(os.TempDir(), "quote-rollup"))
	v.SetDefault("transform.timeout_secs", 300)
	v.SetDefault("transform.partition_date", "")
	v.SetDefault("ingest.concurrency", 4)
	v.SetDefault("ingest.writes_per_sec", 0)
	v.SetDefault("ledger.driver", DriverSQLite)
	v.SetDefault("ledger.database_url", "quotes.db")
	v.SetDefault("ledger.max_conns", 4)
	v.SetDefault("ledger.min_conns", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the settings a command depends on. Every problem is
// reported in a single error.
func (c *Config) Validate() error {
	var errs []string

	if c.Dynamo.Table == "" {
		errs = append(errs, "dynamo.table is required")
	}
	if c.Dynamo.TimeoutSecs <= 0 {
		errs = append(errs, "dynamo.timeout_secs must be positive")
	}
	if c.Quotable.TimeoutSecs <= 0 {
		errs = append(errs, "quotable.timeout_secs must be positive")
	}
	if c.Transform.TimeoutSecs <= 0 {
		errs = append(errs, "transform.timeout_secs must be positive")
	}
	if c.Transform.ScratchDir == "" {
		errs = append(errs, "transform.scratch_dir is required")
	}
	if c.Transform.PartitionDate != "" {
		if err := transform.ValidateDate(c.Transform.PartitionDate); err != nil {
			errs = append(errs, "transform.partition_date must be YYYY-MM-DD")
		}
	}
	if c.Ingest.Concurrency <= 0 {
		errs = append(errs, "ingest.concurrency must be positive")
	}
	if c.Ingest.WritesPerSec < 0 {
		errs = append(errs, "ingest.writes_per_sec must not be negative")
	}

	switch c.Ledger.Driver {
	case DriverSQLite, DriverPostgres:
		if c.Ledger.DatabaseURL == "" {
			errs = append(errs, "ledger.database_url is required")
		}
	case DriverNone:
	default:
		errs = append(errs, "ledger.driver must be one of sqlite, postgres, none")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
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
