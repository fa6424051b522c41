package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/consumer-puls/insights-scraper/internal/notify"
	"github.com/consumer-puls/insights-scraper/internal/upload"
)

// Config holds the full application configuration.
type Config struct {
	Retailer   RetailerConfig   `yaml:"retailer" mapstructure:"retailer"`
	Reviews    ReviewsConfig    `yaml:"reviews" mapstructure:"reviews"`
	KV         KVConfig         `yaml:"kv" mapstructure:"kv"`
	Dataset    DatasetConfig    `yaml:"dataset" mapstructure:"dataset"`
	Checkpoint CheckpointConfig `yaml:"checkpoint" mapstructure:"checkpoint"`
	Pace       PaceConfig       `yaml:"pace" mapstructure:"pace"`
	Notify     notify.Config    `yaml:"notify" mapstructure:"notify"`
	Upload     upload.Config    `yaml:"upload" mapstructure:"upload"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	RunID      string           `yaml:"run_id" mapstructure:"run_id"`
}

// RetailerConfig identifies what is being scraped.
type RetailerConfig struct {
	Name       string   `yaml:"name" mapstructure:"name"`
	Market     string   `yaml:"market" mapstructure:"market"`
	Site       string   `yaml:"site" mapstructure:"site"`
	Categories []string `yaml:"categories" mapstructure:"categories"`
}

// ReviewsConfig controls the review acceptance window. MonthsBack takes
// precedence over DaysBack when set; DateFrom overrides both with an
// explicit date string.
type ReviewsConfig struct {
	DaysBack   int    `yaml:"days_back" mapstructure:"days_back"`
	MonthsBack int    `yaml:"months_back" mapstructure:"months_back"`
	DateFrom   string `yaml:"date_from" mapstructure:"date_from"`
}

// KVConfig configures the durable key-value backend.
type KVConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// DatasetConfig configures the local output dataset.
type DatasetConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
	Name string `yaml:"name" mapstructure:"name"`
}

// CheckpointConfig controls periodic persistence.
type CheckpointConfig struct {
	IntervalSecs int `yaml:"interval_secs" mapstructure:"interval_secs"`
}

// PaceConfig controls request pacing for the crawl driver.
type PaceConfig struct {
	RPS        float64 `yaml:"rps" mapstructure:"rps"`
	Burst      int     `yaml:"burst" mapstructure:"burst"`
	MinDelayMs int     `yaml:"min_delay_ms" mapstructure:"min_delay_ms"`
	MaxDelayMs int     `yaml:"max_delay_ms" mapstructure:"max_delay_ms"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("retailer.market", "US")
	v.SetDefault("reviews.days_back", 7)
	v.SetDefault("kv.driver", "sqlite")
	v.SetDefault("kv.database_url", "scraper-state.db")
	v.SetDefault("dataset.path", "dataset.db")
	v.SetDefault("checkpoint.interval_secs", 60)
	v.SetDefault("pace.rps", 2)
	v.SetDefault("pace.burst", 2)
	v.SetDefault("pace.min_delay_ms", 400)
	v.SetDefault("pace.max_delay_ms", 800)
	v.SetDefault("server.port", 8080)
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
