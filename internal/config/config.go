// Package config loads application configuration and initializes logging.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Kafka  KafkaConfig  `yaml:"kafka" mapstructure:"kafka"`
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Gemini GeminiConfig `yaml:"gemini" mapstructure:"gemini"`
	Scout  ScoutConfig  `yaml:"scout" mapstructure:"scout"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// KafkaConfig configures the message channels connecting the stages.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers" mapstructure:"brokers"`

	// Topic per channel. Each stage consumes one and publishes to the next.
	RawTopic       string `yaml:"raw_topic" mapstructure:"raw_topic"`
	ValidatedTopic string `yaml:"validated_topic" mapstructure:"validated_topic"`
	FinalTopic     string `yaml:"final_topic" mapstructure:"final_topic"`

	// GroupPrefix namespaces the consumer-group IDs (prefix + stage name).
	GroupPrefix string `yaml:"group_prefix" mapstructure:"group_prefix"`
}

// GroupID returns the consumer-group ID for a stage.
func (k KafkaConfig) GroupID(stage string) string {
	return k.GroupPrefix + stage
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string     `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PoolConfig holds connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// GeminiConfig holds generative-text service settings. An empty Key disables
// the dependency entirely; every call site has a deterministic fallback.
type GeminiConfig struct {
	Key            string `yaml:"key" mapstructure:"key"`
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	SummaryModel   string `yaml:"summary_model" mapstructure:"summary_model"`
	EnrichModel    string `yaml:"enrich_model" mapstructure:"enrich_model"`
	TimeoutSecs    int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	BreakerTrips   int    `yaml:"breaker_trips" mapstructure:"breaker_trips"`
	BreakerHoldSec int    `yaml:"breaker_hold_secs" mapstructure:"breaker_hold_secs"`
}

// Enabled reports whether the generative-text dependency is configured.
func (g GeminiConfig) Enabled() bool { return g.Key != "" }

// ScoutConfig configures the crawler.
type ScoutConfig struct {
	// SeedsFile points at a yaml list of seed sites. When empty or missing,
	// the built-in default list is used.
	SeedsFile string `yaml:"seeds_file" mapstructure:"seeds_file"`

	// IntervalSecs is the period of the scheduled crawl ticker. Zero disables
	// scheduled crawls (trigger-only operation).
	IntervalSecs int `yaml:"interval_secs" mapstructure:"interval_secs"`

	// DelayMs is the polite inter-request delay within a crawl.
	DelayMs int `yaml:"delay_ms" mapstructure:"delay_ms"`

	FetchTimeoutSecs  int `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
	RobotsTimeoutSecs int `yaml:"robots_timeout_secs" mapstructure:"robots_timeout_secs"`

	// MaxEntriesPerPage caps discovered listings per landing page.
	MaxEntriesPerPage int `yaml:"max_entries_per_page" mapstructure:"max_entries_per_page"`

	// MaxResolveDepth bounds aggregator-chain recursion.
	MaxResolveDepth int `yaml:"max_resolve_depth" mapstructure:"max_resolve_depth"`

	// AggregatorHosts are hosts treated as interstitial listing sites whose
	// pages are mined for an outbound call-to-action instead of being
	// published directly.
	AggregatorHosts []string `yaml:"aggregator_hosts" mapstructure:"aggregator_hosts"`

	BotName    string `yaml:"bot_name" mapstructure:"bot_name"`
	BotVersion string `yaml:"bot_version" mapstructure:"bot_version"`
	BotContact string `yaml:"bot_contact" mapstructure:"bot_contact"`
	BotEmail   string `yaml:"bot_email" mapstructure:"bot_email"`
}

// UserAgent builds the identifying client-agent string sent on every fetch.
func (s ScoutConfig) UserAgent() string {
	return "Mozilla/5.0 (compatible; " + s.BotName + "/" + s.BotVersion + "; +" + s.BotContact + ")"
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads config.yaml (optional) and COMPS_-prefixed environment
// variables into a Config.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("COMPS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.raw_topic", "scout-raw-listings")
	v.SetDefault("kafka.validated_topic", "converter-validated-listings")
	v.SetDefault("kafka.final_topic", "validator-final-listings")
	v.SetDefault("kafka.group_prefix", "comps-")
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("gemini.summary_model", "gemini-1.5-flash")
	v.SetDefault("gemini.enrich_model", "gemini-2.5-flash")
	v.SetDefault("gemini.timeout_secs", 15)
	v.SetDefault("gemini.breaker_trips", 5)
	v.SetDefault("gemini.breaker_hold_secs", 60)
	v.SetDefault("scout.interval_secs", 3600)
	v.SetDefault("scout.delay_ms", 2000)
	v.SetDefault("scout.fetch_timeout_secs", 15)
	v.SetDefault("scout.robots_timeout_secs", 8)
	v.SetDefault("scout.max_entries_per_page", 40)
	v.SetDefault("scout.max_resolve_depth", 5)
	v.SetDefault("scout.aggregator_hosts", []string{
		"www.loquax.co.uk",
		"www.theprizefinder.com",
		"www.competitiondatabase.co.uk",
		"www.magicfreebies.co.uk",
	})
	v.SetDefault("scout.bot_name", "ukfreecomps-bot")
	v.SetDefault("scout.bot_version", "0.1")
	v.SetDefault("scout.bot_contact", "https://ukfreecomps.com/bot")
	v.SetDefault("scout.bot_email", "bot@ukfreecomps.com")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
