package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig             `yaml:"store" mapstructure:"store"`
	Notifier     NotifierConfig          `yaml:"notifier" mapstructure:"notifier"`
	SearchAPI    SearchAPIConfig         `yaml:"search_api" mapstructure:"search_api"`
	LLM          LLMConfig               `yaml:"llm" mapstructure:"llm"`
	Locations    map[string]LocationTier `yaml:"locations" mapstructure:"locations"`
	TitleFilters TitleFiltersConfig      `yaml:"title_filters" mapstructure:"title_filters"`
	Modes        map[string]ModeConfig   `yaml:"modes" mapstructure:"modes"`
	Scoring      ScoringConfig           `yaml:"scoring" mapstructure:"scoring"`
	Sources      map[string]SourceConfig `yaml:"sources" mapstructure:"sources"`
	Companies    map[string][]string     `yaml:"companies" mapstructure:"companies"`
	Pipeline     PipelineConfig          `yaml:"pipeline" mapstructure:"pipeline"`
	Server       ServerConfig            `yaml:"server" mapstructure:"server"`
	Log          LogConfig               `yaml:"log" mapstructure:"log"`
	Resume       ResumeConfig            `yaml:"resume" mapstructure:"resume"`
	Monitoring   MonitoringConfig        `yaml:"monitoring" mapstructure:"monitoring"`
	Timezone     string                  `yaml:"timezone" mapstructure:"timezone"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// NotifierConfig holds chat-transport credentials for two separate bots:
// one for new-job alerts, one for operational/run-log alerts.
type NotifierConfig struct {
	JobsBotToken string `yaml:"jobs_bot_token" mapstructure:"jobs_bot_token"`
	JobsChatID   string `yaml:"jobs_chat_id" mapstructure:"jobs_chat_id"`
	LogsBotToken string `yaml:"logs_bot_token" mapstructure:"logs_bot_token"`
	LogsChatID   string `yaml:"logs_chat_id" mapstructure:"logs_chat_id"`
	DryRun       bool   `yaml:"dry_run" mapstructure:"dry_run"`
}

// SearchAPIConfig holds a rotating pool of web-search API keys, used by
// board discovery to find ATS job boards for companies with no known board.
type SearchAPIConfig struct {
	Keys    []string `yaml:"keys" mapstructure:"keys"`
	BaseURL string   `yaml:"base_url" mapstructure:"base_url"`
}

// LLMConfig holds the fit-analyzer's key pool and fallback provider settings.
type LLMConfig struct {
	PrimaryKeys        []string `yaml:"primary_keys" mapstructure:"primary_keys"`
	PrimaryBaseURL     string   `yaml:"primary_base_url" mapstructure:"primary_base_url"`
	PrimaryModel       string   `yaml:"primary_model" mapstructure:"primary_model"`
	FallbackKey        string   `yaml:"fallback_key" mapstructure:"fallback_key"`
	FallbackBaseURL    string   `yaml:"fallback_base_url" mapstructure:"fallback_base_url"`
	FallbackModel      string   `yaml:"fallback_model" mapstructure:"fallback_model"`
	Provider           string   `yaml:"provider" mapstructure:"provider"` // "openai_compatible" | "anthropic"
	AcquireTimeoutSecs int      `yaml:"acquire_timeout_secs" mapstructure:"acquire_timeout_secs"`
	StreamTimeoutSecs  int      `yaml:"stream_timeout_secs" mapstructure:"stream_timeout_secs"`
	HardCapTimeoutSecs int      `yaml:"hard_cap_timeout_secs" mapstructure:"hard_cap_timeout_secs"`
	AIAnalysisMinScore float64  `yaml:"ai_analysis_min_score" mapstructure:"ai_analysis_min_score"`
}

// LocationTier describes one scored geographic tier.
type LocationTier struct {
	Label   string   `yaml:"label" mapstructure:"label"`
	Points  float64  `yaml:"points" mapstructure:"points"`
	Cities  []string `yaml:"cities" mapstructure:"cities"`
	Aliases []string `yaml:"aliases" mapstructure:"aliases"`
}

// TitleFiltersConfig holds the three title-bucket pattern lists, checked
// in order reject, then include, then maybe.
type TitleFiltersConfig struct {
	Include []string `yaml:"include" mapstructure:"include"`
	Maybe   []string `yaml:"maybe" mapstructure:"maybe"`
	Reject  []string `yaml:"reject" mapstructure:"reject"`
}

// ModeConfig holds per-work-mode scoring points and detection keywords.
type ModeConfig struct {
	Points   float64  `yaml:"points" mapstructure:"points"`
	Keywords []string `yaml:"keywords" mapstructure:"keywords"`
}

// FreshnessBracket assigns points to postings within MaxHours of now.
// A nil MaxHours bracket is the catch-all and must sort last.
type FreshnessBracket struct {
	MaxHours *float64 `yaml:"max_hours" mapstructure:"max_hours"`
	Points   float64  `yaml:"points" mapstructure:"points"`
}

// BandThreshold names a score band and its minimum qualifying score.
type BandThreshold struct {
	Name     string  `yaml:"name" mapstructure:"name"`
	MinScore float64 `yaml:"min_score" mapstructure:"min_score"`
}

// ScoringConfig configures the freshness/location/mode scoring engine.
type ScoringConfig struct {
	FreshnessBrackets []FreshnessBracket `yaml:"freshness_brackets" mapstructure:"freshness_brackets"`
	LowConfidenceCap  float64            `yaml:"low_confidence_cap" mapstructure:"low_confidence_cap"`
	Bands             []BandThreshold    `yaml:"bands" mapstructure:"bands"`
}

// RateLimitConfig configures a connector's per-source limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// SourceCategory groups connector sources for selective pipeline runs.
type SourceCategory string

const (
	// CategoryATS covers direct per-company ATS connectors (Greenhouse,
	// Lever, Ashby, ...). This is the default when Category is unset.
	CategoryATS SourceCategory = "ats"
	// CategoryAggregator covers search-backed job boards with broad,
	// mainstream coverage (e.g. Indeed).
	CategoryAggregator SourceCategory = "aggregator"
	// CategoryUnderground covers search-backed queries aimed at
	// smaller/niche boards and company career pages ATS connectors miss.
	CategoryUnderground SourceCategory = "underground"
)

// SourceConfig describes one configured connector source.
type SourceConfig struct {
	Type             string          `yaml:"type" mapstructure:"type"`
	Category         SourceCategory  `yaml:"category" mapstructure:"category"`
	Enabled          bool            `yaml:"enabled" mapstructure:"enabled"`
	Schedule         string          `yaml:"schedule" mapstructure:"schedule"`
	EndpointTemplate string          `yaml:"endpoint_template" mapstructure:"endpoint_template"`
	URLTemplate      string          `yaml:"url_template" mapstructure:"url_template"`
	RateLimiting     RateLimitConfig `yaml:"rate_limiting" mapstructure:"rate_limiting"`
	TimeoutMs        int             `yaml:"timeout_ms" mapstructure:"timeout_ms"`
	Queries          []string        `yaml:"queries" mapstructure:"queries"`
}

// EffectiveCategory returns the source's configured category, defaulting
// to CategoryATS when unset so existing per-company connector configs
// need no changes.
func (s SourceConfig) EffectiveCategory() SourceCategory {
	if s.Category == "" {
		return CategoryATS
	}
	return s.Category
}

// PipelineConfig configures orchestrator-level tunables.
type PipelineConfig struct {
	FuzzyDedupWindowDays   int `yaml:"fuzzy_dedup_window_days" mapstructure:"fuzzy_dedup_window_days"`
	RepostWindowDays       int `yaml:"repost_window_days" mapstructure:"repost_window_days"`
	MaxJobAgeDays          int `yaml:"max_job_age_days" mapstructure:"max_job_age_days"`
	BatchSize              int `yaml:"batch_size" mapstructure:"batch_size"`
	DelayBetweenRequestsMs int `yaml:"delay_between_requests_ms" mapstructure:"delay_between_requests_ms"`
	BatchPauseMs           int `yaml:"batch_pause_ms" mapstructure:"batch_pause_ms"`
}

// ServerConfig configures the HTTP browse/action API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ResumeConfig points at the resume text the fit analyzer prompts against.
type ResumeConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// MonitoringConfig configures the background source-health checker.
type MonitoringConfig struct {
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowDays   int     `yaml:"lookback_window_days" mapstructure:"lookback_window_days"`
	SuccessRateThreshold float64 `yaml:"success_rate_threshold" mapstructure:"success_rate_threshold"`
	MinJobsFound         int     `yaml:"min_jobs_found" mapstructure:"min_jobs_found"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("JOBPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "./jobpipe.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("timezone", "America/Toronto")
	v.SetDefault("notifier.dry_run", false)
	v.SetDefault("llm.acquire_timeout_secs", 30)
	v.SetDefault("llm.stream_timeout_secs", 60)
	v.SetDefault("llm.hard_cap_timeout_secs", 720)
	v.SetDefault("llm.ai_analysis_min_score", 50)
	v.SetDefault("llm.provider", "openai_compatible")
	v.SetDefault("search_api.base_url", "https://serpapi.com/search")
	v.SetDefault("pipeline.fuzzy_dedup_window_days", 7)
	v.SetDefault("pipeline.repost_window_days", 7)
	v.SetDefault("pipeline.max_job_age_days", 90)
	v.SetDefault("pipeline.batch_size", 5)
	v.SetDefault("pipeline.delay_between_requests_ms", 0)
	v.SetDefault("pipeline.batch_pause_ms", 1000)
	v.SetDefault("scoring.low_confidence_cap", 60)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_days", 1)
	v.SetDefault("monitoring.success_rate_threshold", 0.5)
	v.SetDefault("monitoring.min_jobs_found", 3)

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
