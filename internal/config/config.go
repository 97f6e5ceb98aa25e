package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all winnow configuration.
type Config struct {
	Pipeline PipelineConfig
	Server   ServerConfig
	LLM      LLMConfig
	Audit    AuditConfig
	Logging  LoggingConfig
}

// PipelineConfig holds the reduction pipeline settings. Weights and keyword
// lists are policy, deliberately configurable rather than hard-coded.
type PipelineConfig struct {
	BucketSeconds         int // time-window size for non-traced records
	TopK                  int // max windows returned
	MaxTemplatesPerWindow int
	MaxSamplesPerWindow   int
	MaxMessageChars       int // sample message truncation
	MaxRecords            int // hard ceiling, request rejected above it
	MaxInputBytes         int64
	Workers               int // 0 means one per CPU core

	// Importance weights: importance = alpha*relevance +
	// beta*hotFraction + gamma*log1p(recordCount). Alpha >= beta >= gamma.
	Alpha float64
	Beta  float64
	Gamma float64

	// Relevance weights. ServiceWeight is also the per-record contribution
	// ceiling, which keeps window scores monotone when matching records
	// are added.
	ServiceWeight float64
	PhraseWeight  float64
	KeywordWeight float64
	KeywordCap    float64 // max total keyword contribution per record

	HotKeywords     []string
	Stopwords       []string
	ServiceSynonyms map[string][]string
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Addr             string
	AllowedOrigins   []string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	ShutdownTimeout  time.Duration
	MaxConversations int // live conversation LRU capacity
}

// LLMConfig holds the analysis model settings. An empty APIKey disables the
// analysis call; the reduction still runs and the response carries the
// summaries without analysis text.
type LLMConfig struct {
	APIKey           string
	Model            string
	BaseURL          string // overridable for tests and proxies
	MaxContextTokens int
	InputPricePerM   float64 // USD per 1M prompt tokens; 0 uses the built-in table
	OutputPricePerM  float64
}

// AuditConfig holds the request audit trail settings.
type AuditConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// LoggingConfig holds application log settings.
type LoggingConfig struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "text" or "json"
}

// Default returns the built-in configuration. Keyword lists and the synonym
// table carry the stock incident vocabulary; every entry is replaceable via
// file or environment.
func Default() Config {
	return Config{
		Pipeline: PipelineConfig{
			BucketSeconds:         30,
			TopK:                  10,
			MaxTemplatesPerWindow: 5,
			MaxSamplesPerWindow:   3,
			MaxMessageChars:       200,
			MaxRecords:            100000,
			MaxInputBytes:         64 << 20,
			Workers:               0,
			Alpha:                 1.0,
			Beta:                  0.5,
			Gamma:                 0.25,
			ServiceWeight:         30,
			PhraseWeight:          25,
			KeywordWeight:         5,
			KeywordCap:            15,
			HotKeywords: []string{
				"error", "exception", "fail", "failure", "crash", "timeout",
				"refused", "denied", "unavailable", "unreachable", "panic",
				"fatal", "critical", "alert", "emergency", "abort",
			},
			Stopwords: []string{
				"the", "is", "are", "was", "were", "a", "an", "and", "or",
				"but", "in", "on", "at", "to", "for", "of", "with", "by",
				"my", "me", "it", "this", "that", "what", "why", "how",
				"show", "service", "services", "log", "logs",
			},
			ServiceSynonyms: map[string][]string{
				"cart":     {"cart", "basket", "shopping"},
				"payment":  {"payment", "billing", "transaction"},
				"auth":     {"auth", "authentication", "login", "signin"},
				"database": {"database", "db", "sql", "postgres", "mysql"},
				"api":      {"api", "gateway", "rest", "endpoint"},
			},
		},
		Server: ServerConfig{
			Addr:             ":8080",
			AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:5173"},
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     120 * time.Second,
			IdleTimeout:      60 * time.Second,
			ShutdownTimeout:  10 * time.Second,
			MaxConversations: 256,
		},
		LLM: LLMConfig{
			Model:            "gpt-4o-mini",
			MaxContextTokens: 12000,
		},
		Audit: AuditConfig{
			Enabled:    false,
			Path:       "winnow-audit.log",
			MaxSizeMB:  50,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from an optional YAML file, the environment
// (WINNOW_ prefix, dots become underscores: pipeline.top_k is
// WINNOW_PIPELINE_TOP_K), and the built-in defaults, in that precedence
// order. An empty path means file loading is skipped unless winnow.yaml
// exists in the working directory.
func Load(path string) (*Config, *viper.Viper, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("winnow")
		v.AddConfigPath(".")
	}
	v.SetConfigType("yaml")

	v.SetEnvPrefix("WINNOW")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing file means defaults + env; anything else is fatal.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
		}
	}

	cfg := unmarshal(v)
	return &cfg, v, nil
}

// Watch re-reads and validates the config file on change, invoking apply
// with the new configuration only when it validates. Invalid edits are
// reported through onError and the running configuration is kept.
func Watch(v *viper.Viper, apply func(Config), onError func(error)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg := unmarshal(v)
		if errs := cfg.Validate(); len(errs) > 0 {
			onError(fmt.Errorf("config: reload %s: %w", e.Name, errs[0]))
			return
		}
		apply(cfg)
	})
	v.WatchConfig()
}

func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("pipeline.bucket_seconds", d.Pipeline.BucketSeconds)
	v.SetDefault("pipeline.top_k", d.Pipeline.TopK)
	v.SetDefault("pipeline.max_templates_per_window", d.Pipeline.MaxTemplatesPerWindow)
	v.SetDefault("pipeline.max_samples_per_window", d.Pipeline.MaxSamplesPerWindow)
	v.SetDefault("pipeline.max_message_chars", d.Pipeline.MaxMessageChars)
	v.SetDefault("pipeline.max_records", d.Pipeline.MaxRecords)
	v.SetDefault("pipeline.max_input_bytes", d.Pipeline.MaxInputBytes)
	v.SetDefault("pipeline.workers", d.Pipeline.Workers)
	v.SetDefault("pipeline.alpha", d.Pipeline.Alpha)
	v.SetDefault("pipeline.beta", d.Pipeline.Beta)
	v.SetDefault("pipeline.gamma", d.Pipeline.Gamma)
	v.SetDefault("pipeline.service_weight", d.Pipeline.ServiceWeight)
	v.SetDefault("pipeline.phrase_weight", d.Pipeline.PhraseWeight)
	v.SetDefault("pipeline.keyword_weight", d.Pipeline.KeywordWeight)
	v.SetDefault("pipeline.keyword_cap", d.Pipeline.KeywordCap)
	v.SetDefault("pipeline.hot_keywords", d.Pipeline.HotKeywords)
	v.SetDefault("pipeline.stopwords", d.Pipeline.Stopwords)
	v.SetDefault("pipeline.service_synonyms", d.Pipeline.ServiceSynonyms)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.max_conversations", d.Server.MaxConversations)

	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.max_context_tokens", d.LLM.MaxContextTokens)
	v.SetDefault("llm.input_price_per_m", d.LLM.InputPricePerM)
	v.SetDefault("llm.output_price_per_m", d.LLM.OutputPricePerM)

	v.SetDefault("audit.enabled", d.Audit.Enabled)
	v.SetDefault("audit.path", d.Audit.Path)
	v.SetDefault("audit.max_size_mb", d.Audit.MaxSizeMB)
	v.SetDefault("audit.max_backups", d.Audit.MaxBackups)
	v.SetDefault("audit.max_age_days", d.Audit.MaxAgeDays)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

func unmarshal(v *viper.Viper) Config {
	var cfg Config

	cfg.Pipeline.BucketSeconds = v.GetInt("pipeline.bucket_seconds")
	cfg.Pipeline.TopK = v.GetInt("pipeline.top_k")
	cfg.Pipeline.MaxTemplatesPerWindow = v.GetInt("pipeline.max_templates_per_window")
	cfg.Pipeline.MaxSamplesPerWindow = v.GetInt("pipeline.max_samples_per_window")
	cfg.Pipeline.MaxMessageChars = v.GetInt("pipeline.max_message_chars")
	cfg.Pipeline.MaxRecords = v.GetInt("pipeline.max_records")
	cfg.Pipeline.MaxInputBytes = v.GetInt64("pipeline.max_input_bytes")
	cfg.Pipeline.Workers = v.GetInt("pipeline.workers")
	cfg.Pipeline.Alpha = v.GetFloat64("pipeline.alpha")
	cfg.Pipeline.Beta = v.GetFloat64("pipeline.beta")
	cfg.Pipeline.Gamma = v.GetFloat64("pipeline.gamma")
	cfg.Pipeline.ServiceWeight = v.GetFloat64("pipeline.service_weight")
	cfg.Pipeline.PhraseWeight = v.GetFloat64("pipeline.phrase_weight")
	cfg.Pipeline.KeywordWeight = v.GetFloat64("pipeline.keyword_weight")
	cfg.Pipeline.KeywordCap = v.GetFloat64("pipeline.keyword_cap")
	cfg.Pipeline.HotKeywords = v.GetStringSlice("pipeline.hot_keywords")
	cfg.Pipeline.Stopwords = v.GetStringSlice("pipeline.stopwords")
	cfg.Pipeline.ServiceSynonyms = v.GetStringMapStringSlice("pipeline.service_synonyms")

	cfg.Server.Addr = v.GetString("server.addr")
	cfg.Server.AllowedOrigins = v.GetStringSlice("server.allowed_origins")
	cfg.Server.ReadTimeout = v.GetDuration("server.read_timeout")
	cfg.Server.WriteTimeout = v.GetDuration("server.write_timeout")
	cfg.Server.IdleTimeout = v.GetDuration("server.idle_timeout")
	cfg.Server.ShutdownTimeout = v.GetDuration("server.shutdown_timeout")
	cfg.Server.MaxConversations = v.GetInt("server.max_conversations")

	cfg.LLM.APIKey = v.GetString("llm.api_key")
	cfg.LLM.Model = v.GetString("llm.model")
	cfg.LLM.BaseURL = v.GetString("llm.base_url")
	cfg.LLM.MaxContextTokens = v.GetInt("llm.max_context_tokens")
	cfg.LLM.InputPricePerM = v.GetFloat64("llm.input_price_per_m")
	cfg.LLM.OutputPricePerM = v.GetFloat64("llm.output_price_per_m")

	cfg.Audit.Enabled = v.GetBool("audit.enabled")
	cfg.Audit.Path = v.GetString("audit.path")
	cfg.Audit.MaxSizeMB = v.GetInt("audit.max_size_mb")
	cfg.Audit.MaxBackups = v.GetInt("audit.max_backups")
	cfg.Audit.MaxAgeDays = v.GetInt("audit.max_age_days")

	cfg.Logging.Level = v.GetString("logging.level")
	cfg.Logging.Format = v.GetString("logging.format")

	return cfg
}
