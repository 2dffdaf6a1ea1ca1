package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port string

	// Auth for the HTTP API. Empty disables the API in serve mode.
	APIKey string

	// Per-document chains run concurrently up to WorkerCount.
	WorkerCount int
	// Async analyze jobs
	JobWorkers   int
	MaxQueueSize int
	JobTTL       time.Duration

	// Upload limits
	MaxUploadBytes int64

	// Deadlines
	DocumentTimeout time.Duration
	RunTimeout      time.Duration

	// Ranking
	TopK int
	TopN int

	// Embedding backend. Empty endpoint selects the offline embedder.
	EmbedEndpoint    string
	EmbedAPIKey      string
	EmbedModel       string
	EmbedDimension   int
	EmbedBatchSize   int
	EmbedTimeout     time.Duration
	EmbedMaxAttempts int

	// PDF
	PDFRepair bool

	LogLevel string
}

// defaults are applied to viper before the environment and config file.
var defaults = map[string]any{
	"port":               "8090",
	"worker_count":       4,
	"job_workers":        2,
	"max_queue_size":     100,
	"job_ttl":            time.Hour,
	"max_upload_bytes":   int64(52428800), // 50MB
	"document_timeout":   10 * time.Second,
	"run_timeout":        60 * time.Second,
	"top_k":              5,
	"top_n":              3,
	"embed_model":        "text-embedding-3-small",
	"embed_batch_size":   32,
	"embed_timeout":      30 * time.Second,
	"embed_max_attempts": 3,
	"pdf_repair":         true,
	"log_level":          "info",
}

// Load reads configuration from, in increasing precedence, built-in
// defaults, the optional YAML file cfgFile (or ./docsense.yaml), and
// DOCSENSE_* environment variables. A .env file in the working directory
// is loaded into the environment first.
func Load(cfgFile string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix("DOCSENSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("docsense")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Config{
		Port:   v.GetString("port"),
		APIKey: v.GetString("api_key"),

		WorkerCount:  v.GetInt("worker_count"),
		JobWorkers:   v.GetInt("job_workers"),
		MaxQueueSize: v.GetInt("max_queue_size"),
		JobTTL:       v.GetDuration("job_ttl"),

		MaxUploadBytes: v.GetInt64("max_upload_bytes"),

		DocumentTimeout: v.GetDuration("document_timeout"),
		RunTimeout:      v.GetDuration("run_timeout"),

		TopK: v.GetInt("top_k"),
		TopN: v.GetInt("top_n"),

		EmbedEndpoint:    v.GetString("embed_endpoint"),
		EmbedAPIKey:      v.GetString("embed_api_key"),
		EmbedModel:       v.GetString("embed_model"),
		EmbedDimension:   v.GetInt("embed_dimension"),
		EmbedBatchSize:   v.GetInt("embed_batch_size"),
		EmbedTimeout:     v.GetDuration("embed_timeout"),
		EmbedMaxAttempts: v.GetInt("embed_max_attempts"),

		PDFRepair: v.GetBool("pdf_repair"),

		LogLevel: v.GetString("log_level"),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.JobWorkers <= 0 {
		cfg.JobWorkers = 2
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 52428800
	}
	if cfg.DocumentTimeout <= 0 {
		cfg.DocumentTimeout = 10 * time.Second
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 60 * time.Second
	}

	return cfg, nil
}

// Validate checks settings every command depends on.
func (c Config) Validate() error {
	if c.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.TopK)
	}
	if c.TopN <= 0 {
		return fmt.Errorf("top_n must be positive, got %d", c.TopN)
	}
	if c.EmbedEndpoint != "" && c.EmbedModel == "" {
		return fmt.Errorf("embed_model is required when embed_endpoint is set")
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// ValidateServer additionally checks what the HTTP server needs.
func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.APIKey == "" {
		return fmt.Errorf("DOCSENSE_API_KEY is required")
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	return lvl, nil
}
