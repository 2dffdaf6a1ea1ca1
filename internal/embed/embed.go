// Package embed converts text to vectors for relevance scoring.
//
// Two backends are provided: an offline feature-hashing embedder that needs
// no model or network, and a client for any OpenAI-compatible embeddings
// endpoint (OpenAI itself, vLLM, Ollama, llama.cpp server).
//
// Usage:
//
//	emb := embed.New(embed.Config{
//	    Endpoint: "http://localhost:11434/v1",
//	    Model:    "nomic-embed-text",
//	})
//	vecs, err := emb.EmbedBatch(ctx, []string{"budget travel", "fine dining"})
package embed

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// ErrUnavailable is returned when the embedding backend cannot produce
// vectors. It aborts the run that needed them.
var ErrUnavailable = errors.New("embedding unavailable")

// Embedder converts text to vectors.
type Embedder interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the vector dimension, 0 if not yet known.
	Dimension() int

	// Model returns the model name.
	Model() string
}

// Config configures the embedder.
type Config struct {
	// Endpoint is the base URL of an OpenAI-compatible API, including the
	// version path (e.g. "http://localhost:8080/v1"). Empty selects the
	// offline hashing embedder.
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// APIKey is sent as a bearer token. Local servers usually ignore it.
	APIKey string `json:"-" yaml:"-"`

	// Model is the model name sent in the request.
	Model string `json:"model" yaml:"model"`

	// Dimension is the vector size. For the hashing embedder it sets the
	// number of buckets (default 384); for remote models 0 means auto-detect.
	Dimension int `json:"dimension" yaml:"dimension"`

	// BatchSize is the maximum number of texts per request. Default: 32.
	BatchSize int `json:"batch_size" yaml:"batch_size"`

	// MaxInputTokens truncates each input before it is sent. Default: 512.
	MaxInputTokens int `json:"max_input_tokens" yaml:"max_input_tokens"`

	// Timeout per HTTP request. Default: 30s.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// MaxAttempts bounds tries per request on 429/5xx. Default: 3.
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts"`

	// RetryDelay is the base backoff between attempts. Default: 500ms.
	RetryDelay time.Duration `json:"retry_delay" yaml:"retry_delay"`

	// Logger for debug/error messages. Defaults to slog.Default().
	Logger *slog.Logger `json:"-" yaml:"-"`
}

const (
	defaultHashDimension = 384
	hashModelName        = "feature-hash"
)

func (c *Config) defaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.MaxInputTokens <= 0 {
		c.MaxInputTokens = 512
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// New creates an Embedder from config. If Endpoint is empty the offline
// hashing embedder is returned.
func New(cfg Config) Embedder {
	cfg.defaults()
	if cfg.Endpoint == "" {
		dim := cfg.Dimension
		if dim <= 0 {
			dim = defaultHashDimension
		}
		return NewHashEmbedder(dim)
	}
	return newOpenAIClient(cfg)
}
