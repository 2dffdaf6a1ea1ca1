package embed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/avast/retry-go/v4"
	openai "github.com/sashabaranov/go-openai"

	"github.com/dgallion1/docsense/internal/chunker"
)

// openaiClient implements Embedder against the OpenAI /embeddings API.
type openaiClient struct {
	client *openai.Client
	model  string
	cfg    Config

	mu  sync.Mutex // protects dim on first call
	dim int        // 0 = auto-detect
}

func newOpenAIClient(cfg Config) *openaiClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.Endpoint, "/")
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &openaiClient{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.Model,
		dim:    cfg.Dimension,
		cfg:    cfg,
	}
}

func (c *openaiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *openaiClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	result := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += c.cfg.BatchSize {
		end := min(start+c.cfg.BatchSize, len(texts))

		var vecs [][]float32
		err := retry.Do(
			func() error {
				var err error
				vecs, err = c.callAPI(ctx, texts[start:end])
				return err
			},
			retry.Context(ctx),
			retry.Attempts(uint(c.cfg.MaxAttempts)),
			retry.Delay(c.cfg.RetryDelay),
			retry.RetryIf(isTransient),
			retry.LastErrorOnly(true),
			retry.OnRetry(func(n uint, err error) {
				c.cfg.Logger.Warn("embedding request failed, retrying",
					"attempt", n+1, "batch_start", start, "error", err)
			}),
		)
		if err != nil {
			return nil, fmt.Errorf("%w: batch [%d:%d]: %w", ErrUnavailable, start, end, err)
		}
		copy(result[start:end], vecs)
	}
	return result, nil
}

func (c *openaiClient) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	input := make([]string, len(texts))
	for i, t := range texts {
		input[i] = chunker.Truncate(t, c.cfg.MaxInputTokens)
		if strings.TrimSpace(input[i]) == "" {
			// Most servers reject empty strings.
			input[i] = " "
		}
	}

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(c.model),
		Input: input,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("no embeddings returned")
	}

	if first := len(resp.Data[0].Embedding); first > 0 {
		c.mu.Lock()
		if c.dim == 0 {
			c.dim = first
			c.cfg.Logger.Info("auto-detected embedding dimension",
				"dimension", c.dim, "model", c.model)
		}
		c.mu.Unlock()
	}

	// Reassemble in input order.
	vecs := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			continue
		}
		v := make([]float32, len(d.Embedding))
		for i, x := range d.Embedding {
			v[i] = float32(x)
		}
		Normalize(v)
		vecs[d.Index] = v
	}
	for i, v := range vecs {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for input index %d", i)
		}
	}
	return vecs, nil
}

func (c *openaiClient) Dimension() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dim
}

func (c *openaiClient) Model() string { return c.model }

// isTransient reports whether a failed call is worth retrying: rate
// limits, server errors and network failures.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
