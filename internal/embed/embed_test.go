package embed

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewSelectsBackend(t *testing.T) {
	if _, ok := New(Config{}).(*HashEmbedder); !ok {
		t.Errorf("expected hashing embedder without endpoint")
	}
	if got := New(Config{}).Dimension(); got != defaultHashDimension {
		t.Errorf("expected default dimension %d, got %d", defaultHashDimension, got)
	}
	if _, ok := New(Config{Endpoint: "http://localhost:1/v1", Model: "m"}).(*openaiClient); !ok {
		t.Errorf("expected OpenAI client with endpoint")
	}
}

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()
	a, _ := e.Embed(ctx, "Plan a trip for college friends")
	b, _ := e.Embed(ctx, "Plan a trip for college friends")
	if len(a) != 64 {
		t.Fatalf("expected 64 dims, got %d", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("vectors differ at %d", i)
		}
	}
	if n := Cosine(a, a); math.Abs(n-1) > 1e-6 {
		t.Errorf("self similarity should be 1, got %f", n)
	}
}

func TestHashEmbedder_SharedVocabularyScoresHigher(t *testing.T) {
	e := NewHashEmbedder(384)
	vecs, err := e.EmbedBatch(context.Background(), []string{
		"nightlife and bars for a group of friends",
		"The best bars and nightlife spots",
		"Historical cathedral architecture",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	related := Cosine(vecs[0], vecs[1])
	unrelated := Cosine(vecs[0], vecs[2])
	if related <= unrelated {
		t.Errorf("expected related %.3f > unrelated %.3f", related, unrelated)
	}
}

func TestHashEmbedder_EmptyText(t *testing.T) {
	v, err := NewHashEmbedder(8).Embed(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, x := range v {
		if x != 0 {
			t.Fatalf("expected zero vector, got %v", v)
		}
	}
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
		{"length mismatch", []float32{1}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cosine(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("expected %f, got %f", tt.want, got)
			}
		})
	}
}

// embeddingServer answers /v1/embeddings with a fixed vector per input,
// after failing the first failures requests with status.
func embeddingServer(t *testing.T, failures int32, status int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if r.URL.Path != "/v1/embeddings" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if n <= failures {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"try later","type":"server_error"}}`))
			return
		}
		var req struct {
			Input []string `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		type item struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		resp := struct {
			Object string `json:"object"`
			Data   []item `json:"data"`
			Model  string `json:"model"`
		}{Object: "list", Model: "test-model"}
		// Reverse order to check reassembly by index.
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, item{Object: "embedding", Embedding: []float32{float32(i + 1), 0, 0}, Index: i})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestOpenAIClient_BatchesInInputOrder(t *testing.T) {
	srv, calls := embeddingServer(t, 0, 0)
	emb := New(Config{Endpoint: srv.URL + "/v1", Model: "test-model", BatchSize: 2})

	vecs, err := emb.EmbedBatch(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vecs))
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected 2 requests for batch size 2, got %d", got)
	}
	if emb.Dimension() != 3 {
		t.Errorf("expected auto-detected dimension 3, got %d", emb.Dimension())
	}
	for i, v := range vecs {
		if math.Abs(float64(v[0])-1) > 1e-6 {
			t.Errorf("vector %d not normalized: %v", i, v)
		}
	}
}

func TestOpenAIClient_RetriesTransientErrors(t *testing.T) {
	srv, calls := embeddingServer(t, 2, http.StatusTooManyRequests)
	emb := New(Config{Endpoint: srv.URL + "/v1", Model: "m", MaxAttempts: 3, RetryDelay: time.Millisecond})

	if _, err := emb.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("expected 3 attempts, got %d", got)
	}
}

func TestOpenAIClient_ExhaustedRetriesAreUnavailable(t *testing.T) {
	srv, calls := embeddingServer(t, 100, http.StatusServiceUnavailable)
	emb := New(Config{Endpoint: srv.URL + "/v1", Model: "m", MaxAttempts: 2, RetryDelay: time.Millisecond})

	_, err := emb.Embed(context.Background(), "hello")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected 2 attempts, got %d", got)
	}
}

func TestOpenAIClient_ClientErrorsNotRetried(t *testing.T) {
	srv, calls := embeddingServer(t, 100, http.StatusBadRequest)
	emb := New(Config{Endpoint: srv.URL + "/v1", Model: "m", MaxAttempts: 3, RetryDelay: time.Millisecond})

	if _, err := emb.Embed(context.Background(), "hello"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected a single attempt, got %d", got)
	}
}
