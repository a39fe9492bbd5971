package embedding

import (
	"ai_mem/backend/go/internal/config"
	"ai_mem/backend/go/pkg/circuitbreaker"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaModel_Embed(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"model":"llama3.2:latest","embeddings":[[0.25,-0.5,1]]}`))
	}))
	defer srv.Close()

	m, err := NewOllamaModel("llama3.2:latest", srv.URL)
	require.NoError(t, err)
	vec, err := m.Embed(context.Background(), "Likes tea")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -0.5, 1}, vec)
	assert.Equal(t, "Likes tea", got["input"])
}

func TestOllamaModel_NoEmbeddings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"model":"m","embeddings":[]}`))
	}))
	defer srv.Close()

	m, err := NewOllamaModel("m", srv.URL)
	require.NoError(t, err)
	_, err = m.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, ErrNoEmbeddings)
}

func TestOpenAIModel_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2]}],"model":"text-embedding-3-small"}`))
	}))
	defer srv.Close()

	m, err := NewOpenAIModel("text-embedding-3-small", "sk-test", srv.URL)
	require.NoError(t, err)
	vec, err := m.Embed(context.Background(), "Likes tea")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)
}

func TestNew_UnsupportedProvider(t *testing.T) {
	_, err := New(context.Background(), config.EmbeddingConfig{Provider: "huggingface"})
	assert.Error(t, err)
}

type failingModel struct{ calls int }

func (f *failingModel) Embed(context.Context, string) ([]float32, error) {
	f.calls++
	return nil, errors.New("embedder down")
}

func TestWithCircuitBreaker(t *testing.T) {
	inner := &failingModel{}
	m := WithCircuitBreaker(inner, circuitbreaker.New(1, 1, time.Minute))

	_, err := m.Embed(context.Background(), "a")
	assert.EqualError(t, err, "embedder down")
	_, err = m.Embed(context.Background(), "b")
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, 1, inner.calls)
}
