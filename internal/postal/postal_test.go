package postal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aethra/daicho/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memCache struct {
	entries map[string]string
	ttl     time.Duration
}

func (m *memCache) Get(_ context.Context, address string) (string, bool, error) {
	code, ok := m.entries[address]
	return code, ok, nil
}

func (m *memCache) Set(_ context.Context, address, code string, ttl time.Duration) error {
	m.entries[address] = code
	m.ttl = ttl
	return nil
}

func completionServer(t *testing.T, status int, body string, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, "東京都千代田区丸の内1-1", req.Messages[1].Content)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func guesser(url string, cache Cache) *Guesser {
	return NewGuesser(config.AIConfig{
		BaseURL: url + "/v1/",
		APIKey:  "test-key",
		Model:   "test-model",
		Timeout: 5 * time.Second,
	}, cache, zap.NewNop())
}

func TestGuess_CallsEndpointThenCaches(t *testing.T) {
	var calls int32
	srv := completionServer(t, http.StatusOK,
		`{"choices":[{"message":{"role":"assistant","content":"〒１００－０００５です"}}]}`, &calls)
	cache := &memCache{entries: map[string]string{}}
	g := guesser(srv.URL, cache)

	code, err := g.Guess(context.Background(), "  東京都千代田区丸の内１－１ ")
	require.NoError(t, err)
	assert.Equal(t, "100-0005", code)
	assert.Equal(t, "100-0005", cache.entries["東京都千代田区丸の内1-1"])
	assert.Equal(t, 30*24*time.Hour, cache.ttl)

	code, err = g.Guess(context.Background(), "東京都千代田区丸の内1-1")
	require.NoError(t, err)
	assert.Equal(t, "100-0005", code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGuess_NoCodeInAnswer(t *testing.T) {
	var calls int32
	srv := completionServer(t, http.StatusOK, `{"choices":[{"message":{"content":"不明"}}]}`, &calls)
	cache := &memCache{entries: map[string]string{}}

	_, err := guesser(srv.URL, cache).Guess(context.Background(), "東京都千代田区丸の内1-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, cache.entries)
}

func TestGuess_EndpointError(t *testing.T) {
	var calls int32
	srv := completionServer(t, http.StatusTooManyRequests,
		`{"error":{"message":"Rate limit reached","type":"requests"}}`, &calls)

	_, err := guesser(srv.URL, nil).Guess(context.Background(), "東京都千代田区丸の内1-1")
	assert.EqualError(t, err, "郵便番号の問い合わせに失敗しました: Rate limit reached")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGuess_DisabledAndBlank(t *testing.T) {
	g := NewGuesser(config.AIConfig{BaseURL: "http://127.0.0.1:1"}, nil, zap.NewNop())
	assert.False(t, g.Enabled())

	_, err := g.Guess(context.Background(), "東京都")
	assert.ErrorIs(t, err, ErrDisabled)

	_, err = g.Guess(context.Background(), " 　")
	assert.ErrorIs(t, err, ErrNoAddress)
}

func TestExtractCode(t *testing.T) {
	tests := map[string]string{
		"100-0005":           "100-0005",
		"郵便番号は1000005です":     "100-0005",
		"〒５３０－０００１":          "530-0001",
		"候補: 060-0001, 060-0002": "060-0001",
	}
	for in, want := range tests {
		got, ok := ExtractCode(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ExtractCode("不明")
	assert.False(t, ok)
}

func TestNormalizeAddress(t *testing.T) {
	assert.Equal(t, "大阪府大阪市北区梅田1-1 ABCビル", NormalizeAddress(" 大阪府大阪市北区梅田１－１　ＡＢＣビル "))
}
