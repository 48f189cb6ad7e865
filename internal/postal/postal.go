// Package postal guesses Japanese postal codes from free-text addresses
// using an OpenAI-compatible chat completions endpoint
package postal

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/aethra/daicho/internal/config"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/text/width"
)

var (
	// ErrDisabled is returned when no API key is configured
	ErrDisabled = errors.New("郵便番号の自動推定は設定されていません")
	// ErrNoAddress is returned for a blank address
	ErrNoAddress = errors.New("住所を入力してください")
	// ErrNotFound is returned when the completion holds no postal code
	ErrNotFound = errors.New("郵便番号を推定できませんでした")
)

const systemPrompt = "あなたは日本の郵便番号を答えるアシスタントです。" +
	"与えられた住所の郵便番号を123-4567の形式で1つだけ答えてください。" +
	"分からない場合は「不明」とだけ答えてください。"

var codeRe = regexp.MustCompile(`(\d{3})-?(\d{4})`)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Guesser looks up postal codes, caching answers by normalized address
type Guesser struct {
	client  *resty.Client
	model   string
	enabled bool
	cache   Cache
	logger  *zap.Logger
}

// NewGuesser creates a guesser for cfg. cache may be nil.
func NewGuesser(cfg config.AIConfig, cache Cache, logger *zap.Logger) *Guesser {
	if cache == nil {
		cache = NewRedisCache(nil)
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Guesser{
		client:  client,
		model:   cfg.Model,
		enabled: cfg.APIKey != "",
		cache:   cache,
		logger:  logger,
	}
}

// Enabled reports whether an API key is configured
func (g *Guesser) Enabled() bool { return g.enabled }

// NormalizeAddress folds full-width ASCII, half-width kana and runs of
// whitespace so equivalent addresses share a cache entry
func NormalizeAddress(address string) string {
	return strings.Join(strings.Fields(width.Fold.String(address)), " ")
}

// Guess returns the postal code of address as NNN-NNNN
func (g *Guesser) Guess(ctx context.Context, address string) (string, error) {
	address = NormalizeAddress(address)
	if address == "" {
		return "", ErrNoAddress
	}
	if !g.enabled {
		return "", ErrDisabled
	}

	if code, ok, err := g.cache.Get(ctx, address); err != nil {
		g.logger.Warn("postal cache read failed", zap.Error(err))
	} else if ok {
		return code, nil
	}

	code, err := g.complete(ctx, address)
	if err != nil {
		return "", err
	}

	if err := g.cache.Set(ctx, address, code, cacheTTL); err != nil {
		g.logger.Warn("postal cache write failed", zap.Error(err))
	}
	return code, nil
}

func (g *Guesser) complete(ctx context.Context, address string) (string, error) {
	var result chatResponse
	var failure apiError
	started := time.Now()
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(chatRequest{
			Model: g.model,
			Messages: []chatMessage{
				{Role: "system", Content: systemPrompt},
				{Role: "user", Content: address},
			},
			MaxTokens: 20,
		}).
		SetResult(&result).
		SetError(&failure).
		Post("/chat/completions")
	if err != nil {
		g.logger.Error("postal completion request failed", zap.Error(err))
		return "", fmt.Errorf("郵便番号の問い合わせに失敗しました: %w", err)
	}
	if resp.IsError() {
		g.logger.Error("postal completion returned error",
			zap.Int("status_code", resp.StatusCode()),
			zap.String("message", failure.Error.Message),
		)
		msg := failure.Error.Message
		if msg == "" {
			msg = resp.Status()
		}
		return "", fmt.Errorf("郵便番号の問い合わせに失敗しました: %s", msg)
	}

	g.logger.Debug("postal completion",
		zap.Duration("elapsed", time.Since(started)),
		zap.Int("choices", len(result.Choices)),
	)
	if len(result.Choices) == 0 {
		return "", ErrNotFound
	}
	code, ok := ExtractCode(result.Choices[0].Message.Content)
	if !ok {
		return "", ErrNotFound
	}
	return code, nil
}

// ExtractCode finds the first postal code in text and formats it NNN-NNNN
func ExtractCode(text string) (string, bool) {
	m := codeRe.FindStringSubmatch(width.Narrow.String(text))
	if m == nil {
		return "", false
	}
	return m[1] + "-" + m[2], true
}
