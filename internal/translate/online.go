package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// OnlineConfig configures the LibreTranslate-compatible strategy.
type OnlineConfig struct {
	URL     string
	APIKey  string // optional
	Timeout time.Duration
	Client  *http.Client // optional, defaults to SharedHTTPClient
	Logger  *slog.Logger
}

// Online translates through a remote service, letting it detect the source
// language.
type Online struct {
	url     string
	apiKey  string
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
}

func NewOnline(cfg OnlineConfig) *Online {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(cfg.Timeout)
	}
	return &Online{
		url:     cfg.URL,
		apiKey:  cfg.APIKey,
		timeout: cfg.Timeout,
		client:  cfg.Client,
		logger:  cfg.Logger,
	}
}

func (o *Online) Name() string { return "online" }

type libreRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type libreResponse struct {
	TranslatedText *string `json:"translatedText"`
	Error          string  `json:"error,omitempty"`
}

// Translate issues a single request bounded by the configured timeout.
func (o *Online) Translate(ctx context.Context, text, target string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	payload, err := json.Marshal(libreRequest{
		Q:      text,
		Source: "auto",
		Target: target,
		Format: "text",
		APIKey: o.apiKey,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("translation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("translation service error (status %d): %s", resp.StatusCode, string(body))
	}

	var result libreResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&result); err != nil {
		return "", fmt.Errorf("decode translation response: %w", err)
	}
	if result.TranslatedText == nil {
		if result.Error != "" {
			return "", fmt.Errorf("%w: %s", ErrNoTranslation, result.Error)
		}
		return "", fmt.Errorf("%w: missing translatedText", ErrNoTranslation)
	}

	o.logger.Debug("translated online", "target", target, "text_len", len(text))
	return *result.TranslatedText, nil
}
