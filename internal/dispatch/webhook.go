// Package dispatch delivers formatted posts to a Discord webhook.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/bwmarrin/discordgo"

	"tgrelay/internal/domain"
	"tgrelay/internal/metrics"
)

// discordMaxMsgLen is Discord's per-message content limit, in characters.
const discordMaxMsgLen = 2000

// Config configures the webhook dispatcher.
type Config struct {
	URL         string
	TextTimeout time.Duration // text-only posts, default 10s
	FileTimeout time.Duration // posts carrying a file, default 60s
	// RatePerMinute throttles posts; 0 disables throttling.
	RatePerMinute int
	RateBurst     int
	Client        *http.Client // optional
	Logger        *slog.Logger
}

// Webhook posts to a Discord webhook URL. Failures are logged and counted,
// never returned.
type Webhook struct {
	url         string
	textTimeout time.Duration
	fileTimeout time.Duration
	client      *http.Client
	limiter     *rateLimiter // nil when unthrottled
	logger      *slog.Logger
}

var _ domain.Dispatcher = (*Webhook)(nil)

func New(cfg Config) *Webhook {
	if cfg.TextTimeout <= 0 {
		cfg.TextTimeout = 10 * time.Second
	}
	if cfg.FileTimeout <= 0 {
		cfg.FileTimeout = 60 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{}
	}
	w := &Webhook{
		url:         cfg.URL,
		textTimeout: cfg.TextTimeout,
		fileTimeout: cfg.FileTimeout,
		client:      cfg.Client,
		logger:      cfg.Logger,
	}
	if cfg.RatePerMinute > 0 {
		w.limiter = newRateLimiter(cfg.RateBurst, float64(cfg.RatePerMinute))
	}
	return w
}

// webhookPayload is the JSON body Discord expects. discordgo.WebhookParams
// is not used because it serializes empty component and embed fields.
type webhookPayload struct {
	Content  string `json:"content"`
	Username string `json:"username,omitempty"`
}

// Post delivers post. Content over Discord's limit is split: the first chunk
// travels with the file, the rest follow as text-only posts.
func (w *Webhook) Post(ctx context.Context, post domain.OutboundPost) {
	chunks := splitMessage(post.Content, discordMaxMsgLen)

	for i, chunk := range chunks {
		payload := webhookPayload{Content: chunk, Username: post.Username}
		if w.limiter != nil {
			if err := w.limiter.Wait(ctx); err != nil {
				metrics.DispatchFailures.Inc()
				w.logger.Error("webhook post dropped while throttled", "username", post.Username, "chunk", i+1, "err", err)
				continue
			}
		}

		var err error
		start := time.Now()
		if i == 0 && post.File != nil {
			err = w.postFile(ctx, payload, post.File)
		} else {
			err = w.postText(ctx, payload)
		}
		metrics.DispatchCalls.Inc()
		metrics.DispatchLatency.Observe(metrics.Since(start))
		if err != nil {
			metrics.DispatchFailures.Inc()
			w.logger.Error("webhook post failed",
				"username", post.Username,
				"chunk", i+1,
				"chunks", len(chunks),
				"has_file", i == 0 && post.File != nil,
				"err", err,
			)
			continue
		}
		w.logger.Debug("webhook post delivered", "username", post.Username, "chunk", i+1)
	}
}

func (w *Webhook) postText(ctx context.Context, payload webhookPayload) error {
	ctx, cancel := context.WithTimeout(ctx, w.textTimeout)
	defer cancel()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	return w.send(ctx, "application/json", body)
}

func (w *Webhook) postFile(ctx context.Context, payload webhookPayload, att *domain.Attachment) error {
	ctx, cancel := context.WithTimeout(ctx, w.fileTimeout)
	defer cancel()

	f, err := os.Open(att.Path)
	if err != nil {
		return fmt.Errorf("open attachment: %w", err)
	}
	defer f.Close()

	contentType, body, err := discordgo.MultipartBodyWithJSON(payload, []*discordgo.File{{
		Name:        att.Name,
		ContentType: att.MimeType,
		Reader:      f,
	}})
	if err != nil {
		return fmt.Errorf("build multipart body: %w", err)
	}
	return w.send(ctx, contentType, body)
}

func (w *Webhook) send(ctx context.Context, contentType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook error (status %d): %s", resp.StatusCode, string(msg))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// Check verifies the webhook URL answers a GET, which Discord serves with
// the webhook's metadata.
func (w *Webhook) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, w.textTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("webhook answered HTTP %d", resp.StatusCode)
	}
	return nil
}
