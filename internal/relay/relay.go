// Package relay turns inbound channel events into destination posts.
//
// Each event moves through: media downloaded, text extracted, translated,
// dispatched, cleaned up. Events are handled independently and concurrently;
// a failure in one never affects another.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"tgrelay/internal/domain"
	"tgrelay/internal/format"
	"tgrelay/internal/media"
	"tgrelay/internal/metrics"
)

// TextTranslator is the fail-open translation boundary (translate.Engine).
type TextTranslator interface {
	Translate(ctx context.Context, text, target string) string
}

// Config wires the relay's collaborators.
type Config struct {
	Media          *media.Manager
	Translator     TextTranslator
	Dispatcher     domain.Dispatcher
	Target         string // target language code
	UsernamePrefix string // prepended to the sender name on the post
	MaxConcurrent  int    // events handled at once by Run (default: 4)
	Logger         *slog.Logger
}

// Relay handles inbound events.
type Relay struct {
	media       *media.Manager
	translator  TextTranslator
	dispatcher  domain.Dispatcher
	target      string
	prefix      string
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

func New(cfg Config) *Relay {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	return &Relay{
		media:       cfg.Media,
		translator:  cfg.Translator,
		dispatcher:  cfg.Dispatcher,
		target:      cfg.Target,
		prefix:      cfg.UsernamePrefix,
		concurrency: cfg.MaxConcurrent,
		logger:      cfg.Logger,
		now:         time.Now,
	}
}

// Run consumes events until ctx is cancelled or the channel closes, then
// waits for in-flight events to finish. Events run concurrently, bounded by
// MaxConcurrent, with no ordering between them.
func (r *Relay) Run(ctx context.Context, events <-chan domain.InboundMessage) {
	r.logger.Info("relay loop started", "concurrency", r.concurrency, "target", r.target)

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relay loop stopping")
			return
		case msg, ok := <-events:
			if !ok {
				r.logger.Info("event channel closed, relay loop stopping")
				return
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				r.logger.Warn("relay stopping, event not handled", "message_id", msg.ID)
				return
			}
			wg.Add(1)
			go func(m domain.InboundMessage) {
				defer wg.Done()
				defer func() { <-sem }()
				r.Handle(ctx, m)
			}(msg)
		}
	}
}

// Handle relays one event. It never panics and never returns an error:
// problems are logged, and downloaded media is always removed.
func (r *Relay) Handle(ctx context.Context, msg domain.InboundMessage) {
	metrics.MessagesReceived.Inc()
	metrics.InFlight.Inc()
	defer metrics.InFlight.Dec()

	owner := fmt.Sprintf("%s/%s", msg.ChatID, msg.ID)
	defer func() {
		if rec := recover(); rec != nil {
			metrics.MessagesFailed.Inc()
			r.logger.Error("relay panicked, event dropped",
				"owner", owner,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
		}
	}()

	scope := r.media.Acquire(ctx, owner, msg)
	defer scope.Close()

	username := msg.DisplayName()
	text := msg.Body()
	blank := strings.TrimSpace(text) == ""
	if blank && scope.Len() == 0 {
		metrics.MessagesSkipped.Inc()
		r.logger.Debug("nothing to relay", "owner", owner, "media_refs", len(msg.Media))
		return
	}

	// Blank text with media renders as "sent image(s)."
	var translated string
	if !blank {
		translated = r.translator.Translate(ctx, text, r.target)
	}

	ts := msg.Timestamp
	if ts.IsZero() {
		ts = r.now()
	}
	content := format.Render(username, ts, text, translated, scope.Len() > 0)
	if content == "" {
		metrics.MessagesSkipped.Inc()
		return
	}

	label := r.prefix + username
	if scope.Len() == 0 {
		r.dispatcher.Post(ctx, domain.OutboundPost{Username: label, Content: content})
	} else {
		for _, att := range scope.Attachments() {
			att := att
			r.dispatcher.Post(ctx, domain.OutboundPost{Username: label, Content: content, File: &att})
		}
	}

	metrics.MessagesRelayed.Inc()
	r.logger.Info("relayed message",
		"owner", owner,
		"sender", username,
		"attachments", scope.Len(),
		"translated", translated != "" && translated != text,
	)
}
