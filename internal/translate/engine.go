// Package translate converts relayed text into the configured target
// language. Translation is best effort: Engine never fails, it falls back to
// the original text.
package translate

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"tgrelay/internal/domain"
	"tgrelay/internal/metrics"
)

var (
	// ErrNoTranslation indicates the strategy produced no usable text.
	ErrNoTranslation = errors.New("no translation produced")
)

// Engine is the fail-open boundary around a translation strategy.
type Engine struct {
	strategy domain.Translator
	logger   *slog.Logger
}

// NewEngine wraps strategy. A nil strategy passes text through unchanged.
func NewEngine(strategy domain.Translator, logger *slog.Logger) *Engine {
	return &Engine{strategy: strategy, logger: logger}
}

// Strategy returns the wrapped strategy name, or "none".
func (e *Engine) Strategy() string {
	if e.strategy == nil {
		return "none"
	}
	return e.strategy.Name()
}

// Translate returns text in the target language, or text itself when the
// input is blank or the strategy fails in any way.
func (e *Engine) Translate(ctx context.Context, text, target string) (out string) {
	if strings.TrimSpace(text) == "" || e.strategy == nil {
		return text
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			metrics.TranslationFailures.Inc()
			e.logger.Error("translation panicked, using original text",
				"strategy", e.strategy.Name(),
				"panic", r,
				"stack", string(debug.Stack()),
			)
			out = text
		}
	}()

	result, err := e.strategy.Translate(ctx, text, target)
	metrics.TranslationLatency.Observe(metrics.Since(start))
	if err == nil && strings.TrimSpace(result) == "" {
		err = ErrNoTranslation
	}
	if err != nil {
		metrics.TranslationFailures.Inc()
		e.logger.Warn("translation failed, using original text",
			"strategy", e.strategy.Name(),
			"target", target,
			"text_len", len(text),
			"err", err,
		)
		return text
	}
	return result
}
