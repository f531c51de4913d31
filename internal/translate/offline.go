package translate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Backend runs one installed model.
type Backend interface {
	Translate(ctx context.Context, from, to, text string) (string, error)
}

// OfflineConfig configures the local-model strategy.
type OfflineConfig struct {
	Target      string // the only language this strategy translates into
	Models      *ModelSet
	Backend     Backend
	Concurrency int // candidate translations run at once, 0 = one per pair
	Logger      *slog.Logger
}

// Offline translates with locally installed models. The source language is
// not detected: every installed candidate pair is tried and the output that
// looks most like the target script wins.
type Offline struct {
	target      string
	models      *ModelSet
	backend     Backend
	concurrency int
	logger      *slog.Logger
}

func NewOffline(cfg OfflineConfig) *Offline {
	return &Offline{
		target:      cfg.Target,
		models:      cfg.Models,
		backend:     cfg.Backend,
		concurrency: cfg.Concurrency,
		logger:      cfg.Logger,
	}
}

func (o *Offline) Name() string { return "offline" }

type candidate struct {
	pair  Pair
	text  string
	score float64
}

// Translate returns text unchanged when target is not the configured one.
func (o *Offline) Translate(ctx context.Context, text, target string) (string, error) {
	if target != o.target {
		o.logger.Debug("offline target mismatch, passing text through", "target", target, "configured", o.target)
		return text, nil
	}

	var pairs []Pair
	for _, p := range o.models.Ensure(ctx) {
		if p.To == target {
			pairs = append(pairs, p)
		}
	}
	if len(pairs) == 0 {
		return "", fmt.Errorf("%w: no installed models into %q", ErrNoTranslation, target)
	}

	results := make([]candidate, len(pairs))
	var g errgroup.Group
	if o.concurrency > 0 {
		g.SetLimit(o.concurrency)
	}
	for i, p := range pairs {
		i, p := i, p
		g.Go(func() error {
			out, err := o.backend.Translate(ctx, p.From, p.To, text)
			if err != nil {
				// One failing pair must not cancel the others.
				o.logger.Debug("candidate translation failed", "pair", p.String(), "err", err)
				return nil
			}
			results[i] = candidate{pair: p, text: out, score: scriptShare(out, target)}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return "", err
	}

	best, ok := pickBest(results)
	if !ok {
		return "", fmt.Errorf("%w: every candidate failed", ErrNoTranslation)
	}
	if best.text == text {
		return text, nil
	}
	o.logger.Debug("offline translation chosen", "pair", best.pair.String(), "score", best.score)
	return best.text, nil
}

// pickBest returns the highest scoring non-empty candidate. Ties keep the
// earlier pair so the configured source order acts as a preference.
func pickBest(results []candidate) (candidate, bool) {
	var best candidate
	found := false
	for _, c := range results {
		if strings.TrimSpace(c.text) == "" {
			continue
		}
		if !found || c.score > best.score {
			best = c
			found = true
		}
	}
	return best, found
}
