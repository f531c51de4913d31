package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrUnsupportedPair indicates the package index has no model for a pair.
var ErrUnsupportedPair = errors.New("no translation package for language pair")

// Pair is a directed source/target language combination.
type Pair struct {
	From string
	To   string
}

func (p Pair) String() string { return p.From + "->" + p.To }

// Pairs builds every from->target pair, skipping from == target.
func Pairs(sources []string, target string) []Pair {
	pairs := make([]Pair, 0, len(sources))
	for _, from := range sources {
		if from == "" || from == target {
			continue
		}
		pairs = append(pairs, Pair{From: from, To: target})
	}
	return pairs
}

// Installer looks up, lists and installs offline translation packages.
type Installer interface {
	Installed(ctx context.Context, p Pair) (bool, error)
	Available(ctx context.Context) ([]Package, error)
	Install(ctx context.Context, pkg Package) error
}

// ModelSet makes sure the configured pairs are installed. The check runs at
// most once per process; later calls return the outcome of the first.
type ModelSet struct {
	installer Installer
	pairs     []Pair
	logger    *slog.Logger

	once  sync.Once
	ready atomic.Pointer[readyPairs]
}

type readyPairs struct {
	list []Pair
	set  map[Pair]struct{}
}

func NewModelSet(installer Installer, pairs []Pair, logger *slog.Logger) *ModelSet {
	return &ModelSet{installer: installer, pairs: pairs, logger: logger}
}

// Ensure installs missing pairs on first use and returns the pairs that are
// usable. Concurrent callers block until the first call finishes. The
// installation is not bound to the caller's cancellation, so one cancelled
// message cannot leave the set half-initialized for the rest of the process.
func (m *ModelSet) Ensure(ctx context.Context) []Pair {
	m.once.Do(func() {
		list := m.ensure(context.WithoutCancel(ctx))
		set := make(map[Pair]struct{}, len(list))
		for _, p := range list {
			set[p] = struct{}{}
		}
		m.ready.Store(&readyPairs{list: list, set: set})
	})
	if r := m.ready.Load(); r != nil {
		return r.list
	}
	return nil
}

// Has reports whether p is usable. It never triggers installation and
// returns false until the first Ensure has finished.
func (m *ModelSet) Has(p Pair) bool {
	r := m.ready.Load()
	if r == nil {
		return false
	}
	_, ok := r.set[p]
	return ok
}

func (m *ModelSet) ensure(ctx context.Context) []Pair {
	var ready, missing []Pair
	for _, p := range m.pairs {
		ok, err := m.installer.Installed(ctx, p)
		if err != nil {
			m.logger.Warn("cannot check installed package", "pair", p.String(), "err", err)
		}
		if ok {
			ready = append(ready, p)
		} else {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		m.logger.Debug("offline models already installed", "pairs", len(ready))
		return ready
	}

	available, err := m.installer.Available(ctx)
	if err != nil {
		m.logger.Error("cannot fetch package index, offline translation limited to installed models",
			"installed", len(ready),
			"missing", len(missing),
			"err", err,
		)
		return ready
	}

	for _, p := range missing {
		pkg, err := findPackage(available, p)
		if err != nil {
			m.logger.Warn("skipping language pair", "pair", p.String(), "err", err)
			continue
		}
		m.logger.Info("installing offline model", "pair", p.String(), "version", pkg.Version)
		if err := m.installer.Install(ctx, pkg); err != nil {
			m.logger.Error("offline model install failed", "pair", p.String(), "err", err)
			continue
		}
		ready = append(ready, p)
	}
	return ready
}

func findPackage(available []Package, p Pair) (Package, error) {
	for _, pkg := range available {
		if pkg.From == p.From && pkg.To == p.To {
			return pkg, nil
		}
	}
	return Package{}, fmt.Errorf("%w: %s", ErrUnsupportedPair, p)
}
