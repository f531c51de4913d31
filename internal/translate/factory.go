package translate

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"tgrelay/internal/config"
	"tgrelay/internal/domain"
)

// StrategyConstructor builds a translation strategy from config. The returned
// closer releases anything the strategy holds open and may be nil.
type StrategyConstructor func(cfg config.TranslationConfig, logger *slog.Logger) (domain.Translator, io.Closer, error)

var constructors = map[string]StrategyConstructor{
	"online":  newOnlineStrategy,
	"offline": newOfflineStrategy,
	"none": func(config.TranslationConfig, *slog.Logger) (domain.Translator, io.Closer, error) {
		return nil, nil, nil
	},
}

// Modes lists the translation modes that can be configured.
func Modes() []string {
	modes := make([]string, 0, len(constructors))
	for m := range constructors {
		modes = append(modes, m)
	}
	sort.Strings(modes)
	return modes
}

// Build creates the Engine for cfg.Mode. Close the returned io.Closer on
// shutdown; it is never nil.
func Build(cfg config.TranslationConfig, logger *slog.Logger) (*Engine, io.Closer, error) {
	ctor, ok := constructors[cfg.Mode]
	if !ok {
		return nil, nil, fmt.Errorf("unknown translation mode %q", cfg.Mode)
	}
	strategy, closer, err := ctor(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("build %s translation: %w", cfg.Mode, err)
	}
	if closer == nil {
		closer = nopCloser{}
	}
	return NewEngine(strategy, logger), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func newOnlineStrategy(cfg config.TranslationConfig, logger *slog.Logger) (domain.Translator, io.Closer, error) {
	return NewOnline(OnlineConfig{
		URL:     cfg.Online.URL,
		APIKey:  cfg.Online.APIKey,
		Timeout: seconds(cfg.Online.TimeoutSeconds),
		Logger:  logger,
	}), nil, nil
}

func newOfflineStrategy(cfg config.TranslationConfig, logger *slog.Logger) (domain.Translator, io.Closer, error) {
	oc := cfg.Offline
	registry, err := OpenRegistry(RegistryConfig{
		IndexURL:    oc.IndexURL,
		PackagesDir: oc.PackagesDir,
		CatalogPath: oc.CatalogPath,
		Logger:      logger,
	})
	if err != nil {
		return nil, nil, err
	}
	models := NewModelSet(registry, Pairs(oc.SourceLanguages, oc.Target), logger)
	backend := NewArgosCLI(ArgosConfig{
		Command:     oc.Command,
		PackagesDir: oc.PackagesDir,
		Timeout:     seconds(oc.TimeoutSeconds),
		Logger:      logger,
	})
	return NewOffline(OfflineConfig{
		Target:  oc.Target,
		Models:  models,
		Backend: backend,
		Logger:  logger,
	}), registry, nil
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
