package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tgrelay/internal/config"
	"tgrelay/internal/translate"

	"github.com/spf13/cobra"
)

func modelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage offline translation models",
		Long:  "List, browse, and install the language packages used by offline translation mode.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List installed models",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(func(ctx context.Context, _ *config.Config, reg *translate.Registry) error {
				installed, err := reg.List(ctx)
				if err != nil {
					return err
				}
				if len(installed) == 0 {
					fmt.Println("No models installed.")
					return nil
				}
				for _, p := range installed {
					fmt.Printf("  %-8s %-10s %s\n", p.Pair.String(), p.Version, p.Path)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "available",
		Short: "List models offered by the package index",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(func(ctx context.Context, _ *config.Config, reg *translate.Registry) error {
				pkgs, err := reg.Available(ctx)
				if err != nil {
					return err
				}
				for _, p := range pkgs {
					fmt.Printf("  %s->%s  %s\n", p.From, p.To, p.Version)
				}
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "install [from...]",
		Short: "Install models into the offline target (default: configured source languages)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(func(ctx context.Context, cfg *config.Config, reg *translate.Registry) error {
				sources := args
				if len(sources) == 0 {
					sources = cfg.Translation.Offline.SourceLanguages
				}
				pairs := translate.Pairs(sources, cfg.Translation.Offline.Target)
				models := translate.NewModelSet(reg, pairs, logger)
				ready := models.Ensure(ctx)

				fmt.Printf("%d of %d model(s) ready\n", len(ready), len(pairs))
				for _, p := range pairs {
					status := "missing"
					if models.Has(p) {
						status = "ready"
					}
					fmt.Printf("  %-8s %s\n", p.String(), status)
				}
				if len(ready) < len(pairs) {
					return fmt.Errorf("%d model(s) could not be installed", len(pairs)-len(ready))
				}
				return nil
			})
		},
	})

	return cmd
}

func withRegistry(fn func(ctx context.Context, cfg *config.Config, reg *translate.Registry) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	oc := cfg.Translation.Offline
	reg, err := translate.OpenRegistry(translate.RegistryConfig{
		IndexURL:    oc.IndexURL,
		PackagesDir: oc.PackagesDir,
		CatalogPath: oc.CatalogPath,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer reg.Close()
	return fn(ctx, cfg, reg)
}
