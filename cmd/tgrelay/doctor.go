package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"tgrelay/internal/channel"
	"tgrelay/internal/config"
	"tgrelay/internal/dispatch"
	"tgrelay/internal/translate"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your tgrelay setup",
		Long: `Verifies that tgrelay's configuration, Telegram bot, Discord webhook,
translation backend and temp directory are correctly set up. Reports
pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("tgrelay doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config loads and validates
			cfg, err := loadConfig()
			if err != nil {
				printFail("Config", err.Error())
				fmt.Printf("\nRun 'tgrelay init' or 'tgrelay wizard' to create a configuration.\n")
				return fmt.Errorf("config invalid")
			}
			printPass("Config", resolveConfigPath())
			passed++

			// 2. Required settings present
			if err := cfg.Ready(); err != nil {
				printFail("Required settings", err.Error())
				failed++
			} else {
				printPass("Required settings", "bot token, channel and webhook set")
				passed++
			}

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			// 3. Remote endpoints
			if offline {
				printWarn("Remote checks", "skipped (--offline)")
				warned++
			} else {
				if cfg.Source.BotToken != "" {
					if name, err := channel.VerifyToken(cfg.Source.BotToken); err != nil {
						printFail("Telegram bot", err.Error())
						failed++
					} else {
						printPass("Telegram bot", "@"+name)
						passed++
					}
				}
				if cfg.Destination.WebhookURL != "" {
					hook := dispatch.New(dispatch.Config{URL: cfg.Destination.WebhookURL, Logger: logger})
					if err := hook.Check(ctx); err != nil {
						printFail("Discord webhook", err.Error())
						failed++
					} else {
						printPass("Discord webhook", "reachable")
						passed++
					}
				}
			}

			// 4. Translation backend
			switch cfg.Translation.Mode {
			case "online":
				if offline {
					break
				}
				online := translate.NewOnline(translate.OnlineConfig{
					URL:     cfg.Translation.Online.URL,
					APIKey:  cfg.Translation.Online.APIKey,
					Timeout: seconds(cfg.Translation.Online.TimeoutSeconds),
					Logger:  logger,
				})
				if _, err := online.Translate(ctx, "Привіт", cfg.Translation.Target); err != nil {
					printWarn("Translation", fmt.Sprintf("online service failed, messages will pass through untranslated: %v", err))
					warned++
				} else {
					printPass("Translation", "online service answered")
					passed++
				}
			case "offline":
				oc := cfg.Translation.Offline
				argos := translate.NewArgosCLI(translate.ArgosConfig{Command: oc.Command, Logger: logger})
				if err := argos.Available(); err != nil {
					printFail("Argos command", fmt.Sprintf("%s not found: %v", oc.Command, err))
					failed++
				} else {
					printPass("Argos command", oc.Command)
					passed++
				}
				if err := checkCatalog(ctx, oc); err != nil {
					printWarn("Offline models", err.Error())
					warned++
				} else {
					printPass("Offline models", oc.CatalogPath)
					passed++
				}
			default:
				printWarn("Translation", "disabled, messages are relayed as-is")
				warned++
			}

			// 5. Temp directory writable
			tempDir := cfg.Media.TempDir
			if tempDir == "" {
				tempDir = os.TempDir()
			}
			if err := checkWritable(tempDir); err != nil {
				printFail("Temp directory", err.Error())
				failed++
			} else {
				printPass("Temp directory", tempDir)
				passed++
			}

			// 6. Metrics port
			if cfg.Metrics.Enabled {
				if err := checkAddr(cfg.Metrics.Addr); err != nil {
					printWarn("Metrics address", fmt.Sprintf("%s may be in use: %v", cfg.Metrics.Addr, err))
					warned++
				} else {
					printPass("Metrics address", cfg.Metrics.Addr+" available")
					passed++
				}
			}

			// Summary
			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running tgrelay.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\ntgrelay should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! tgrelay is ready to run.\n")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "skip checks that contact Telegram, Discord or the translation service")
	return cmd
}

// checkCatalog opens the model catalog and reports which configured pairs
// are installed, without installing anything.
func checkCatalog(ctx context.Context, oc config.OfflineTranslateConfig) error {
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

	var missing []string
	for _, p := range translate.Pairs(oc.SourceLanguages, oc.Target) {
		ok, err := reg.Installed(ctx, p)
		if err != nil {
			return err
		}
		if !ok {
			missing = append(missing, p.String())
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("not installed yet (installed on first message or via 'tgrelay models install'): %v", missing)
	}
	return nil
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("cannot create: %w", err)
	}
	f, err := os.CreateTemp(dir, ".tgrelay-doctor-*")
	if err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(filepath.Clean(name))
}

func checkAddr(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
