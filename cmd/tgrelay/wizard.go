package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"tgrelay/internal/config"
	"tgrelay/internal/translate"

	"github.com/spf13/cobra"
)

func wizardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "wizard",
		Short: "Interactive setup: Telegram → Discord → translation → save config",
		Long:  "Guides you through the bot token, watched channel, Discord webhook, and translation mode. Writes config to the path used by --config or default.",
		RunE:  runWizard,
	}
}

func runWizard(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		cfg = config.Defaults()
	}

	reader := bufio.NewReader(os.Stdin)
	prompt := func(def string) (string, error) {
		if def != "" {
			fmt.Fprintf(os.Stdout, " [%s]: ", def)
		} else {
			fmt.Fprint(os.Stdout, ": ")
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		s := strings.TrimSpace(line)
		if s == "" && def != "" {
			return def, nil
		}
		return s, nil
	}

	// Step 1: Telegram
	fmt.Println("\n--- Step 1: Telegram ---")
	fmt.Fprint(os.Stdout, "Bot token (from @BotFather; the bot must be an admin of the channel)")
	token, err := prompt(cfg.Source.BotToken)
	if err != nil {
		return err
	}
	cfg.Source.BotToken = token

	fmt.Fprint(os.Stdout, "Channel to watch (numeric ID like -1001234567890, or @username)")
	chID, err := prompt(cfg.Source.ChannelID.String())
	if err != nil {
		return err
	}
	cfg.Source.ChannelID = config.FlexString(chID)

	// Step 2: Discord
	fmt.Println("\n--- Step 2: Discord ---")
	fmt.Fprint(os.Stdout, "Webhook URL (Channel settings → Integrations → Webhooks)")
	hook, err := prompt(cfg.Destination.WebhookURL)
	if err != nil {
		return err
	}
	cfg.Destination.WebhookURL = hook

	// Step 3: Translation
	fmt.Println("\n--- Step 3: Translation ---")
	fmt.Fprintf(os.Stdout, "Mode (%s)", strings.Join(translate.Modes(), ", "))
	mode, err := prompt(cfg.Translation.Mode)
	if err != nil {
		return err
	}
	cfg.Translation.Mode = mode

	fmt.Fprint(os.Stdout, "Target language code")
	target, err := prompt(cfg.Translation.Target)
	if err != nil {
		return err
	}
	cfg.Translation.Target = target
	if mode == "offline" {
		cfg.Translation.Offline.Target = target
		fmt.Fprint(os.Stdout, "Source languages to install models for (comma separated)")
		sources, err := prompt(strings.Join(cfg.Translation.Offline.SourceLanguages, ","))
		if err != nil {
			return err
		}
		cfg.Translation.Offline.SourceLanguages = nil
		for _, s := range strings.Split(sources, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.Translation.Offline.SourceLanguages = append(cfg.Translation.Offline.SourceLanguages, s)
			}
		}
	}

	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o755); err != nil {
		return err
	}
	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("\nConfig saved to %s\n", cfgPath)
	if err := cfg.Ready(); err != nil {
		fmt.Printf("Still missing: %v\n", err)
		return nil
	}
	fmt.Println("Run 'tgrelay doctor' to verify, then 'tgrelay run'.")
	return nil
}
