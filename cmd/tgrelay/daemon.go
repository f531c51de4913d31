package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

const launchdLabel = "com.tgrelay.relay"

// serviceFile is a rendered service definition and where it belongs.
type serviceFile struct {
	Path    string
	Content string
	Hints   []string
}

func daemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run tgrelay as a background service (launchd/systemd)",
	}

	var envFile string
	var printOnly bool
	install := &cobra.Command{
		Use:   "install",
		Short: "Install a user service that runs 'tgrelay run' on login",
		Long: `Generates a launchd agent (macOS) or systemd user unit (Linux) that keeps the
relay running. With --env-file, systemd loads credentials such as
TELEGRAM_BOT_TOKEN and DISCORD_WEBHOOK from that file instead of the config.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			svc, err := renderService(runtime.GOOS, execPath, resolveConfigPath(), envFile)
			if err != nil {
				return err
			}
			if printOnly {
				fmt.Println(svc.Content)
				return nil
			}
			if err := os.MkdirAll(filepath.Dir(svc.Path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(svc.Path, []byte(svc.Content), 0o644); err != nil {
				return err
			}
			fmt.Printf("Daemon installed: %s\n", svc.Path)
			for _, h := range svc.Hints {
				fmt.Println(h)
			}
			return nil
		},
	}
	install.Flags().StringVar(&envFile, "env-file", "", "environment file loaded by the service (systemd only)")
	install.Flags().BoolVar(&printOnly, "print", false, "print the service definition instead of installing it")

	uninstall := &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the tgrelay user service",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := servicePath(runtime.GOOS)
			if err != nil {
				return err
			}
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("remove service file: %w", err)
			}
			fmt.Printf("Daemon uninstalled: %s\n", path)
			return nil
		},
	}

	cmd.AddCommand(install, uninstall)
	return cmd
}

func servicePath(goos string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist"), nil
	case "linux":
		return filepath.Join(home, ".config", "systemd", "user", "tgrelay.service"), nil
	default:
		return "", fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", goos)
	}
}

func renderService(goos, execPath, cfgPath, envFile string) (serviceFile, error) {
	path, err := servicePath(goos)
	if err != nil {
		return serviceFile{}, err
	}

	switch goos {
	case "darwin":
		logDir := filepath.Join(filepath.Dir(cfgPath), "logs")
		os.MkdirAll(logDir, 0o755)
		r := strings.NewReplacer(
			"{{LABEL}}", launchdLabel,
			"{{EXEC}}", execPath,
			"{{CONFIG}}", cfgPath,
			"{{LOG}}", filepath.Join(logDir, "tgrelay.log"),
			"{{ERR_LOG}}", filepath.Join(logDir, "tgrelay-error.log"),
		)
		return serviceFile{
			Path:    path,
			Content: r.Replace(launchdTemplate),
			Hints: []string{
				"To start: launchctl load " + path,
				"To stop:  launchctl unload " + path,
			},
		}, nil
	default:
		env := ""
		if envFile != "" {
			env = "EnvironmentFile=" + envFile + "\n"
		}
		r := strings.NewReplacer(
			"{{EXEC}}", execPath,
			"{{CONFIG}}", cfgPath,
			"{{ENV}}", env,
		)
		return serviceFile{
			Path:    path,
			Content: r.Replace(systemdTemplate),
			Hints: []string{
				"To start:  systemctl --user start tgrelay",
				"To enable: systemctl --user enable tgrelay",
				"To follow: journalctl --user -u tgrelay -f",
			},
		}, nil
	}
}

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{LABEL}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{EXEC}}</string>
        <string>run</string>
        <string>--config</string>
        <string>{{CONFIG}}</string>
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{LOG}}</string>
    <key>StandardErrorPath</key>
    <string>{{ERR_LOG}}</string>
</dict>
</plist>`

const systemdTemplate = `[Unit]
Description=tgrelay Telegram to Discord relay
After=network-online.target
Wants=network-online.target

[Service]
Type=simple
{{ENV}}ExecStart={{EXEC}} run --config {{CONFIG}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target`
