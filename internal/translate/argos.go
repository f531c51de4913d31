package translate

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ArgosConfig configures the command-line model runner.
type ArgosConfig struct {
	Command     string // executable, default "argos-translate"
	PackagesDir string
	Timeout     time.Duration
	Logger      *slog.Logger
}

// ArgosCLI runs installed models through the argos-translate command.
type ArgosCLI struct {
	command     string
	packagesDir string
	timeout     time.Duration
	logger      *slog.Logger
}

func NewArgosCLI(cfg ArgosConfig) *ArgosCLI {
	if cfg.Command == "" {
		cfg.Command = "argos-translate"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &ArgosCLI{
		command:     cfg.Command,
		packagesDir: cfg.PackagesDir,
		timeout:     cfg.Timeout,
		logger:      cfg.Logger,
	}
}

// Translate feeds text on stdin and returns stdout with the trailing newline
// removed.
func (a *ArgosCLI) Translate(ctx context.Context, from, to, text string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, a.command, "--from-lang", from, "--to-lang", to)
	cmd.Stdin = strings.NewReader(text)
	cmd.Env = append(os.Environ(), "ARGOS_PACKAGES_DIR="+a.packagesDir)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%s %s->%s timed out after %s: %w", a.command, from, to, a.timeout, ctx.Err())
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 512 {
			msg = msg[:512]
		}
		return "", fmt.Errorf("%s %s->%s: %w: %s", a.command, from, to, err, msg)
	}
	return strings.TrimRight(stdout.String(), "\r\n"), nil
}

// Available reports whether the command can be found on PATH.
func (a *ArgosCLI) Available() error {
	_, err := exec.LookPath(a.command)
	return err
}
