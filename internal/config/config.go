package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for tgrelay.
type Config struct {
	General     GeneralConfig     `json:"general" yaml:"general"`
	Source      SourceConfig      `json:"source" yaml:"source"`
	Destination DestinationConfig `json:"destination" yaml:"destination"`
	Translation TranslationConfig `json:"translation" yaml:"translation"`
	Media       MediaConfig       `json:"media" yaml:"media"`
	Relay       RelayConfig       `json:"relay" yaml:"relay"`
	Metrics     MetricsConfig     `json:"metrics" yaml:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel" yaml:"logLevel"`
	LogFile  string `json:"logFile,omitempty" yaml:"logFile,omitempty"` // optional, appended alongside stderr
}

// SourceConfig describes the monitored Telegram channel.
type SourceConfig struct {
	BotToken  string     `json:"botToken" yaml:"botToken"`
	ChannelID FlexString `json:"channelId" yaml:"channelId"` // numeric chat ID or @username
}

// DestinationConfig describes the Discord webhook that receives relayed posts.
type DestinationConfig struct {
	WebhookURL         string `json:"webhookUrl" yaml:"webhookUrl"`
	UsernamePrefix     string `json:"usernamePrefix" yaml:"usernamePrefix"`
	TextTimeoutSeconds int    `json:"textTimeoutSeconds" yaml:"textTimeoutSeconds"`
	FileTimeoutSeconds int    `json:"fileTimeoutSeconds" yaml:"fileTimeoutSeconds"`
	RatePerMinute      int    `json:"ratePerMinute" yaml:"ratePerMinute"` // 0 disables throttling
	RateBurst          int    `json:"rateBurst" yaml:"rateBurst"`
}

type TranslationConfig struct {
	Mode    string                 `json:"mode" yaml:"mode"` // "online" | "offline" | "none"
	Target  string                 `json:"target" yaml:"target"`
	Online  OnlineTranslateConfig  `json:"online" yaml:"online"`
	Offline OfflineTranslateConfig `json:"offline" yaml:"offline"`
}

// OnlineTranslateConfig points at a LibreTranslate-compatible endpoint.
type OnlineTranslateConfig struct {
	URL            string `json:"url" yaml:"url"`
	APIKey         string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds" yaml:"timeoutSeconds"`
}

// OfflineTranslateConfig configures locally installed Argos models.
type OfflineTranslateConfig struct {
	Target          string   `json:"target" yaml:"target"`
	SourceLanguages []string `json:"sourceLanguages" yaml:"sourceLanguages"`
	IndexURL        string   `json:"indexUrl" yaml:"indexUrl"`
	PackagesDir     string   `json:"packagesDir" yaml:"packagesDir"`
	CatalogPath     string   `json:"catalogPath" yaml:"catalogPath"`
	Command         string   `json:"command" yaml:"command"`
	TimeoutSeconds  int      `json:"timeoutSeconds" yaml:"timeoutSeconds"`
}

type MediaConfig struct {
	TempDir                string `json:"tempDir,omitempty" yaml:"tempDir,omitempty"` // empty = os.TempDir()
	MaxBytes               int64  `json:"maxBytes" yaml:"maxBytes"`
	DownloadTimeoutSeconds int    `json:"downloadTimeoutSeconds" yaml:"downloadTimeoutSeconds"`
}

type RelayConfig struct {
	MaxConcurrent int `json:"maxConcurrent" yaml:"maxConcurrent"`
	BusSize       int `json:"busSize" yaml:"busSize"`
}

// MetricsConfig configures the Prometheus text endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
	Path    string `json:"path" yaml:"path"`
}

// FlexString is a string that can unmarshal from a JSON/YAML string or number
// (e.g. "-1001234" and -1001234 both become "-1001234").
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(data))
	}
	if i, err := n.Int64(); err == nil {
		*f = FlexString(strconv.FormatInt(i, 10))
		return nil
	}
	*f = FlexString(n.String())
	return nil
}

func (f *FlexString) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: expected scalar for channel id", value.Line)
	}
	*f = FlexString(value.Value)
	return nil
}

func (f FlexString) String() string { return string(f) }

// DefaultConfigDir returns the default config directory (~/.tgrelay).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tgrelay"
	}
	return filepath.Join(home, ".tgrelay")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads a JSON or YAML config file, expands ${VAR} references, applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	ApplyEnv(cfg)
	cfg.expandPaths()

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// FromEnv builds a config from defaults and environment variables only.
// Used when no config file exists, matching the plain env-var deployment.
func FromEnv() (*Config, error) {
	cfg := Defaults()
	ApplyEnv(cfg)
	cfg.expandPaths()
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// envOverrides maps environment variables onto config fields.
var envOverrides = []struct {
	name  string
	apply func(*Config, string)
}{
	{"TELEGRAM_BOT_TOKEN", func(c *Config, v string) { c.Source.BotToken = v }},
	{"TELEGRAM_CHANNEL_ID", func(c *Config, v string) { c.Source.ChannelID = FlexString(v) }},
	{"DISCORD_WEBHOOK", func(c *Config, v string) { c.Destination.WebhookURL = v }},
	{"TARGET_LANG", func(c *Config, v string) { c.Translation.Target = v }},
	{"TRANSLATION_MODE", func(c *Config, v string) { c.Translation.Mode = v }},
	{"LIBRE_URL", func(c *Config, v string) { c.Translation.Online.URL = v }},
	{"LIBRE_API_KEY", func(c *Config, v string) { c.Translation.Online.APIKey = v }},
	{"TGRELAY_LOG_LEVEL", func(c *Config, v string) { c.General.LogLevel = v }},
}

// ApplyEnv overrides config values with non-empty environment variables.
func ApplyEnv(cfg *Config) {
	for _, o := range envOverrides {
		if v, ok := os.LookupEnv(o.name); ok && strings.TrimSpace(v) != "" {
			o.apply(cfg, strings.TrimSpace(v))
		}
	}
}

func (c *Config) expandPaths() {
	c.General.LogFile = ExpandPath(c.General.LogFile)
	c.Media.TempDir = ExpandPath(c.Media.TempDir)
	c.Translation.Offline.PackagesDir = ExpandPath(c.Translation.Offline.PackagesDir)
	c.Translation.Offline.CatalogPath = ExpandPath(c.Translation.Offline.CatalogPath)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(groups[1])
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match
		}
		return val
	})
}

// Save writes the config as JSON, or YAML when path ends in .yaml/.yml.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	switch cfg.Translation.Mode {
	case "online", "offline", "none":
	default:
		errs = append(errs, "translation.mode must be one of: online, offline, none")
	}
	if strings.TrimSpace(cfg.Translation.Target) == "" {
		errs = append(errs, "translation.target is required")
	}
	if cfg.Translation.Mode == "online" && cfg.Translation.Online.URL == "" {
		errs = append(errs, "translation.online.url is required in online mode")
	}
	if cfg.Translation.Online.TimeoutSeconds < 1 {
		errs = append(errs, "translation.online.timeoutSeconds must be >= 1")
	}
	if cfg.Translation.Mode == "offline" {
		if len(cfg.Translation.Offline.SourceLanguages) == 0 {
			errs = append(errs, "translation.offline.sourceLanguages must not be empty in offline mode")
		}
		if cfg.Translation.Offline.Target == "" {
			errs = append(errs, "translation.offline.target is required in offline mode")
		}
	}

	if cfg.Destination.TextTimeoutSeconds < 1 {
		errs = append(errs, "destination.textTimeoutSeconds must be >= 1")
	}
	if cfg.Destination.FileTimeoutSeconds < cfg.Destination.TextTimeoutSeconds {
		errs = append(errs, "destination.fileTimeoutSeconds must be >= destination.textTimeoutSeconds")
	}
	if cfg.Destination.RatePerMinute < 0 || cfg.Destination.RateBurst < 0 {
		errs = append(errs, "destination.ratePerMinute and destination.rateBurst must be >= 0")
	}

	if cfg.Media.MaxBytes < 1 {
		errs = append(errs, "media.maxBytes must be >= 1")
	}
	if cfg.Media.DownloadTimeoutSeconds < 1 {
		errs = append(errs, "media.downloadTimeoutSeconds must be >= 1")
	}

	if cfg.Relay.MaxConcurrent < 1 || cfg.Relay.MaxConcurrent > 100 {
		errs = append(errs, "relay.maxConcurrent must be between 1 and 100")
	}
	if cfg.Relay.BusSize < 1 {
		errs = append(errs, "relay.busSize must be >= 1")
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		errs = append(errs, "metrics.addr is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Ready reports whether the config carries everything needed to start relaying.
func (c *Config) Ready() error {
	var missing []string
	if c.Source.BotToken == "" {
		missing = append(missing, "source.botToken")
	}
	if c.Source.ChannelID == "" {
		missing = append(missing, "source.channelId")
	}
	if c.Destination.WebhookURL == "" {
		missing = append(missing, "destination.webhookUrl")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
