package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// toTree renders cfg as the nested map that `tgrelay config` walks. Keys are
// the JSON names, so paths read like the config file:
// "source.channelId", "translation.offline.sourceLanguages.0".
func toTree(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	return tree, nil
}

// GetByPath returns the value at a dot path, e.g. "translation.target".
// Numeric segments index into lists.
func GetByPath(cfg *Config, path string) (any, error) {
	tree, err := toTree(cfg)
	if err != nil {
		return nil, err
	}

	var current any = tree
	for _, key := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			val, ok := node[key]
			if !ok {
				return nil, fmt.Errorf("unknown config path: %s", path)
			}
			current = val
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("invalid list index %q in %s", key, path)
			}
			current = node[idx]
		default:
			return nil, fmt.Errorf("%s: %T has no field %q", path, current, key)
		}
	}
	return current, nil
}

// SetByPath assigns a value given on the command line to the setting at path.
// The raw string is converted to the type of the value it replaces: "true"
// stays a string for source.botToken but becomes a bool for metrics.enabled,
// and list settings such as translation.offline.sourceLanguages take a
// comma-separated value. Sections are never created and unknown keys are
// rejected, so a typo cannot be saved silently.
func SetByPath(cfg *Config, path string, value string) error {
	if path == "" {
		return fmt.Errorf("empty config path")
	}
	tree, err := toTree(cfg)
	if err != nil {
		return err
	}

	parts := strings.Split(path, ".")
	section := tree
	for i, key := range parts[:len(parts)-1] {
		child, ok := section[key].(map[string]any)
		if !ok {
			return fmt.Errorf("unknown config section: %s", strings.Join(parts[:i+1], "."))
		}
		section = child
	}

	leaf := parts[len(parts)-1]
	converted, err := convertValue(section[leaf], value)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	section[leaf] = converted

	data, err := json.Marshal(tree)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var updated Config
	if err := dec.Decode(&updated); err != nil {
		return fmt.Errorf("cannot set %s: %w", path, err)
	}
	*cfg = updated
	return nil
}

// convertValue parses raw according to the JSON type of current. A nil
// current means the key is absent (an omitempty setting such as
// translation.online.apiKey) and the value is kept as a string.
func convertValue(current any, raw string) (any, error) {
	switch current.(type) {
	case bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("expected true or false, got %q", raw)
		}
		return b, nil
	case float64:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n, nil
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("expected a number, got %q", raw)
		}
		return f, nil
	case []any:
		items := []any{}
		for _, item := range strings.Split(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return items, nil
	case map[string]any:
		return nil, fmt.Errorf("is a section, set one of its keys instead")
	default:
		return raw, nil
	}
}

// Sanitize returns a copy of cfg with the bot token, webhook URL and
// translation API key masked, for `config get` and `config list`.
func Sanitize(cfg *Config) *Config {
	out := *cfg
	out.Translation.Offline.SourceLanguages = append([]string(nil), cfg.Translation.Offline.SourceLanguages...)

	out.Source.BotToken = maskSecret(cfg.Source.BotToken)
	out.Destination.WebhookURL = maskWebhook(cfg.Destination.WebhookURL)
	out.Translation.Online.APIKey = maskSecret(cfg.Translation.Online.APIKey)
	return &out
}

// maskSecret keeps the first and last 4 characters of long secrets.
func maskSecret(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "***"
	default:
		return s[:4] + "****" + s[len(s)-4:]
	}
}

// maskWebhook hides the token segment of a Discord webhook URL
// (https://discord.com/api/webhooks/<id>/<token>) but keeps the id, which is
// what tells two webhooks apart.
func maskWebhook(u string) string {
	i := strings.LastIndex(u, "/")
	if i < 0 || !strings.Contains(u, "/webhooks/") {
		return maskSecret(u)
	}
	return u[:i+1] + maskSecret(u[i+1:])
}

// ListPaths flattens cfg into dot paths and their values. Lists are kept
// whole under their own path, matching how SetByPath takes them.
func ListPaths(cfg *Config) map[string]any {
	tree, err := toTree(cfg)
	if err != nil {
		return nil
	}
	out := make(map[string]any)
	flatten("", tree, out)
	return out
}

func flatten(prefix string, node map[string]any, out map[string]any) {
	for k, v := range node {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if section, ok := v.(map[string]any); ok {
			flatten(path, section, out)
			continue
		}
		out[path] = v
	}
}
