package config

const (
	// DefaultIndexURL is the public Argos package index.
	DefaultIndexURL = "https://raw.githubusercontent.com/argosopentech/argospm-index/main/index.json"
	// DiscordMaxUploadBytes is the default webhook attachment limit.
	DiscordMaxUploadBytes = 25 * 1024 * 1024
)

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Destination: DestinationConfig{
			UsernamePrefix:     "TG: ",
			TextTimeoutSeconds: 10,
			FileTimeoutSeconds: 60,
			RatePerMinute:      30,
			RateBurst:          5,
		},
		Translation: TranslationConfig{
			Mode:   "online",
			Target: "en",
			Online: OnlineTranslateConfig{
				URL:            "https://libretranslate.com/translate",
				TimeoutSeconds: 10,
			},
			Offline: OfflineTranslateConfig{
				Target:          "en",
				SourceLanguages: []string{"uk", "ru"},
				IndexURL:        DefaultIndexURL,
				PackagesDir:     "~/.tgrelay/models",
				CatalogPath:     "~/.tgrelay/models.db",
				Command:         "argos-translate",
				TimeoutSeconds:  30,
			},
		},
		Media: MediaConfig{
			MaxBytes:               DiscordMaxUploadBytes,
			DownloadTimeoutSeconds: 60,
		},
		Relay: RelayConfig{
			MaxConcurrent: 4,
			BusSize:       100,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
			Path:    "/metrics",
		},
	}
}
