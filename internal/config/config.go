// Package config provides configuration types and loading for warboard.
package config

import "time"

// Config is the root configuration struct.
// Top-level groups: Server, Realtime, Sync, Archive, Mirror.
type Config struct {
	Server   ServerConfig   `json:"server"`
	Realtime RealtimeConfig `json:"realtime"`
	Sync     SyncConfig     `json:"sync"`
	Archive  ArchiveConfig  `json:"archive"`
	Mirror   MirrorConfig   `json:"mirror"`
}

// ---------------------------------------------------------------------------
// Server – REST API endpoint
// ---------------------------------------------------------------------------

// ServerConfig contains the war-room server endpoint settings.
type ServerConfig struct {
	BaseURL        string        `json:"baseUrl" envconfig:"BASE_URL"`
	RequestTimeout time.Duration `json:"requestTimeout" envconfig:"REQUEST_TIMEOUT"`
	SubmitTimeout  time.Duration `json:"submitTimeout" envconfig:"SUBMIT_TIMEOUT"`
}

// ---------------------------------------------------------------------------
// Realtime – push channel connection
// ---------------------------------------------------------------------------

// RealtimeConfig contains websocket connection and reconnect settings.
type RealtimeConfig struct {
	URL            string        `json:"url" envconfig:"URL"`
	BaseDelay      time.Duration `json:"baseDelay" envconfig:"BASE_DELAY"`
	CapDelay       time.Duration `json:"capDelay" envconfig:"CAP_DELAY"`
	MaxAttempts    int           `json:"maxAttempts" envconfig:"MAX_ATTEMPTS"`
	ConnectTimeout time.Duration `json:"connectTimeout" envconfig:"CONNECT_TIMEOUT"`
}

// ---------------------------------------------------------------------------
// Sync – periodic pull refresh
// ---------------------------------------------------------------------------

// SyncConfig contains pull-refresh scheduling settings.
type SyncConfig struct {
	Interval     time.Duration `json:"interval" envconfig:"INTERVAL"`
	PollTimeout  time.Duration `json:"pollTimeout" envconfig:"POLL_TIMEOUT"`
	PollRetries  int           `json:"pollRetries" envconfig:"POLL_RETRIES"`
	PollRetryCap time.Duration `json:"pollRetryCap" envconfig:"POLL_RETRY_CAP"`
}

// ---------------------------------------------------------------------------
// Archive – local session archive
// ---------------------------------------------------------------------------

// ArchiveConfig contains local sqlite archive settings.
type ArchiveConfig struct {
	Enabled bool   `json:"enabled" envconfig:"ENABLED"`
	Path    string `json:"path" envconfig:"PATH"`
}

// ---------------------------------------------------------------------------
// Mirror – analytics feed
// ---------------------------------------------------------------------------

// MirrorConfig contains settings for the Kafka analytics mirror. When
// enabled, every ingested timeline entry is teed to the configured topic.
type MirrorConfig struct {
	Enabled bool   `json:"enabled" envconfig:"ENABLED"`
	Brokers string `json:"brokers" envconfig:"BROKERS"`
	Topic   string `json:"topic" envconfig:"TOPIC"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:        "http://127.0.0.1:5007/api",
			RequestTimeout: 5 * time.Second,
			SubmitTimeout:  10 * time.Second,
		},
		Realtime: RealtimeConfig{
			URL:            "ws://127.0.0.1:5007/ws",
			BaseDelay:      2 * time.Second,
			CapDelay:       30 * time.Second,
			MaxAttempts:    10,
			ConnectTimeout: 20 * time.Second,
		},
		Sync: SyncConfig{
			Interval:     30 * time.Second,
			PollTimeout:  5 * time.Second,
			PollRetries:  3,
			PollRetryCap: 5 * time.Second,
		},
		Archive: ArchiveConfig{
			Enabled: true,
			Path:    "~/.warboard/archive.db",
		},
		Mirror: MirrorConfig{
			Enabled: false,
			Topic:   "warboard.timeline",
		},
	}
}
