package config

import "time"

// ServerConfig contains HTTP and WebSocket surface settings.
type ServerConfig struct {
	// MaxUploadBytes bounds multipart file uploads.
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// AllowedUploadExtensions lists accepted upload file extensions.
	AllowedUploadExtensions []string `yaml:"allowed_upload_extensions"`

	// WriteTimeout bounds a single WebSocket send.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// HeartbeatInterval is the ping cadence; a subscriber missing two
	// intervals is disconnected.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// SubscriberBuffer is the per-subscriber event buffer; the oldest event
	// is dropped on overflow.
	SubscriberBuffer int `yaml:"subscriber_buffer"`

	// AllowedWSOrigins restricts WebSocket origins. Empty accepts all.
	AllowedWSOrigins []string `yaml:"allowed_ws_origins"`
}

// DefaultServerConfig returns the built-in server defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		MaxUploadBytes:          10 << 20,
		AllowedUploadExtensions: []string{".txt", ".md", ".rtf"},
		WriteTimeout:            10 * time.Second,
		HeartbeatInterval:       30 * time.Second,
		SubscriberBuffer:        64,
	}
}
