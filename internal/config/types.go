package config

import (
	"time"

	"github.com/2bv/prime-anonymizer/internal/detect"
)

// Config represents the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Detection DetectionConfig `yaml:"detection" mapstructure:"detection"`
	Audit     AuditConfig     `yaml:"audit" mapstructure:"audit"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
	WebSocket WebSocketConfig `yaml:"websocket" mapstructure:"websocket"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	MaxPayloadBytes int64         `yaml:"max_payload_bytes" mapstructure:"max_payload_bytes"`
}

// DetectionConfig tunes the recognizer registry built at startup.
type DetectionConfig struct {
	// Entities is the default entity set for requests that do not specify
	// one. Every name must be supported by the registry.
	Entities       []string `yaml:"entities" mapstructure:"entities"`
	ScoreThreshold float64  `yaml:"score_threshold" mapstructure:"score_threshold"`
	ContextWindow  int      `yaml:"context_window" mapstructure:"context_window"`
	ContextBoost   float64  `yaml:"context_boost" mapstructure:"context_boost"`
	// NERModelPath points at an ONNX token-classification model. Only used
	// in builds with the onnx tag; empty disables model-backed entities.
	NERModelPath string `yaml:"ner_model_path" mapstructure:"ner_model_path"`
}

// AuditConfig contains the audit trail database configuration
type AuditConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// CacheConfig contains the optional Redis detection-result cache settings
type CacheConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	TTL            time.Duration `yaml:"ttl" mapstructure:"ttl"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
}

// RateLimitConfig contains per-client request rate limiting settings
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
		Path     string `yaml:"path" mapstructure:"path"`
		MaxSize  int    `yaml:"max_size" mapstructure:"max_size"`
		MaxAge   int    `yaml:"max_age" mapstructure:"max_age"`
		Compress bool   `yaml:"compress" mapstructure:"compress"`
	} `yaml:"file" mapstructure:"file"`
}

// WebSocketConfig contains dashboard event stream configuration
type WebSocketConfig struct {
	Enabled             bool   `yaml:"enabled" mapstructure:"enabled"`
	Path                string `yaml:"path" mapstructure:"path"`
	BroadcastDetections bool   `yaml:"broadcast_detections" mapstructure:"broadcast_detections"`
	BroadcastRequests   bool   `yaml:"broadcast_requests" mapstructure:"broadcast_requests"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxPayloadBytes: 2 << 20, // 2 MiB
		},
		Detection: DetectionConfig{
			Entities: []string{
				detect.EntityPerson,
				detect.EntityPhone,
				detect.EntityEmail,
				detect.EntityCreditCard,
				detect.EntityIBAN,
				detect.EntitySSN,
				detect.EntityLocation,
				detect.EntityDateTime,
				detect.EntityIP,
				detect.EntityURL,
			},
			ScoreThreshold: detect.DefaultScoreThreshold,
			ContextWindow:  detect.DefaultContextWindow,
			ContextBoost:   detect.DefaultContextBoost,
		},
		Audit: AuditConfig{
			Enabled:         false,
			DatabaseURL:     "postgres://localhost/anonymizer?sslmode=disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
		},
		Cache: CacheConfig{
			Enabled:        false,
			RedisURL:       "redis://localhost:6379/0",
			TTL:            10 * time.Minute,
			KeyPrefix:      "anonymizer",
			MaxConnections: 10,
		},
		RateLimit: RateLimitConfig{
			Enabled:           true,
			RequestsPerSecond: 50,
			Burst:             100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		WebSocket: WebSocketConfig{
			Enabled:             true,
			Path:                "/ws",
			BroadcastDetections: true,
			BroadcastRequests:   true,
		},
	}
	cfg.Logging.File.Path = "logs/anonymizer.log"
	cfg.Logging.File.MaxSize = 100 // MB
	cfg.Logging.File.MaxAge = 30   // days
	cfg.Logging.File.Compress = true
	return cfg
}
