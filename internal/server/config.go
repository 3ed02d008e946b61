// Package server provides configuration loading with runtime defaults,
// environment overrides, and validation for the relay service.
package server

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

const (
	envPrefix = "RELAY"

	defaultSubscriberBuffer = 100
	defaultMaxLineBytes     = 1024
	defaultWriteTimeout     = 10 * time.Second
	defaultShutdownTimeout  = 5 * time.Second
)

// Config holds the relay configuration: the TCP chat endpoint, the HTTP
// endpoint for the WebSocket bridge, and the tuning knobs shared by both.
type Config struct {
	// ListenAddr is the TCP endpoint serving the line protocol.
	ListenAddr string `envconfig:"LISTEN_ADDR" default:"127.0.0.1:8080" validate:"required,hostname_port"`
	// HTTPAddr serves the WebSocket bridge, health check, and test page.
	HTTPAddr string `envconfig:"HTTP_ADDR" default:"127.0.0.1:8081" validate:"required,hostname_port"`
	// AllowedOrigins restricts WebSocket upgrades; "*" allows any origin.
	AllowedOrigins []string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:8081"`
	// SubscriberBuffer bounds undelivered messages per subscription before
	// the oldest are dropped.
	SubscriberBuffer int `envconfig:"SUBSCRIBER_BUFFER" default:"100" validate:"min=1"`
	// MaxLineBytes bounds a single inbound line; longer lines end the session.
	MaxLineBytes int           `envconfig:"MAX_LINE_BYTES" default:"1024" validate:"min=1"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`
	// ShutdownTimeout caps how long graceful shutdown waits for sessions.
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"5s"`
}

// DefaultConfig returns a Config populated with default values for all settings.
func DefaultConfig() Config {
	return Config{
		ListenAddr:       "127.0.0.1:8080",
		HTTPAddr:         "127.0.0.1:8081",
		AllowedOrigins:   []string{"http://localhost:8081"},
		SubscriberBuffer: defaultSubscriberBuffer,
		MaxLineBytes:     defaultMaxLineBytes,
		WriteTimeout:     defaultWriteTimeout,
		ShutdownTimeout:  defaultShutdownTimeout,
	}
}

// LoadConfig builds a Config from RELAY_* environment variables, falling back
// to defaults for unset variables, and validates the result.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("loading config from environment: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg.sanitize(), nil
}

// sanitize clamps values the validator cannot express, such as non-positive
// durations.
func (c Config) sanitize() Config {
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = defaultSubscriberBuffer
	}
	if c.MaxLineBytes <= 0 {
		c.MaxLineBytes = defaultMaxLineBytes
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	return c
}
