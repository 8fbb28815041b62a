// Package config loads the externally supplied settings the server consumes.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// Config carries everything the core consumes but does not compute.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":25556"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	// Connection liveness. Heartbeat must be shorter than IdleTimeout.
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" envDefault:"20s"`
	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`

	// Request/response correlation.
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	NegotiationTimeout time.Duration `env:"NEGOTIATION_TIMEOUT" envDefault:"20s"`

	// Optional integrations; empty disables them.
	NatsURL     string `env:"NATS_URL"`
	ConsulAddr  string `env:"CONSUL_HTTP_ADDR"`
	ServiceName string `env:"SERVICE_NAME" envDefault:"renaissance-server"`
}

// FromEnv parses the configuration from environment variables.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse env failed")
	}
	if cfg.HeartbeatInterval >= cfg.IdleTimeout {
		return Config{}, errors.New("heartbeat interval must be shorter than idle timeout")
	}
	return cfg, nil
}
