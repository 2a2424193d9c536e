package config

import "time"

const (
	minLineBytes       = 64
	maxLineBytes       = 1 << 20
	minIdleTimeout     = time.Second
	defaultWriteTimeout = 10 * time.Second
)

// ServerConfig contains TCP server configuration.
type ServerConfig struct {
	// Addr is the address to listen on.
	Addr string `env:"ADDR" envDefault:"localhost:8000"`

	// MaxConnections caps concurrently open client connections.
	MaxConnections int `env:"MAX_CONNECTIONS" envDefault:"256"`

	// IdleTimeout closes a connection that sends nothing for this long.
	IdleTimeout time.Duration `env:"IDLE_TIMEOUT" envDefault:"5m"`

	// WriteTimeout bounds writing a single response.
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`

	// MaxLineBytes is the longest request line accepted, excluding the newline.
	MaxLineBytes int `env:"MAX_LINE_BYTES" envDefault:"1024"`
}

// Sanitize applies guardrails to server configuration values.
func (s *ServerConfig) Sanitize() {
	if s.MaxConnections < 1 {
		s.MaxConnections = 1
	}
	if s.IdleTimeout < minIdleTimeout {
		s.IdleTimeout = minIdleTimeout
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = defaultWriteTimeout
	}
	if s.MaxLineBytes < minLineBytes {
		s.MaxLineBytes = minLineBytes
	}
	if s.MaxLineBytes > maxLineBytes {
		s.MaxLineBytes = maxLineBytes
	}
}
