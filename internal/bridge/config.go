package bridge

import (
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const DefaultLogPrefix = "[framebridge]"

// Config is immutable for the life of one Channel.
type Config struct {
	// LogPrefix leads every diagnostic. Empty means DefaultLogPrefix.
	LogPrefix string

	// Logger receives diagnostics. Nil means the global logger.
	Logger *zerolog.Logger

	// HandshakeWarnAfter emits one warning if the embedded frame has not
	// acknowledged the handshake in time. Zero disables it. Commands stay
	// queued either way.
	HandshakeWarnAfter time.Duration
}

func DefaultConfig() Config {
	return Config{
		LogPrefix:          DefaultLogPrefix,
		HandshakeWarnAfter: 10 * time.Second,
	}
}

func (c Config) prefix() string {
	if p := strings.TrimSpace(c.LogPrefix); p != "" {
		return p
	}
	return DefaultLogPrefix
}

func (c Config) logger() zerolog.Logger {
	if c.Logger != nil {
		return *c.Logger
	}
	return log.Logger
}
