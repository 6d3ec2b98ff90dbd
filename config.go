package lavago

import (
	"fmt"
	"time"
)

// Config holds the per-Node dial and REST settings.
type Config struct {
	// Authorization is the shared-secret password the node expects on the
	// Authorization handshake header.
	Authorization string
	// Max buffer size for the websocket read/write buffers.
	BufferSize int
	// Server's IP/Hostname.
	Hostname string
	// Port to connect to.
	Port int
	// Use Secure Socket Layer (SSL) security protocol when connecting.
	SSL bool
	// Applies User-Agent header to all requests.
	UserAgent string
	// ReconnectBaseDelay is the base of the integral-seconds exponential
	// backoff used after a dial failure that isn't an auth rejection.
	// Doubles on every attempt, uncapped — cancel through the context
	// passed to Node.Connect to bound it.
	ReconnectBaseDelay time.Duration
	// RetryRESTOnFailure toggles retrying GetTracks on non-2xx responses.
	RetryRESTOnFailure bool
	// RESTAttempts bounds the total number of REST attempts, the first
	// try included, when RetryRESTOnFailure is set.
	RESTAttempts int
	// KeepAliveInterval is how often the node session pings the socket.
	// Kept independent of gorilla/websocket's own ping handling — nodes
	// drop idle clients despite a nominal ping interval.
	KeepAliveInterval time.Duration
}

// NewConfig returns a Config populated with the library's defaults.
func NewConfig() Config {
	return Config{
		Authorization:      "youshallnotpass",
		BufferSize:         4096,
		Hostname:           "127.0.0.1",
		Port:               2333,
		SSL:                false,
		ReconnectBaseDelay: 5 * time.Second,
		RetryRESTOnFailure: true,
		RESTAttempts:       5,
		KeepAliveInterval:  2500 * time.Millisecond,
	}
}

func (cfg Config) socketEndpoint() string {
	if cfg.SSL {
		return fmt.Sprintf("wss://%s:%d", cfg.Hostname, cfg.Port)
	}
	return fmt.Sprintf("ws://%s:%d", cfg.Hostname, cfg.Port)
}

func (cfg Config) httpEndpoint() string {
	if cfg.SSL {
		return fmt.Sprintf("https://%s:%d", cfg.Hostname, cfg.Port)
	}
	return fmt.Sprintf("http://%s:%d", cfg.Hostname, cfg.Port)
}
