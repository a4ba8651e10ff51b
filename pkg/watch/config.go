package watch

import (
	"errors"
	"fmt"
	"time"
)

// Default configuration values.
const (
	// DefaultKeepaliveTime is the default interval for keepalive pings.
	DefaultKeepaliveTime = 10 * time.Second

	// DefaultKeepaliveTimeout is the default timeout for keepalive responses.
	DefaultKeepaliveTimeout = 5 * time.Second

	// DefaultReconnectMinDelay is the minimum delay before reconnecting.
	DefaultReconnectMinDelay = 1 * time.Second

	// DefaultReconnectMaxDelay is the maximum delay before reconnecting.
	DefaultReconnectMaxDelay = 60 * time.Second

	// DefaultAccountChannelSize is the default buffer size for the
	// account update channel.
	DefaultAccountChannelSize = 500

	// DefaultSlotChannelSize is the default buffer size for the slot channel.
	DefaultSlotChannelSize = 500

	// DefaultMaxMessageSize is the default maximum gRPC message size (64MB).
	// Stamp accounts are tiny; the bound covers catch-up bursts.
	DefaultMaxMessageSize = 64 * 1024 * 1024

	// DefaultPingInterval is the interval between ping messages.
	DefaultPingInterval = 15 * time.Second

	// DefaultHealthCheckInterval is the interval between health checks.
	DefaultHealthCheckInterval = 30 * time.Second

	// DefaultStaleTimeout is how long without updates before the
	// connection is considered stale.
	DefaultStaleTimeout = 60 * time.Second
)

// Configuration errors.
var (
	ErrNoEndpoint    = errors.New("watch endpoint is required")
	ErrNoOwner       = errors.New("watch owner filter is required")
	ErrInvalidConfig = errors.New("invalid watch configuration")
)

// CommitmentLevel is the confirmation level for subscriptions.
type CommitmentLevel int32

const (
	CommitmentProcessed CommitmentLevel = 0
	CommitmentConfirmed CommitmentLevel = 1
	CommitmentFinalized CommitmentLevel = 2
)

// Config holds the configuration for the account watcher.
type Config struct {
	// Endpoint is the gRPC endpoint (e.g. "grpc.example.com:443").
	// Required.
	Endpoint string

	// Owner is the program whose accounts are streamed. Required; the
	// subscription filters server-side on this owner.
	Owner string

	// Token is the authentication token for the gRPC service, sent as
	// an x-token header when set.
	Token string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool

	// Commitment is the commitment level for the subscription.
	Commitment CommitmentLevel

	// FromSlot is the starting slot for catch-up. If nil, streaming
	// starts at the current slot.
	FromSlot *uint64

	// Keepalive configuration.
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration

	// Reconnection configuration.
	ReconnectMinDelay time.Duration
	ReconnectMaxDelay time.Duration
	MaxReconnects     int // 0 = unlimited

	// Channel buffer sizes.
	AccountChannelSize int
	SlotChannelSize    int

	// MaxMessageSize is the maximum gRPC message size in bytes.
	MaxMessageSize int

	// PingInterval is the interval between ping messages for keepalive.
	PingInterval time.Duration

	// HealthCheckInterval is how often to check connection health.
	HealthCheckInterval time.Duration

	// StaleTimeout is how long without updates before reconnecting.
	StaleTimeout time.Duration

	// Headers are additional headers to send with gRPC requests.
	Headers map[string]string

	// OnAccount is called for each account update (optional).
	// Called synchronously - should not block.
	OnAccount func(*AccountUpdate)

	// OnSlot is called for each slot update (optional).
	OnSlot func(*SlotUpdate)

	// OnConnect is called when connection is established (optional).
	OnConnect func()

	// OnDisconnect is called when connection is lost (optional).
	OnDisconnect func(error)

	// OnReconnect is called when reconnection succeeds (optional).
	OnReconnect func(attempt int)
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		UseTLS:     true,
		Commitment: CommitmentConfirmed,

		KeepaliveTime:    DefaultKeepaliveTime,
		KeepaliveTimeout: DefaultKeepaliveTimeout,

		ReconnectMinDelay: DefaultReconnectMinDelay,
		ReconnectMaxDelay: DefaultReconnectMaxDelay,
		MaxReconnects:     0, // unlimited

		AccountChannelSize: DefaultAccountChannelSize,
		SlotChannelSize:    DefaultSlotChannelSize,
		MaxMessageSize:     DefaultMaxMessageSize,
		PingInterval:       DefaultPingInterval,

		HealthCheckInterval: DefaultHealthCheckInterval,
		StaleTimeout:        DefaultStaleTimeout,

		Headers: make(map[string]string),
	}
}

// WithDefaults fills zero-valued fields with defaults.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.KeepaliveTime == 0 {
		c.KeepaliveTime = def.KeepaliveTime
	}
	if c.KeepaliveTimeout == 0 {
		c.KeepaliveTimeout = def.KeepaliveTimeout
	}
	if c.ReconnectMinDelay == 0 {
		c.ReconnectMinDelay = def.ReconnectMinDelay
	}
	if c.ReconnectMaxDelay == 0 {
		c.ReconnectMaxDelay = def.ReconnectMaxDelay
	}
	if c.AccountChannelSize == 0 {
		c.AccountChannelSize = def.AccountChannelSize
	}
	if c.SlotChannelSize == 0 {
		c.SlotChannelSize = def.SlotChannelSize
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.PingInterval == 0 {
		c.PingInterval = def.PingInterval
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = def.HealthCheckInterval
	}
	if c.StaleTimeout == 0 {
		c.StaleTimeout = def.StaleTimeout
	}
	if c.Headers == nil {
		c.Headers = make(map[string]string)
	}
	return c
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Endpoint == "" {
		return ErrNoEndpoint
	}
	if c.Owner == "" {
		return ErrNoOwner
	}
	if c.AccountChannelSize <= 0 {
		return fmt.Errorf("%w: account channel size must be positive", ErrInvalidConfig)
	}
	if c.SlotChannelSize <= 0 {
		return fmt.Errorf("%w: slot channel size must be positive", ErrInvalidConfig)
	}
	if c.MaxMessageSize <= 0 {
		return fmt.Errorf("%w: max message size must be positive", ErrInvalidConfig)
	}
	if c.KeepaliveTime <= 0 {
		return fmt.Errorf("%w: keepalive time must be positive", ErrInvalidConfig)
	}
	if c.KeepaliveTimeout <= 0 {
		return fmt.Errorf("%w: keepalive timeout must be positive", ErrInvalidConfig)
	}
	if c.ReconnectMinDelay <= 0 {
		return fmt.Errorf("%w: reconnect min delay must be positive", ErrInvalidConfig)
	}
	if c.ReconnectMaxDelay < c.ReconnectMinDelay {
		return fmt.Errorf("%w: reconnect max delay below min delay", ErrInvalidConfig)
	}
	return nil
}
