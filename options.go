package trackingsdk

import (
	"log/slog"
	"time"

	"google.golang.org/grpc"

	"github.com/ommotech/trackingsdk/internal/ring"
)

type config struct {
	logger              *slog.Logger
	bufferSize          int
	channelPollInterval time.Duration
	dialOptions         []grpc.DialOption
}

func defaultConfig() config {
	return config{
		logger:              slog.Default(),
		bufferSize:          ring.DefaultCapacity,
		channelPollInterval: time.Second,
	}
}

// Option configures a Client at construction time.
type Option func(*config)

// WithLogger sets the *slog.Logger every reactor, manager, and the
// Channel Monitor log through. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBufferSize sets the default per-array Ring capacity (spec.md §3's
// N, default 500) new subscriptions use.
func WithBufferSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.bufferSize = n
		}
	}
}

// WithChannelPollInterval sets how often the Channel Monitor polls
// transport state (spec.md §4.7's "sleep 1 s").
func WithChannelPollInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.channelPollInterval = d
		}
	}
}

// WithDialOptions appends extra grpc.DialOption values to the dial call
// New makes, e.g. to supply TLS credentials in place of the insecure
// default (spec.md §6).
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *config) {
		c.dialOptions = append(c.dialOptions, opts...)
	}
}
