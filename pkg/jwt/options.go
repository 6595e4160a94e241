package jwt

import (
	"fmt"
	"time"

	"github.com/picatz/jose/v2/pkg/header"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/jwe"
	"github.com/picatz/jose/v2/pkg/jws"
	"github.com/picatz/jose/v2/pkg/logging"
)

// DefaultClockSkew is the tolerance applied to "iat" and "nbf" when a
// token is decoded.
const DefaultClockSkew = 30 * time.Second

// Clock is type used to represent a function that returns the current time.
type Clock func() time.Time

// Option configures a Builder or the decoding of a token.
type Option func(*config) error

type config struct {
	clock    Clock
	skew     time.Duration
	allowed  []jwa.Algorithm
	registry *header.Registry
	logger   logging.Logger
}

func newConfig(opts ...Option) (*config, error) {
	c := &config{
		clock:  time.Now,
		skew:   DefaultClockSkew,
		logger: logging.NewNoOpLogger(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("invalid JWT option: %w", err)
		}
	}
	return c, nil
}

// WithClock sets the clock time claims are checked against.
func WithClock(clock Clock) Option {
	return func(c *config) error {
		if clock == nil {
			return fmt.Errorf("nil clock")
		}
		c.clock = clock
		return nil
	}
}

// WithClockSkew sets how far in the future "iat" and "nbf" may be.
func WithClockSkew(skew time.Duration) Option {
	return func(c *config) error {
		if skew < 0 {
			return fmt.Errorf("negative clock skew %v", skew)
		}
		c.skew = skew
		return nil
	}
}

// WithAllowedAlgorithms restricts the signature algorithms a token may be
// verified with.
func WithAllowedAlgorithms(algs ...jwa.Algorithm) Option {
	return func(c *config) error {
		if len(algs) == 0 {
			return fmt.Errorf("no allowed algorithms")
		}
		c.allowed = append([]jwa.Algorithm(nil), algs...)
		return nil
	}
}

// WithRegistry sets the registry of extension header parameters a token's
// headers may use.
func WithRegistry(reg *header.Registry) Option {
	return func(c *config) error {
		c.registry = reg
		return nil
	}
}

// WithLogger sets the logger diagnostic messages are written to.
func WithLogger(logger logging.Logger) Option {
	return func(c *config) error {
		if logger == nil {
			return fmt.Errorf("nil logger")
		}
		c.logger = logger
		return nil
	}
}

func (c *config) jwsOptions() []jws.Option {
	opts := []jws.Option{jws.WithRegistry(c.registry), jws.WithLogger(c.logger)}
	if len(c.allowed) > 0 {
		opts = append(opts, jws.WithAllowedAlgorithms(c.allowed...))
	}
	return opts
}

func (c *config) jweOptions() []jwe.Option {
	return []jwe.Option{jwe.WithRegistry(c.registry), jwe.WithLogger(c.logger)}
}
