package jws

import (
	"fmt"

	"github.com/picatz/jose/v2/pkg/header"
	"github.com/picatz/jose/v2/pkg/jwa"
	"github.com/picatz/jose/v2/pkg/logging"
)

// Option configures a Builder or the parsing and verification of a
// Signed object.
type Option func(*config) error

type config struct {
	registry *header.Registry
	logger   logging.Logger
	allowed  jwa.AllowedAlgorithms
}

func newConfig(opts ...Option) (*config, error) {
	c := &config{
		logger:  logging.NewNoOpLogger(),
		allowed: jwa.NewAllowedAlgorithms(jwa.SignatureAlgorithms()...),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("invalid JWS option: %w", err)
		}
	}
	return c, nil
}

// WithRegistry sets the registry of extension header parameters that
// may appear in, and be marked critical by, a signature header.
func WithRegistry(reg *header.Registry) Option {
	return func(c *config) error {
		c.registry = reg
		return nil
	}
}

// WithLogger sets the logger diagnostic messages are written to. Reasons
// a signature failed to verify are only ever reported here.
func WithLogger(logger logging.Logger) Option {
	return func(c *config) error {
		if logger == nil {
			return fmt.Errorf("nil logger")
		}
		c.logger = logger
		return nil
	}
}

// WithAllowedAlgorithms restricts the algorithms Verify accepts. Every
// signature algorithm is allowed by default.
func WithAllowedAlgorithms(algs ...jwa.Algorithm) Option {
	return func(c *config) error {
		if len(algs) == 0 {
			return fmt.Errorf("no allowed algorithms")
		}
		for _, alg := range algs {
			if _, ok := algorithms[alg]; !ok {
				return fmt.Errorf("unsupported signature algorithm %q", alg)
			}
		}
		c.allowed = jwa.NewAllowedAlgorithms(algs...)
		return nil
	}
}
