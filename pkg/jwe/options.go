package jwe

import (
	"fmt"

	"github.com/picatz/jose/v2/pkg/header"
	"github.com/picatz/jose/v2/pkg/logging"
)

// PBES2Policy bounds the parameters of password based key management,
// both when encrypting and before any key derivation when decrypting.
type PBES2Policy struct {
	// MinSaltSize is the minimum size of "p2s" in bytes.
	MinSaltSize int

	// MinIterations is the minimum "p2c".
	MinIterations int

	// MaxIterations is the maximum "p2c", which bounds the work a
	// received JWE can ask for.
	MaxIterations int
}

// DefaultPBES2Policy returns the policy used unless configured otherwise.
func DefaultPBES2Policy() PBES2Policy {
	return PBES2Policy{
		MinSaltSize:   8,
		MinIterations: 1000,
		MaxIterations: 1_000_000,
	}
}

// Check returns an error if salt or count fall outside the policy.
func (p PBES2Policy) Check(salt []byte, count int) error {
	if len(salt) < p.MinSaltSize {
		return fmt.Errorf("PBES2 salt must be at least %d bytes, got %d", p.MinSaltSize, len(salt))
	}
	if count < p.MinIterations {
		return fmt.Errorf("PBES2 iteration count must be at least %d, got %d", p.MinIterations, count)
	}
	if p.MaxIterations > 0 && count > p.MaxIterations {
		return fmt.Errorf("PBES2 iteration count must be at most %d, got %d", p.MaxIterations, count)
	}
	return nil
}

// DefaultMaxDecompressedSize is the largest plaintext a compressed JWE
// may inflate to unless configured otherwise.
const DefaultMaxDecompressedSize = 10 << 20

// Option configures a Builder or the parsing and decryption of an
// Encrypted object.
type Option func(*config) error

type config struct {
	registry            *header.Registry
	logger              logging.Logger
	pbes2               PBES2Policy
	maxDecompressedSize int64
}

func newConfig(opts ...Option) (*config, error) {
	c := &config{
		logger:              logging.NewNoOpLogger(),
		pbes2:               DefaultPBES2Policy(),
		maxDecompressedSize: DefaultMaxDecompressedSize,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("invalid JWE option: %w", err)
		}
	}
	return c, nil
}

// WithRegistry sets the registry of extension header parameters that
// may appear in, and be marked critical by, a JWE header.
func WithRegistry(reg *header.Registry) Option {
	return func(c *config) error {
		c.registry = reg
		return nil
	}
}

// WithLogger sets the logger diagnostic messages are written to. Reasons
// a recipient failed to decrypt are only ever reported here.
func WithLogger(logger logging.Logger) Option {
	return func(c *config) error {
		if logger == nil {
			return fmt.Errorf("nil logger")
		}
		c.logger = logger
		return nil
	}
}

// WithPBES2Policy replaces the default PBES2 policy.
func WithPBES2Policy(policy PBES2Policy) Option {
	return func(c *config) error {
		if policy.MinSaltSize < 1 || policy.MinIterations < 1 {
			return fmt.Errorf("PBES2 policy must require a salt and at least one iteration")
		}
		if policy.MaxIterations > 0 && policy.MaxIterations < policy.MinIterations {
			return fmt.Errorf("PBES2 policy maximum iterations below minimum")
		}
		c.pbes2 = policy
		return nil
	}
}

// WithMaxDecompressedSize limits the size a compressed plaintext may
// inflate to.
func WithMaxDecompressedSize(size int64) Option {
	return func(c *config) error {
		if size <= 0 {
			return fmt.Errorf("invalid maximum decompressed size %d", size)
		}
		c.maxDecompressedSize = size
		return nil
	}
}
