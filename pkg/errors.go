package jose

import (
	"errors"
	"fmt"
)

var (
	// ErrDecryption is returned when a JWE cannot be decrypted with the
	// given key. It never says why: a wrong key, a tampered tag and a
	// malformed recipient all look the same to the caller.
	ErrDecryption = errors.New("jose: decryption failed")

	// ErrVerification is returned when no signature of a JWS verifies
	// with the given key.
	ErrVerification = errors.New("jose: signature verification failed")
)

// HeaderError describes a JOSE header that is missing a required
// parameter, names an unknown critical parameter, or is otherwise
// inconsistent.
type HeaderError struct {
	Message string
	Inner   error
}

func (e *HeaderError) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("jose: invalid header: %s: %v", e.Message, e.Inner)
	}
	return fmt.Sprintf("jose: invalid header: %s", e.Message)
}

func (e *HeaderError) Unwrap() error {
	return e.Inner
}

// NewHeaderError returns a *HeaderError with a formatted message.
func NewHeaderError(format string, args ...any) *HeaderError {
	return &HeaderError{Message: fmt.Sprintf(format, args...)}
}

// WrapHeaderError returns a *HeaderError wrapping inner.
func WrapHeaderError(inner error, format string, args ...any) *HeaderError {
	return &HeaderError{Message: fmt.Sprintf(format, args...), Inner: inner}
}

// KeyError describes a key that is inconsistent with itself, its
// certificate chain, or the algorithm it is being used with.
type KeyError struct {
	Message string
	Inner   error
}

func (e *KeyError) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("jose: invalid key: %s: %v", e.Message, e.Inner)
	}
	return fmt.Sprintf("jose: invalid key: %s", e.Message)
}

func (e *KeyError) Unwrap() error {
	return e.Inner
}

// NewKeyError returns a *KeyError with a formatted message.
func NewKeyError(format string, args ...any) *KeyError {
	return &KeyError{Message: fmt.Sprintf(format, args...)}
}

// WrapKeyError returns a *KeyError wrapping inner.
func WrapKeyError(inner error, format string, args ...any) *KeyError {
	return &KeyError{Message: fmt.Sprintf(format, args...), Inner: inner}
}

// SerializationError describes input that is not a well formed compact
// or JSON serialization, or an object that cannot be represented in the
// requested serialization.
type SerializationError struct {
	Message string
	Inner   error
}

func (e *SerializationError) Error() string {
	if e.Inner != nil {
		return fmt.Sprintf("jose: serialization: %s: %v", e.Message, e.Inner)
	}
	return fmt.Sprintf("jose: serialization: %s", e.Message)
}

func (e *SerializationError) Unwrap() error {
	return e.Inner
}

// NewSerializationError returns a *SerializationError with a formatted message.
func NewSerializationError(format string, args ...any) *SerializationError {
	return &SerializationError{Message: fmt.Sprintf(format, args...)}
}

// WrapSerializationError returns a *SerializationError wrapping inner.
func WrapSerializationError(inner error, format string, args ...any) *SerializationError {
	return &SerializationError{Message: fmt.Sprintf(format, args...), Inner: inner}
}
