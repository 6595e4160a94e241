package jwt

import (
	"errors"
	"fmt"
)

var (
	// ErrNoClaimSet is returned when a token has no claims, or decodes to
	// the JSON null value.
	ErrNoClaimSet = errors.New("no claim set")

	ErrExpired        = errors.New("token is expired")
	ErrNotYetValid    = errors.New("token is not valid yet")
	ErrIssuedInFuture = errors.New("token was issued in the future")
	ErrMissingClaim   = errors.New("required claim is missing")
	ErrAudience       = errors.New("token is not intended for the audience")
	ErrMaxAge         = errors.New("token lifetime exceeds the maximum age")
)

type ErrSigningFailed struct {
	Inner error
}

func (e *ErrSigningFailed) Error() string {
	return fmt.Sprintf("signing failed: %v", e.Inner)
}

func (e *ErrSigningFailed) Unwrap() error {
	return e.Inner
}

func NewSigningError(inner error) *ErrSigningFailed {
	return &ErrSigningFailed{Inner: inner}
}

type ErrInvalidType struct {
	Inner error
}

func (e *ErrInvalidType) Error() string {
	return fmt.Sprintf("invalid type: %v", e.Inner)
}

func (e *ErrInvalidType) Unwrap() error {
	return e.Inner
}

func NewInvalidTypeError(inner error) *ErrInvalidType {
	return &ErrInvalidType{Inner: inner}
}

// ErrInvalidClaim reports a registered claim that is malformed or fails
// validation.
type ErrInvalidClaim struct {
	Claim ClaimName
	Inner error
}

func (e *ErrInvalidClaim) Error() string {
	return fmt.Sprintf("invalid %q claim: %v", e.Claim, e.Inner)
}

func (e *ErrInvalidClaim) Unwrap() error {
	return e.Inner
}

func NewClaimError(claim ClaimName, inner error) *ErrInvalidClaim {
	return &ErrInvalidClaim{Claim: claim, Inner: inner}
}
