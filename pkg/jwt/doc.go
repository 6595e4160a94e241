// Package jwt creates and decodes JSON Web Tokens (JWTs).
//
// A token's claims are carried by a JWS, a JWE, or a JWE whose plaintext
// is itself a compact JWS. Decode detects which by counting the segments
// of the compact serialization, decrypts and then verifies as needed, and
// rejects tokens whose "exp" has passed or whose "iat" or "nbf" lie beyond
// the clock skew in the future. Checks against the caller's expectations,
// such as the audience, are made separately with ValidateClaims.
//
// https://datatracker.ietf.org/doc/html/rfc7519
package jwt
