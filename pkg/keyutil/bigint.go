package keyutil

import (
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"
	"math/big"
)

// FixedWidth returns the big-endian encoding of n left padded with zeros
// to size bytes. EC coordinates and private scalars are always encoded at
// the full width of their field, never with leading zeros trimmed.
//
// https://datatracker.ietf.org/doc/html/rfc7518#section-6.2.1.2
func FixedWidth(n *big.Int, size int) []byte {
	out := make([]byte, size)
	if n == nil {
		return out
	}
	n.FillBytes(out)
	return out
}

// BigInt returns the unsigned big-endian integer encoded by b.
func BigInt(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}

// CurveSize returns the size, in bytes, of a field element of the curve.
func CurveSize(curve elliptic.Curve) int {
	return (curve.Params().BitSize + 7) / 8
}

// RecoverRSAPrimes completes an RSA private key that only carries the
// modulus and the public and private exponents, factoring n from e and d.
//
// The method is the one of NIST SP 800-56B Appendix C: with k = de - 1,
// a square root of 1 modulo n other than ±1 reveals a factor.
func RecoverRSAPrimes(n *big.Int, e int, d *big.Int) (*rsa.PrivateKey, error) {
	if n == nil || d == nil || e < 2 {
		return nil, fmt.Errorf("invalid RSA parameters")
	}

	one := big.NewInt(1)
	nMinusOne := new(big.Int).Sub(n, one)

	k := new(big.Int).Mul(d, big.NewInt(int64(e)))
	k.Sub(k, one)
	if k.Bit(0) != 0 {
		return nil, fmt.Errorf("invalid RSA exponents")
	}

	// k = 2^t * r with r odd.
	t := 0
	r := new(big.Int).Set(k)
	for r.Bit(0) == 0 {
		r.Rsh(r, 1)
		t++
	}

	for g := int64(2); g < 1000; g++ {
		y := new(big.Int).Exp(big.NewInt(g), r, n)
		if y.Cmp(one) == 0 || y.Cmp(nMinusOne) == 0 {
			continue
		}

		for i := 1; i < t; i++ {
			x := new(big.Int).Exp(y, big.NewInt(2), n)
			if x.Cmp(one) == 0 {
				p := new(big.Int).GCD(nil, nil, new(big.Int).Sub(y, one), n)
				return completeRSAKey(n, e, d, p)
			}
			if x.Cmp(nMinusOne) == 0 {
				break
			}
			y = x
		}

		x := new(big.Int).Exp(y, big.NewInt(2), n)
		if x.Cmp(one) == 0 {
			p := new(big.Int).GCD(nil, nil, new(big.Int).Sub(y, one), n)
			return completeRSAKey(n, e, d, p)
		}
	}

	return nil, fmt.Errorf("failed to factor RSA modulus")
}

func completeRSAKey(n *big.Int, e int, d, p *big.Int) (*rsa.PrivateKey, error) {
	one := big.NewInt(1)
	if p.Cmp(one) <= 0 || p.Cmp(n) >= 0 {
		return nil, fmt.Errorf("failed to factor RSA modulus")
	}

	q, rem := new(big.Int).QuoRem(n, p, new(big.Int))
	if rem.Sign() != 0 {
		return nil, fmt.Errorf("failed to factor RSA modulus")
	}

	// Conventionally p > q.
	if p.Cmp(q) < 0 {
		p, q = q, p
	}

	key := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{N: n, E: e},
		D:         d,
		Primes:    []*big.Int{p, q},
	}
	key.Precompute()

	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("recovered RSA key is invalid: %w", err)
	}

	return key, nil
}
