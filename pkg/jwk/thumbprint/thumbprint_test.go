package thumbprint

import (
	"crypto"
	"testing"

	"github.com/picatz/jose/v2/pkg/base64"
	"github.com/stretchr/testify/require"
)

func TestGenerate_EC(t *testing.T) {
	members := Members{
		"kty": "EC",
		"crv": "P-256",
		"x":   "MKBCTNIcKUSDii11ySs3526iDZ8AiTo7Tu6KPAqv7D4",
		"y":   "4Etl6SRW2YiLUrN5vfvVHuhp7x8PxltmWWlbbM4IFyM",
	}

	// {"crv":"P-256","kty":"EC","x":"MKBCTNIcKUSDii11ySs3526iDZ8AiTo7Tu6KPAqv7D4","y":"4Etl6SRW2YiLUrN5vfvVHuhp7x8PxltmWWlbbM4IFyM"}

	thumbprint, err := Generate(members, crypto.SHA256)
	require.NoError(t, err)

	require.Equal(t, "cn-I_WNMClehiVp51i_0VpOENW1upEerA8sEam5hn-s", base64.Encode(thumbprint))
}

func TestGenerate_RSA(t *testing.T) {
	members := Members{
		"kty": "RSA",
		"n":   "0vx7agoebGcQSuuPiLJXZptN9nndrQmbXEps2aiAFbWhM78LhWx4cbbfAAtVT86zwu1RK7aPFFxuhDR1L6tSoc_BJECPebWKRXjBZCiFV4n3oknjhMstn64tZ_2W-5JsGY4Hc5n9yBXArwl93lqt7_RN5w6Cf0h4QyQ5v-65YGjQR0_FDW2QvzqY368QQMicAtaSqzs8KJZgnYb9c7d0zgdAZHzu6qMQvRL5hajrn1n91CbOpbISD08qNLyrdkt-bFTWhAI4vMQFh6WeZu0fM4lFd2NcRwr3XPksINHaQ-G_xBniIqbw0Ls1jF44-csFCur-kEgU8awapJzKnqDKgw",
		"e":   "AQAB",
		"alg": "RS256",
		"kid": "2011-04-29",
	}

	// {"e":"AQAB","kty":"RSA","n":"0vx7agoebGcQSuuPiLJXZptN9nndrQmbXEps2aiAFbWhM78LhWx4cbbfAAtVT86zwu1RK7aPFFxuhDR1L6tSoc_BJECPebWKRXjBZCiFV4n3oknjhMstn64tZ_2W-5JsGY4Hc5n9yBXArwl93lqt7_RN5w6Cf0h4QyQ5v-65YGjQR0_FDW2QvzqY368QQMicAtaSqzs8KJZgnYb9c7d0zgdAZHzu6qMQvRL5hajrn1n91CbOpbISD08qNLyrdkt-bFTWhAI4vMQFh6WeZu0fM4lFd2NcRwr3XPksINHaQ-G_xBniIqbw0Ls1jF44-csFCur-kEgU8awapJzKnqDKgw"}

	thumbprint, err := GenerateString(members, crypto.SHA256)
	require.NoError(t, err)

	require.Equal(t, "NzbLsXh8uDCcd-6MNwXF4W_7noWXFZAfHkxZsRGC9Xs", thumbprint)
}

// https://datatracker.ietf.org/doc/html/rfc8037#appendix-A.3
func TestGenerate_OKP(t *testing.T) {
	members := Members{
		"kty": "OKP",
		"crv": "Ed25519",
		"x":   "11qYAYKxCrfVS_7TyWQHOg7hcvPapiMlrwIaaPcHURo",
	}

	thumbprint, err := GenerateString(members, 0)
	require.NoError(t, err)

	require.Equal(t, "kPrK_qmxVWaYVA9wwBF6Iuo3vVzz7TxHCTwXBygrS4k", thumbprint)
}

func TestGenerate_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		members Members
	}{
		{"missing kty", Members{"crv": "P-256", "x": "AA", "y": "AA"}},
		{"unknown kty", Members{"kty": "XYZ"}},
		{"EC missing y", Members{"kty": "EC", "crv": "P-256", "x": "AA"}},
		{"oct missing k", Members{"kty": "oct"}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Generate(test.members, crypto.SHA256)
			require.ErrorIs(t, err, ErrInvalidKey)
		})
	}

	require.Equal(t, []string{"EC", "OKP", "RSA", "oct"}, KeyTypes())
}
