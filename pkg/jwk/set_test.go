package jwk

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/picatz/jose/v2/pkg/logging/test"
	"github.com/stretchr/testify/require"
)

const testSetJSON = `
{
	"keys":[
		{
			"kty":"oct",
			"alg":"A128KW",
			"k":"GawgguFyGrWKav7AX4VKUg"
		},
		{
			"kty":"oct",
			"k":"AyM1SysPpbyDfgZld3umj1qzKObwVMkoqQ-EstJQLr_T-1qS0gZH75aKtMN3Yj0iPS4hcgUuTwjAzZr1Z9CAow",
			"kid":"HMAC key used in JWS spec Appendix A.1 example"
		},
		{
			"kty":"EC",
			"crv":"P-256",
			"x":"MKBCTNIcKUSDii11ySs3526iDZ8AiTo7Tu6KPAqv7D4",
			"y":"4Etl6SRW2YiLUrN5vfvVHuhp7x8PxltmWWlbbM4IFyM",
			"use":"enc",
			"kid":"1"
		},
		{
			"kty":"EC",
			"crv":"secp256k1",
			"x":"dGVzdA",
			"y":"dGVzdA",
			"kid":"unsupported"
		}
	]
}`

func TestSet(t *testing.T) {
	keys, err := ReadSet(strings.NewReader(testSetJSON))
	require.NoError(t, err)
	require.Len(t, keys, 3)

	require.Equal(t, TypeOctet, keys[0].Type())
	require.Len(t, keys[0].Secret(), 16)
	require.Equal(t, TypeOctet, keys[1].Type())
	require.Len(t, keys[1].Secret(), 64)
	require.Equal(t, TypeEC256, keys[2].Type())

	set := &Set{Keys: keys}

	key, err := set.Get("1")
	require.NoError(t, err)
	require.Equal(t, UseEncryption, key.Use())

	_, err = set.Get("nonexistent")
	require.Error(t, err)
	require.Contains(t, err.Error(), "key \"nonexistent\" not found in set")

	buf := bytes.NewBuffer(nil)
	require.NoError(t, WriteSet(buf, keys))

	again, err := ParseSet(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, again, 3)
	for i := range keys {
		require.True(t, keys[i].Represents(again[i]))
	}

	wellKnown := set.WellKnown()
	for _, key := range wellKnown.Keys {
		require.False(t, key.IsPrivate())
	}

	t.Run("invalid supported key", func(t *testing.T) {
		_, err := ParseSet([]byte(`{"keys":[{"kty":"EC","crv":"P-256","x":"dGVzdA","y":"dGVzdA"}]}`))
		require.Error(t, err)
	})

	t.Run("missing keys", func(t *testing.T) {
		_, err := ParseSet([]byte(`{}`))
		require.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		data, err := MarshalSet(nil)
		require.NoError(t, err)
		require.JSONEq(t, `{"keys":[]}`, string(data))
	})
}

func newTestSetServer(t *testing.T, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.URL.Path != "/.well-known/jwks.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/jwk-set+json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return srv, &requests
}

func TestReadSetURL(t *testing.T) {
	srv, requests := newTestSetServer(t, testSetJSON)
	url := srv.URL + "/.well-known/jwks.json"

	t.Run("without cache", func(t *testing.T) {
		requests.Store(0)

		for range 2 {
			keys, err := ReadSetURL(t.Context(), srv.Client(), url)
			require.NoError(t, err)
			require.Len(t, keys, 3)
		}
		require.EqualValues(t, 2, requests.Load())
	})

	t.Run("context cache", func(t *testing.T) {
		requests.Store(0)

		ctx := NewContext(t.Context())
		require.Equal(t, ctx, NewContext(ctx))

		for range 3 {
			keys, err := ReadSetURL(ctx, srv.Client(), url)
			require.NoError(t, err)
			require.Len(t, keys, 3)
		}
		require.EqualValues(t, 1, requests.Load())

		// A new context does not see the previous one's sets.
		_, err := ReadSetURL(NewContext(t.Context()), srv.Client(), url)
		require.NoError(t, err)
		require.EqualValues(t, 2, requests.Load())
	})

	t.Run("not found", func(t *testing.T) {
		_, err := ReadSetURL(t.Context(), srv.Client(), srv.URL+"/missing")
		require.Error(t, err)
		require.Contains(t, err.Error(), "404")
	})
}

func TestURLSetCache(t *testing.T) {
	srv, requests := newTestSetServer(t, testSetJSON)
	url := srv.URL + "/.well-known/jwks.json"

	logger := test.New()

	cache, err := NewURLSetCache(srv.Client(), time.Hour, time.Hour, WithCacheSize(2), WithCacheLogger(logger))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		done <- cache.Start(ctx)
	}()

	set, err := cache.Get(ctx, url)
	require.NoError(t, err)
	require.Len(t, set.Keys, 3)

	key, err := cache.GetKey(ctx, url, "1")
	require.NoError(t, err)
	require.Equal(t, TypeEC256, key.Type())
	require.EqualValues(t, 1, requests.Load())

	// An unknown key id refreshes the set once before failing.
	_, err = cache.GetKey(ctx, url, "rotated")
	require.Error(t, err)
	require.EqualValues(t, 2, requests.Load())

	var seen int
	cache.Range(func(u string, key *Key) bool {
		require.Equal(t, url, u)
		seen++
		return true
	})
	require.Equal(t, 3, seen)
	require.Equal(t, 1, cache.Len())

	require.NoError(t, cache.RefreshAll(ctx))
	require.EqualValues(t, 3, requests.Load())
	require.NotEmpty(t, logger.Entries())

	cancel()
	require.NoError(t, <-done)

	t.Run("invalid options", func(t *testing.T) {
		_, err := NewURLSetCache(nil, time.Hour, time.Hour, WithCacheSize(0))
		require.Error(t, err)

		_, err = NewURLSetCache(nil, 0, time.Hour)
		require.Error(t, err)
	})
}
