package jwk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	jose "github.com/picatz/jose/v2/pkg"
)

// Set is a JWK set as defined in RFC 7517.
//
// https://datatracker.ietf.org/doc/html/rfc7517#section-5
type Set struct {
	// Keys is a list of JWK values.
	//
	// https://datatracker.ietf.org/doc/html/rfc7517#section-5.1
	Keys []*Key `json:"keys"`
}

// UnmarshalJSON decodes a JWK set. Keys of a type this package does not
// support are skipped, as RFC 7517 Section 5 recommends; any other
// invalid key fails the whole set.
func (s *Set) UnmarshalJSON(data []byte) error {
	var raw struct {
		Keys []json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return jose.WrapSerializationError(err, "failed to decode JWK set")
	}
	if raw.Keys == nil {
		return jose.NewSerializationError("JWK set has no %q member", "keys")
	}

	keys := make([]*Key, 0, len(raw.Keys))
	for i, member := range raw.Keys {
		var r rawKey
		if err := json.Unmarshal(member, &r); err != nil {
			return jose.WrapSerializationError(err, "failed to decode key %d of JWK set", i)
		}
		if _, err := TypeOf(r.Kty, r.Crv); err != nil {
			continue
		}
		key, err := fromRaw(&r)
		if err != nil {
			return fmt.Errorf("key %d of JWK set: %w", i, err)
		}
		keys = append(keys, key)
	}
	s.Keys = keys
	return nil
}

// Get returns the key that matches the given key id.
func (s *Set) Get(keyID string) (*Key, error) {
	for _, key := range s.Keys {
		if key.kid == keyID {
			return key, nil
		}
	}

	return nil, fmt.Errorf("key %q not found in set", keyID)
}

// WellKnown returns the set of the well-known projections of its keys.
func (s *Set) WellKnown() *Set {
	keys := make([]*Key, len(s.Keys))
	for i, key := range s.Keys {
		keys[i] = key.WellKnown()
	}
	return &Set{Keys: keys}
}

// MarshalSet returns the JWK set JSON of the given keys, as given. Call
// WellKnown on each key first to publish only public material.
func MarshalSet(keys []*Key) ([]byte, error) {
	if keys == nil {
		keys = []*Key{}
	}
	return json.Marshal(&Set{Keys: keys})
}

// ParseSet parses the keys of a JWK set.
func ParseSet(data []byte) ([]*Key, error) {
	var set Set
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, err
	}
	return set.Keys, nil
}

// ReadSet reads and parses a JWK set from r.
func ReadSet(r io.Reader) ([]*Key, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read JWK set: %w", err)
	}
	return ParseSet(data)
}

// WriteSet writes the JWK set JSON of the given keys to w.
func WriteSet(w io.Writer, keys []*Key) error {
	data, err := MarshalSet(keys)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// FetchSet fetches a JWK set from the given URL and HTTP client.
func FetchSet(ctx context.Context, url string, client *http.Client) (*Set, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create JWK set request: %w", err)
	}
	req.Header.Set("Accept", "application/jwk-set+json, application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWK set: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch JWK set: %s", resp.Status)
	}

	var set Set
	err = json.NewDecoder(resp.Body).Decode(&set)
	if err != nil {
		return nil, fmt.Errorf("failed to decode JWK set: %w", err)
	}

	if len(set.Keys) == 0 {
		return nil, errors.New("no usable keys in JWK set")
	}

	return &set, nil
}

type contextKey struct{}

// contextCache holds the key sets read during the lifetime of a context.
type contextCache struct {
	mutex sync.Mutex
	sets  map[string][]*Key
}

// NewContext returns a context in which ReadSetURL remembers the key sets
// it fetches, so a URL is requested at most once for as long as the
// context is used. Nothing is cached across contexts.
func NewContext(ctx context.Context) context.Context {
	if _, ok := ctx.Value(contextKey{}).(*contextCache); ok {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, &contextCache{sets: map[string][]*Key{}})
}

// ReadSetURL fetches and parses the JWK set at url. When ctx comes from
// NewContext, the result is reused for later calls with the same url.
func ReadSetURL(ctx context.Context, client *http.Client, url string) ([]*Key, error) {
	cache, ok := ctx.Value(contextKey{}).(*contextCache)
	if !ok {
		set, err := FetchSet(ctx, url, client)
		if err != nil {
			return nil, err
		}
		return set.Keys, nil
	}

	// The lock is held across the fetch, a URL is requested once per context.
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	if keys, ok := cache.sets[url]; ok {
		return keys, nil
	}

	set, err := FetchSet(ctx, url, client)
	if err != nil {
		return nil, err
	}
	cache.sets[url] = set.Keys
	return set.Keys, nil
}
