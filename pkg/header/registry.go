package header

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Extension describes an application-defined header parameter. A
// registered parameter may be listed in "crit".
//
// Every hook is optional: without FromJSON the value is the generic JSON
// value, and without ToJSON the value given to Build is marshaled as is.
type Extension struct {
	// ToJSON converts the value given to Build into a JSON-marshalable value.
	ToJSON func(value any) (any, error)

	// FromJSON decodes the parameter from its JSON encoding.
	FromJSON func(raw json.RawMessage) (any, error)

	// Validate checks the decoded value.
	Validate func(value any) error
}

func (e Extension) decode(raw json.RawMessage) (any, error) {
	var (
		value any
		err   error
	)
	if e.FromJSON != nil {
		value, err = e.FromJSON(raw)
	} else {
		err = json.Unmarshal(raw, &value)
	}
	if err != nil {
		return nil, err
	}
	if e.Validate != nil {
		if err := e.Validate(value); err != nil {
			return nil, err
		}
	}
	return value, nil
}

// Registry holds the extension header parameters an application
// understands. The zero value is an empty registry, and a nil *Registry
// holds nothing and accepts no registrations. It is safe for concurrent
// use.
type Registry struct {
	mu         sync.RWMutex
	extensions map[string]Extension
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{extensions: map[string]Extension{}}
}

// Register adds an extension parameter. Well-known parameter names cannot
// be registered, and a name can be registered only once.
func (r *Registry) Register(name string, ext Extension) error {
	if r == nil {
		return fmt.Errorf("cannot register header parameter %q in a nil registry", name)
	}
	if name == "" {
		return fmt.Errorf("empty header parameter name")
	}
	if IsWellKnown(name) {
		return fmt.Errorf("header parameter %q is already defined", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.extensions[name]; ok {
		return fmt.Errorf("header parameter %q is already registered", name)
	}
	if r.extensions == nil {
		r.extensions = map[string]Extension{}
	}
	r.extensions[name] = ext
	return nil
}

// Lookup returns the extension registered under name.
func (r *Registry) Lookup(name string) (Extension, bool) {
	if r == nil {
		return Extension{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	ext, ok := r.extensions[name]
	return ext, ok
}
