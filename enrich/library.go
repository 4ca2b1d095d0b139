package enrich

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// Library is the default Registry: a copy-on-write map from capability key to
// Enricher. Lookups load one immutable map snapshot and never block; writers
// serialize on a mutex, copy the map, and publish the copy atomically.
// The zero value is an empty library ready to use.
type Library struct {
	writeMu sync.Mutex
	entries atomic.Pointer[map[string]Enricher]
}

var _ Registry = (*Library)(nil)

// NewLibrary creates an empty library.
func NewLibrary() *Library {
	l := &Library{}
	empty := make(map[string]Enricher)
	l.entries.Store(&empty)
	return l
}

// Get returns the enricher registered under key.
func (l *Library) Get(key string) (Enricher, bool) {
	e, ok := l.snapshot()[key]
	return e, ok
}

// Register adds e under key. It fails if the key is already taken.
func (l *Library) Register(key string, e Enricher) error {
	if err := checkEntry(key, e); err != nil {
		return err
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	current := l.snapshot()
	if _, exists := current[key]; exists {
		return fmt.Errorf("register %s: %w", key, ErrDuplicateKey)
	}
	l.publish(current, key, e)
	return nil
}

// Replace installs e under key, inserting it if absent, and returns the
// enricher it displaced. Callers holding the previous enricher keep a valid
// reference.
func (l *Library) Replace(key string, e Enricher) (Enricher, error) {
	if err := checkEntry(key, e); err != nil {
		return nil, err
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	current := l.snapshot()
	prev := current[key]
	l.publish(current, key, e)
	return prev, nil
}

// Remove deletes key and reports whether it was present.
func (l *Library) Remove(key string) bool {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	current := l.snapshot()
	if _, ok := current[key]; !ok {
		return false
	}
	next := make(map[string]Enricher, len(current))
	for k, v := range current {
		if k != key {
			next[k] = v
		}
	}
	l.entries.Store(&next)
	return true
}

// Keys returns the registered capability keys in sorted order.
func (l *Library) Keys() []string {
	current := l.snapshot()
	keys := make([]string, 0, len(current))
	for k := range current {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of registered enrichers.
func (l *Library) Len() int {
	return len(l.snapshot())
}

// snapshot returns the current map; nil before the first write to a zero
// Library, which reads as empty.
func (l *Library) snapshot() map[string]Enricher {
	if m := l.entries.Load(); m != nil {
		return *m
	}
	return nil
}

// publish must be called with writeMu held.
func (l *Library) publish(current map[string]Enricher, key string, e Enricher) {
	next := make(map[string]Enricher, len(current)+1)
	for k, v := range current {
		next[k] = v
	}
	next[key] = e
	l.entries.Store(&next)
}

func checkEntry(key string, e Enricher) error {
	if key == "" {
		return ErrEmptyKey
	}
	if e == nil {
		return fmt.Errorf("register %s: %w", key, ErrNilEnricher)
	}
	return nil
}
