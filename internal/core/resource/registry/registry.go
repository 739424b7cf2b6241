// Package registry maps logical resource keys onto deferred locators.
//
// A Registry is populated once at startup from configuration and is read-only
// afterwards, except for Reload which swaps the whole table and tells watchers
// which keys changed.
package registry

import (
	"fmt"
	"sync"
)

// Key identifies a logical resource, e.g. "Cosmetic" or "Item_Sword_01".
type Key string

// Locator is a deferred reference to a resource that has not been materialized.
type Locator string

// Entry is one configured (Key, Locator) pair.
type Entry struct {
	Key     Key     `yaml:"key" json:"key"`
	Locator Locator `yaml:"locator" json:"locator"`
}

// WatchFunc is called after a reload with the keys whose locator was added,
// removed or changed.
type WatchFunc func(changed []Key)

type Registry struct {
	mu       sync.RWMutex
	order    []Key
	locators map[Key]Locator
	watchers []WatchFunc
}

// New validates entries and builds a registry from them.
func New(entries ...Entry) (*Registry, error) {
	order, locators, err := build(entries)
	if err != nil {
		return nil, err
	}
	return &Registry{order: order, locators: locators}, nil
}

func (r *Registry) Lookup(key Key) (Locator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	loc, ok := r.locators[key]
	return loc, ok
}

// Keys returns registered keys in configuration order.
func (r *Registry) Keys() []Key {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Key, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, Entry{Key: k, Locator: r.locators[k]})
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Watch registers fn to be told about keys changed by Reload.
func (r *Registry) Watch(fn WatchFunc) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.watchers = append(r.watchers, fn)
	r.mu.Unlock()
}

// Reload replaces the table with entries and returns the changed keys in a
// stable order (new configuration order first, then removed keys). Invalid
// entries leave the registry untouched.
func (r *Registry) Reload(entries ...Entry) ([]Key, error) {
	order, locators, err := build(entries)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	var changed []Key
	for _, k := range order {
		if old, ok := r.locators[k]; !ok || old != locators[k] {
			changed = append(changed, k)
		}
	}
	for _, k := range r.order {
		if _, ok := locators[k]; !ok {
			changed = append(changed, k)
		}
	}
	r.order = order
	r.locators = locators
	watchers := make([]WatchFunc, len(r.watchers))
	copy(watchers, r.watchers)
	r.mu.Unlock()

	if len(changed) > 0 {
		for _, w := range watchers {
			w(changed)
		}
	}
	return changed, nil
}

func build(entries []Entry) ([]Key, map[Key]Locator, error) {
	order := make([]Key, 0, len(entries))
	locators := make(map[Key]Locator, len(entries))
	for i, e := range entries {
		if e.Key == "" {
			return nil, nil, fmt.Errorf("entry %d: %w", i, ErrEmptyKey)
		}
		if e.Locator == "" {
			return nil, nil, fmt.Errorf("entry %q: %w", e.Key, ErrEmptyLocator)
		}
		if _, dup := locators[e.Key]; dup {
			return nil, nil, fmt.Errorf("entry %q: %w", e.Key, ErrDuplicateKey)
		}
		order = append(order, e.Key)
		locators[e.Key] = e.Locator
	}
	return order, locators, nil
}
