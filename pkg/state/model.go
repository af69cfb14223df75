package state

import (
	"context"
	"sort"
)

// Common state keys.
const (
	KeyLastUpdate = "last_update"
	KeyMonthly    = "monthly"
)

// State is the persisted key/value state of a single dataset.
type State map[string]string

// Get returns the value of a key, or an empty string.
func (s State) Get(key string) string {
	if s == nil {
		return ""
	}
	return s[key]
}

// Keys returns the sorted keys of the state.
func (s State) Keys() []string {
	keys := []string{}
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Copy returns a copy of the state, never nil.
func (s State) Copy() State {
	result := State{}
	for k, v := range s {
		result[k] = v
	}
	return result
}

// Store persists dataset state.
type Store interface {
	// Get returns the state of a dataset and true, or false if the dataset has no state yet.
	Get(ctx context.Context, datasetID string) (State, bool, error)
	// Update merges the given keys into the dataset state.
	Update(ctx context.Context, datasetID string, update State) error
	// Reset removes the state of the dataset.
	Reset(ctx context.Context, datasetID string) error
	// List returns the state of every dataset.
	List(ctx context.Context) (map[string]State, error)
	// Close releases the resources held by the store.
	Close() error
}

// Provider is a store which can be configured from a generic configuration map.
type Provider interface {
	Store
	Configure(map[string]interface{}) error
}
