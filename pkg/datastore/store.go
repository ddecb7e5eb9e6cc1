// Package datastore defines the remote key-value store abstraction used by
// the access layer, together with its reference backends.
package datastore

import (
	"context"
	"fmt"
)

// Target identifies a single record in a remote store.
type Target struct {
	Store string `json:"store"`
	Scope string `json:"scope"`
	Key   string `json:"key"`
}

// String returns the canonical store:scope:key form of the target.
func (t Target) String() string {
	return fmt.Sprintf("%s:%s:%s", t.Store, t.Scope, t.Key)
}

// KeyPage is one page of a key listing.
type KeyPage struct {
	Keys   []string `json:"keys"`
	Cursor string   `json:"cursor,omitempty"`
}

// Store is the remote key-value store the gateway fronts. Implementations
// return *StoreError with a structured code so callers can classify failures
// without inspecting error text.
type Store interface {
	// Get retrieves the value for a target. Returns a StoreError with
	// CodeNotFound when the key is absent.
	Get(ctx context.Context, target Target) ([]byte, error)

	// Set writes the value for a target, overwriting any existing value.
	Set(ctx context.Context, target Target, value []byte) error

	// Delete removes a target. Deleting an absent key is not an error.
	Delete(ctx context.Context, target Target) error

	// ListKeys returns a page of keys under (store, scope) matching prefix.
	// An empty cursor starts a new listing; the returned cursor is empty on
	// the final page.
	ListKeys(ctx context.Context, store, scope, prefix string, pageSize int, cursor string) (*KeyPage, error)

	// Close releases resources held by the backend.
	Close() error
}
