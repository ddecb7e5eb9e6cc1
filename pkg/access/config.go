// Package access exposes the single-operation façade over the retrying
// executor: reads, writes, deletes and key listings against the remote store.
package access

import (
	"errors"
)

// Define static errors
var (
	// ErrInvalidPageSize is returned when the default list page size is not positive
	ErrInvalidPageSize = errors.New("default page size must be positive")
	// ErrKeyRequired is returned when an operation is missing its key
	ErrKeyRequired = errors.New("key is required")
	// ErrStoreRequired is returned when an operation is missing its store name
	ErrStoreRequired = errors.New("store name is required")
)

// Config contains access façade settings
type Config struct {
	// DefaultScope is applied when callers pass an empty scope
	DefaultScope string `yaml:"defaultScope" default:"global"`
	// DefaultPageSize is applied when key listings pass no page size
	DefaultPageSize int `yaml:"defaultPageSize" default:"50"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DefaultPageSize <= 0 {
		return ErrInvalidPageSize
	}

	if c.DefaultScope == "" {
		c.DefaultScope = "global"
	}

	return nil
}
