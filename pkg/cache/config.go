// Package cache implements the TTL cache that fronts remote store reads,
// including the throttle-marker namespace used to suppress redundant calls.
package cache

import (
	"errors"
	"time"
)

// Define static errors
var (
	// ErrInvalidMaxEntries is returned when the entry cap is not positive
	ErrInvalidMaxEntries = errors.New("cache max entries must be positive")
	// ErrInvalidTTL is returned when a data class TTL is not positive
	ErrInvalidTTL = errors.New("cache TTLs must be positive")
)

// Config contains TTL cache settings. Each data class carries its own
// default TTL: names and key lists churn less than record contents.
type Config struct {
	MaxEntries        int           `yaml:"maxEntries" default:"4096"`
	StoreNamesTTL     time.Duration `yaml:"storeNamesTTL" default:"10m"`
	KeyListTTL        time.Duration `yaml:"keyListTTL" default:"5m"`
	ContentTTL        time.Duration `yaml:"contentTTL" default:"1m"`
	ThrottleMarkerTTL time.Duration `yaml:"throttleMarkerTTL" default:"6s"`
	// SweepSchedule optionally compacts expired entries in the background.
	// Correctness does not depend on it; expiry is checked at read time.
	SweepSchedule string `yaml:"sweepSchedule" default:"@every 1m"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.MaxEntries <= 0 {
		return ErrInvalidMaxEntries
	}

	if c.StoreNamesTTL <= 0 || c.KeyListTTL <= 0 || c.ContentTTL <= 0 || c.ThrottleMarkerTTL <= 0 {
		return ErrInvalidTTL
	}

	return nil
}
