// Package budget tracks the replenishing request allowance used to stay
// under the remote store's rate limit.
package budget

import (
	"errors"
	"time"
)

// Define static errors
var (
	// ErrInvalidCapacity is returned when capacity is not positive
	ErrInvalidCapacity = errors.New("budget capacity must be positive")
	// ErrInvalidCooldown is returned when the cooldown is not positive
	ErrInvalidCooldown = errors.New("budget cooldown must be positive")
)

// Config contains budget tracker settings
type Config struct {
	// Capacity is the maximum number of request units available at once
	Capacity int `yaml:"capacity" default:"60"`
	// Cooldown is the time to replenish one request unit
	Cooldown time.Duration `yaml:"cooldown" default:"1s"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Capacity <= 0 {
		return ErrInvalidCapacity
	}

	if c.Cooldown <= 0 {
		return ErrInvalidCooldown
	}

	return nil
}
