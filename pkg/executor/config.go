// Package executor wraps single remote store calls with budget admission,
// cache consultation and bounded retry with backoff.
package executor

import (
	"errors"
	"time"
)

// Define static errors
var (
	// ErrInvalidMaxRetries is returned when maxRetries is not positive
	ErrInvalidMaxRetries = errors.New("max retries must be positive")
	// ErrInvalidRetryDelay is returned when the retry delay base is not positive
	ErrInvalidRetryDelay = errors.New("retry delay base must be positive")
	// ErrInvalidLogSize is returned when the operation log size is not positive
	ErrInvalidLogSize = errors.New("operation log size must be positive")
)

// Config contains executor settings
type Config struct {
	// MaxRetries bounds attempts for transient failures
	MaxRetries int `yaml:"maxRetries" default:"3"`
	// RetryDelayBase is multiplied by the attempt number for linear backoff
	RetryDelayBase time.Duration `yaml:"retryDelayBase" default:"500ms"`
	// OperationLogSize is the capacity of the in-memory operation ring buffer
	OperationLogSize int `yaml:"operationLogSize" default:"256"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.MaxRetries <= 0 {
		return ErrInvalidMaxRetries
	}

	if c.RetryDelayBase <= 0 {
		return ErrInvalidRetryDelay
	}

	if c.OperationLogSize <= 0 {
		return ErrInvalidLogSize
	}

	return nil
}
