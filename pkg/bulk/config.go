package bulk

import (
	"errors"
	"time"
)

// Define static errors
var (
	// ErrInvalidBatchBounds is returned when min/max batch sizes are inconsistent
	ErrInvalidBatchBounds = errors.New("batch size bounds must satisfy 0 < min <= default <= max")
	// ErrInvalidTargetDuration is returned when the adaptive target is not positive
	ErrInvalidTargetDuration = errors.New("target batch duration must be positive")
	// ErrInvalidFanOut is returned when the per-batch concurrency is not positive
	ErrInvalidFanOut = errors.New("max concurrent items must be positive")
	// ErrInvalidItemCap is returned when the per-job item cap is not positive
	ErrInvalidItemCap = errors.New("max items per job must be positive")
	// ErrInvalidHistoryAge is returned when the history retention age is not positive
	ErrInvalidHistoryAge = errors.New("history max age must be positive")
	// ErrInvalidConcurrency is returned when queue concurrency is not positive
	ErrInvalidConcurrency = errors.New("queue concurrency must be positive")
)

// QueueConfig enables dispatching jobs through an asynq task queue instead of
// in-process goroutines.
type QueueConfig struct {
	Enabled     bool   `yaml:"enabled" default:"false"`
	Address     string `yaml:"address"`
	DB          int    `yaml:"db" default:"0"`
	Concurrency int    `yaml:"concurrency" default:"4"`
}

// Config contains bulk engine settings
type Config struct {
	MinBatchSize     int `yaml:"minBatchSize" default:"5"`
	MaxBatchSize     int `yaml:"maxBatchSize" default:"50"`
	DefaultBatchSize int `yaml:"defaultBatchSize" default:"10"`

	// TargetBatchDuration drives adaptive sizing: batch size converges toward
	// the throughput that finishes a batch in about this long
	TargetBatchDuration time.Duration `yaml:"targetBatchDuration" default:"3s"`
	// ResizeThreshold is the minimum batch size delta that triggers
	// re-partitioning of not-yet-started items
	ResizeThreshold int `yaml:"resizeThreshold" default:"2"`

	DelayBetweenBatches time.Duration `yaml:"delayBetweenBatches" default:"1s"`
	MaxConcurrentItems  int           `yaml:"maxConcurrentItems" default:"4"`
	MaxItemsPerJob      int           `yaml:"maxItemsPerJob" default:"10000"`

	HistoryMaxAge     time.Duration `yaml:"historyMaxAge" default:"1h"`
	HistoryGCSchedule string        `yaml:"historyGCSchedule" default:"@every 5m"`

	Queue QueueConfig `yaml:"queue"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.MinBatchSize <= 0 || c.MinBatchSize > c.DefaultBatchSize || c.DefaultBatchSize > c.MaxBatchSize {
		return ErrInvalidBatchBounds
	}

	if c.TargetBatchDuration <= 0 {
		return ErrInvalidTargetDuration
	}

	if c.MaxConcurrentItems <= 0 {
		return ErrInvalidFanOut
	}

	if c.MaxItemsPerJob <= 0 {
		return ErrInvalidItemCap
	}

	if c.HistoryMaxAge <= 0 {
		return ErrInvalidHistoryAge
	}

	if c.Queue.Enabled && c.Queue.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}

	return nil
}
