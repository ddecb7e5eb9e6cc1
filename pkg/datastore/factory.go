package datastore

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// New creates the store backend selected by the configuration.
func New(log logrus.FieldLogger, cfg *Config) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid datastore configuration: %w", err)
	}

	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendRedis:
		return NewRedisStore(log, cfg.Redis)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, cfg.Backend)
	}
}
