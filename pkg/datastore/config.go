package datastore

import (
	"errors"
	"fmt"
)

// Define static errors
var (
	// ErrUnknownBackend is returned for an unrecognized backend name
	ErrUnknownBackend = errors.New("unknown datastore backend")
	// ErrRedisAddressRequired is returned when the redis backend has no address
	ErrRedisAddressRequired = errors.New("redis address is required")
)

const (
	// BackendRedis selects the Redis-backed store
	BackendRedis = "redis"
	// BackendMemory selects the in-memory store
	BackendMemory = "memory"
)

// RedisConfig holds connection settings for the Redis backend
type RedisConfig struct {
	Address string `yaml:"address"`
	Prefix  string `yaml:"prefix" default:"dsgate"`
	DB      int    `yaml:"db" default:"0"`
}

// Config selects and configures the store backend
type Config struct {
	Backend string       `yaml:"backend" default:"redis"`
	Redis   *RedisConfig `yaml:"redis,omitempty"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendMemory:
		return nil
	case BackendRedis:
		if c.Redis == nil || c.Redis.Address == "" {
			return ErrRedisAddressRequired
		}

		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnknownBackend, c.Backend)
	}
}
