// Package server provides gateway configuration and lifecycle management
package server

import (
	"fmt"
	"time"

	"github.com/harborkv/dsgate/pkg/access"
	"github.com/harborkv/dsgate/pkg/api"
	"github.com/harborkv/dsgate/pkg/budget"
	"github.com/harborkv/dsgate/pkg/bulk"
	"github.com/harborkv/dsgate/pkg/cache"
	"github.com/harborkv/dsgate/pkg/datastore"
	"github.com/harborkv/dsgate/pkg/executor"
)

// Config holds the full gateway configuration
type Config struct {
	// MetricsAddr is the address to listen on for metrics.
	MetricsAddr string `yaml:"metricsAddr" default:":9090"`
	// HealthCheckAddr is the address to listen on for healthcheck.
	HealthCheckAddr *string `yaml:"healthCheckAddr"`
	// PProfAddr is the address to listen on for pprof.
	PProfAddr *string `yaml:"pprofAddr"`
	// LoggingLevel is the logging level to use.
	LoggingLevel string `yaml:"logging" default:"info"`
	// ShutdownTimeout is the timeout for shutting down the server.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"10s"`

	Datastore datastore.Config `yaml:"datastore"`
	Budget    budget.Config    `yaml:"budget"`
	Cache     cache.Config     `yaml:"cache"`
	Executor  executor.Config  `yaml:"executor"`
	Access    access.Config    `yaml:"access"`
	Bulk      bulk.Config      `yaml:"bulk"`
	API       api.Config       `yaml:"api"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.Datastore.Validate(); err != nil {
		return fmt.Errorf("invalid datastore configuration: %w", err)
	}

	if err := c.Budget.Validate(); err != nil {
		return fmt.Errorf("invalid budget configuration: %w", err)
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("invalid cache configuration: %w", err)
	}

	if err := c.Executor.Validate(); err != nil {
		return fmt.Errorf("invalid executor configuration: %w", err)
	}

	if err := c.Access.Validate(); err != nil {
		return fmt.Errorf("invalid access configuration: %w", err)
	}

	if err := c.Bulk.Validate(); err != nil {
		return fmt.Errorf("invalid bulk configuration: %w", err)
	}

	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("invalid api configuration: %w", err)
	}

	return nil
}
