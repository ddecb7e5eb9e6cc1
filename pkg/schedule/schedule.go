// Package schedule parses cron-style schedule expressions into tick intervals
// for periodic maintenance loops.
package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ParseInterval converts a cron schedule string to a duration.
// Supports @every format (e.g., "@every 30s", "@every 5m") and standard
// cron expressions, for which the interval between two consecutive runs
// is returned.
func ParseInterval(schedule string) (time.Duration, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	sched, err := parser.Parse(schedule)
	if err != nil {
		return 0, fmt.Errorf("invalid schedule format: %w", err)
	}

	if strings.HasPrefix(schedule, "@every ") {
		duration, err := time.ParseDuration(strings.TrimPrefix(schedule, "@every "))
		if err != nil {
			return 0, fmt.Errorf("failed to parse @every duration: %w", err)
		}

		return duration, nil
	}

	now := time.Now()
	next1 := sched.Next(now)
	next2 := sched.Next(next1)

	return next2.Sub(next1), nil
}
