// Package testutil provides test utilities for dsgate:
//   - Miniredis helpers for unit tests against the Redis backend (miniredis.go)
//
// The helpers do not require Docker and work with regular tests.
package testutil
