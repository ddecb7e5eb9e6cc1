package datastore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisStore is the Redis-backed reference implementation of Store.
type RedisStore struct {
	log    logrus.FieldLogger
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed store from the given configuration.
func NewRedisStore(log logrus.FieldLogger, cfg *RedisConfig) (*RedisStore, error) {
	if cfg == nil || cfg.Address == "" {
		return nil, ErrRedisAddressRequired
	}

	client := redis.NewClient(&redis.Options{
		Addr: cfg.Address,
		DB:   cfg.DB,
	})

	return &RedisStore{
		log:    log.WithField("component", "datastore.redis"),
		client: client,
		prefix: cfg.Prefix,
	}, nil
}

// NewRedisStoreWithClient wraps an existing client, used by tests.
func NewRedisStoreWithClient(log logrus.FieldLogger, client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{
		log:    log.WithField("component", "datastore.redis"),
		client: client,
		prefix: prefix,
	}
}

func (s *RedisStore) redisKey(target Target) string {
	return fmt.Sprintf("%s:%s:%s:%s", s.prefix, target.Store, target.Scope, target.Key)
}

// Get retrieves the value for a target.
func (s *RedisStore) Get(ctx context.Context, target Target) ([]byte, error) {
	val, err := s.client.Get(ctx, s.redisKey(target)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, NewStoreError(CodeNotFound, "get", target, nil)
		}

		return nil, NewStoreError(classifyRedisError(err), "get", target, err)
	}

	return val, nil
}

// Set writes the value for a target, overwriting any existing value.
func (s *RedisStore) Set(ctx context.Context, target Target, value []byte) error {
	if err := s.client.Set(ctx, s.redisKey(target), value, 0).Err(); err != nil {
		return NewStoreError(classifyRedisError(err), "set", target, err)
	}

	return nil
}

// Delete removes a target. Deleting an absent key is not an error.
func (s *RedisStore) Delete(ctx context.Context, target Target) error {
	if err := s.client.Del(ctx, s.redisKey(target)).Err(); err != nil {
		return NewStoreError(classifyRedisError(err), "delete", target, err)
	}

	return nil
}

// ListKeys returns a page of keys under (store, scope) matching prefix.
func (s *RedisStore) ListKeys(ctx context.Context, store, scope, prefix string, pageSize int, cursor string) (*KeyPage, error) {
	target := Target{Store: store, Scope: scope}

	var scanCursor uint64

	if cursor != "" {
		parsed, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return nil, NewStoreError(CodeValidation, "list", target, fmt.Errorf("invalid cursor %q: %w", cursor, err))
		}

		scanCursor = parsed
	}

	keyPrefix := fmt.Sprintf("%s:%s:%s:", s.prefix, store, scope)
	match := keyPrefix + prefix + "*"

	keys, next, err := s.client.Scan(ctx, scanCursor, match, int64(pageSize)).Result()
	if err != nil {
		return nil, NewStoreError(classifyRedisError(err), "list", target, err)
	}

	page := &KeyPage{Keys: make([]string, 0, len(keys))}
	for _, key := range keys {
		page.Keys = append(page.Keys, strings.TrimPrefix(key, keyPrefix))
	}

	if next != 0 {
		page.Cursor = strconv.FormatUint(next, 10)
	}

	return page, nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// classifyRedisError maps driver-level failures to structured codes.
func classifyRedisError(err error) ErrorCode {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return CodeUnavailable
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CodeUnavailable
	}

	msg := strings.ToUpper(err.Error())

	switch {
	case strings.Contains(msg, "OOM"), strings.Contains(msg, "MAX REQUESTS"):
		return CodeThrottled
	case strings.Contains(msg, "LOADING"), strings.Contains(msg, "CONNECTION REFUSED"), strings.Contains(msg, "TIMEOUT"):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

// Verify interface compliance at compile time
var _ Store = (*RedisStore)(nil)
