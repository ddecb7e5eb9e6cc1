package datastore

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used as a test double and as a backend
// for single-process deployments. Fault injection and artificial latency are
// programmable per operation kind.
type MemoryStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	faults  map[string][]error
	latency time.Duration
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:   make(map[string][]byte),
		faults: make(map[string][]error),
	}
}

// FailNext queues errors to be returned by upcoming calls of the given
// operation ("get", "set", "delete", "list"). Each queued error is consumed
// by exactly one call.
func (s *MemoryStore) FailNext(op string, errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.faults[op] = append(s.faults[op], errs...)
}

// SetLatency makes every call block for d before completing.
func (s *MemoryStore) SetLatency(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.latency = d
}

// Len returns the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.data)
}

func (s *MemoryStore) takeFault(op string) error {
	queued := s.faults[op]
	if len(queued) == 0 {
		return nil
	}

	err := queued[0]
	s.faults[op] = queued[1:]

	return err
}

func (s *MemoryStore) enter(ctx context.Context, op string) error {
	s.mu.Lock()
	fault := s.takeFault(op)
	latency := s.latency
	s.mu.Unlock()

	if latency > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(latency):
		}
	}

	return fault
}

func memoryKey(target Target) string {
	return target.Store + "\x00" + target.Scope + "\x00" + target.Key
}

// Get retrieves the value for a target.
func (s *MemoryStore) Get(ctx context.Context, target Target) ([]byte, error) {
	if err := s.enter(ctx, "get"); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	val, ok := s.data[memoryKey(target)]
	if !ok {
		return nil, NewStoreError(CodeNotFound, "get", target, nil)
	}

	out := make([]byte, len(val))
	copy(out, val)

	return out, nil
}

// Set writes the value for a target.
func (s *MemoryStore) Set(ctx context.Context, target Target, value []byte) error {
	if err := s.enter(ctx, "set"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	s.data[memoryKey(target)] = stored

	return nil
}

// Delete removes a target.
func (s *MemoryStore) Delete(ctx context.Context, target Target) error {
	if err := s.enter(ctx, "delete"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, memoryKey(target))

	return nil
}

// ListKeys returns a page of keys under (store, scope) matching prefix.
// The cursor is the offset into the sorted key list.
func (s *MemoryStore) ListKeys(ctx context.Context, store, scope, prefix string, pageSize int, cursor string) (*KeyPage, error) {
	target := Target{Store: store, Scope: scope}

	if err := s.enter(ctx, "list"); err != nil {
		return nil, err
	}

	offset := 0

	if cursor != "" {
		parsed, err := strconv.Atoi(cursor)
		if err != nil || parsed < 0 {
			return nil, NewStoreError(CodeValidation, "list", target, err)
		}

		offset = parsed
	}

	s.mu.Lock()
	keyPrefix := store + "\x00" + scope + "\x00"
	matched := make([]string, 0)

	for key := range s.data {
		if !strings.HasPrefix(key, keyPrefix) {
			continue
		}

		bare := strings.TrimPrefix(key, keyPrefix)
		if strings.HasPrefix(bare, prefix) {
			matched = append(matched, bare)
		}
	}
	s.mu.Unlock()

	sort.Strings(matched)

	if offset >= len(matched) {
		return &KeyPage{Keys: []string{}}, nil
	}

	end := offset + pageSize
	if pageSize <= 0 || end > len(matched) {
		end = len(matched)
	}

	page := &KeyPage{Keys: matched[offset:end]}
	if end < len(matched) {
		page.Cursor = strconv.Itoa(end)
	}

	return page, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// Verify interface compliance at compile time
var _ Store = (*MemoryStore)(nil)
