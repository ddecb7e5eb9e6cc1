package access

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/harborkv/dsgate/pkg/cache"
	"github.com/harborkv/dsgate/pkg/datastore"
	"github.com/harborkv/dsgate/pkg/executor"
	"github.com/harborkv/dsgate/pkg/schedule"
)

// ReadOptions modify a single read.
type ReadOptions struct {
	Scope string
	// BypassCache forces a remote fetch even when a live entry exists.
	BypassCache bool
}

// WriteOptions modify a single write.
type WriteOptions struct {
	Scope    string
	Metadata map[string]string
}

// Service is the façade UI and feature modules call for single operations.
type Service interface {
	// Start launches background maintenance (cache sweeping)
	Start(ctx context.Context) error

	// Stop gracefully shuts down background maintenance
	Stop() error

	// ReadData fetches one value. Absent keys return (nil, nil).
	ReadData(ctx context.Context, store, key string, opts ReadOptions) ([]byte, error)

	// WriteData stores one value
	WriteData(ctx context.Context, store, key string, value []byte, opts WriteOptions) error

	// DeleteData removes one value
	DeleteData(ctx context.Context, store, key string, scope string) error

	// ListKeys returns one page of keys matching prefix
	ListKeys(ctx context.Context, store, scope, prefix string, pageSize int, cursor string) (*datastore.KeyPage, error)

	// Statistics returns aggregate operation, budget and cache figures
	Statistics() executor.Stats
}

type service struct {
	log    logrus.FieldLogger
	config *Config

	store datastore.Store
	exec  *executor.Executor
	cache *cache.Cache

	done chan struct{}
	wg   sync.WaitGroup
}

// NewService creates the access façade over a store, executor and cache.
func NewService(log logrus.FieldLogger, cfg *Config, store datastore.Store, exec *executor.Executor, cch *cache.Cache) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid access configuration: %w", err)
	}

	return &service{
		log:    log.WithField("service", "access"),
		config: cfg,
		store:  store,
		exec:   exec,
		cache:  cch,
		done:   make(chan struct{}),
	}, nil
}

// Start launches the optional cache sweeper.
func (s *service) Start(_ context.Context) error {
	sweepSchedule := s.cache.SweepSchedule()
	if sweepSchedule == "" {
		return nil
	}

	interval, err := schedule.ParseInterval(sweepSchedule)
	if err != nil {
		return fmt.Errorf("invalid cache sweep schedule: %w", err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				if removed := s.cache.Sweep(); removed > 0 {
					s.log.WithField("removed", removed).Debug("Swept expired cache entries")
				}
			}
		}
	}()

	s.log.WithField("sweep_interval", interval).Info("Access service started")

	return nil
}

// Stop shuts down background maintenance.
func (s *service) Stop() error {
	close(s.done)
	s.wg.Wait()

	return nil
}

func (s *service) scopeOrDefault(scope string) string {
	if scope == "" {
		return s.config.DefaultScope
	}

	return scope
}

func (s *service) validateTarget(store, key string) error {
	if store == "" {
		return executor.NewClassifiedError(executor.ClassValidation, ErrStoreRequired)
	}

	if key == "" {
		return executor.NewClassifiedError(executor.ClassValidation, ErrKeyRequired)
	}

	return nil
}

func (s *service) ReadData(ctx context.Context, store, key string, opts ReadOptions) ([]byte, error) {
	if err := s.validateTarget(store, key); err != nil {
		return nil, err
	}

	target := datastore.Target{Store: store, Scope: s.scopeOrDefault(opts.Scope), Key: key}

	val, err := s.exec.Execute(ctx, executor.Request{
		Kind:        executor.KindRead,
		Target:      target,
		Class:       cache.ClassContent,
		BypassCache: opts.BypassCache,
	}, func(callCtx context.Context) ([]byte, error) {
		return s.store.Get(callCtx, target)
	})
	if err != nil {
		// Absent keys surface as a normal empty result.
		if executor.IsNotFound(err) {
			return nil, nil
		}

		return nil, err
	}

	return val, nil
}

func (s *service) WriteData(ctx context.Context, store, key string, value []byte, opts WriteOptions) error {
	if err := s.validateTarget(store, key); err != nil {
		return err
	}

	target := datastore.Target{Store: store, Scope: s.scopeOrDefault(opts.Scope), Key: key}

	_, err := s.exec.Execute(ctx, executor.Request{
		Kind:     executor.KindWrite,
		Target:   target,
		Class:    cache.ClassContent,
		Metadata: opts.Metadata,
	}, func(callCtx context.Context) ([]byte, error) {
		if setErr := s.store.Set(callCtx, target, value); setErr != nil {
			return nil, setErr
		}

		// Returning the written value lets the executor refresh the cache.
		return value, nil
	})

	return err
}

func (s *service) DeleteData(ctx context.Context, store, key, scope string) error {
	if err := s.validateTarget(store, key); err != nil {
		return err
	}

	target := datastore.Target{Store: store, Scope: s.scopeOrDefault(scope), Key: key}

	_, err := s.exec.Execute(ctx, executor.Request{
		Kind:   executor.KindDelete,
		Target: target,
		Class:  cache.ClassContent,
	}, func(callCtx context.Context) ([]byte, error) {
		return nil, s.store.Delete(callCtx, target)
	})

	return err
}

func (s *service) ListKeys(ctx context.Context, store, scope, prefix string, pageSize int, cursor string) (*datastore.KeyPage, error) {
	if store == "" {
		return nil, executor.NewClassifiedError(executor.ClassValidation, ErrStoreRequired)
	}

	if pageSize <= 0 {
		pageSize = s.config.DefaultPageSize
	}

	resolvedScope := s.scopeOrDefault(scope)

	// Listing pages cache under a synthetic key so each (prefix, page) pair
	// has its own entry in the key-list class.
	target := datastore.Target{
		Store: store,
		Scope: resolvedScope,
		Key:   fmt.Sprintf("list|%s|%d|%s", prefix, pageSize, cursor),
	}

	// Under an active throttle marker with no cached page, an empty page is
	// better than an error for listing callers.
	emptyPage, err := json.Marshal(&datastore.KeyPage{})
	if err != nil {
		return nil, fmt.Errorf("failed to encode fallback page: %w", err)
	}

	raw, err := s.exec.Execute(ctx, executor.Request{
		Kind:     executor.KindList,
		Target:   target,
		Class:    cache.ClassKeyList,
		Fallback: emptyPage,
	}, func(callCtx context.Context) ([]byte, error) {
		page, listErr := s.store.ListKeys(callCtx, store, resolvedScope, prefix, pageSize, cursor)
		if listErr != nil {
			return nil, listErr
		}

		return json.Marshal(page)
	})
	if err != nil {
		return nil, err
	}

	var page datastore.KeyPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("failed to decode key page: %w", err)
	}

	return &page, nil
}

func (s *service) Statistics() executor.Stats {
	return s.exec.Statistics()
}

// Verify interface compliance at compile time
var _ Service = (*service)(nil)
