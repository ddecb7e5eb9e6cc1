package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/harborkv/dsgate/pkg/budget"
	"github.com/harborkv/dsgate/pkg/cache"
	"github.com/harborkv/dsgate/pkg/datastore"
	"github.com/harborkv/dsgate/pkg/observability"
)

// Request describes one remote call to execute.
type Request struct {
	Kind   Kind
	Target datastore.Target
	// Class selects the cache namespace; empty disables caching for the call.
	Class cache.DataClass
	// BypassCache skips the cache consult for reads. Successful results are
	// still written back.
	BypassCache bool
	// MaxRetries overrides the configured retry bound when positive.
	MaxRetries int
	// Metadata is stored alongside the cached value on success.
	Metadata map[string]string
	// Fallback, when non-nil, is served and cached as synthesized fallback
	// data when an active throttle marker suppresses the call and no stale
	// entry exists.
	Fallback []byte
}

// Stats is the aggregate view exposed to observability collaborators.
type Stats struct {
	TotalOps        uint64        `json:"totalOps"`
	SuccessRate     float64       `json:"successRate"`
	AvgLatency      time.Duration `json:"avgLatency"`
	BudgetRemaining int           `json:"budgetRemaining"`
	CacheHitRate    float64       `json:"cacheHitRate"`
}

// Executor routes every remote call through budget admission, the TTL cache
// and bounded retry with linear backoff. It is safe for concurrent use; the
// budget tracker and cache are the shared-mutation choke points.
type Executor struct {
	log    logrus.FieldLogger
	config *Config

	budget *budget.Tracker
	cache  *cache.Cache
	oplog  *operationLog
}

// New creates an executor over the given budget tracker and cache.
func New(log logrus.FieldLogger, cfg *Config, tracker *budget.Tracker, cch *cache.Cache) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid executor configuration: %w", err)
	}

	return &Executor{
		log:    log.WithField("component", "executor"),
		config: cfg,
		budget: tracker,
		cache:  cch,
		oplog:  newOperationLog(cfg.OperationLogSize),
	}, nil
}

// Execute runs fn under the full admission/retry policy and returns its
// result or a typed failure.
//
// Reads consult the cache first and return immediately on a hit. An active
// throttle marker short-circuits to stale cached data, or to the request's
// synthesized fallback when nothing is cached. Budget
// denial on the first attempt fails fast with ClassBudgetExceeded; within an
// ongoing retry loop it is retried like any transient failure, since budget
// typically recovers.
func (e *Executor) Execute(ctx context.Context, req Request, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	if e.isRead(req.Kind) && req.Class != "" && !req.BypassCache {
		if val, ok := e.cache.Get(req.Target, req.Class); ok {
			return val, nil
		}

		if e.cache.IsThrottled(req.Target) {
			if stale, ok := e.cache.GetStale(req.Target, req.Class); ok {
				e.log.WithField("target", req.Target.String()).Debug("Throttle marker active, serving stale data")

				return stale, nil
			}

			if req.Fallback != nil {
				e.cache.PutFallback(req.Target, req.Class, req.Fallback)
				e.log.WithField("target", req.Target.String()).Debug("Throttle marker active, serving synthesized fallback")

				return req.Fallback, nil
			}

			return nil, NewClassifiedError(ClassThrottled, ErrCallSuppressed)
		}
	}

	maxRetries := e.config.MaxRetries
	if req.MaxRetries > 0 {
		maxRetries = req.MaxRetries
	}

	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		started := time.Now()

		if !e.budget.Admit() {
			denial := NewClassifiedError(ClassBudgetExceeded, ErrBudgetExceeded)
			e.record(req, attempt, started, OutcomeFailed, ClassBudgetExceeded)

			// No point in retrying within this tick; surface immediately and
			// let the caller come back later.
			if attempt == 1 {
				return nil, denial
			}

			// A denial after a remote throttle is a symptom, not the cause;
			// the throttled failure stays the reported error.
			if lastErr == nil || ClassOf(lastErr) != ClassThrottled {
				lastErr = denial
			}

			if err := e.backoff(ctx, ClassBudgetExceeded, attempt); err != nil {
				return nil, err
			}

			continue
		}

		val, err := e.invoke(ctx, fn)
		if err == nil {
			e.record(req, attempt, started, OutcomeSuccess, "")
			e.updateCache(req, val)

			return val, nil
		}

		class := ClassOf(err)
		lastErr = NewClassifiedError(class, err)

		e.record(req, attempt, started, OutcomeFailed, class)

		if class == ClassThrottled {
			// Converge the tracker to ground truth and suppress repeat calls
			// for this identity.
			e.budget.ForceExhaust()
			e.cache.MarkThrottled(req.Target)
		}

		if !class.Transient() {
			return nil, lastErr
		}

		if attempt == maxRetries {
			break
		}

		e.log.WithError(err).WithFields(logrus.Fields{
			"target":  req.Target.String(),
			"attempt": attempt,
			"class":   class,
		}).Debug("Transient failure, retrying")

		observability.OperationRetriesTotal.WithLabelValues(string(class)).Inc()

		if err := e.backoff(ctx, class, attempt); err != nil {
			return nil, err
		}
	}

	return nil, lastErr
}

// invoke runs the remote call under an isolating error boundary so a
// remote-layer panic never propagates as an unhandled fault.
func (e *Executor) invoke(ctx context.Context, fn func(context.Context) ([]byte, error)) (val []byte, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			e.log.WithField("panic", recovered).Error("Remote call panicked")
			err = fmt.Errorf("%w: %v", ErrRemotePanic, recovered)
		}
	}()

	return fn(ctx)
}

// backoff waits retryDelayBase × attempt without stalling the scheduler.
// Conflicts are retried immediately since the remote data has likely already
// been refreshed.
func (e *Executor) backoff(ctx context.Context, class Class, attempt int) error {
	if class == ClassConflict {
		return nil
	}

	timer := time.NewTimer(e.config.RetryDelayBase * time.Duration(attempt))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (e *Executor) isRead(kind Kind) bool {
	return kind == KindRead || kind == KindList
}

// updateCache applies the post-success cache policy: reads and writes refresh
// the entry, deletes invalidate it. Content-class writes on mutation paths
// are best-effort and must never fail the calling operation.
func (e *Executor) updateCache(req Request, val []byte) {
	if req.Class == "" {
		if req.Kind == KindDelete {
			e.cache.Invalidate(req.Target)
		}

		return
	}

	defer func() {
		if recovered := recover(); recovered != nil {
			e.log.WithFields(logrus.Fields{
				"target": req.Target.String(),
				"panic":  recovered,
			}).Warn("Cache update failed, continuing")
		}
	}()

	switch req.Kind {
	case KindRead, KindList, KindWrite:
		e.cache.Put(req.Target, req.Class, val, req.Metadata)
	case KindDelete:
		e.cache.Invalidate(req.Target)
	}
}

func (e *Executor) record(req Request, attempt int, started time.Time, outcome Outcome, class Class) {
	latency := time.Since(started)

	e.oplog.append(Operation{
		Kind:      req.Kind,
		Target:    req.Target,
		Attempt:   attempt,
		StartedAt: started,
		Latency:   latency,
		Outcome:   outcome,
		Class:     class,
	})

	observability.OperationsTotal.WithLabelValues(string(req.Kind), string(outcome)).Inc()
	observability.OperationDuration.WithLabelValues(string(req.Kind)).Observe(latency.Seconds())
}

// Operations returns a snapshot of the bounded operation log, oldest first.
func (e *Executor) Operations() []Operation {
	return e.oplog.snapshot()
}

// Statistics returns aggregate operation, budget and cache figures.
func (e *Executor) Statistics() Stats {
	total, successRate, avgLatency := e.oplog.aggregates()

	return Stats{
		TotalOps:        total,
		SuccessRate:     successRate,
		AvgLatency:      avgLatency,
		BudgetRemaining: e.budget.Remaining(),
		CacheHitRate:    e.cache.HitRate(),
	}
}

// MaxRetries exposes the configured retry bound to collaborators that layer
// their own failure accounting on top.
func (e *Executor) MaxRetries() int {
	return e.config.MaxRetries
}
