package bulk

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/harborkv/dsgate/pkg/cache"
	"github.com/harborkv/dsgate/pkg/datastore"
	"github.com/harborkv/dsgate/pkg/executor"
	"github.com/harborkv/dsgate/pkg/observability"
	"github.com/harborkv/dsgate/pkg/schedule"
)

// Service defines the public interface of the bulk operation engine
type Service interface {
	// Start launches background maintenance and, when configured, the
	// queue worker
	Start(ctx context.Context) error

	// Stop shuts the engine down; interrupted jobs finish as cancelled
	Stop() error

	// Submit validates a workload synchronously and schedules it for
	// asynchronous execution, returning the job ID
	Submit(ctx context.Context, kind Kind, items []Item, opts Options) (string, error)

	// Status returns a snapshot of an active or historical job
	Status(jobID string) (*JobStatus, error)

	// Cancel stops a pending or running job before its next batch
	Cancel(jobID string) error

	// Rollback submits a new job that undoes a completed reversible job
	Rollback(ctx context.Context, jobID string) (string, error)

	// RegisterProgressCallback subscribes to per-batch progress for a job
	RegisterProgressCallback(jobID string, cb ProgressCallback) error
}

type engine struct {
	log    logrus.FieldLogger
	config *Config

	exec  *executor.Executor
	store datastore.Store

	mu        sync.Mutex
	active    map[string]*job
	history   map[string]*job
	callbacks map[string][]ProgressCallback

	dispatch dispatcher
	worker   *queueWorker

	runCtx    context.Context
	runCancel context.CancelFunc
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewService creates the bulk operation engine over an executor and store.
func NewService(log logrus.FieldLogger, cfg *Config, exec *executor.Executor, store datastore.Store) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bulk configuration: %w", err)
	}

	runCtx, runCancel := context.WithCancel(context.Background())

	e := &engine{
		log:       log.WithField("service", "bulk"),
		config:    cfg,
		exec:      exec,
		store:     store,
		active:    make(map[string]*job),
		history:   make(map[string]*job),
		callbacks: make(map[string][]ProgressCallback),
		runCtx:    runCtx,
		runCancel: runCancel,
		done:      make(chan struct{}),
	}

	if cfg.Queue.Enabled {
		e.dispatch = newQueueDispatcher(&cfg.Queue)
		e.worker = newQueueWorker(log, &cfg.Queue, e)
	} else {
		e.dispatch = &localDispatcher{engine: e}
	}

	return e, nil
}

// Start launches the history garbage collector and the queue worker when
// queue dispatch is enabled.
func (e *engine) Start(_ context.Context) error {
	gcInterval, err := schedule.ParseInterval(e.config.HistoryGCSchedule)
	if err != nil {
		return fmt.Errorf("invalid history GC schedule: %w", err)
	}

	e.wg.Add(1)

	go func() {
		defer e.wg.Done()

		ticker := time.NewTicker(gcInterval)
		defer ticker.Stop()

		for {
			select {
			case <-e.done:
				return
			case <-ticker.C:
				e.collectHistory()
			}
		}
	}()

	if e.worker != nil {
		if err := e.worker.Start(); err != nil {
			return fmt.Errorf("failed to start queue worker: %w", err)
		}
	}

	e.log.WithFields(logrus.Fields{
		"queue_enabled": e.config.Queue.Enabled,
		"gc_interval":   gcInterval,
	}).Info("Bulk engine started")

	return nil
}

// Stop shuts the engine down, cancelling interrupted jobs and waiting for
// goroutines to finish. Safe to call more than once.
func (e *engine) Stop() error {
	e.stopOnce.Do(func() { close(e.done) })

	// Mark jobs cancelled before pulling their contexts so shutdown reads
	// as cancellation, not failure.
	e.mu.Lock()
	for id, j := range e.active {
		switch j.status {
		case StatusPending:
			j.status = StatusCancelled
			j.endedAt = time.Now()
			delete(e.active, id)
			delete(e.callbacks, id)
			e.history[id] = j
		case StatusRunning:
			j.status = StatusCancelled
		}
	}
	e.mu.Unlock()

	e.runCancel()

	if e.worker != nil {
		e.worker.Stop()
	}

	if err := e.dispatch.Close(); err != nil {
		e.log.WithError(err).Warn("Failed to close dispatcher")
	}

	e.wg.Wait()

	e.log.Info("Bulk engine stopped")

	return nil
}

// Submit validates the workload and schedules it. Execution is asynchronous;
// callers poll Status or register a progress callback.
func (e *engine) Submit(ctx context.Context, kind Kind, items []Item, opts Options) (string, error) {
	switch kind {
	case KindCreate, KindUpdate, KindDelete, KindCopy, KindMigrate:
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}

	if err := e.validateItems(kind, items); err != nil {
		return "", err
	}

	return e.submit(ctx, kind, items, opts, false, "")
}

func (e *engine) validateItems(kind Kind, items []Item) error {
	if len(items) == 0 {
		return ErrNoItems
	}

	if len(items) > e.config.MaxItemsPerJob {
		return fmt.Errorf("%w: %d > %d", ErrTooManyItems, len(items), e.config.MaxItemsPerJob)
	}

	for i := range items {
		item := &items[i]

		if item.Store == "" || item.Key == "" {
			return fmt.Errorf("%w: item %d", ErrItemKeyRequired, i)
		}

		switch kind {
		case KindCreate, KindUpdate:
			if len(item.Value) == 0 {
				return fmt.Errorf("%w: item %d", ErrValueRequired, i)
			}
		case KindCopy, KindMigrate:
			if item.DestStore == "" || item.DestKey == "" {
				return fmt.Errorf("%w: item %d", ErrDestinationRequired, i)
			}
		}
	}

	return nil
}

func (e *engine) submit(ctx context.Context, kind Kind, items []Item, opts Options, isRollback bool, rollbackOf string) (string, error) {
	batchSize := opts.BatchSize
	if batchSize == 0 {
		batchSize = e.config.DefaultBatchSize
	}

	if batchSize < e.config.MinBatchSize || batchSize > e.config.MaxBatchSize {
		return "", fmt.Errorf("%w: %d not in [%d, %d]", ErrBatchSizeOutOfRange, batchSize, e.config.MinBatchSize, e.config.MaxBatchSize)
	}

	j := &job{
		id:          uuid.NewString(),
		kind:        kind,
		status:      StatusPending,
		items:       items,
		options:     opts,
		batchSize:   batchSize,
		canRollback: kind.Reversible() && !isRollback,
		isRollback:  isRollback,
		rollbackOf:  rollbackOf,
		createdAt:   time.Now(),
	}
	j.batches = planBatches(items, batchSize, 0)

	e.mu.Lock()
	e.active[j.id] = j
	e.mu.Unlock()

	if err := e.dispatch.Dispatch(ctx, j.id); err != nil {
		e.mu.Lock()
		delete(e.active, j.id)
		e.mu.Unlock()

		return "", fmt.Errorf("failed to dispatch job: %w", err)
	}

	e.log.WithFields(logrus.Fields{
		"job_id":     j.id,
		"kind":       kind,
		"items":      len(items),
		"batches":    len(j.batches),
		"batch_size": batchSize,
	}).Info("Bulk job submitted")

	return j.id, nil
}

// runJob executes a job's batches strictly in index order. Called from the
// local dispatcher goroutine or the queue worker.
func (e *engine) runJob(ctx context.Context, jobID string) {
	e.mu.Lock()

	j, ok := e.active[jobID]
	if !ok || j.status != StatusPending {
		e.mu.Unlock()
		return
	}

	j.status = StatusRunning
	j.startedAt = time.Now()
	e.mu.Unlock()

	observability.BulkJobsActive.Inc()
	defer observability.BulkJobsActive.Dec()

	for i := 0; ; i++ {
		e.mu.Lock()

		if j.status != StatusRunning || ctx.Err() != nil || i >= len(j.batches) {
			e.mu.Unlock()
			break
		}

		b := j.batches[i]
		b.status = StatusRunning
		b.startedAt = time.Now()
		kind := j.kind
		opts := j.options
		e.mu.Unlock()

		e.runBatch(ctx, j, b, kind, opts)

		e.mu.Lock()
		b.status = StatusCompleted
		b.endedAt = time.Now()
		e.resizeLocked(j, b, i)
		progress := progressLocked(j)
		cbs := slices.Clone(e.callbacks[j.id])
		last := i == len(j.batches)-1
		e.mu.Unlock()

		e.notify(j.id, cbs, progress)

		if !last {
			e.interBatchDelay(ctx, opts)
		}
	}

	e.finalize(j)
}

// runBatch processes a batch's items with bounded fan-out through the
// executor. Item failures are recorded, never aborting the batch. Results
// accumulate in locals and merge into the job under e.mu once the fan-out
// drains, so batch counters are only ever read and written under e.mu.
func (e *engine) runBatch(ctx context.Context, j *job, b *batch, kind Kind, opts Options) {
	var (
		bmu       sync.Mutex
		g         errgroup.Group
		successes int
		failures  []ItemError
		restores  []RollbackItem
	)

	g.SetLimit(e.config.MaxConcurrentItems)

	for idx := range b.items {
		item := b.items[idx]

		g.Go(func() error {
			rollbackItem, err := e.executeItem(ctx, kind, item, opts)

			bmu.Lock()
			defer bmu.Unlock()

			if err != nil {
				// Shutdown or cancellation interrupts the item; it is
				// neither a success nor a genuine failure.
				if executor.ClassOf(err) == executor.ClassCancelled {
					return nil
				}

				failures = append(failures, ItemError{
					Key:        item.Key,
					BatchIndex: b.index,
					Class:      executor.ClassOf(err),
					Message:    err.Error(),
				})

				observability.BulkItemsTotal.WithLabelValues(string(kind), "failed").Inc()

				e.log.WithError(err).WithFields(logrus.Fields{
					"job_id": j.id,
					"key":    item.Key,
					"batch":  b.index,
				}).Debug("Bulk item failed")

				return nil
			}

			successes++
			observability.BulkItemsTotal.WithLabelValues(string(kind), "success").Inc()

			if rollbackItem != nil {
				restores = append(restores, *rollbackItem)
			}

			return nil
		})
	}

	_ = g.Wait()

	e.mu.Lock()
	b.successful += successes
	b.failed += len(failures)
	b.errors = append(b.errors, failures...)
	j.rollbackData = append(j.rollbackData, restores...)
	e.mu.Unlock()
}

// executeItem performs one item's remote operations. Reversible kinds capture
// the previous value first so the mutation can be undone.
func (e *engine) executeItem(ctx context.Context, kind Kind, item Item, opts Options) (*RollbackItem, error) {
	src := datastore.Target{Store: item.Store, Scope: scopeOrGlobal(item.Scope), Key: item.Key}

	switch kind {
	case KindCreate, KindUpdate:
		rollbackItem, err := e.capturePrevious(ctx, src, opts)
		if err != nil {
			return nil, err
		}

		if err := e.writeValue(ctx, src, item.Value, opts); err != nil {
			return nil, err
		}

		return rollbackItem, nil

	case KindDelete:
		return nil, e.deleteValue(ctx, src, opts)

	case KindCopy:
		val, err := e.readValue(ctx, src, opts)
		if err != nil {
			return nil, err
		}

		return nil, e.writeValue(ctx, destTarget(item), val, opts)

	case KindMigrate:
		val, err := e.readValue(ctx, src, opts)
		if err != nil {
			return nil, err
		}

		if err := e.writeValue(ctx, destTarget(item), val, opts); err != nil {
			return nil, err
		}

		return nil, e.deleteValue(ctx, src, opts)

	case kindRestore:
		if len(item.Value) == 0 {
			return nil, e.deleteValue(ctx, src, opts)
		}

		return nil, e.writeValue(ctx, src, item.Value, opts)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
}

func (e *engine) capturePrevious(ctx context.Context, target datastore.Target, opts Options) (*RollbackItem, error) {
	val, err := e.readValue(ctx, target, opts)
	if err != nil {
		return nil, err
	}

	rollbackItem := &RollbackItem{
		Store: target.Store,
		Scope: target.Scope,
		Key:   target.Key,
	}

	if val != nil {
		rollbackItem.PreviousValue = val
		rollbackItem.Existed = true
	}

	return rollbackItem, nil
}

func (e *engine) readValue(ctx context.Context, target datastore.Target, opts Options) ([]byte, error) {
	val, err := e.exec.Execute(ctx, executor.Request{
		Kind:       executor.KindRead,
		Target:     target,
		Class:      cache.ClassContent,
		MaxRetries: opts.MaxRetries,
	}, func(callCtx context.Context) ([]byte, error) {
		return e.store.Get(callCtx, target)
	})
	if err != nil {
		if executor.IsNotFound(err) {
			return nil, nil
		}

		return nil, err
	}

	return val, nil
}

func (e *engine) writeValue(ctx context.Context, target datastore.Target, value []byte, opts Options) error {
	_, err := e.exec.Execute(ctx, executor.Request{
		Kind:       executor.KindWrite,
		Target:     target,
		Class:      cache.ClassContent,
		MaxRetries: opts.MaxRetries,
	}, func(callCtx context.Context) ([]byte, error) {
		if setErr := e.store.Set(callCtx, target, value); setErr != nil {
			return nil, setErr
		}

		return value, nil
	})

	return err
}

func (e *engine) deleteValue(ctx context.Context, target datastore.Target, opts Options) error {
	_, err := e.exec.Execute(ctx, executor.Request{
		Kind:       executor.KindDelete,
		Target:     target,
		Class:      cache.ClassContent,
		MaxRetries: opts.MaxRetries,
	}, func(callCtx context.Context) ([]byte, error) {
		return nil, e.store.Delete(callCtx, target)
	})

	return err
}

// resizeLocked re-partitions not-yet-started items when the observed
// throughput suggests a materially different batch size. Completed batches
// are never touched. Caller holds e.mu.
func (e *engine) resizeLocked(j *job, b *batch, batchIdx int) {
	duration := b.endedAt.Sub(b.startedAt)

	optimal := optimalBatchSize(len(b.items), duration, e.config.TargetBatchDuration, e.config.MinBatchSize, e.config.MaxBatchSize)

	delta := optimal - j.batchSize
	if delta < 0 {
		delta = -delta
	}

	if delta <= e.config.ResizeThreshold {
		return
	}

	remaining := make([]Item, 0)
	for _, pending := range j.batches[batchIdx+1:] {
		remaining = append(remaining, pending.items...)
	}

	if len(remaining) == 0 {
		j.batchSize = optimal
		observability.BulkBatchSize.WithLabelValues(string(j.kind)).Set(float64(optimal))

		return
	}

	replanned := planBatches(remaining, optimal, batchIdx+1)
	j.batches = append(j.batches[:batchIdx+1], replanned...)
	j.batchSize = optimal

	observability.BulkBatchSize.WithLabelValues(string(j.kind)).Set(float64(optimal))

	e.log.WithFields(logrus.Fields{
		"job_id":         j.id,
		"new_batch_size": optimal,
		"batch_duration": duration,
	}).Debug("Re-partitioned remaining items")
}

// progressLocked recomputes cumulative progress from all batches. Caller
// holds e.mu.
func progressLocked(j *job) Progress {
	p := Progress{Total: len(j.items)}

	for _, b := range j.batches {
		p.Successful += b.successful
		p.Failed += b.failed
	}

	p.Processed = p.Successful + p.Failed

	if p.Total > 0 {
		p.Percentage = float64(p.Processed) / float64(p.Total) * 100
	}

	return p
}

// notify invokes progress callbacks, isolating panics so a broken callback
// never aborts the job.
func (e *engine) notify(jobID string, cbs []ProgressCallback, progress Progress) {
	for _, cb := range cbs {
		func() {
			defer func() {
				if recovered := recover(); recovered != nil {
					e.log.WithFields(logrus.Fields{
						"job_id": jobID,
						"panic":  recovered,
					}).Warn("Progress callback panicked")
				}
			}()

			cb(progress)
		}()
	}
}

func (e *engine) interBatchDelay(ctx context.Context, opts Options) {
	delay := opts.DelayBetweenBatches
	if delay == 0 {
		delay = e.config.DelayBetweenBatches
	}

	if delay <= 0 {
		return
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-e.done:
	case <-timer.C:
	}
}

// finalize assigns the terminal status, moves the job to history and, for
// rollback jobs, marks the original as rolled back.
func (e *engine) finalize(j *job) {
	e.mu.Lock()

	if j.status == StatusRunning {
		progress := progressLocked(j)
		if progress.Failed > 0 {
			j.status = StatusFailed
		} else {
			j.status = StatusCompleted
		}
	}

	j.endedAt = time.Now()

	delete(e.active, j.id)
	delete(e.callbacks, j.id)
	e.history[j.id] = j

	if j.isRollback && j.rollbackOf != "" {
		if original, ok := e.history[j.rollbackOf]; ok && original.status == StatusRollingBack {
			original.status = StatusRolledBack
		}
	}

	status := j.status
	kind := j.kind
	e.mu.Unlock()

	observability.BulkJobsTotal.WithLabelValues(string(kind), string(status)).Inc()

	e.log.WithFields(logrus.Fields{
		"job_id": j.id,
		"status": status,
	}).Info("Bulk job finished")
}

// Status returns a snapshot of an active or historical job.
func (e *engine) Status(jobID string) (*JobStatus, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	j, ok := e.active[jobID]
	if !ok {
		j, ok = e.history[jobID]
	}

	if !ok {
		return nil, ErrJobNotFound
	}

	return snapshotLocked(j), nil
}

// snapshotLocked copies caller-facing job state. Caller holds e.mu.
func snapshotLocked(j *job) *JobStatus {
	status := &JobStatus{
		ID:           j.id,
		Kind:         j.kind,
		Status:       j.status,
		Progress:     progressLocked(j),
		CanRollback:  j.canRollback,
		IsRollback:   j.isRollback,
		RollbackOf:   j.rollbackOf,
		BatchSize:    j.batchSize,
		TotalBatches: len(j.batches),
		CreatedAt:    j.createdAt,
		StartedAt:    j.startedAt,
		EndedAt:      j.endedAt,
	}

	for _, b := range j.batches {
		status.Errors = append(status.Errors, b.errors...)
	}

	return status
}

// Cancel is honored only while the job is pending or running. The execution
// loop observes the status change before starting its next batch; in-flight
// items of the current batch still complete.
func (e *engine) Cancel(jobID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	j, ok := e.active[jobID]
	if !ok {
		if _, inHistory := e.history[jobID]; inHistory {
			return ErrNotCancellable
		}

		return ErrJobNotFound
	}

	if j.status != StatusPending && j.status != StatusRunning {
		return ErrNotCancellable
	}

	wasPending := j.status == StatusPending
	j.status = StatusCancelled

	// A pending job has no runner to finalize it.
	if wasPending {
		j.endedAt = time.Now()
		delete(e.active, jobID)
		delete(e.callbacks, jobID)
		e.history[jobID] = j
	}

	e.log.WithField("job_id", jobID).Info("Bulk job cancelled")

	return nil
}

// Rollback submits a restore job built from the captured rollback data.
// Only reversible, terminal, non-rollback jobs qualify.
func (e *engine) Rollback(ctx context.Context, jobID string) (string, error) {
	e.mu.Lock()

	j, ok := e.history[jobID]
	if !ok {
		if _, isActive := e.active[jobID]; isActive {
			e.mu.Unlock()
			return "", ErrRollbackInvalidState
		}

		e.mu.Unlock()

		return "", ErrJobNotFound
	}

	if !j.canRollback || j.isRollback {
		e.mu.Unlock()
		return "", ErrNotRollbackable
	}

	if j.status != StatusCompleted && j.status != StatusFailed {
		e.mu.Unlock()
		return "", ErrRollbackInvalidState
	}

	if len(j.rollbackData) == 0 {
		e.mu.Unlock()
		return "", ErrNoRollbackData
	}

	items := make([]Item, 0, len(j.rollbackData))
	for _, rollbackItem := range j.rollbackData {
		items = append(items, Item{
			Store: rollbackItem.Store,
			Scope: rollbackItem.Scope,
			Key:   rollbackItem.Key,
			Value: rollbackItem.PreviousValue,
		})
	}

	j.status = StatusRollingBack
	opts := Options{BatchSize: j.batchSize, DelayBetweenBatches: j.options.DelayBetweenBatches, MaxRetries: j.options.MaxRetries}
	e.mu.Unlock()

	rollbackID, err := e.submit(ctx, kindRestore, items, opts, true, jobID)
	if err != nil {
		e.mu.Lock()
		j.status = StatusCompleted
		e.mu.Unlock()

		return "", err
	}

	return rollbackID, nil
}

// RegisterProgressCallback subscribes to per-batch progress. Valid only
// while the job is active.
func (e *engine) RegisterProgressCallback(jobID string, cb ProgressCallback) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.active[jobID]; !ok {
		return ErrJobNotFound
	}

	e.callbacks[jobID] = append(e.callbacks[jobID], cb)

	return nil
}

// collectHistory drops terminal history entries older than the retention age.
func (e *engine) collectHistory() {
	cutoff := time.Now().Add(-e.config.HistoryMaxAge)

	e.mu.Lock()
	defer e.mu.Unlock()

	for id, j := range e.history {
		if j.status.Terminal() && !j.endedAt.IsZero() && j.endedAt.Before(cutoff) {
			delete(e.history, id)
		}
	}
}

func scopeOrGlobal(scope string) string {
	if scope == "" {
		return "global"
	}

	return scope
}

func destTarget(item Item) datastore.Target {
	scope := item.DestScope
	if scope == "" {
		scope = scopeOrGlobal(item.Scope)
	}

	return datastore.Target{Store: item.DestStore, Scope: scope, Key: item.DestKey}
}

// Verify interface compliance at compile time
var _ Service = (*engine)(nil)
