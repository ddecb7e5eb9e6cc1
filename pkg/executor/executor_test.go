package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborkv/dsgate/pkg/budget"
	"github.com/harborkv/dsgate/pkg/cache"
	"github.com/harborkv/dsgate/pkg/datastore"
)

func newTestExecutor(t *testing.T, budgetCapacity int) (*Executor, *budget.Tracker, *cache.Cache) {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	tracker, err := budget.NewTracker(log, &budget.Config{Capacity: budgetCapacity, Cooldown: time.Minute})
	require.NoError(t, err)

	cch, err := cache.New(log, &cache.Config{
		MaxEntries:        128,
		StoreNamesTTL:     time.Minute,
		KeyListTTL:        time.Minute,
		ContentTTL:        time.Minute,
		ThrottleMarkerTTL: time.Minute,
	})
	require.NoError(t, err)

	exec, err := New(log, &Config{
		MaxRetries:       3,
		RetryDelayBase:   time.Millisecond,
		OperationLogSize: 32,
	}, tracker, cch)
	require.NoError(t, err)

	return exec, tracker, cch
}

func readReq(key string) Request {
	return Request{
		Kind:   KindRead,
		Target: datastore.Target{Store: "players", Scope: "global", Key: key},
		Class:  cache.ClassContent,
	}
}

func TestExecute_TransientFailuresThenSuccess(t *testing.T) {
	exec, _, _ := newTestExecutor(t, 10)

	calls := 0
	fn := func(_ context.Context) ([]byte, error) {
		calls++
		if calls < 3 {
			return nil, datastore.NewStoreError(datastore.CodeUnavailable, "get", datastore.Target{}, errors.New("connection reset"))
		}

		return []byte("ok"), nil
	}

	val, err := exec.Execute(context.Background(), readReq("a"), fn)
	require.NoError(t, err)
	assert.Equal(t, []byte("ok"), val)
	assert.Equal(t, 3, calls)

	ops := exec.Operations()
	require.Len(t, ops, 3)
	assert.Equal(t, OutcomeFailed, ops[0].Outcome)
	assert.Equal(t, OutcomeFailed, ops[1].Outcome)
	assert.Equal(t, OutcomeSuccess, ops[2].Outcome)
	assert.Equal(t, 3, ops[2].Attempt)
}

func TestExecute_PermanentFailureNotRetried(t *testing.T) {
	exec, _, _ := newTestExecutor(t, 10)

	calls := 0
	fn := func(_ context.Context) ([]byte, error) {
		calls++
		return nil, datastore.NewStoreError(datastore.CodeValidation, "set", datastore.Target{}, errors.New("value too large"))
	}

	_, err := exec.Execute(context.Background(), Request{Kind: KindWrite, Target: datastore.Target{Store: "s", Scope: "g", Key: "k"}}, fn)
	require.Error(t, err)
	assert.Equal(t, ClassValidation, ClassOf(err))
	assert.Equal(t, 1, calls)
	assert.Len(t, exec.Operations(), 1)
}

func TestExecute_RetriesExhausted(t *testing.T) {
	exec, _, _ := newTestExecutor(t, 10)

	calls := 0
	fn := func(_ context.Context) ([]byte, error) {
		calls++
		return nil, datastore.NewStoreError(datastore.CodeUnavailable, "get", datastore.Target{}, errors.New("timeout"))
	}

	_, err := exec.Execute(context.Background(), readReq("a"), fn)
	require.Error(t, err)
	assert.Equal(t, ClassTransientNetwork, ClassOf(err))
	assert.Equal(t, 3, calls, "one initial attempt plus retries up to the bound")
}

func TestExecute_CacheHitSkipsBudgetAndRemote(t *testing.T) {
	exec, tracker, cch := newTestExecutor(t, 10)

	cch.Put(datastore.Target{Store: "players", Scope: "global", Key: "a"}, cache.ClassContent, []byte("cached"), nil)
	before := tracker.Remaining()

	called := false
	val, err := exec.Execute(context.Background(), readReq("a"), func(_ context.Context) ([]byte, error) {
		called = true
		return nil, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []byte("cached"), val)
	assert.False(t, called)
	assert.Equal(t, before, tracker.Remaining(), "cache hits consume no budget")
}

func TestExecute_BudgetDeniedFailsFast(t *testing.T) {
	exec, tracker, _ := newTestExecutor(t, 1)

	tracker.ForceExhaust()

	called := false
	_, err := exec.Execute(context.Background(), readReq("a"), func(_ context.Context) ([]byte, error) {
		called = true
		return nil, nil
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBudgetExceeded)
	assert.Equal(t, ClassBudgetExceeded, ClassOf(err))
	assert.False(t, called, "remote never invoked without admission")
}

func TestExecute_ThrottleExhaustsBudgetAndMarks(t *testing.T) {
	exec, tracker, cch := newTestExecutor(t, 10)

	target := datastore.Target{Store: "players", Scope: "global", Key: "hot"}

	calls := 0
	fn := func(_ context.Context) ([]byte, error) {
		calls++
		return nil, datastore.NewStoreError(datastore.CodeThrottled, "get", target, errors.New("too many requests"))
	}

	_, err := exec.Execute(context.Background(), Request{Kind: KindRead, Target: target, Class: cache.ClassContent, BypassCache: true}, fn)
	require.Error(t, err)
	assert.Equal(t, ClassThrottled, ClassOf(err), "budget denials after the throttle do not mask it")
	assert.Equal(t, 0, tracker.Remaining(), "throttle forces budget exhaustion")
	assert.True(t, cch.IsThrottled(target))
	assert.Equal(t, 1, calls, "the exhausted budget blocks further remote attempts")
}

func TestExecute_ThrottleMarkerServesStaleData(t *testing.T) {
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	tracker, err := budget.NewTracker(log, &budget.Config{Capacity: 10, Cooldown: time.Minute})
	require.NoError(t, err)

	// Content expires immediately so the entry is only reachable as stale data.
	cch, err := cache.New(log, &cache.Config{
		MaxEntries:        128,
		StoreNamesTTL:     time.Minute,
		KeyListTTL:        time.Minute,
		ContentTTL:        time.Nanosecond,
		ThrottleMarkerTTL: time.Minute,
	})
	require.NoError(t, err)

	exec, err := New(log, &Config{MaxRetries: 3, RetryDelayBase: time.Millisecond, OperationLogSize: 32}, tracker, cch)
	require.NoError(t, err)

	target := datastore.Target{Store: "players", Scope: "global", Key: "hot"}
	cch.Put(target, cache.ClassContent, []byte("stale"), nil)
	cch.MarkThrottled(target)

	time.Sleep(time.Microsecond)

	val, err := exec.Execute(context.Background(), readReq("hot"), func(_ context.Context) ([]byte, error) {
		t.Error("remote must not be called under an active marker")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("stale"), val)
}

func TestExecute_ThrottleMarkerSuppressesWithoutFallback(t *testing.T) {
	exec, tracker, cch := newTestExecutor(t, 10)

	target := datastore.Target{Store: "players", Scope: "global", Key: "hot"}
	cch.MarkThrottled(target)

	_, err := exec.Execute(context.Background(), readReq("hot"), func(_ context.Context) ([]byte, error) {
		t.Error("remote must not be called under an active marker")
		return nil, nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCallSuppressed)
	assert.Equal(t, 10, tracker.Remaining(), "suppressed calls consume no budget")
}

func TestExecute_ThrottleMarkerServesSynthesizedFallback(t *testing.T) {
	exec, tracker, cch := newTestExecutor(t, 10)

	target := datastore.Target{Store: "players", Scope: "global", Key: "hot"}
	cch.MarkThrottled(target)

	req := readReq("hot")
	req.Fallback = []byte("{}")

	val, err := exec.Execute(context.Background(), req, func(_ context.Context) ([]byte, error) {
		t.Error("remote must not be called under an active marker")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("{}"), val)
	assert.True(t, cch.IsFallback(target, cache.ClassContent), "synthesized data is cached and flagged")
	assert.Equal(t, 10, tracker.Remaining(), "fallback serving consumes no budget")
}

func TestExecute_WriteUpdatesCache(t *testing.T) {
	exec, _, cch := newTestExecutor(t, 10)

	target := datastore.Target{Store: "players", Scope: "global", Key: "a"}

	_, err := exec.Execute(context.Background(), Request{Kind: KindWrite, Target: target, Class: cache.ClassContent}, func(_ context.Context) ([]byte, error) {
		return []byte("written"), nil
	})
	require.NoError(t, err)

	val, ok := cch.Get(target, cache.ClassContent)
	require.True(t, ok)
	assert.Equal(t, []byte("written"), val)
}

func TestExecute_WriteStoresMetadata(t *testing.T) {
	exec, _, cch := newTestExecutor(t, 10)

	target := datastore.Target{Store: "players", Scope: "global", Key: "a"}

	_, err := exec.Execute(context.Background(), Request{
		Kind:     KindWrite,
		Target:   target,
		Class:    cache.ClassContent,
		Metadata: map[string]string{"origin": "import"},
	}, func(_ context.Context) ([]byte, error) {
		return []byte("written"), nil
	})
	require.NoError(t, err)

	meta, ok := cch.Metadata(target, cache.ClassContent)
	require.True(t, ok)
	assert.Equal(t, "import", meta["origin"])
}

func TestExecute_CancelledContextNotRetried(t *testing.T) {
	exec, _, _ := newTestExecutor(t, 10)

	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := exec.Execute(ctx, readReq("a"), func(callCtx context.Context) ([]byte, error) {
		calls++
		cancel()
		return nil, callCtx.Err()
	})

	require.Error(t, err)
	assert.Equal(t, ClassCancelled, ClassOf(err))
	assert.Equal(t, 1, calls, "cancellation is permanent, never retried")
}

func TestExecute_DeleteInvalidatesCache(t *testing.T) {
	exec, _, cch := newTestExecutor(t, 10)

	target := datastore.Target{Store: "players", Scope: "global", Key: "a"}
	cch.Put(target, cache.ClassContent, []byte("old"), nil)

	_, err := exec.Execute(context.Background(), Request{Kind: KindDelete, Target: target, Class: cache.ClassContent}, func(_ context.Context) ([]byte, error) {
		return nil, nil
	})
	require.NoError(t, err)

	_, ok := cch.Get(target, cache.ClassContent)
	assert.False(t, ok)
}

func TestExecute_RemotePanicIsIsolated(t *testing.T) {
	exec, _, _ := newTestExecutor(t, 10)

	_, err := exec.Execute(context.Background(), Request{Kind: KindRead, Target: datastore.Target{Store: "s", Scope: "g", Key: "k"}}, func(_ context.Context) ([]byte, error) {
		panic("remote layer fault")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemotePanic)
}

func TestExecute_ConflictRetriedImmediately(t *testing.T) {
	exec, _, _ := newTestExecutor(t, 10)

	calls := 0
	started := time.Now()

	fn := func(_ context.Context) ([]byte, error) {
		calls++
		if calls == 1 {
			return nil, datastore.NewStoreError(datastore.CodeConflict, "set", datastore.Target{}, errors.New("concurrent modification"))
		}

		return []byte("ok"), nil
	}

	_, err := exec.Execute(context.Background(), Request{Kind: KindWrite, Target: datastore.Target{Store: "s", Scope: "g", Key: "k"}}, fn)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Less(t, time.Since(started), 100*time.Millisecond, "no backoff for conflicts")
}

func TestStatistics(t *testing.T) {
	exec, _, _ := newTestExecutor(t, 10)

	_, err := exec.Execute(context.Background(), readReq("a"), func(_ context.Context) ([]byte, error) {
		return []byte("ok"), nil
	})
	require.NoError(t, err)

	stats := exec.Statistics()
	assert.Equal(t, uint64(1), stats.TotalOps)
	assert.InDelta(t, 1.0, stats.SuccessRate, 0.001)
	assert.Equal(t, 9, stats.BudgetRemaining)
}

func TestClassify_Fallback(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"structured throttle", datastore.NewStoreError(datastore.CodeThrottled, "get", datastore.Target{}, nil), ClassThrottled},
		{"structured not found", datastore.NewStoreError(datastore.CodeNotFound, "get", datastore.Target{}, nil), ClassNotFound},
		{"unstructured quota text", errors.New("DataStore request quota exhausted"), ClassThrottled},
		{"unstructured timeout text", errors.New("dial tcp: i/o timeout"), ClassTransientNetwork},
		{"unstructured validation text", errors.New("value too large for entry"), ClassValidation},
		{"opaque", errors.New("something odd"), ClassInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestOperationLog_RingEviction(t *testing.T) {
	log := newOperationLog(4)

	for i := 1; i <= 6; i++ {
		log.append(Operation{Attempt: i, Outcome: OutcomeSuccess})
	}

	ops := log.snapshot()
	require.Len(t, ops, 4)
	assert.Equal(t, 3, ops[0].Attempt, "oldest evicted first")
	assert.Equal(t, 6, ops[3].Attempt)

	total, successRate, _ := log.aggregates()
	assert.Equal(t, uint64(6), total, "aggregates survive eviction")
	assert.InDelta(t, 1.0, successRate, 0.001)
}
