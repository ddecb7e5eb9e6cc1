package executor

import (
	"sync"
	"time"

	"github.com/harborkv/dsgate/pkg/datastore"
)

// Kind is the remote operation kind.
type Kind string

const (
	// KindRead fetches a record
	KindRead Kind = "read"
	// KindWrite stores a record
	KindWrite Kind = "write"
	// KindDelete removes a record
	KindDelete Kind = "delete"
	// KindList enumerates keys
	KindList Kind = "list"
)

// Outcome is the terminal state of one call attempt.
type Outcome string

const (
	// OutcomeSuccess means the attempt completed
	OutcomeSuccess Outcome = "success"
	// OutcomeFailed means the attempt failed
	OutcomeFailed Outcome = "failed"
)

// Operation records one call attempt for statistics. Entries live only in the
// bounded in-memory log; the oldest is evicted first.
type Operation struct {
	Kind      Kind
	Target    datastore.Target
	Attempt   int
	StartedAt time.Time
	Latency   time.Duration
	Outcome   Outcome
	Class     Class // set on failure
}

// operationLog is a fixed-capacity ring buffer of attempts plus running
// aggregates that survive eviction.
type operationLog struct {
	mu   sync.Mutex
	buf  []Operation
	next int
	full bool

	total      uint64
	successful uint64
	latencySum time.Duration
}

func newOperationLog(capacity int) *operationLog {
	return &operationLog{buf: make([]Operation, capacity)}
}

func (l *operationLog) append(op Operation) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf[l.next] = op
	l.next++

	if l.next == len(l.buf) {
		l.next = 0
		l.full = true
	}

	l.total++
	l.latencySum += op.Latency

	if op.Outcome == OutcomeSuccess {
		l.successful++
	}
}

// snapshot returns the logged attempts, oldest first.
func (l *operationLog) snapshot() []Operation {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.full {
		out := make([]Operation, l.next)
		copy(out, l.buf[:l.next])

		return out
	}

	out := make([]Operation, 0, len(l.buf))
	out = append(out, l.buf[l.next:]...)
	out = append(out, l.buf[:l.next]...)

	return out
}

func (l *operationLog) aggregates() (total uint64, successRate float64, avgLatency time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.total == 0 {
		return 0, 0, 0
	}

	return l.total,
		float64(l.successful) / float64(l.total),
		l.latencySum / time.Duration(l.total)
}
