// Package bulk implements the bulk operation engine: batch planning,
// adaptive sizing, rollback and progress tracking over the retrying executor.
package bulk

import (
	"encoding/json"
	"time"

	"github.com/harborkv/dsgate/pkg/executor"
)

// Kind is the bulk operation kind.
type Kind string

const (
	// KindCreate writes values for keys expected to be absent
	KindCreate Kind = "create"
	// KindUpdate overwrites values for existing keys
	KindUpdate Kind = "update"
	// KindDelete removes keys
	KindDelete Kind = "delete"
	// KindCopy duplicates values to a destination target
	KindCopy Kind = "copy"
	// KindMigrate moves values to a destination target, removing the source
	KindMigrate Kind = "migrate"
	// kindRestore reapplies captured rollback state; internal to Rollback
	kindRestore Kind = "restore"
)

// Reversible reports whether the kind captures rollback data. Deletes are
// not reversible: the value is gone once applied.
func (k Kind) Reversible() bool {
	return k == KindCreate || k == KindUpdate
}

// Status is the lifecycle state of a job or batch.
type Status string

const (
	// StatusPending means not yet started
	StatusPending Status = "pending"
	// StatusRunning means execution is in progress
	StatusRunning Status = "running"
	// StatusCompleted means every item succeeded
	StatusCompleted Status = "completed"
	// StatusFailed means at least one item failed
	StatusFailed Status = "failed"
	// StatusCancelled means the job was cancelled before finishing
	StatusCancelled Status = "cancelled"
	// StatusRollingBack means a rollback job for this job is running
	StatusRollingBack Status = "rolling_back"
	// StatusRolledBack means the rollback job completed
	StatusRolledBack Status = "rolled_back"
)

// Terminal reports whether no further execution happens for this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusRolledBack:
		return true
	default:
		return false
	}
}

// Item is one unit of bulk work.
type Item struct {
	Store string `json:"store"`
	Scope string `json:"scope,omitempty"`
	Key   string `json:"key"`
	// Value is required for create and update
	Value json.RawMessage `json:"value,omitempty"`
	// Destination fields are required for copy and migrate
	DestStore string `json:"destStore,omitempty"`
	DestScope string `json:"destScope,omitempty"`
	DestKey   string `json:"destKey,omitempty"`
}

// Options tune a single job's execution.
type Options struct {
	BatchSize           int           `json:"batchSize,omitempty"`
	DelayBetweenBatches time.Duration `json:"delayBetweenBatches,omitempty"`
	MaxRetries          int           `json:"maxRetries,omitempty"`
}

// ItemError records one item's terminal failure.
type ItemError struct {
	Key        string         `json:"key"`
	BatchIndex int            `json:"batchIndex"`
	Class      executor.Class `json:"class"`
	Message    string         `json:"message"`
}

// RollbackItem captures enough prior state to undo one applied item.
// A nil PreviousValue with Existed false means the key must be deleted.
type RollbackItem struct {
	Store         string          `json:"store"`
	Scope         string          `json:"scope"`
	Key           string          `json:"key"`
	PreviousValue json.RawMessage `json:"previousValue,omitempty"`
	Existed       bool            `json:"existed"`
}

// Progress is the cumulative completion view of a job.
type Progress struct {
	Total      int     `json:"total"`
	Processed  int     `json:"processed"`
	Successful int     `json:"successful"`
	Failed     int     `json:"failed"`
	Percentage float64 `json:"percentage"`
}

// batch is a consecutive partition of a job's items, the unit of sequential
// execution and adaptive resizing. Owned by exactly one job.
type batch struct {
	index      int
	items      []Item
	status     Status
	startedAt  time.Time
	endedAt    time.Time
	successful int
	failed     int
	errors     []ItemError
}

// job is the engine-owned state of one bulk workload. All fields are guarded
// by the engine mutex outside of runJob's serialized sections.
type job struct {
	id      string
	kind    Kind
	status  Status
	items   []Item
	batches []*batch
	options Options

	batchSize    int
	rollbackData []RollbackItem
	canRollback  bool
	isRollback   bool
	rollbackOf   string

	createdAt time.Time
	startedAt time.Time
	endedAt   time.Time
}

// JobStatus is the caller-facing snapshot of a job.
type JobStatus struct {
	ID           string      `json:"id"`
	Kind         Kind        `json:"kind"`
	Status       Status      `json:"status"`
	Progress     Progress    `json:"progress"`
	Errors       []ItemError `json:"errors,omitempty"`
	CanRollback  bool        `json:"canRollback"`
	IsRollback   bool        `json:"isRollback"`
	RollbackOf   string      `json:"rollbackOf,omitempty"`
	BatchSize    int         `json:"batchSize"`
	TotalBatches int         `json:"totalBatches"`
	CreatedAt    time.Time   `json:"createdAt"`
	StartedAt    time.Time   `json:"startedAt,omitzero"`
	EndedAt      time.Time   `json:"endedAt,omitzero"`
}

// ProgressCallback receives progress after each completed batch. Callback
// panics are isolated and never abort the job.
type ProgressCallback func(Progress)
