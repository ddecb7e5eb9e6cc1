package handlers

import (
	"encoding/json"
	"time"

	"github.com/harborkv/dsgate/pkg/bulk"
	"github.com/harborkv/dsgate/pkg/executor"
)

// DataResponse wraps a single record read.
type DataResponse struct {
	Store string          `json:"store"`
	Scope string          `json:"scope"`
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// ListResponse wraps one page of a key listing.
type ListResponse struct {
	Store  string   `json:"store"`
	Scope  string   `json:"scope"`
	Keys   []string `json:"keys"`
	Cursor string   `json:"cursor,omitempty"`
}

// BulkRequest is the submission payload for a bulk job.
type BulkRequest struct {
	Kind    bulk.Kind   `json:"kind"`
	Items   []bulk.Item `json:"items"`
	Options BulkOptions `json:"options"`
}

// BulkOptions mirrors bulk.Options with JSON-friendly millisecond delays.
type BulkOptions struct {
	BatchSize             int `json:"batchSize,omitempty"`
	DelayBetweenBatchesMS int `json:"delayBetweenBatchesMs,omitempty"`
	MaxRetries            int `json:"maxRetries,omitempty"`
}

func (o BulkOptions) toOptions() bulk.Options {
	return bulk.Options{
		BatchSize:           o.BatchSize,
		DelayBetweenBatches: time.Duration(o.DelayBetweenBatchesMS) * time.Millisecond,
		MaxRetries:          o.MaxRetries,
	}
}

// BulkSubmitResponse returns the assigned job ID.
type BulkSubmitResponse struct {
	JobID string `json:"jobId"`
}

// StatsResponse exposes the executor's aggregate statistics.
type StatsResponse struct {
	TotalOperations int64   `json:"totalOperations"`
	SuccessRate     float64 `json:"successRate"`
	AvgLatencyMS    float64 `json:"avgLatencyMs"`
	BudgetRemaining int     `json:"budgetRemaining"`
	CacheHitRate    float64 `json:"cacheHitRate"`
}

func toStatsResponse(stats executor.Stats) StatsResponse {
	return StatsResponse{
		TotalOperations: int64(stats.TotalOps),
		SuccessRate:     stats.SuccessRate,
		AvgLatencyMS:    float64(stats.AvgLatency) / float64(time.Millisecond),
		BudgetRemaining: stats.BudgetRemaining,
		CacheHitRate:    stats.CacheHitRate,
	}
}
