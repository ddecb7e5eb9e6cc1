package bulk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanBatches(t *testing.T) {
	items := []Item{
		{Store: "s", Key: "a"},
		{Store: "s", Key: "b"},
		{Store: "s", Key: "c"},
	}

	batches := planBatches(items, 2, 0)
	require.Len(t, batches, 2)
	assert.Len(t, batches[0].items, 2)
	assert.Len(t, batches[1].items, 1)
	assert.Equal(t, 0, batches[0].index)
	assert.Equal(t, 1, batches[1].index)
	assert.Equal(t, StatusPending, batches[0].status)
}

func TestPlanBatches_ExactPartition(t *testing.T) {
	items := make([]Item, 10)
	batches := planBatches(items, 5, 3)

	require.Len(t, batches, 2)
	assert.Equal(t, 3, batches[0].index)
	assert.Equal(t, 4, batches[1].index)
}

func TestPlanBatches_Empty(t *testing.T) {
	assert.Nil(t, planBatches(nil, 5, 0))
}

func TestOptimalBatchSize(t *testing.T) {
	tests := []struct {
		name      string
		itemCount int
		duration  time.Duration
		want      int
	}{
		{
			name:      "fast batches grow to ceiling",
			itemCount: 10,
			duration:  100 * time.Millisecond, // 100 items/s -> 300 target, clamped
			want:      50,
		},
		{
			name:      "slow batches shrink to floor",
			itemCount: 10,
			duration:  30 * time.Second, // 0.33 items/s -> 1 target, clamped
			want:      5,
		},
		{
			name:      "on-target throughput keeps size",
			itemCount: 10,
			duration:  3 * time.Second,
			want:      10,
		},
		{
			name:      "zero duration treated as fast",
			itemCount: 10,
			duration:  0,
			want:      50,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := optimalBatchSize(tt.itemCount, tt.duration, 3*time.Second, 5, 50)
			assert.Equal(t, tt.want, got)
		})
	}
}
