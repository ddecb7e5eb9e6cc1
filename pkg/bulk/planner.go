package bulk

import "time"

// planBatches partitions items into consecutive batches of batchSize,
// starting at firstIndex. The last batch may be smaller.
func planBatches(items []Item, batchSize, firstIndex int) []*batch {
	if len(items) == 0 {
		return nil
	}

	batches := make([]*batch, 0, (len(items)+batchSize-1)/batchSize)

	for start := 0; start < len(items); start += batchSize {
		end := start + batchSize
		if end > len(items) {
			end = len(items)
		}

		batches = append(batches, &batch{
			index:  firstIndex + len(batches),
			items:  items[start:end],
			status: StatusPending,
		})
	}

	return batches
}

// optimalBatchSize derives the batch size that would finish in about
// targetDuration at the observed throughput, clamped to [minSize, maxSize].
func optimalBatchSize(itemCount int, duration, targetDuration time.Duration, minSize, maxSize int) int {
	if duration <= 0 {
		return maxSize
	}

	itemsPerSecond := float64(itemCount) / duration.Seconds()
	optimal := int(itemsPerSecond * targetDuration.Seconds())

	if optimal < minSize {
		return minSize
	}

	if optimal > maxSize {
		return maxSize
	}

	return optimal
}
