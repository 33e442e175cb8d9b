package observability

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerformanceTracker_RecordsPerOperation(t *testing.T) {
	tr := NewPerformanceTracker()

	tr.Record("ListWatchlists", 100*time.Millisecond, false)
	tr.Record("ListWatchlists", 300*time.Millisecond, true)
	tr.Record("GetNote", 50*time.Millisecond, false)

	snap := tr.Snapshot()
	require.Len(t, snap, 2)

	lists := snap["ListWatchlists"]
	assert.Equal(t, int64(2), lists.Calls)
	assert.Equal(t, int64(1), lists.Errors)
	assert.Equal(t, 200*time.Millisecond, lists.AverageLatency)
	assert.Equal(t, 300*time.Millisecond, lists.MaxLatency)

	assert.Equal(t, int64(0), snap["GetNote"].Errors)
}

func TestPerformanceTracker_WindowIsBounded(t *testing.T) {
	tr := NewPerformanceTracker()
	for i := 0; i < maxSamples+50; i++ {
		tr.Record("op", time.Millisecond, false)
	}

	snap := tr.Snapshot()
	assert.Equal(t, int64(maxSamples+50), snap["op"].Calls)
	assert.Equal(t, time.Millisecond, snap["op"].AverageLatency)
}

func TestPerformanceTracker_ConcurrentRecord(t *testing.T) {
	tr := NewPerformanceTracker()
	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 100; j++ {
				tr.Record(fmt.Sprintf("op-%d", n%2), time.Millisecond, j%2 == 0)
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	snap := tr.Snapshot()
	assert.Equal(t, int64(400), snap["op-0"].Calls)
	assert.Equal(t, int64(400), snap["op-1"].Calls)
}
