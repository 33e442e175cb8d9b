package observability

import (
	"sync"
	"time"
)

// maxSamples bounds the rolling latency window kept per operation.
const maxSamples = 100

// OperationStats is one operation's snapshot for dashboards.
type OperationStats struct {
	Calls          int64         `json:"calls"`
	Errors         int64         `json:"errors"`
	AverageLatency time.Duration `json:"average_latency"`
	MaxLatency     time.Duration `json:"max_latency"`
	LastCall       time.Time     `json:"last_call"`
}

// PerformanceTracker keeps simple per-operation counters: call count,
// rolling average latency, error count. It backs GetPerformanceMetrics.
type PerformanceTracker struct {
	mu  sync.RWMutex
	ops map[string]*opRecord
}

type opRecord struct {
	calls     int64
	errors    int64
	latencies []time.Duration
	lastCall  time.Time
}

// NewPerformanceTracker creates an empty tracker.
func NewPerformanceTracker() *PerformanceTracker {
	return &PerformanceTracker{ops: make(map[string]*opRecord)}
}

// Record registers one completed operation.
func (t *PerformanceTracker) Record(op string, latency time.Duration, failed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.ops[op]
	if !ok {
		rec = &opRecord{}
		t.ops[op] = rec
	}

	rec.calls++
	if failed {
		rec.errors++
	}
	if len(rec.latencies) >= maxSamples {
		rec.latencies = rec.latencies[1:]
	}
	rec.latencies = append(rec.latencies, latency)
	rec.lastCall = time.Now()
}

// Snapshot returns the current stats for every recorded operation.
func (t *PerformanceTracker) Snapshot() map[string]OperationStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]OperationStats, len(t.ops))
	for op, rec := range t.ops {
		out[op] = OperationStats{
			Calls:          rec.calls,
			Errors:         rec.errors,
			AverageLatency: averageDuration(rec.latencies),
			MaxLatency:     maxDuration(rec.latencies),
			LastCall:       rec.lastCall,
		}
	}
	return out
}

func averageDuration(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range ds {
		sum += d
	}
	return sum / time.Duration(len(ds))
}

func maxDuration(ds []time.Duration) time.Duration {
	if len(ds) == 0 {
		return 0
	}
	max := ds[0]
	for _, d := range ds[1:] {
		if d > max {
			max = d
		}
	}
	return max
}
