package bridge

import (
	"sync/atomic"
	"time"
)

// CallMetrics tracks per-call counters. All fields are safe for concurrent
// access.
type CallMetrics struct {
	startedAt time.Time

	framesIn     atomic.Int64
	framesOut    atomic.Int64
	framesQueued atomic.Int64
	bargeIns     atomic.Int64
	toolCalls    atomic.Int64
	dtmfDigits   atomic.Int64
}

// NewCallMetrics creates metrics for one call, stamped now.
func NewCallMetrics() *CallMetrics {
	return &CallMetrics{startedAt: time.Now()}
}

// MetricsSnapshot is a point-in-time copy of a call's counters.
type MetricsSnapshot struct {
	Duration     time.Duration `json:"duration"`
	FramesIn     int64         `json:"framesIn"`
	FramesOut    int64         `json:"framesOut"`
	FramesQueued int64         `json:"framesQueued"`
	BargeIns     int64         `json:"bargeIns"`
	ToolCalls    int64         `json:"toolCalls"`
	DTMFDigits   int64         `json:"dtmfDigits"`
}

// Snapshot returns the current counter values.
func (m *CallMetrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Duration:     time.Since(m.startedAt),
		FramesIn:     m.framesIn.Load(),
		FramesOut:    m.framesOut.Load(),
		FramesQueued: m.framesQueued.Load(),
		BargeIns:     m.bargeIns.Load(),
		ToolCalls:    m.toolCalls.Load(),
		DTMFDigits:   m.dtmfDigits.Load(),
	}
}
