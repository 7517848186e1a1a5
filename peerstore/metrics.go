package peerstore

import (
	"sync"
	"time"

	"github.com/qri-io/libp2p/peer"
)

// latencyEWMAWeight is the smoothing factor applied to each new latency
// sample: smaller favors history, larger favors the most recent sample.
const latencyEWMAWeight = 0.1

// Metrics tracks an exponentially-weighted moving average of round-trip
// latency per peer, fed by the ping protocol.
type Metrics struct {
	mu      sync.RWMutex
	latency map[peer.ID]time.Duration
}

// NewMetrics constructs an empty Metrics store.
func NewMetrics() *Metrics {
	return &Metrics{latency: make(map[peer.ID]time.Duration)}
}

// RecordLatency folds a new RTT sample into p's running EWMA.
func (m *Metrics) RecordLatency(p peer.ID, rtt time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.latency[p]
	if !ok {
		m.latency[p] = rtt
		return
	}
	m.latency[p] = time.Duration(latencyEWMAWeight*float64(rtt) + (1-latencyEWMAWeight)*float64(prev))
}

// LatencyEWMA returns the current smoothed latency estimate for p.
func (m *Metrics) LatencyEWMA(p peer.ID) (time.Duration, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.latency[p]
	return d, ok
}

func (m *Metrics) removePeer(p peer.ID) {
	m.mu.Lock()
	delete(m.latency, p)
	m.mu.Unlock()
}
