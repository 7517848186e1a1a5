package basichost

import (
	"sync"

	"github.com/qri-io/libp2p/network"
	"github.com/qri-io/libp2p/protocol"
)

// MatchFunc decides whether an inbound protocol ID satisfies a handler
// registered with SetStreamHandlerMatch, e.g. a semver range match.
type MatchFunc func(protocol.ID) bool

type matchEntry struct {
	proto   protocol.ID
	match   MatchFunc
	handler network.StreamHandler
}

// mux maps protocol IDs (exact or pattern-matched) to the handler that
// should run when a stream negotiates that protocol.
type mux struct {
	mu       sync.RWMutex
	exact    map[protocol.ID]network.StreamHandler
	matchers []matchEntry
	order    []protocol.ID
}

func newMux() *mux {
	return &mux{exact: make(map[protocol.ID]network.StreamHandler)}
}

func (m *mux) setExact(p protocol.ID, h network.StreamHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.exact[p]; !exists {
		m.order = append(m.order, p)
	}
	m.exact[p] = h
}

func (m *mux) setMatch(p protocol.ID, match MatchFunc, h network.StreamHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.matchers = append(m.matchers, matchEntry{proto: p, match: match, handler: h})
	m.order = append(m.order, p)
}

func (m *mux) remove(p protocol.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.exact, p)
	for i := len(m.matchers) - 1; i >= 0; i-- {
		if m.matchers[i].proto == p {
			m.matchers = append(m.matchers[:i], m.matchers[i+1:]...)
		}
	}
	for i, existing := range m.order {
		if existing == p {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// protocols returns every protocol ID this mux knows how to advertise
// during negotiation, in registration order.
func (m *mux) protocols() []protocol.ID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]protocol.ID, len(m.order))
	copy(out, m.order)
	return out
}

// supports reports whether p matches an exact or pattern registration.
func (m *mux) supports(p protocol.ID) bool {
	_, h := m.handlerFor(p)
	return h != nil
}

// handlerFor resolves the handler for a negotiated protocol ID, checking
// exact registrations first, then match functions in registration order.
func (m *mux) handlerFor(p protocol.ID) (protocol.ID, network.StreamHandler) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if h, ok := m.exact[p]; ok {
		return p, h
	}
	for _, e := range m.matchers {
		if e.match(p) {
			return e.proto, e.handler
		}
	}
	return "", nil
}
