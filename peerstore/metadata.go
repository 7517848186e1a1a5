package peerstore

import (
	"fmt"
	"sync"

	"github.com/qri-io/libp2p/peer"
)

// SerializationError wraps a failure from a caller-supplied serializer
// passed to PutTyped/GetTyped.
type SerializationError struct {
	Key string
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("peerstore: serializing metadata key %q: %s", e.Key, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// Metadata is a per-peer, per-key bag of arbitrary values, used for things
// like a peer's observed latency, protocol version string, or any other
// loosely-typed fact a caller wants to stash.
type Metadata struct {
	mu   sync.RWMutex
	data map[peer.ID]map[string]interface{}
}

// NewMetadata constructs an empty Metadata store.
func NewMetadata() *Metadata {
	return &Metadata{data: make(map[peer.ID]map[string]interface{})}
}

// Put stores val under key for p.
func (m *Metadata) Put(p peer.ID, key string, val interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.data[p]
	if !ok {
		set = make(map[string]interface{})
		m.data[p] = set
	}
	set[key] = val
}

// Get retrieves the value stored under key for p.
func (m *Metadata) Get(p peer.ID, key string) (interface{}, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set, ok := m.data[p]
	if !ok {
		return nil, false
	}
	v, ok := set[key]
	return v, ok
}

// Serializer converts a value to and from bytes for storage shapes that
// need to cross a marshal boundary (e.g. persisted peerstores).
type Serializer interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(b []byte, v interface{}) error
}

// PutTyped marshals val with s and stores the resulting bytes under key.
func (m *Metadata) PutTyped(p peer.ID, key string, val interface{}, s Serializer) error {
	b, err := s.Marshal(val)
	if err != nil {
		return &SerializationError{Key: key, Err: err}
	}
	m.Put(p, key, b)
	return nil
}

// GetTyped retrieves the bytes stored under key for p and unmarshals them
// into out using s.
func (m *Metadata) GetTyped(p peer.ID, key string, out interface{}, s Serializer) error {
	v, ok := m.Get(p, key)
	if !ok {
		return fmt.Errorf("peerstore: no metadata for key %q", key)
	}
	b, ok := v.([]byte)
	if !ok {
		return &SerializationError{Key: key, Err: fmt.Errorf("stored value is not []byte")}
	}
	if err := s.Unmarshal(b, out); err != nil {
		return &SerializationError{Key: key, Err: err}
	}
	return nil
}

func (m *Metadata) removePeer(p peer.ID) {
	m.mu.Lock()
	delete(m.data, p)
	m.mu.Unlock()
}
