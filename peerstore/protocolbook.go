package peerstore

import (
	"errors"
	"sync"

	"github.com/qri-io/libp2p/peer"
	"github.com/qri-io/libp2p/protocol"
)

// maxProtocols bounds how many protocols this peerstore will remember per
// peer, guarding against a misbehaving or malicious peer exhausting
// memory by claiming an unbounded protocol list.
const maxProtocols = 128

// ErrTooManyProtocols is returned when a peer's protocol set would exceed
// maxProtocols.
var ErrTooManyProtocols = errors.New("peerstore: too many protocols for peer")

// ProtocolBook tracks which protocols each peer is known to support.
type ProtocolBook struct {
	mu    sync.RWMutex
	protos map[peer.ID]map[protocol.ID]struct{}
}

// NewProtocolBook constructs an empty ProtocolBook.
func NewProtocolBook() *ProtocolBook {
	return &ProtocolBook{protos: make(map[peer.ID]map[protocol.ID]struct{})}
}

// AddProtocols records that p supports protos, in addition to whatever is
// already recorded.
func (b *ProtocolBook) AddProtocols(p peer.ID, protos ...protocol.ID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.protos[p]
	if !ok {
		set = make(map[protocol.ID]struct{})
		b.protos[p] = set
	}
	if len(set)+len(protos) > maxProtocols {
		return ErrTooManyProtocols
	}
	for _, pr := range protos {
		set[pr] = struct{}{}
	}
	return nil
}

// SetProtocols replaces p's protocol set wholesale.
func (b *ProtocolBook) SetProtocols(p peer.ID, protos ...protocol.ID) error {
	if len(protos) > maxProtocols {
		return ErrTooManyProtocols
	}
	set := make(map[protocol.ID]struct{}, len(protos))
	for _, pr := range protos {
		set[pr] = struct{}{}
	}
	b.mu.Lock()
	b.protos[p] = set
	b.mu.Unlock()
	return nil
}

// GetProtocols returns every protocol currently recorded for p.
func (b *ProtocolBook) GetProtocols(p peer.ID) []protocol.ID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	set, ok := b.protos[p]
	if !ok {
		return nil
	}
	out := make([]protocol.ID, 0, len(set))
	for pr := range set {
		out = append(out, pr)
	}
	return out
}

// SupportsProtocols returns the subset of protos that p is known to
// support.
func (b *ProtocolBook) SupportsProtocols(p peer.ID, protos ...protocol.ID) []protocol.ID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	set, ok := b.protos[p]
	if !ok {
		return nil
	}
	var out []protocol.ID
	for _, pr := range protos {
		if _, ok := set[pr]; ok {
			out = append(out, pr)
		}
	}
	return out
}

// RemoveProtocols forgets protos for p.
func (b *ProtocolBook) RemoveProtocols(p peer.ID, protos ...protocol.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.protos[p]
	if !ok {
		return
	}
	for _, pr := range protos {
		delete(set, pr)
	}
}

func (b *ProtocolBook) removePeer(p peer.ID) {
	b.mu.Lock()
	delete(b.protos, p)
	b.mu.Unlock()
}
