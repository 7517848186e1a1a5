// Package csms ("connection security multistream") negotiates which
// registered sec.SecureTransport runs over a freshly dialed or accepted
// raw connection. It runs plain multistream-select with the dialer as
// client and the listener as server; there is no simultaneous-open
// tie-break for both ends negotiating as the initiator.
package csms

import (
	"context"
	"fmt"
	"net"

	"github.com/qri-io/libp2p/msmux"
	"github.com/qri-io/libp2p/peer"
	"github.com/qri-io/libp2p/protocol"
	"github.com/qri-io/libp2p/sec"
)

// Registry maps protocol IDs to security transports, in preference order.
type Registry struct {
	transports map[protocol.ID]sec.SecureTransport
	order      []protocol.ID
}

// NewRegistry constructs an empty security-transport registry.
func NewRegistry() *Registry {
	return &Registry{transports: make(map[protocol.ID]sec.SecureTransport)}
}

// Add registers t under its own ID(), appending it to preference order.
func (r *Registry) Add(t sec.SecureTransport) {
	id := protocol.ID(t.ID())
	r.transports[id] = t
	r.order = append(r.order, id)
}

func (r *Registry) protocols() []protocol.ID {
	out := make([]protocol.ID, len(r.order))
	copy(out, r.order)
	return out
}

// msmuxRW adapts a net.Conn to msmux.ReadWriter.
type msmuxRW struct{ net.Conn }

// SecureOutbound negotiates a security transport as the dialer and runs
// its SecureOutbound handshake, checking the result against expectedPeer.
func (r *Registry) SecureOutbound(ctx context.Context, c net.Conn, expectedPeer peer.ID) (sec.SecureConn, error) {
	selected, err := msmux.SelectOneOf(r.protocols(), msmuxRW{c})
	if err != nil {
		return nil, fmt.Errorf("csms: negotiating security transport: %w", err)
	}
	t, ok := r.transports[selected]
	if !ok {
		return nil, fmt.Errorf("csms: negotiated unknown transport %q", selected)
	}
	return t.SecureOutbound(ctx, c, expectedPeer)
}

// SecureInbound negotiates a security transport as the listener and runs
// its SecureInbound handshake.
func (r *Registry) SecureInbound(ctx context.Context, c net.Conn) (sec.SecureConn, error) {
	selected, err := negotiateInbound(r, c)
	if err != nil {
		return nil, fmt.Errorf("csms: negotiating security transport: %w", err)
	}
	t, ok := r.transports[selected]
	if !ok {
		return nil, fmt.Errorf("csms: negotiated unknown transport %q", selected)
	}
	return t.SecureInbound(ctx, c)
}

func negotiateInbound(r *Registry, c net.Conn) (protocol.ID, error) {
	known := r.protocols()
	supports := func(p protocol.ID) bool {
		_, ok := r.transports[p]
		return ok
	}
	return msmux.Negotiate(msmuxRW{c}, supports, known)
}
