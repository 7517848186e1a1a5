// Package tcp implements the TCP transport: dialing and listening on
// "/ip4|ip6/.../tcp/..." multiaddresses, upgraded into secured, muxed
// connections by an upgrader.Upgrader.
package tcp

import (
	"context"
	"fmt"

	ma "github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr-net"

	"github.com/qri-io/libp2p/network"
	"github.com/qri-io/libp2p/peer"
	"github.com/qri-io/libp2p/upgrader"
)

// Transport dials and listens on TCP multiaddresses.
type Transport struct {
	Upgrader *upgrader.Upgrader
}

// New constructs a TCP transport using u to secure and multiplex every
// connection it makes or accepts.
func New(u *upgrader.Upgrader) *Transport {
	return &Transport{Upgrader: u}
}

// CanDial reports whether addr names a TCP endpoint this transport can
// dial: an IP4 or IP6 component followed directly by a TCP component.
func (t *Transport) CanDial(addr ma.Multiaddr) bool {
	return manet.IsThinWaist(addr) && hasTCPComponent(addr)
}

func hasTCPComponent(addr ma.Multiaddr) bool {
	for _, p := range addr.Protocols() {
		if p.Code == ma.P_TCP {
			return true
		}
	}
	return false
}

// Dial opens a raw TCP connection to addr and upgrades it as an outbound
// connection toward expectedPeer.
func (t *Transport) Dial(ctx context.Context, addr ma.Multiaddr, expectedPeer peer.ID) (network.Conn, error) {
	if !t.CanDial(addr) {
		return nil, network.ErrNoTransport
	}
	nd := manet.Dialer{}
	raw, err := nd.DialContext(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("tcp: dial %s: %w", addr, err)
	}
	return t.Upgrader.UpgradeOutbound(ctx, raw, addr, expectedPeer)
}

// Listener accepts inbound TCP connections and upgrades each of them.
type Listener struct {
	ln       manet.Listener
	upgrader *upgrader.Upgrader
	addr     ma.Multiaddr
}

// Listen starts listening on addr.
func (t *Transport) Listen(addr ma.Multiaddr) (*Listener, error) {
	ln, err := manet.Listen(addr)
	if err != nil {
		return nil, fmt.Errorf("tcp: listen %s: %w", addr, err)
	}
	return &Listener{ln: ln, upgrader: t.Upgrader, addr: ln.Multiaddr()}, nil
}

// Multiaddr returns the address this listener is bound to (with any
// ephemeral port resolved to its concrete value).
func (l *Listener) Multiaddr() ma.Multiaddr { return l.addr }

// Accept blocks for the next inbound connection and upgrades it.
func (l *Listener) Accept(ctx context.Context) (network.Conn, error) {
	raw, err := l.ln.Accept()
	if err != nil {
		return nil, err
	}
	return l.upgrader.UpgradeInbound(ctx, raw, l.addr)
}

// Close stops accepting new connections.
func (l *Listener) Close() error { return l.ln.Close() }
