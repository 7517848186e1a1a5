// Package upgrader turns a raw transport connection into a fully usable
// network.Conn: security handshake, then stream-muxer negotiation, with
// connection-gater hooks at each step and exactly-once close semantics.
package upgrader

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/qri-io/libp2p/muxer"
	"github.com/qri-io/libp2p/network"
	"github.com/qri-io/libp2p/peer"
	"github.com/qri-io/libp2p/sec"
	"github.com/qri-io/libp2p/sec/csms"
)

// ConnectionGater lets a caller veto connections at two points: before the
// security handshake runs (based on addresses alone) and after it
// completes (now knowing the remote's verified identity). Implementations
// that don't need to veto anything can allow everything.
type ConnectionGater interface {
	InterceptAccept(remote, local ma.Multiaddr) bool
	InterceptSecured(dir network.Direction, p peer.ID, remote ma.Multiaddr) bool
}

// AllowAllGater is a ConnectionGater that never blocks anything.
type AllowAllGater struct{}

func (AllowAllGater) InterceptAccept(ma.Multiaddr, ma.Multiaddr) bool       { return true }
func (AllowAllGater) InterceptSecured(network.Direction, peer.ID, ma.Multiaddr) bool { return true }

// ErrGated is returned when a ConnectionGater vetoes a connection.
var ErrGated = errors.New("upgrader: connection gater rejected connection")

// Upgrader owns the security-transport and stream-muxer registries needed
// to take a raw net.Conn to a ready network.Conn.
type Upgrader struct {
	Security *csms.Registry
	Muxers   *muxer.Registry
	Gater    ConnectionGater
}

// New constructs an Upgrader. If gater is nil, AllowAllGater is used.
func New(sec *csms.Registry, mux *muxer.Registry, gater ConnectionGater) *Upgrader {
	if gater == nil {
		gater = AllowAllGater{}
	}
	return &Upgrader{Security: sec, Muxers: mux, Gater: gater}
}

// upgradedConn adapts a secured, muxed connection to network.Conn.
type upgradedConn struct {
	sc    sec.SecureConn
	mc    muxer.MuxedConn
	dir   network.Direction
	local ma.Multiaddr

	closeOnce sync.Once
	closeErr  error
	closed    bool
	mu        sync.Mutex
	opened    time.Time
}

func (c *upgradedConn) NewStream(ctx context.Context) (network.Stream, error) {
	return c.mc.OpenStream("")
}

func (c *upgradedConn) AcceptStream() (network.Stream, error) {
	return c.mc.AcceptStream()
}

func (c *upgradedConn) LocalPeer() peer.ID   { return c.sc.LocalPeer() }
func (c *upgradedConn) RemotePeer() peer.ID  { return c.sc.RemotePeer() }
func (c *upgradedConn) LocalMultiaddr() ma.Multiaddr { return c.local }
func (c *upgradedConn) RemoteMultiaddr() ma.Multiaddr {
	a, err := addrToMultiaddr(c.sc.RemoteAddr())
	if err != nil {
		return nil
	}
	return a
}

// addrToMultiaddr converts a net.Addr (as returned by a TCP connection)
// into the corresponding "/ip4 or ip6/.../tcp/..." multiaddr.
func addrToMultiaddr(addr net.Addr) (ma.Multiaddr, error) {
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return ma.NewMultiaddr(fmt.Sprintf("/dns4/%s", addr.String()))
	}
	proto := "ip4"
	if tcpAddr.IP.To4() == nil {
		proto = "ip6"
	}
	return ma.NewMultiaddr(fmt.Sprintf("/%s/%s/tcp/%d", proto, tcpAddr.IP.String(), tcpAddr.Port))
}

func (c *upgradedConn) Stat() network.ConnStats {
	return network.ConnStats{Direction: c.dir, Opened: c.opened}
}

func (c *upgradedConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *upgradedConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.mc.Close()
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
	})
	return c.closeErr
}

// UpgradeOutbound secures and multiplexes a connection this side dialed.
func (u *Upgrader) UpgradeOutbound(ctx context.Context, raw net.Conn, remote ma.Multiaddr, expectedPeer peer.ID) (network.Conn, error) {
	sc, err := u.Security.SecureOutbound(ctx, raw, expectedPeer)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("upgrader: securing outbound connection: %w", err)
	}
	if !u.Gater.InterceptSecured(network.DirOutbound, sc.RemotePeer(), remote) {
		sc.Close()
		return nil, ErrGated
	}

	var mc muxer.MuxedConn
	err = muxer.WithTimeout(ctx, func(ctx context.Context) error {
		protos := u.Muxers.Protocols()
		if len(protos) == 0 {
			return errors.New("upgrader: no muxer transports registered")
		}
		t, ok := u.Muxers.TransportByID(protos[0])
		if !ok {
			return errors.New("upgrader: unknown muxer transport")
		}
		var merr error
		mc, merr = t.NewConn(sc, false)
		return merr
	})
	if err != nil {
		sc.Close()
		return nil, fmt.Errorf("upgrader: negotiating muxer: %w", err)
	}

	local, _ := addrToMultiaddr(raw.LocalAddr())
	return &upgradedConn{sc: sc, mc: mc, dir: network.DirOutbound, local: local, opened: now()}, nil
}

// UpgradeInbound secures and multiplexes a connection this side accepted.
func (u *Upgrader) UpgradeInbound(ctx context.Context, raw net.Conn, localListenAddr ma.Multiaddr) (network.Conn, error) {
	if !u.Gater.InterceptAccept(nil, localListenAddr) {
		raw.Close()
		return nil, ErrGated
	}

	sc, err := u.Security.SecureInbound(ctx, raw)
	if err != nil {
		raw.Close()
		return nil, fmt.Errorf("upgrader: securing inbound connection: %w", err)
	}
	if !u.Gater.InterceptSecured(network.DirInbound, sc.RemotePeer(), localListenAddr) {
		sc.Close()
		return nil, ErrGated
	}

	var mc muxer.MuxedConn
	err = muxer.WithTimeout(ctx, func(ctx context.Context) error {
		protos := u.Muxers.Protocols()
		if len(protos) == 0 {
			return errors.New("upgrader: no muxer transports registered")
		}
		t, ok := u.Muxers.TransportByID(protos[0])
		if !ok {
			return errors.New("upgrader: unknown muxer transport")
		}
		var merr error
		mc, merr = t.NewConn(sc, true)
		return merr
	})
	if err != nil {
		sc.Close()
		return nil, fmt.Errorf("upgrader: negotiating muxer: %w", err)
	}

	return &upgradedConn{sc: sc, mc: mc, dir: network.DirInbound, local: localListenAddr, opened: now()}, nil
}

func now() time.Time { return time.Now() }
