// Package network defines the core connection and stream contracts shared
// by the transport, security, muxer and swarm layers: the vocabulary every
// other package in this module is written against.
package network

import (
	"context"
	"errors"
	"io"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/qri-io/libp2p/peer"
	"github.com/qri-io/libp2p/protocol"
)

// Direction records which side of a connection or stream initiated it.
type Direction int

const (
	// DirUnknown is the zero value, used before a direction is known.
	DirUnknown Direction = iota
	// DirInbound marks a connection/stream accepted from a remote dialer.
	DirInbound
	// DirOutbound marks a connection/stream this side dialed or opened.
	DirOutbound
)

func (d Direction) String() string {
	switch d {
	case DirInbound:
		return "inbound"
	case DirOutbound:
		return "outbound"
	default:
		return "unknown"
	}
}

// Connectedness records the swarm's belief about reachability of a peer.
type Connectedness int

const (
	NotConnected Connectedness = iota
	Connected
	CanConnect
	CannotConnect
)

// Error taxonomy. Components wrap these with fmt.Errorf("...: %w", ...) to
// add context while preserving errors.Is compatibility.
var (
	ErrReset               = errors.New("network: stream reset")
	ErrStreamClosed        = errors.New("network: stream closed for writing")
	ErrConnClosed          = errors.New("network: connection closed")
	ErrNoTransport         = errors.New("network: no transport for address")
	ErrProtocolNotSupported = errors.New("network: protocol not supported")
	ErrNoConn              = errors.New("network: no connection to peer")
	ErrDialBackoff         = errors.New("network: dial backoff in effect")
	ErrDialSelf            = errors.New("network: dial to self")
	ErrGaterDisallowedConnection = errors.New("network: connection gater disallowed connection")
)

// Stream is a single reliable, ordered, bidirectional, half-closable
// channel multiplexed over a Conn.
type Stream interface {
	io.Reader
	io.Writer
	// Close closes the stream for writing and signals no more reads will
	// come from this side either once the remote half-closes too.
	Close() error
	// Reset aborts the stream immediately on both sides, discarding any
	// unread or unflushed data.
	Reset() error
	// SetDeadline, SetReadDeadline and SetWriteDeadline set deadlines as
	// the equivalent net.Conn methods do. The mplex streams in this module
	// store the deadline but do not enforce it: a blocked Read or Write is
	// not interrupted when it passes.
	SetDeadline(time.Time) error
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error

	// Protocol returns the protocol this stream negotiated.
	Protocol() protocol.ID
	// SetProtocol records the protocol this stream negotiated.
	SetProtocol(protocol.ID)
	// Conn returns the parent connection this stream is multiplexed over.
	Conn() Conn
}

// Conn is a single, already-secured and already-multiplexed connection to
// a remote peer, capable of opening and accepting Streams.
type Conn interface {
	io.Closer

	// NewStream opens a new outbound stream over this connection.
	NewStream(ctx context.Context) (Stream, error)

	// AcceptStream blocks until the remote opens a new stream over this
	// connection, or the connection closes.
	AcceptStream() (Stream, error)

	// LocalPeer and RemotePeer return the identities of each side.
	LocalPeer() peer.ID
	RemotePeer() peer.ID

	// LocalMultiaddr and RemoteMultiaddr return the addresses in use.
	LocalMultiaddr() ma.Multiaddr
	RemoteMultiaddr() ma.Multiaddr

	// Stat returns metadata about how the connection was established.
	Stat() ConnStats

	// IsClosed reports whether Close has completed.
	IsClosed() bool
}

// ConnStats records how a connection came to be.
type ConnStats struct {
	Direction Direction
	Opened    time.Time
	// Transient connections (e.g. relayed) are not suitable for long-lived
	// use and are subject to more aggressive pruning.
	Transient bool
}

// ConnHandler is invoked for every newly accepted inbound connection before
// it is handed to the swarm's registry.
type ConnHandler func(Conn)

// StreamHandler is invoked for every newly accepted inbound stream once its
// protocol has been negotiated.
type StreamHandler func(Stream)

// Notifiee receives connection and listener lifecycle events. Every method
// must return quickly; long-running work should be dispatched to a
// goroutine by the implementation.
type Notifiee interface {
	Listen(Network, ma.Multiaddr)
	ListenClose(Network, ma.Multiaddr)
	Connected(Network, Conn)
	Disconnected(Network, Conn)
	OpenedStream(Network, Stream)
	ClosedStream(Network, Stream)
}

// Network is the core capability a Host is built on: dialing, listening,
// tracking connections, and notifying observers of connection lifecycle
// events.
type Network interface {
	io.Closer

	// Dial establishes (or reuses) a connection to p, using its addresses
	// as known to the caller's peerstore.
	Dial(ctx context.Context, p peer.ID) (Conn, error)

	// NewStream opens a new outbound stream to p over an existing or
	// newly dialed connection.
	NewStream(ctx context.Context, p peer.ID) (Stream, error)

	// Listen starts listening on each of the given addresses.
	Listen(addrs ...ma.Multiaddr) error

	// ListenAddresses returns the addresses this network is listening on.
	ListenAddresses() []ma.Multiaddr

	// Conns and ConnsToPeer return the currently open connections.
	Conns() []Conn
	ConnsToPeer(p peer.ID) []Conn

	// ClosePeer closes all connections to p.
	ClosePeer(p peer.ID) error

	// Connectedness reports the connection status to p.
	Connectedness(p peer.ID) Connectedness

	// Peers returns the peers this network currently has a connection to.
	Peers() []peer.ID

	// Notify registers a Notifiee; StopNotify removes it.
	Notify(Notifiee)
	StopNotify(Notifiee)

	// SetStreamHandler sets the handler invoked for every inbound stream,
	// after protocol negotiation has already happened at a higher layer.
	SetStreamHandler(StreamHandler)

	// LocalPeer returns this network's own identity.
	LocalPeer() peer.ID
}

// NullNotifiee is an embeddable no-op Notifiee; callers that only care
// about one or two events can embed this and override the rest.
type NullNotifiee struct{}

func (NullNotifiee) Listen(Network, ma.Multiaddr)      {}
func (NullNotifiee) ListenClose(Network, ma.Multiaddr) {}
func (NullNotifiee) Connected(Network, Conn)           {}
func (NullNotifiee) Disconnected(Network, Conn)        {}
func (NullNotifiee) OpenedStream(Network, Stream)       {}
func (NullNotifiee) ClosedStream(Network, Stream)       {}
