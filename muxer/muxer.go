// Package muxer defines the stream-multiplexer transport contract and a
// registry used to negotiate which multiplexer (e.g. mplex) runs over a
// freshly secured connection.
package muxer

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/qri-io/libp2p/mplex"
	"github.com/qri-io/libp2p/network"
	"github.com/qri-io/libp2p/protocol"
)

// NegotiationTimeout bounds how long the multistream-select negotiation
// for a muxer may take, applied identically to both the outbound dialer
// and the inbound (including simultaneous-open) listener path.
const NegotiationTimeout = 60 * time.Second

// ErrNegotiationTimeout is returned when multiplexer negotiation exceeds
// NegotiationTimeout.
var ErrNegotiationTimeout = errors.New("muxer: negotiation timed out")

// MuxedConn is a connection capable of opening and accepting streams,
// produced by a Transport once multiplexing is running.
type MuxedConn interface {
	OpenStream(name string) (network.Stream, error)
	AcceptStream() (network.Stream, error)
	Close() error
}

// Transport runs a specific multiplexing protocol (e.g. mplex) over an
// already-secured net.Conn.
type Transport interface {
	ID() protocol.ID
	NewConn(c net.Conn, isServer bool) (MuxedConn, error)
}

// mplexStream adapts mplex's internal stream type to network.Stream.
type mplexStream struct {
	s    interface {
		Read([]byte) (int, error)
		Write([]byte) (int, error)
		Close() error
		Reset() error
		SetDeadline(time.Time) error
		SetReadDeadline(time.Time) error
		SetWriteDeadline(time.Time) error
	}
	proto protocol.ID
	conn  network.Conn
}

func (s *mplexStream) Read(b []byte) (int, error)  { return s.s.Read(b) }
func (s *mplexStream) Write(b []byte) (int, error) { return s.s.Write(b) }
func (s *mplexStream) Close() error                { return s.s.Close() }
func (s *mplexStream) Reset() error                { return s.s.Reset() }
func (s *mplexStream) SetDeadline(t time.Time) error      { return s.s.SetDeadline(t) }
func (s *mplexStream) SetReadDeadline(t time.Time) error  { return s.s.SetReadDeadline(t) }
func (s *mplexStream) SetWriteDeadline(t time.Time) error { return s.s.SetWriteDeadline(t) }
func (s *mplexStream) Protocol() protocol.ID               { return s.proto }
func (s *mplexStream) SetProtocol(p protocol.ID)            { s.proto = p }
func (s *mplexStream) Conn() network.Conn                  { return s.conn }

// mplexMuxedConn adapts *mplex.Conn to MuxedConn.
type mplexMuxedConn struct {
	c *mplex.Conn
}

func (m *mplexMuxedConn) OpenStream(name string) (network.Stream, error) {
	s, err := m.c.OpenStream(name)
	if err != nil {
		return nil, err
	}
	return &mplexStream{s: s}, nil
}

func (m *mplexMuxedConn) AcceptStream() (network.Stream, error) {
	s, err := m.c.AcceptStream()
	if err != nil {
		return nil, err
	}
	return &mplexStream{s: s}, nil
}

func (m *mplexMuxedConn) Close() error { return m.c.Close() }

// MplexTransport is the muxer.Transport implementation backed by this
// module's own mplex package.
type MplexTransport struct{}

func (MplexTransport) ID() protocol.ID { return "/mplex/6.7.0" }

func (MplexTransport) NewConn(c net.Conn, isServer bool) (MuxedConn, error) {
	return &mplexMuxedConn{c: mplex.NewConn(c, !isServer)}, nil
}

// Registry maps protocol IDs to the Transport that implements them, used
// during multistream-select negotiation of the muxer layer.
type Registry struct {
	transports map[protocol.ID]Transport
	order      []protocol.ID
}

// NewRegistry constructs an empty muxer registry.
func NewRegistry() *Registry {
	return &Registry{transports: make(map[protocol.ID]Transport)}
}

// Add registers t, appending it to the negotiation preference order.
func (r *Registry) Add(t Transport) {
	r.transports[t.ID()] = t
	r.order = append(r.order, t.ID())
}

// Protocols returns the registered protocol IDs in preference order.
func (r *Registry) Protocols() []protocol.ID {
	out := make([]protocol.ID, len(r.order))
	copy(out, r.order)
	return out
}

// TransportByID looks up a registered transport.
func (r *Registry) TransportByID(id protocol.ID) (Transport, bool) {
	t, ok := r.transports[id]
	return t, ok
}

// WithTimeout runs fn, returning ErrNegotiationTimeout if it does not
// complete within NegotiationTimeout or ctx's own deadline, whichever is
// sooner.
func WithTimeout(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, NegotiationTimeout)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ErrNegotiationTimeout
	}
}
