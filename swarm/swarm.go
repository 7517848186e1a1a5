// Package swarm is the dial coordinator and connection registry that
// implements network.Network: it dials and accepts connections, dedups
// concurrent dials to the same peer, backs off repeatedly-failing
// addresses, and notifies subscribers of connection lifecycle events.
package swarm

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/qri-io/libp2p/msmux"
	"github.com/qri-io/libp2p/network"
	"github.com/qri-io/libp2p/peer"
	"github.com/qri-io/libp2p/peerstore"
	"github.com/qri-io/libp2p/protocol"
)

// simultaneousOpenTimeout is the timeout of the context under which
// resolveRace opens its stream for the nonce exchange used to resolve a
// simultaneous-open race: both sides dialing each other at once (spec C2).
// Accepting that stream, the negotiation and the nonce reads and writes
// are not bounded by it.
const simultaneousOpenTimeout = 5 * time.Second

// dialFanout bounds how many addresses are dialed concurrently for a
// single peer dial attempt.
const dialFanout = 4

// dialTimeout bounds any single address dial attempt.
const dialTimeout = 15 * time.Second

// backoffBase and backoffCoefficient define the exponential backoff
// applied per (peer, address) pair after consecutive dial failures:
// backoffBase * backoffCoefficient^consecutiveFailures.
const (
	backoffBase        = time.Second
	backoffCoefficient = 2.0
)

// Dialer is implemented by a specific transport (e.g. transport/tcp) for
// the subset of addresses it can dial.
type Dialer interface {
	CanDial(ma.Multiaddr) bool
	Dial(ctx context.Context, addr ma.Multiaddr, expectedPeer peer.ID) (network.Conn, error)
}

type backoffEntry struct {
	consecutiveFailures int
	until               time.Time
}

// Swarm implements network.Network.
type Swarm struct {
	local     peer.ID
	peerstore *peerstore.Peerstore
	dialers   []Dialer
	nonce     []byte

	mu        sync.Mutex
	conns     map[peer.ID][]network.Conn
	dialing   map[peer.ID]chan struct{}
	backoff   map[string]*backoffEntry

	notifMu sync.RWMutex
	notifees []network.Notifiee

	streamHandler network.StreamHandler

	listeners []io_closer
	listenAddrs []ma.Multiaddr
}

type io_closer interface{ Close() error }

// New constructs a Swarm for the given local identity, backed by ps for
// address/key lookups and dialers for transport-specific dial/accept.
func New(local peer.ID, ps *peerstore.Peerstore, dialers ...Dialer) *Swarm {
	nonce, err := msmux.RandNonce()
	if err != nil {
		// crypto/rand failing is effectively unreachable; fall back to a
		// zero nonce rather than propagate an error through New's signature.
		nonce = make([]byte, 32)
	}
	return &Swarm{
		local:     local,
		peerstore: ps,
		dialers:   dialers,
		nonce:     nonce,
		conns:     make(map[peer.ID][]network.Conn),
		dialing:   make(map[peer.ID]chan struct{}),
		backoff:   make(map[string]*backoffEntry),
	}
}

func (s *Swarm) LocalPeer() peer.ID { return s.local }

func backoffKey(p peer.ID, addr ma.Multiaddr) string {
	return string(p) + "|" + addr.String()
}

func (s *Swarm) backedOff(p peer.ID, addr ma.Multiaddr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.backoff[backoffKey(p, addr)]
	if !ok {
		return false
	}
	return time.Now().Before(e.until)
}

func (s *Swarm) recordFailure(p peer.ID, addr ma.Multiaddr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := backoffKey(p, addr)
	e, ok := s.backoff[key]
	if !ok {
		e = &backoffEntry{}
		s.backoff[key] = e
	}
	e.consecutiveFailures++
	delay := time.Duration(float64(backoffBase) * math.Pow(backoffCoefficient, float64(e.consecutiveFailures)))
	e.until = time.Now().Add(delay)
}

func (s *Swarm) clearBackoff(p peer.ID, addr ma.Multiaddr) {
	s.mu.Lock()
	delete(s.backoff, backoffKey(p, addr))
	s.mu.Unlock()
}

// Dial returns an existing connection to p if one is open, otherwise
// dials p's known addresses (deduplicating concurrent dials from other
// callers into a single attempt) until one succeeds or all fail.
func (s *Swarm) Dial(ctx context.Context, p peer.ID) (network.Conn, error) {
	if p == s.local {
		return nil, network.ErrDialSelf
	}
	if conns := s.ConnsToPeer(p); len(conns) > 0 {
		return conns[0], nil
	}

	s.mu.Lock()
	if ch, ok := s.dialing[p]; ok {
		s.mu.Unlock()
		select {
		case <-ch:
			if conns := s.ConnsToPeer(p); len(conns) > 0 {
				return conns[0], nil
			}
			return nil, network.ErrNoConn
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	done := make(chan struct{})
	s.dialing[p] = done
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.dialing, p)
		s.mu.Unlock()
		close(done)
	}()

	addrs := s.peerstore.Addrs.Addresses(p)
	if len(addrs) == 0 {
		return nil, network.ErrNoConn
	}
	if len(addrs) > dialFanout {
		addrs = addrs[:dialFanout]
	}

	type result struct {
		conn network.Conn
		err  error
	}
	resultCh := make(chan result, len(addrs))
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	attempted := 0
	for _, addr := range addrs {
		if s.backedOff(p, addr) {
			continue
		}
		d := s.dialerFor(addr)
		if d == nil {
			continue
		}
		attempted++
		go func(addr ma.Multiaddr, d Dialer) {
			c, err := d.Dial(dialCtx, addr, p)
			if err != nil {
				s.recordFailure(p, addr)
				resultCh <- result{nil, err}
				return
			}
			s.clearBackoff(p, addr)
			resultCh <- result{c, nil}
		}(addr, d)
	}
	if attempted == 0 {
		return nil, network.ErrDialBackoff
	}

	var lastErr error
	for i := 0; i < attempted; i++ {
		r := <-resultCh
		if r.err == nil {
			// a connection from p may have raced in over HandleIncomingConn
			// while we were dialing out; resolve who wins per spec's C2
			// simultaneous-open tie-break before registering either one.
			if existing := s.ConnsToPeer(p); len(existing) > 0 {
				if !s.resolveRace(r.conn, true) {
					r.conn.Close()
					return existing[0], nil
				}
			}
			s.addConn(p, r.conn)
			return r.conn, nil
		}
		lastErr = r.err
	}
	return nil, fmt.Errorf("swarm: all dials to %s failed: %w", p.Pretty(), lastErr)
}

// resolveRace runs the simultaneous-open tie-break over a dedicated stream
// opened on c before c is registered with addConn or handed to any stream
// handler, so the exchange never collides with application protocol
// traffic. asClient selects which side of the msmux handshake this leg
// plays: the dialer of c negotiates as client, the accepter as server. It
// reports whether c should be kept; on any negotiation failure it defaults
// to keeping c, since a peer that doesn't speak the sentinel protocol isn't
// racing at all.
func (s *Swarm) resolveRace(c network.Conn, asClient bool) bool {
	ctx, cancel := context.WithTimeout(context.Background(), simultaneousOpenTimeout)
	defer cancel()

	var st network.Stream
	var err error
	if asClient {
		st, err = c.NewStream(ctx)
	} else {
		st, err = c.AcceptStream()
	}
	if err != nil {
		return true
	}
	defer st.Close()

	remote, err := exchangeNonce(st, asClient, s.nonce)
	if err != nil {
		return true
	}
	isOpener, tied := msmux.ResolveTie(s.nonce, remote)
	if tied {
		return true
	}
	if asClient {
		// c is the connection we dialed: keep it only if we're the opener.
		return isOpener
	}
	// c is the connection we accepted: keep it only if its dialer (the
	// remote) is the opener.
	return !isOpener
}

// exchangeNonce negotiates the SimultaneousConnectID sentinel protocol over
// st and swaps local's nonce for the remote's, in the order appropriate to
// asClient's role in that negotiation.
func exchangeNonce(st network.Stream, asClient bool, local []byte) ([]byte, error) {
	remote := make([]byte, len(local))
	if asClient {
		if _, err := msmux.SelectOneOf([]protocol.ID{msmux.SimultaneousConnectID}, st); err != nil {
			return nil, err
		}
		if _, err := st.Write(local); err != nil {
			return nil, err
		}
		_, err := io.ReadFull(st, remote)
		return remote, err
	}
	supports := func(p protocol.ID) bool { return p == msmux.SimultaneousConnectID }
	if _, err := msmux.Negotiate(st, supports, []protocol.ID{msmux.SimultaneousConnectID}); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(st, remote); err != nil {
		return nil, err
	}
	_, err := st.Write(local)
	return remote, err
}

func (s *Swarm) dialerFor(addr ma.Multiaddr) Dialer {
	for _, d := range s.dialers {
		if d.CanDial(addr) {
			return d
		}
	}
	return nil
}

func (s *Swarm) addConn(p peer.ID, c network.Conn) {
	s.mu.Lock()
	s.conns[p] = append(s.conns[p], c)
	s.mu.Unlock()
	s.notifyConnected(c)
	go s.acceptStreamsLoop(c)
}

// acceptStreamsLoop dispatches every stream the remote opens over c to
// the registered StreamHandler, until AcceptStream returns an error
// (typically because c was closed).
func (s *Swarm) acceptStreamsLoop(c network.Conn) {
	for {
		st, err := c.AcceptStream()
		if err != nil {
			return
		}
		s.mu.Lock()
		h := s.streamHandler
		s.mu.Unlock()
		s.notifyOpenedStream(st)
		if h != nil {
			h(st)
		}
	}
}

// NewStream dials p if necessary, then opens a new stream over the
// resulting connection.
func (s *Swarm) NewStream(ctx context.Context, p peer.ID) (network.Stream, error) {
	c, err := s.Dial(ctx, p)
	if err != nil {
		return nil, err
	}
	st, err := c.NewStream(ctx)
	if err != nil {
		return nil, err
	}
	s.notifyOpenedStream(st)
	return st, nil
}

// Listen records addrs as this network's listen addresses and notifies
// subscribers. Actually binding a socket per address is the transport's
// job (see transport/tcp); callers that also need to accept inbound
// connections run a transport Listener alongside this call and feed
// accepted connections into HandleIncomingConn.
func (s *Swarm) Listen(addrs ...ma.Multiaddr) error {
	s.mu.Lock()
	s.listenAddrs = append(s.listenAddrs, addrs...)
	s.mu.Unlock()
	for _, a := range addrs {
		s.notifyListen(a)
	}
	return nil
}

func (s *Swarm) ListenAddresses() []ma.Multiaddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ma.Multiaddr, len(s.listenAddrs))
	copy(out, s.listenAddrs)
	return out
}

func (s *Swarm) Conns() []network.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []network.Conn
	for _, cs := range s.conns {
		out = append(out, cs...)
	}
	return out
}

func (s *Swarm) ConnsToPeer(p peer.ID) []network.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]network.Conn, len(s.conns[p]))
	copy(out, s.conns[p])
	return out
}

func (s *Swarm) ClosePeer(p peer.ID) error {
	s.mu.Lock()
	conns := s.conns[p]
	delete(s.conns, p)
	s.mu.Unlock()
	var firstErr error
	for _, c := range conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.notifyDisconnected(c)
	}
	return firstErr
}

func (s *Swarm) Connectedness(p peer.ID) network.Connectedness {
	if len(s.ConnsToPeer(p)) > 0 {
		return network.Connected
	}
	if len(s.peerstore.Addrs.Addresses(p)) > 0 {
		return network.CanConnect
	}
	return network.NotConnected
}

func (s *Swarm) Peers() []peer.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]peer.ID, 0, len(s.conns))
	for p := range s.conns {
		out = append(out, p)
	}
	return out
}

func (s *Swarm) Notify(n network.Notifiee) {
	s.notifMu.Lock()
	s.notifees = append(s.notifees, n)
	s.notifMu.Unlock()
}

func (s *Swarm) StopNotify(n network.Notifiee) {
	s.notifMu.Lock()
	defer s.notifMu.Unlock()
	for i, existing := range s.notifees {
		if existing == n {
			s.notifees = append(s.notifees[:i], s.notifees[i+1:]...)
			return
		}
	}
}

func (s *Swarm) SetStreamHandler(h network.StreamHandler) {
	s.mu.Lock()
	s.streamHandler = h
	s.mu.Unlock()
}

// HandleIncomingConn registers c (already upgraded) as an inbound
// connection and notifies subscribers. If an outbound dial to the same
// peer is in flight, this is a simultaneous-open race (spec C2): the
// tie-break in resolveRace decides whether c or the dialer's own
// connection survives.
func (s *Swarm) HandleIncomingConn(c network.Conn) {
	p := c.RemotePeer()
	s.mu.Lock()
	_, racing := s.dialing[p]
	s.mu.Unlock()
	if racing {
		if !s.resolveRace(c, false) {
			c.Close()
			return
		}
	}
	s.addConn(p, c)
}

// ConnAccepter is satisfied by a transport listener (e.g. tcp.Listener):
// something that produces already-upgraded inbound connections.
type ConnAccepter interface {
	Accept(ctx context.Context) (network.Conn, error)
	Close() error
}

// ServeListener repeatedly accepts connections from l, registering each
// one, until Accept returns an error (typically because l was closed).
// It is meant to be run in its own goroutine per listener.
func (s *Swarm) ServeListener(ctx context.Context, l ConnAccepter) error {
	for {
		c, err := l.Accept(ctx)
		if err != nil {
			return err
		}
		s.HandleIncomingConn(c)
	}
}

func (s *Swarm) notifyConnected(c network.Conn) {
	s.notifMu.RLock()
	defer s.notifMu.RUnlock()
	for _, n := range s.notifees {
		n.Connected(s, c)
	}
}

func (s *Swarm) notifyDisconnected(c network.Conn) {
	s.notifMu.RLock()
	defer s.notifMu.RUnlock()
	for _, n := range s.notifees {
		n.Disconnected(s, c)
	}
}

func (s *Swarm) notifyOpenedStream(st network.Stream) {
	s.notifMu.RLock()
	defer s.notifMu.RUnlock()
	for _, n := range s.notifees {
		n.OpenedStream(s, st)
	}
}

func (s *Swarm) notifyListen(a ma.Multiaddr) {
	s.notifMu.RLock()
	defer s.notifMu.RUnlock()
	for _, n := range s.notifees {
		n.Listen(s, a)
	}
}

// Close closes every open connection.
func (s *Swarm) Close() error {
	s.mu.Lock()
	var conns []network.Conn
	for _, cs := range s.conns {
		conns = append(conns, cs...)
	}
	s.conns = make(map[peer.ID][]network.Conn)
	s.mu.Unlock()
	var firstErr error
	for _, c := range conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ network.Network = (*Swarm)(nil)
