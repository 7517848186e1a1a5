// Package identify implements the identify protocol: a small hello
// exchanged right after a connection comes up, telling the other side
// our supported protocols, listen addresses, public key and version
// strings, and letting each side learn the address it was observed
// dialing from.
package identify

import (
	"context"
	"sync"
	"time"

	logging "github.com/ipfs/go-log"
	ma "github.com/multiformats/go-multiaddr"

	basichost "github.com/qri-io/libp2p/host/basic"
	"github.com/qri-io/libp2p/crypto"
	"github.com/qri-io/libp2p/network"
	"github.com/qri-io/libp2p/peer"
	"github.com/qri-io/libp2p/peerstore"
	"github.com/qri-io/libp2p/protocol"
	"github.com/qri-io/libp2p/record"
)

var log = logging.Logger("net/identify")

// ID is the protocol ID this service registers its stream handler under.
const ID protocol.ID = "/p2p/id/1.1.0"

// LibP2PVersion is this module's own protocol-family version string.
const LibP2PVersion = "qri-libp2p/0.1.0"

// transientTTL is a short TTL applied to a peer's addresses the instant
// before fresh ones are confirmed, so there is never a window with no
// addresses at all for a peer we're actively identifying.
const transientTTL = 10 * time.Second

// MetricsTracer records identify traffic; the zero value (noopTracer) does
// nothing. Resolves spec Open Question (b): identify's bandwidth/metrics
// tracer is a no-op interface, with wiring a real backend left to callers.
type MetricsTracer interface {
	IdentifySent(p peer.ID)
	IdentifyReceived(p peer.ID)
}

type noopTracer struct{}

func (noopTracer) IdentifySent(peer.ID)    {}
func (noopTracer) IdentifyReceived(peer.ID) {}

// IDService runs the identify protocol for a Host: it answers identify
// requests from peers and, on every new connection, requests identify
// information from the other side.
type IDService struct {
	host      *basichost.Host
	userAgent string
	tracer    MetricsTracer

	ctx       context.Context
	ctxCancel context.CancelFunc
	closeOnce sync.Once
	refCount  sync.WaitGroup

	connsMu sync.Mutex
	conns   map[network.Conn]chan struct{}

	observedMu sync.Mutex
	observed   map[string]ma.Multiaddr
}

// Option configures an IDService at construction time.
type Option func(*IDService)

// WithUserAgent overrides the default user agent string advertised to peers.
func WithUserAgent(ua string) Option {
	return func(s *IDService) { s.userAgent = ua }
}

// WithMetricsTracer installs a MetricsTracer; without this option identify
// traffic is simply not tracked.
func WithMetricsTracer(t MetricsTracer) Option {
	return func(s *IDService) { s.tracer = t }
}

// NewIDService constructs an IDService bound to h, registers its stream
// handler, and starts identifying every connection h already has or will
// come to have.
func NewIDService(h *basichost.Host, opts ...Option) *IDService {
	ctx, cancel := context.WithCancel(context.Background())
	s := &IDService{
		host:      h,
		userAgent: LibP2PVersion,
		tracer:    noopTracer{},
		ctx:       ctx,
		ctxCancel: cancel,
		conns:     make(map[network.Conn]chan struct{}),
		observed:  make(map[string]ma.Multiaddr),
	}
	for _, opt := range opts {
		opt(s)
	}

	h.SetStreamHandler(ID, s.sendIdentifyResp)
	h.Network().Notify((*netNotifiee)(s))
	return s
}

// Close stops identifying new connections. Already-dispatched identify
// requests are allowed to finish.
func (s *IDService) Close() error {
	s.closeOnce.Do(func() {
		s.ctxCancel()
		s.refCount.Wait()
	})
	return nil
}

// IdentifyWait triggers an identify exchange on c if one hasn't already
// happened (or isn't already in progress), returning a channel that
// closes once it completes.
func (s *IDService) IdentifyWait(c network.Conn) <-chan struct{} {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	if ch, ok := s.conns[c]; ok {
		return ch
	}
	ch := make(chan struct{})
	s.conns[c] = ch
	s.refCount.Add(1)
	go func() {
		defer s.refCount.Done()
		s.identifyConn(c)
		close(ch)
	}()
	return ch
}

func (s *IDService) removeConn(c network.Conn) {
	s.connsMu.Lock()
	delete(s.conns, c)
	s.connsMu.Unlock()
}

func (s *IDService) identifyConn(c network.Conn) {
	st, err := s.host.NewStream(s.ctx, c.RemotePeer(), ID)
	if err != nil {
		log.Debugf("identify: opening stream to %s: %s", c.RemotePeer(), err)
		s.removeConn(c)
		return
	}
	defer st.Close()

	mes, err := unmarshalMessage(st)
	if err != nil {
		log.Debugf("identify: reading message from %s: %s", c.RemotePeer(), err)
		st.Reset()
		return
	}
	s.tracer.IdentifyReceived(c.RemotePeer())
	s.consumeMessage(mes, c)
}

// sendIdentifyResp is the stream handler registered under ID: it answers
// with a populated identify message and closes the stream.
func (s *IDService) sendIdentifyResp(st network.Stream) {
	defer st.Close()
	mes := s.populateMessage(st.Conn())
	if err := mes.marshal(st); err != nil {
		log.Debugf("identify: writing message to %s: %s", st.Conn().RemotePeer(), err)
		st.Reset()
		return
	}
	s.tracer.IdentifySent(st.Conn().RemotePeer())
}

func (s *IDService) populateMessage(c network.Conn) *message {
	protos := s.host.Protocols()
	protoStrs := make([]string, len(protos))
	for i, p := range protos {
		protoStrs[i] = string(p)
	}

	mes := &message{
		Protocols:       protoStrs,
		ObservedAddr:    c.RemoteMultiaddr(),
		ListenAddrs:     s.host.Addrs(),
		ProtocolVersion: LibP2PVersion,
		AgentVersion:    s.userAgent,
	}

	ps := s.host.Peerstore()
	if pk := ps.Keys.PubKey(s.host.ID()); pk != nil {
		if kb, err := crypto.MarshalPublicKey(pk); err == nil {
			mes.PublicKey = kb
		}
	}

	if sk := ps.Keys.PrivKey(s.host.ID()); sk != nil {
		rec := &record.PeerRecord{PeerID: s.host.ID(), Addrs: mes.ListenAddrs}
		if env, err := record.MakePeerRecordEnvelope(sk, rec); err == nil {
			if b, err := env.Marshal(); err == nil {
				mes.SignedPeerRecord = b
			}
		}
	}
	return mes
}

func (s *IDService) consumeMessage(mes *message, c network.Conn) {
	p := c.RemotePeer()
	ps := s.host.Peerstore()

	ps.Protocols.SetProtocols(p, protocolIDs(mes.Protocols)...)

	if mes.ObservedAddr != nil {
		s.recordObserved(c, mes.ObservedAddr)
	}

	green := filterConsistentTransport(c.RemoteMultiaddr(), mes.ListenAddrs)

	ttl := peerstore.RecentlyConnectedAddrTTL
	if s.host.Network().Connectedness(p) == network.Connected {
		ttl = peerstore.ConnectedAddrTTL
	}
	ps.Addrs.UpdateAddresses(p, peerstore.ConnectedAddrTTL, transientTTL)
	if len(green) > 0 {
		ps.Addrs.AddAddresses(p, green, ttl)
	}

	ps.Metadata.Put(p, "ProtocolVersion", mes.ProtocolVersion)
	ps.Metadata.Put(p, "AgentVersion", mes.AgentVersion)

	if len(mes.PublicKey) > 0 {
		s.consumeReceivedPubKey(c, mes.PublicKey)
	}
}

// filterConsistentTransport keeps only the addresses in addrs whose
// transport-protocol sequence matches the connection's own remote
// address, a sanity check against a peer lying about unreachable listen
// addresses on a transport it isn't actually using with us.
func filterConsistentTransport(remote ma.Multiaddr, addrs []ma.Multiaddr) []ma.Multiaddr {
	if remote == nil {
		return addrs
	}
	out := make([]ma.Multiaddr, 0, len(addrs))
	for _, a := range addrs {
		if HasConsistentTransport(a, []ma.Multiaddr{remote}) {
			out = append(out, a)
		}
	}
	return out
}

// HasConsistentTransport reports whether a's sequence of transport
// protocols matches any address in green, used to sanity-filter
// self-reported listen addresses against a connection's own transport.
func HasConsistentTransport(a ma.Multiaddr, green []ma.Multiaddr) bool {
	protos := a.Protocols()
	for _, g := range green {
		gp := g.Protocols()
		if len(gp) != len(protos) {
			continue
		}
		match := true
		for i := range protos {
			if protos[i].Code != gp[i].Code {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func protocolIDs(ss []string) []protocol.ID {
	out := make([]protocol.ID, len(ss))
	for i, s := range ss {
		out[i] = protocol.ID(s)
	}
	return out
}

func (s *IDService) recordObserved(c network.Conn, observed ma.Multiaddr) {
	s.observedMu.Lock()
	defer s.observedMu.Unlock()
	s.observed[c.LocalMultiaddr().String()] = observed
}

// OwnObservedAddrs returns the addresses peers have reported seeing us
// dial from.
func (s *IDService) OwnObservedAddrs() []ma.Multiaddr {
	s.observedMu.Lock()
	defer s.observedMu.Unlock()
	out := make([]ma.Multiaddr, 0, len(s.observed))
	for _, a := range s.observed {
		out = append(out, a)
	}
	return out
}

func (s *IDService) consumeReceivedPubKey(c network.Conn, kb []byte) {
	newKey, err := crypto.UnmarshalPublicKey(kb)
	if err != nil {
		log.Debugf("identify: unmarshaling public key from %s: %s", c.RemotePeer(), err)
		return
	}
	rp := c.RemotePeer()
	if !rp.MatchesPublicKey(newKey) {
		log.Errorf("identify: public key from %s does not match its peer id", rp)
		return
	}
	if err := s.host.Peerstore().Keys.AddPubKey(rp, newKey); err != nil {
		log.Debugf("identify: storing public key for %s: %s", rp, err)
	}
}

type netNotifiee IDService

func (nn *netNotifiee) service() *IDService { return (*IDService)(nn) }

func (nn *netNotifiee) Connected(n network.Network, c network.Conn) {
	nn.service().IdentifyWait(c)
}

func (nn *netNotifiee) Disconnected(n network.Network, c network.Conn) {
	s := nn.service()
	s.removeConn(c)
	if s.host.Network().Connectedness(c.RemotePeer()) != network.Connected {
		s.host.Peerstore().Addrs.UpdateAddresses(c.RemotePeer(), peerstore.ConnectedAddrTTL, peerstore.RecentlyConnectedAddrTTL)
	}
}

func (nn *netNotifiee) OpenedStream(network.Network, network.Stream) {}
func (nn *netNotifiee) ClosedStream(network.Network, network.Stream) {}
func (nn *netNotifiee) Listen(network.Network, ma.Multiaddr)         {}
func (nn *netNotifiee) ListenClose(network.Network, ma.Multiaddr)    {}
