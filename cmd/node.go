package cmd

import (
	"context"
	"fmt"

	ma "github.com/multiformats/go-multiaddr"

	basichost "github.com/qri-io/libp2p/host/basic"
	"github.com/qri-io/libp2p/muxer"
	"github.com/qri-io/libp2p/peer"
	"github.com/qri-io/libp2p/peerstore"
	"github.com/qri-io/libp2p/protocol/identify"
	"github.com/qri-io/libp2p/protocol/ping"
	"github.com/qri-io/libp2p/sec/csms"
	"github.com/qri-io/libp2p/sec/noise"
	"github.com/qri-io/libp2p/sec/plaintext"
	"github.com/qri-io/libp2p/swarm"
	"github.com/qri-io/libp2p/transport/tcp"
	"github.com/qri-io/libp2p/upgrader"

	"github.com/qri-io/libp2p/config"
)

// node bundles together the pieces a running libp2p process needs: a
// host to dial and accept streams, the identify and ping protocols
// every peer speaks, and the listeners backing the host's announced
// addresses.
type node struct {
	host     *basichost.Host
	identify *identify.IDService
	ping     *ping.PingService
	sw       *swarm.Swarm
	listeners []*tcp.Listener
}

// newNode wires up a host from a P2P config: decode (or require) an
// identity, build the security/muxer stack, bind every configured listen
// address, and register the identify and ping protocols. It mirrors the
// same stack protocol/identify and protocol/ping's test harnesses build
// by hand, just pointed at real configuration instead of throwaway test
// keys.
func newNode(ctx context.Context, cfg *config.P2P) (*node, error) {
	sk, err := cfg.DecodePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("cmd: loading identity: %w", err)
	}
	id, err := peer.IDFromPrivateKey(sk)
	if err != nil {
		return nil, fmt.Errorf("cmd: deriving peer ID: %w", err)
	}

	noiseTr, err := noise.New(sk)
	if err != nil {
		return nil, fmt.Errorf("cmd: building noise transport: %w", err)
	}
	plaintextTr, err := plaintext.New(sk)
	if err != nil {
		return nil, fmt.Errorf("cmd: building plaintext transport: %w", err)
	}
	secReg := csms.NewRegistry()
	secReg.Add(noiseTr)
	secReg.Add(plaintextTr)

	muxReg := muxer.NewRegistry()
	muxReg.Add(muxer.MplexTransport{})

	up := upgrader.New(secReg, muxReg, nil)
	ps := peerstore.NewPeerstore()
	if err := ps.Keys.AddPrivKey(id, sk); err != nil {
		return nil, fmt.Errorf("cmd: storing identity: %w", err)
	}

	tr := tcp.New(up)
	sw := swarm.New(id, ps, tr)

	n := &node{sw: sw}
	for _, addrStr := range cfg.ListenAddrs {
		addr, err := ma.NewMultiaddr(addrStr)
		if err != nil {
			return nil, fmt.Errorf("cmd: parsing listen address %q: %w", addrStr, err)
		}
		ln, err := tr.Listen(addr)
		if err != nil {
			return nil, fmt.Errorf("cmd: listening on %q: %w", addrStr, err)
		}
		if err := sw.Listen(ln.Multiaddr()); err != nil {
			return nil, err
		}
		go sw.ServeListener(ctx, ln)
		n.listeners = append(n.listeners, ln)
	}

	n.host = basichost.New(sw, ps)
	n.identify = identify.NewIDService(n.host)
	n.ping = ping.NewPingService(n.host)
	return n, nil
}

func (n *node) Close() error {
	for _, ln := range n.listeners {
		ln.Close()
	}
	n.identify.Close()
	return n.host.Close()
}

// addrInfo returns this node's own peer ID and every address it's
// listening on, suitable for printing or handing to a peer out of band.
func (n *node) addrInfo() peer.AddrInfo {
	return peer.AddrInfo{ID: n.host.ID(), Addrs: n.host.Addrs()}
}

// connectBootstrap dials every /p2p/ multiaddr in addrs, joining the
// network the way the daemon's p2p.bootstrapaddrs promises at startup. A
// peer that can't be reached is reported through report rather than
// aborting the rest of the list.
func (n *node) connectBootstrap(ctx context.Context, addrs []string, report func(addr string, err error)) {
	for _, addrStr := range addrs {
		m, err := ma.NewMultiaddr(addrStr)
		if err != nil {
			report(addrStr, fmt.Errorf("cmd: parsing bootstrap address: %w", err))
			continue
		}
		ai, err := peer.AddrInfoFromP2pAddr(m)
		if err != nil {
			report(addrStr, fmt.Errorf("cmd: parsing bootstrap address: %w", err))
			continue
		}
		if err := n.host.Connect(ctx, *ai); err != nil {
			report(addrStr, err)
		}
	}
}
