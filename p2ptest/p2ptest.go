// Package p2ptest provides helpers for standing up small networks of
// connected test nodes, the same shape qri's own p2p/test package
// provides for its dataset-sync tests (NewTestNodeFactory,
// NewTestDirNetwork, ConnectNodes), generalized here to this module's
// own host/swarm stack instead of a dataset-aware node.
package p2ptest

import (
	"context"
	"fmt"

	basichost "github.com/qri-io/libp2p/host/basic"
	"github.com/qri-io/libp2p/muxer"
	"github.com/qri-io/libp2p/peer"
	"github.com/qri-io/libp2p/peerstore"
	"github.com/qri-io/libp2p/protocol/identify"
	"github.com/qri-io/libp2p/protocol/ping"
	"github.com/qri-io/libp2p/sec/csms"
	"github.com/qri-io/libp2p/sec/plaintext"
	"github.com/qri-io/libp2p/swarm"
	"github.com/qri-io/libp2p/transport/tcp"
	"github.com/qri-io/libp2p/upgrader"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/qri-io/libp2p/config"
)

// TestNode bundles a host with the identify and ping services every node
// in a test network speaks, plus the listener backing its one address.
type TestNode struct {
	Host     *basichost.Host
	Identify *identify.IDService
	Ping     *ping.PingService

	sw *swarm.Swarm
	ln *tcp.Listener
}

// Close tears down the node's listener and host.
func (n *TestNode) Close() error {
	if n.ln != nil {
		n.ln.Close()
	}
	n.Identify.Close()
	return n.Host.Close()
}

// AddrInfo returns the node's own peer ID and listen address.
func (n *TestNode) AddrInfo() peer.AddrInfo {
	return peer.AddrInfo{ID: n.Host.ID(), Addrs: n.Host.Addrs()}
}

// NewTestNode builds a single node listening on an ephemeral loopback
// port, secured with plaintext (test networks have no need for noise's
// handshake cost).
func NewTestNode(ctx context.Context) (*TestNode, error) {
	p := config.DefaultP2PForTesting()
	sk, err := p.DecodePrivateKey()
	if err != nil {
		return nil, err
	}
	id, err := peer.IDFromPrivateKey(sk)
	if err != nil {
		return nil, err
	}

	pt, err := plaintext.New(sk)
	if err != nil {
		return nil, err
	}
	secReg := csms.NewRegistry()
	secReg.Add(pt)

	muxReg := muxer.NewRegistry()
	muxReg.Add(muxer.MplexTransport{})

	up := upgrader.New(secReg, muxReg, nil)
	ps := peerstore.NewPeerstore()
	if err := ps.Keys.AddPrivKey(id, sk); err != nil {
		return nil, err
	}

	tr := tcp.New(up)
	sw := swarm.New(id, ps, tr)

	addr, err := ma.NewMultiaddr("/ip4/127.0.0.1/tcp/0")
	if err != nil {
		return nil, err
	}
	ln, err := tr.Listen(addr)
	if err != nil {
		return nil, err
	}
	if err := sw.Listen(ln.Multiaddr()); err != nil {
		return nil, err
	}
	go sw.ServeListener(ctx, ln)

	h := basichost.New(sw, ps)
	return &TestNode{
		Host:     h,
		Identify: identify.NewIDService(h),
		Ping:     ping.NewPingService(h),
		sw:       sw,
		ln:       ln,
	}, nil
}

// NewTestNetwork builds n independent, unconnected test nodes.
func NewTestNetwork(ctx context.Context, n int) ([]*TestNode, error) {
	nodes := make([]*TestNode, 0, n)
	for i := 0; i < n; i++ {
		node, err := NewTestNode(ctx)
		if err != nil {
			for _, built := range nodes {
				built.Close()
			}
			return nil, fmt.Errorf("p2ptest: building node %d: %w", i, err)
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// ConnectNodes dials every node in the network to every other node,
// forming a full mesh, and waits for each resulting connection's
// identify handshake to complete.
func ConnectNodes(ctx context.Context, nodes []*TestNode) error {
	for i, a := range nodes {
		for j, b := range nodes {
			if i == j {
				continue
			}
			if err := a.Host.Connect(ctx, b.AddrInfo()); err != nil {
				return fmt.Errorf("p2ptest: connecting node %d to node %d: %w", i, j, err)
			}
			if conns := a.sw.ConnsToPeer(b.Host.ID()); len(conns) > 0 {
				select {
				case <-a.Identify.IdentifyWait(conns[0]):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
	return nil
}
