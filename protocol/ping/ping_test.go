package ping

import (
	"context"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/qri-io/libp2p/crypto"
	basichost "github.com/qri-io/libp2p/host/basic"
	"github.com/qri-io/libp2p/muxer"
	"github.com/qri-io/libp2p/peer"
	"github.com/qri-io/libp2p/peerstore"
	"github.com/qri-io/libp2p/sec/csms"
	"github.com/qri-io/libp2p/sec/plaintext"
	"github.com/qri-io/libp2p/swarm"
	"github.com/qri-io/libp2p/transport/tcp"
	"github.com/qri-io/libp2p/upgrader"
)

type testNode struct {
	host *basichost.Host
	ping *PingService
	ln   *tcp.Listener
}

func newTestNode(t *testing.T, ctx context.Context) *testNode {
	t.Helper()
	sk, _, err := crypto.GenKeyPair(crypto.Ed25519, 0)
	if err != nil {
		t.Fatal(err)
	}
	id, err := peer.IDFromPrivateKey(sk)
	if err != nil {
		t.Fatal(err)
	}

	pt, err := plaintext.New(sk)
	if err != nil {
		t.Fatal(err)
	}
	secReg := csms.NewRegistry()
	secReg.Add(pt)
	muxReg := muxer.NewRegistry()
	muxReg.Add(muxer.MplexTransport{})
	up := upgrader.New(secReg, muxReg, nil)

	ps := peerstore.NewPeerstore()
	tr := tcp.New(up)
	sw := swarm.New(id, ps, tr)

	listenAddr, _ := ma.NewMultiaddr("/ip4/127.0.0.1/tcp/0")
	ln, err := tr.Listen(listenAddr)
	if err != nil {
		t.Fatal(err)
	}
	go sw.ServeListener(ctx, ln)

	h := basichost.New(sw, ps)
	return &testNode{host: h, ping: NewPingService(h), ln: ln}
}

func (n *testNode) addrInfo() peer.AddrInfo {
	return peer.AddrInfo{ID: n.host.ID(), Addrs: []ma.Multiaddr{n.ln.Multiaddr()}}
}

func (n *testNode) close() {
	n.ln.Close()
	n.host.Close()
}

func TestPingRoundTrip(t *testing.T) {
	ctx := context.Background()
	h1 := newTestNode(t, ctx)
	h2 := newTestNode(t, ctx)
	defer h1.close()
	defer h2.close()

	if err := h1.host.Connect(ctx, h2.addrInfo()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	rtt, err := h1.ping.Ping(ctx, h2.host.ID())
	if err != nil {
		t.Fatalf("ping: %v", err)
	}
	if rtt <= 0 {
		t.Fatalf("expected a positive rtt, got %s", rtt)
	}

	if _, ok := h1.host.Peerstore().Metrics.LatencyEWMA(h2.host.ID()); !ok {
		t.Fatal("expected ping to record a latency sample")
	}
}

func TestPingThreePeersFiveTimes(t *testing.T) {
	ctx := context.Background()
	nodes := make([]*testNode, 3)
	for i := range nodes {
		nodes[i] = newTestNode(t, ctx)
		defer nodes[i].close()
	}

	for i, p1 := range nodes {
		for _, p2 := range nodes[i+1:] {
			if err := p1.host.Connect(ctx, p2.addrInfo()); err != nil {
				t.Fatalf("connect %s -> %s: %v", p1.host.ID(), p2.host.ID(), err)
			}
		}
	}

	for i, p1 := range nodes {
		for _, p2 := range nodes[i+1:] {
			rtts, err := p1.ping.PingN(ctx, p2.host.ID(), 5)
			if err != nil {
				t.Fatalf("%s -> %s: %v", p1.host.ID().Pretty(), p2.host.ID().Pretty(), err)
			}
			if len(rtts) != 5 {
				t.Fatalf("expected 5 rtt samples, got %d", len(rtts))
			}
			for _, rtt := range rtts {
				if rtt <= 0 {
					t.Fatalf("expected positive rtt, got %s", rtt)
				}
			}
		}
	}
}

func TestPingFailsAgainstPeerWithoutHandler(t *testing.T) {
	ctx := context.Background()
	h1 := newTestNode(t, ctx)
	h2 := newTestNode(t, ctx)
	defer h1.close()
	defer h2.close()

	h2.host.RemoveStreamHandler(ID)

	if err := h1.host.Connect(ctx, h2.addrInfo()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	ctx2, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	if _, err := h1.ping.Ping(ctx2, h2.host.ID()); err == nil {
		t.Fatal("expected ping against a peer with no ping handler to fail")
	}
}
