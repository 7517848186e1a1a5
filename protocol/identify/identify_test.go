package identify

import (
	"bytes"
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

func TestMessageRoundTrip(t *testing.T) {
	a1, _ := ma.NewMultiaddr("/ip4/127.0.0.1/tcp/4001")
	a2, _ := ma.NewMultiaddr("/ip4/192.168.1.1/tcp/4001")
	mes := &message{
		Protocols:        []string{"/a/1.0.0", "/b/1.0.0"},
		ListenAddrs:      []ma.Multiaddr{a1, a2},
		ObservedAddr:     a2,
		PublicKey:        []byte{1, 2, 3, 4},
		ProtocolVersion:  "qri-libp2p/0.1.0",
		AgentVersion:     "test-agent/0.1",
		SignedPeerRecord: []byte{5, 6, 7},
	}

	buf := &bytes.Buffer{}
	if err := mes.marshal(buf); err != nil {
		t.Fatal(err)
	}
	got, err := unmarshalMessage(buf)
	if err != nil {
		t.Fatal(err)
	}

	if len(got.Protocols) != 2 || got.Protocols[0] != "/a/1.0.0" || got.Protocols[1] != "/b/1.0.0" {
		t.Fatalf("protocols mismatch: %v", got.Protocols)
	}
	if len(got.ListenAddrs) != 2 || !got.ListenAddrs[0].Equal(a1) || !got.ListenAddrs[1].Equal(a2) {
		t.Fatalf("listen addrs mismatch: %v", got.ListenAddrs)
	}
	if got.ObservedAddr == nil || !got.ObservedAddr.Equal(a2) {
		t.Fatalf("observed addr mismatch: %v", got.ObservedAddr)
	}
	if !bytes.Equal(got.PublicKey, mes.PublicKey) {
		t.Fatalf("public key mismatch")
	}
	if got.ProtocolVersion != mes.ProtocolVersion || got.AgentVersion != mes.AgentVersion {
		t.Fatalf("version strings mismatch")
	}
	if !bytes.Equal(got.SignedPeerRecord, mes.SignedPeerRecord) {
		t.Fatalf("signed peer record mismatch")
	}
}

func TestMessageRoundTripEmpty(t *testing.T) {
	mes := &message{}
	buf := &bytes.Buffer{}
	if err := mes.marshal(buf); err != nil {
		t.Fatal(err)
	}
	got, err := unmarshalMessage(buf)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Protocols) != 0 || len(got.ListenAddrs) != 0 {
		t.Fatalf("expected empty message, got %+v", got)
	}
	if got.ObservedAddr != nil {
		t.Fatalf("expected nil observed addr, got %v", got.ObservedAddr)
	}
}

// testNode bundles a real loopback-TCP host plus its identify service.
type testNode struct {
	host *basichost.Host
	ids  *IDService
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
	ps.Keys.AddPrivKey(id, sk)
	tr := tcp.New(up)
	sw := swarm.New(id, ps, tr)

	listenAddr, _ := ma.NewMultiaddr("/ip4/127.0.0.1/tcp/0")
	ln, err := tr.Listen(listenAddr)
	if err != nil {
		t.Fatal(err)
	}
	go sw.ServeListener(ctx, ln)

	h := basichost.New(sw, ps)
	ids := NewIDService(h)
	return &testNode{host: h, ids: ids, ln: ln}
}

func (n *testNode) addrInfo() peer.AddrInfo {
	return peer.AddrInfo{ID: n.host.ID(), Addrs: []ma.Multiaddr{n.ln.Multiaddr()}}
}

func (n *testNode) close() {
	n.ids.Close()
	n.ln.Close()
	n.host.Close()
}

func TestIdentifyPopulatesPeerstore(t *testing.T) {
	ctx := context.Background()
	h1 := newTestNode(t, ctx)
	h2 := newTestNode(t, ctx)
	defer h1.close()
	defer h2.close()

	if err := h1.host.Connect(ctx, h2.addrInfo()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	conns := h1.host.Network().ConnsToPeer(h2.host.ID())
	if len(conns) == 0 {
		t.Fatal("expected a connection to h2")
	}

	select {
	case <-h1.ids.IdentifyWait(conns[0]):
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for identify")
	}

	protos := h1.host.Peerstore().Protocols.GetProtocols(h2.host.ID())
	found := false
	for _, p := range protos {
		if p == ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected h2's protocol list to include identify itself, got %v", protos)
	}

	av, ok := h1.host.Peerstore().Metadata.Get(h2.host.ID(), "AgentVersion")
	if !ok || av != LibP2PVersion {
		t.Fatalf("expected AgentVersion %q, got %v (ok=%v)", LibP2PVersion, av, ok)
	}

	pk := h1.host.Peerstore().Keys.PubKey(h2.host.ID())
	if pk == nil {
		t.Fatal("expected h2's public key to be recoverable after identify")
	}
}

func TestHasConsistentTransport(t *testing.T) {
	tcp1, _ := ma.NewMultiaddr("/ip4/1.2.3.4/tcp/4001")
	tcp2, _ := ma.NewMultiaddr("/ip4/5.6.7.8/tcp/4002")
	udp1, _ := ma.NewMultiaddr("/ip4/1.2.3.4/udp/4001")

	if !HasConsistentTransport(tcp1, []ma.Multiaddr{tcp2}) {
		t.Fatal("expected tcp1 to be consistent with tcp2 (same protocol sequence)")
	}
	if HasConsistentTransport(udp1, []ma.Multiaddr{tcp2}) {
		t.Fatal("expected udp1 to be inconsistent with tcp2")
	}
}
