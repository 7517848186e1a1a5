package basichost

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/qri-io/libp2p/crypto"
	"github.com/qri-io/libp2p/muxer"
	"github.com/qri-io/libp2p/network"
	"github.com/qri-io/libp2p/peer"
	"github.com/qri-io/libp2p/peerstore"
	"github.com/qri-io/libp2p/protocol"
	"github.com/qri-io/libp2p/sec/csms"
	"github.com/qri-io/libp2p/sec/plaintext"
	"github.com/qri-io/libp2p/swarm"
	"github.com/qri-io/libp2p/transport/tcp"
	"github.com/qri-io/libp2p/upgrader"
)

// testNode bundles everything needed to run one side of a real,
// loopback-TCP libp2p-style stack: generated identity, peerstore, swarm,
// host, and the TCP listener accepting into that swarm.
type testNode struct {
	host *Host
	ln   *tcp.Listener
	sw   *swarm.Swarm
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

	h := New(sw, ps)
	return &testNode{host: h, ln: ln, sw: sw}
}

func (n *testNode) addrInfo() peer.AddrInfo {
	return peer.AddrInfo{ID: n.host.ID(), Addrs: []ma.Multiaddr{n.ln.Multiaddr()}}
}

func (n *testNode) close() {
	n.ln.Close()
	n.host.Close()
}

func TestHostSimpleEcho(t *testing.T) {
	ctx := context.Background()
	h1 := newTestNode(t, ctx)
	h2 := newTestNode(t, ctx)
	defer h1.close()
	defer h2.close()

	if err := h1.host.Connect(ctx, h2.addrInfo()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	const proto protocol.ID = "/testing/echo/1.0.0"
	h2.host.SetStreamHandler(proto, func(s network.Stream) {
		defer s.Close()
		io.Copy(s, s)
	})

	s, err := h1.host.NewStream(ctx, h2.host.ID(), proto)
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	defer s.Close()

	msg := []byte("abcdefghijkl")
	if _, err := s.Write(msg); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, len(msg))
	if _, err := io.ReadFull(s, got); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(msg, got) {
		t.Fatalf("echo mismatch: got %x want %x", got, msg)
	}
}

func TestHostProtoMismatchFails(t *testing.T) {
	ctx := context.Background()
	h1 := newTestNode(t, ctx)
	h2 := newTestNode(t, ctx)
	defer h1.close()
	defer h2.close()

	if err := h1.host.Connect(ctx, h2.addrInfo()); err != nil {
		t.Fatal(err)
	}
	h2.host.SetStreamHandler("/super", func(s network.Stream) {
		t.Error("should not have reached handler")
		s.Close()
	})

	if _, err := h1.host.NewStream(ctx, h2.host.ID(), "/foo", "/bar", "/baz/1.0.0"); err == nil {
		t.Fatal("expected new stream to fail")
	}
}

func TestHostProtoPreference(t *testing.T) {
	ctx := context.Background()
	h1 := newTestNode(t, ctx)
	h2 := newTestNode(t, ctx)
	defer h1.close()
	defer h2.close()

	if err := h1.host.Connect(ctx, h2.addrInfo()); err != nil {
		t.Fatal(err)
	}

	const protoOld protocol.ID = "/testing"
	const protoNew protocol.ID = "/testing/1.1.0"
	const protoMinor protocol.ID = "/testing/1.2.0"

	connectedOn := make(chan protocol.ID, 8)
	handler := func(s network.Stream) {
		connectedOn <- s.Protocol()
		s.Close()
	}
	h1.host.SetStreamHandler(protoOld, handler)

	s, err := h2.host.NewStream(ctx, h1.host.ID(), protoMinor, protoNew, protoOld)
	if err != nil {
		t.Fatal(err)
	}
	assertProto(t, connectedOn, protoOld)
	s.Close()

	mfunc, err := MultistreamSemverMatcher(protoMinor)
	if err != nil {
		t.Fatal(err)
	}
	h1.host.SetStreamHandlerMatch(protoMinor, mfunc, handler)

	s3, err := h2.host.NewStream(ctx, h1.host.ID(), protoMinor)
	if err != nil {
		t.Fatal(err)
	}
	assertProto(t, connectedOn, protoMinor)
	s3.Close()
}

func assertProto(t *testing.T, c chan protocol.ID, want protocol.ID) {
	t.Helper()
	select {
	case got := <-c:
		if got != want {
			t.Fatalf("expected to connect on %s, got %s", want, got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for stream")
	}
}
