package swarm

import (
	"context"
	"io"
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/qri-io/libp2p/crypto"
	"github.com/qri-io/libp2p/network"
	"github.com/qri-io/libp2p/peer"
	"github.com/qri-io/libp2p/peerstore"
	"github.com/qri-io/libp2p/protocol"
)

func testPeerID(t *testing.T) peer.ID {
	t.Helper()
	_, pk, err := crypto.GenKeyPair(crypto.Ed25519, 0)
	if err != nil {
		t.Fatal(err)
	}
	id, err := peer.IDFromPublicKey(pk)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

type fakeStream struct {
	io.Reader
	io.Writer
	proto protocol.ID
	conn  network.Conn
}

func (s *fakeStream) Close() error                          { return nil }
func (s *fakeStream) Reset() error                           { return nil }
func (s *fakeStream) SetDeadline(time.Time) error            { return nil }
func (s *fakeStream) SetReadDeadline(time.Time) error        { return nil }
func (s *fakeStream) SetWriteDeadline(time.Time) error       { return nil }
func (s *fakeStream) Protocol() protocol.ID                  { return s.proto }
func (s *fakeStream) SetProtocol(p protocol.ID)              { s.proto = p }
func (s *fakeStream) Conn() network.Conn                     { return s.conn }

type fakeConn struct {
	local, remote   peer.ID
	localMA, remoteMA ma.Multiaddr
	closed          bool
}

func (c *fakeConn) Close() error { c.closed = true; return nil }
func (c *fakeConn) NewStream(ctx context.Context) (network.Stream, error) {
	return &fakeStream{Reader: nil, Writer: nil, conn: c}, nil
}
func (c *fakeConn) AcceptStream() (network.Stream, error) {
	return nil, io.EOF
}
func (c *fakeConn) LocalPeer() peer.ID               { return c.local }
func (c *fakeConn) RemotePeer() peer.ID              { return c.remote }
func (c *fakeConn) LocalMultiaddr() ma.Multiaddr     { return c.localMA }
func (c *fakeConn) RemoteMultiaddr() ma.Multiaddr    { return c.remoteMA }
func (c *fakeConn) Stat() network.ConnStats          { return network.ConnStats{Direction: network.DirOutbound, Opened: time.Now()} }
func (c *fakeConn) IsClosed() bool                   { return c.closed }

// fakeDialer succeeds for every address except those marked in failAddr,
// counting attempts per address, letting tests exercise fan-out and
// backoff without a real network.
type fakeDialer struct {
	local    peer.ID
	attempts map[string]int
	failAddr map[string]bool
}

func newFakeDialer(local peer.ID) *fakeDialer {
	return &fakeDialer{local: local, attempts: map[string]int{}, failAddr: map[string]bool{}}
}

func (d *fakeDialer) CanDial(ma.Multiaddr) bool { return true }

func (d *fakeDialer) Dial(ctx context.Context, addr ma.Multiaddr, expectedPeer peer.ID) (network.Conn, error) {
	d.attempts[addr.String()]++
	if d.failAddr[addr.String()] {
		return nil, context.DeadlineExceeded
	}
	return &fakeConn{local: d.local, remote: expectedPeer, localMA: addr, remoteMA: addr}, nil
}

func mustAddr(t *testing.T, s string) ma.Multiaddr {
	t.Helper()
	a, err := ma.NewMultiaddr(s)
	if err != nil {
		t.Fatal(err)
	}
	return a
}

func TestDialSucceedsAndReusesConn(t *testing.T) {
	local := testPeerID(t)
	remote := testPeerID(t)
	ps := peerstore.NewPeerstore()
	defer ps.Close()
	ps.Addrs.AddAddress(remote, mustAddr(t, "/ip4/127.0.0.1/tcp/4001"), time.Minute)

	d := newFakeDialer(local)
	sw := New(local, ps, d)

	c1, err := sw.Dial(context.Background(), remote)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	c2, err := sw.Dial(context.Background(), remote)
	if err != nil {
		t.Fatalf("second dial failed: %v", err)
	}
	if c1 != c2 {
		t.Fatal("expected second dial to reuse the existing connection")
	}
	if got := sw.Connectedness(remote); got != network.Connected {
		t.Fatalf("expected Connected, got %v", got)
	}
}

func TestDialSelfFails(t *testing.T) {
	local := testPeerID(t)
	ps := peerstore.NewPeerstore()
	defer ps.Close()
	sw := New(local, ps, newFakeDialer(local))
	if _, err := sw.Dial(context.Background(), local); err != network.ErrDialSelf {
		t.Fatalf("expected ErrDialSelf, got %v", err)
	}
}

func TestDialNoAddressesFails(t *testing.T) {
	local := testPeerID(t)
	remote := testPeerID(t)
	ps := peerstore.NewPeerstore()
	defer ps.Close()
	sw := New(local, ps, newFakeDialer(local))
	if _, err := sw.Dial(context.Background(), remote); err != network.ErrNoConn {
		t.Fatalf("expected ErrNoConn, got %v", err)
	}
}

func TestDialBackoffAfterFailure(t *testing.T) {
	local := testPeerID(t)
	remote := testPeerID(t)
	ps := peerstore.NewPeerstore()
	defer ps.Close()
	addr := mustAddr(t, "/ip4/127.0.0.1/tcp/4001")
	ps.Addrs.AddAddress(remote, addr, time.Minute)

	d := newFakeDialer(local)
	d.failAddr[addr.String()] = true
	sw := New(local, ps, d)

	if _, err := sw.Dial(context.Background(), remote); err == nil {
		t.Fatal("expected dial failure")
	}
	if d.attempts[addr.String()] != 1 {
		t.Fatalf("expected 1 attempt, got %d", d.attempts[addr.String()])
	}

	// second dial within the backoff window should not retry the address.
	if _, err := sw.Dial(context.Background(), remote); err == nil {
		t.Fatal("expected dial failure due to backoff")
	}
	if d.attempts[addr.String()] != 1 {
		t.Fatalf("expected address to be backed off, attempts=%d", d.attempts[addr.String()])
	}
}

func TestClosePeerNotifiesAndRemoves(t *testing.T) {
	local := testPeerID(t)
	remote := testPeerID(t)
	ps := peerstore.NewPeerstore()
	defer ps.Close()
	ps.Addrs.AddAddress(remote, mustAddr(t, "/ip4/127.0.0.1/tcp/4001"), time.Minute)

	sw := New(local, ps, newFakeDialer(local))
	if _, err := sw.Dial(context.Background(), remote); err != nil {
		t.Fatal(err)
	}

	disconnected := make(chan struct{}, 1)
	n := network.NullNotifiee{}
	_ = n
	sw.Notify(&testNotifiee{disconnected: disconnected})

	if err := sw.ClosePeer(remote); err != nil {
		t.Fatal(err)
	}
	select {
	case <-disconnected:
	case <-time.After(time.Second):
		t.Fatal("expected Disconnected notification")
	}
	if len(sw.ConnsToPeer(remote)) != 0 {
		t.Fatal("expected no connections after ClosePeer")
	}
}

type testNotifiee struct {
	network.NullNotifiee
	disconnected chan struct{}
}

func (n *testNotifiee) Disconnected(network.Network, network.Conn) {
	n.disconnected <- struct{}{}
}
