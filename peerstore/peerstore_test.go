package peerstore

import (
	"testing"
	"time"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/qri-io/libp2p/crypto"
	"github.com/qri-io/libp2p/peer"
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

func TestAddressBookAddAndExpire(t *testing.T) {
	ab := NewAddressBook()
	defer ab.Close()
	p := testPeerID(t)
	a, _ := ma.NewMultiaddr("/ip4/1.2.3.4/tcp/4001")
	ab.AddAddress(p, a, 20*time.Millisecond)
	if got := ab.Addresses(p); len(got) != 1 {
		t.Fatalf("expected 1 address, got %d", len(got))
	}
	time.Sleep(40 * time.Millisecond)
	if got := ab.Addresses(p); len(got) != 0 {
		t.Fatalf("expected address to have expired, got %d", len(got))
	}
}

func TestAddressBookAddrStream(t *testing.T) {
	ab := NewAddressBook()
	defer ab.Close()
	p := testPeerID(t)
	ch := ab.AddrStream(p)
	a, _ := ma.NewMultiaddr("/ip4/1.2.3.4/tcp/4001")
	ab.AddAddress(p, a, time.Minute)
	select {
	case got := <-ch:
		if got.String() != a.String() {
			t.Fatalf("got %s want %s", got, a)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for address stream")
	}
}

func TestProtocolBookTooMany(t *testing.T) {
	pb := NewProtocolBook()
	p := testPeerID(t)
	ids := make([]protocol.ID, maxProtocols+1)
	for i := range ids {
		ids[i] = protocol.ID("/test/1.0.0")
	}
	err := pb.SetProtocols(p, ids...)
	if err != ErrTooManyProtocols {
		t.Fatalf("expected ErrTooManyProtocols, got %v", err)
	}
}

func TestKeyBookMismatch(t *testing.T) {
	kb := NewKeyBook()
	p := testPeerID(t)
	_, otherPk, err := crypto.GenKeyPair(crypto.Ed25519, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := kb.AddPubKey(p, otherPk); err != ErrKeyMismatch {
		t.Fatalf("expected ErrKeyMismatch, got %v", err)
	}
}

func TestPeerstoreRemovePeer(t *testing.T) {
	ps := NewPeerstore()
	defer ps.Close()
	p := testPeerID(t)
	a, _ := ma.NewMultiaddr("/ip4/1.2.3.4/tcp/4001")
	ps.Addrs.AddAddress(p, a, time.Minute)
	ps.Metadata.Put(p, "k", "v")
	ps.RemovePeer(p)
	if len(ps.Addrs.Addresses(p)) != 0 {
		t.Fatal("expected addresses cleared")
	}
	if _, ok := ps.Metadata.Get(p, "k"); ok {
		t.Fatal("expected metadata cleared")
	}
}
