package plaintext

import (
	"net"
	"sync"
	"testing"

	"github.com/qri-io/libp2p/crypto"
	"github.com/qri-io/libp2p/sec"
)

func TestHandshakeEstablishesIdentities(t *testing.T) {
	skA, _, err := crypto.GenKeyPair(crypto.Ed25519, 0)
	if err != nil {
		t.Fatal(err)
	}
	skB, _, err := crypto.GenKeyPair(crypto.Ed25519, 0)
	if err != nil {
		t.Fatal(err)
	}
	tA, err := New(skA)
	if err != nil {
		t.Fatal(err)
	}
	tB, err := New(skB)
	if err != nil {
		t.Fatal(err)
	}

	connA, connB := net.Pipe()
	var wg sync.WaitGroup
	wg.Add(2)
	var scA, scB sec.SecureConn
	var errA, errB error
	go func() {
		defer wg.Done()
		scA, errA = tA.SecureOutbound(nil, connA, tB.LocalID)
	}()
	go func() {
		defer wg.Done()
		scB, errB = tB.SecureInbound(nil, connB)
	}()
	wg.Wait()

	if errA != nil {
		t.Fatalf("dialer: %s", errA)
	}
	if errB != nil {
		t.Fatalf("listener: %s", errB)
	}
	if scA.RemotePeer() != tB.LocalID {
		t.Fatalf("dialer saw wrong remote peer")
	}
	if scB.RemotePeer() != tA.LocalID {
		t.Fatalf("listener saw wrong remote peer")
	}
}

func TestHandshakeRejectsWrongExpectedPeer(t *testing.T) {
	skA, _, _ := crypto.GenKeyPair(crypto.Ed25519, 0)
	skB, _, _ := crypto.GenKeyPair(crypto.Ed25519, 0)
	skC, _, _ := crypto.GenKeyPair(crypto.Ed25519, 0)
	tA, _ := New(skA)
	tB, _ := New(skB)
	tC, _ := New(skC)

	connA, connB := net.Pipe()
	var wg sync.WaitGroup
	wg.Add(2)
	var errA, errB error
	go func() {
		defer wg.Done()
		_, errA = tA.SecureOutbound(nil, connA, tC.LocalID)
	}()
	go func() {
		defer wg.Done()
		_, errB = tB.SecureInbound(nil, connB)
	}()
	wg.Wait()

	if errA != sec.ErrPeerIDMismatch {
		t.Fatalf("expected ErrPeerIDMismatch, got %v", errA)
	}
	_ = errB
}
