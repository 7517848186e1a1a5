package noise

import (
	"net"
	"sync"
	"testing"

	"github.com/qri-io/libp2p/crypto"
	"github.com/qri-io/libp2p/sec"
)

func TestNoiseHandshakeAndTransport(t *testing.T) {
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
	if scA.RemotePeer() != tB.LocalID || scB.RemotePeer() != tA.LocalID {
		t.Fatal("identity mismatch after handshake")
	}

	msg := []byte("hello over noise")
	done := make(chan error, 1)
	go func() {
		_, err := scA.Write(msg)
		done <- err
	}()
	buf := make([]byte, len(msg))
	if _, err := scB.Read(buf); err != nil {
		t.Fatalf("read: %s", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("write: %s", err)
	}
	if string(buf) != string(msg) {
		t.Fatalf("got %q want %q", buf, msg)
	}
}
