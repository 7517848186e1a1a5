package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/qri-io/libp2p/config"
)

func newTestP2PConfig(t *testing.T) *config.P2P {
	t.Helper()
	p := config.DefaultP2PForTesting()
	p.ListenAddrs = []string{"/ip4/127.0.0.1/tcp/0"}
	return p
}

func TestNewNodeListensAndClosesCleanly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n, err := newNode(ctx, newTestP2PConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	defer n.Close()

	ai := n.addrInfo()
	if len(ai.Addrs) == 0 {
		t.Fatal("expected node to report at least one listen address")
	}
	if ai.ID.Pretty() == "" {
		t.Fatal("expected node to report a peer ID")
	}
}

func TestTwoNodesConnectAndPing(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a, err := newNode(ctx, newTestP2PConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	b, err := newNode(ctx, newTestP2PConfig(t))
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	bInfo := b.addrInfo()
	if err := a.host.Connect(ctx, bInfo); err != nil {
		t.Fatalf("connecting a -> b: %s", err)
	}

	durations, err := a.ping.PingN(ctx, bInfo.ID, 2)
	if err != nil {
		t.Fatalf("pinging b from a: %s", err)
	}
	if len(durations) != 2 {
		t.Fatalf("expected 2 ping durations, got %d", len(durations))
	}
	for _, d := range durations {
		if d <= 0 {
			t.Error("expected a positive round-trip duration")
		}
	}
}
