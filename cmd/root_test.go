package cmd

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/qri-io/ioes"

	"github.com/qri-io/libp2p/config"
)

// fakeGenerator returns a fixed identity so config-bootstrap tests don't
// pay for real key generation.
type fakeGenerator struct {
	privKey, peerID string
}

func (g fakeGenerator) GeneratePrivateKeyAndPeerID() (string, string) {
	return g.privKey, g.peerID
}

func newTestRootOptions(t *testing.T) (*RootOptions, func()) {
	t.Helper()
	dir, err := ioutil.TempDir("", "libp2p_cmd_test")
	if err != nil {
		t.Fatal(err)
	}

	p2p := config.DefaultP2PForTesting()
	o := &RootOptions{
		IOStreams: ioes.NewDiscardIOStreams(),
		ctx:       context.Background(),
		repoPath:  dir,
		generator: fakeGenerator{privKey: p2p.PrivKey, peerID: p2p.PeerID},
	}
	return o, func() { os.RemoveAll(dir) }
}

func TestNewRootCommandRegistersSubcommands(t *testing.T) {
	root := NewRootCommand(context.Background(), func() string { return "" }, fakeGenerator{}, ioes.NewDiscardIOStreams())

	want := map[string]bool{"daemon": true, "id": true, "connect [multiaddr]": true, "ping [multiaddr]": true}
	got := map[string]bool{}
	for _, c := range root.Commands() {
		got[c.Use] = true
	}
	for use := range want {
		if !got[use] {
			t.Errorf("expected root command to register %q, got %v", use, got)
		}
	}
}

func TestLoadConfigGeneratesAndPersistsIdentity(t *testing.T) {
	o, cleanup := newTestRootOptions(t)
	defer cleanup()

	cfg, err := o.LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.P2P.PeerID == "" {
		t.Fatal("expected LoadConfig to generate a peer ID")
	}
	if _, err := os.Stat(filepath.Join(o.repoPath, "config.yaml")); err != nil {
		t.Fatalf("expected config.yaml to be written: %s", err)
	}
	if _, err := os.Stat(filepath.Join(o.repoPath, "keystore.json")); err != nil {
		t.Fatalf("expected keystore.json to be written: %s", err)
	}

	// a second call, and a fresh RootOptions pointed at the same repo, must
	// both read the identity back rather than minting a new one.
	again, err := o.LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if again.P2P.PeerID != cfg.P2P.PeerID {
		t.Fatal("expected repeated LoadConfig calls to return the cached config")
	}

	o2, cleanup2 := newTestRootOptions(t)
	defer cleanup2()
	o2.repoPath = o.repoPath
	reread, err := o2.LoadConfig()
	if err != nil {
		t.Fatal(err)
	}
	if reread.P2P.PeerID != cfg.P2P.PeerID {
		t.Fatal("expected a fresh RootOptions to read back the same identity from disk")
	}
}
