package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Revision != CurrentConfigRevision {
		t.Errorf("expected Revision %d, got %d", CurrentConfigRevision, cfg.Revision)
	}
	if cfg.P2P == nil {
		t.Fatal("expected a non-nil P2P section")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.P2P = DefaultP2PForTesting()
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error validating default config: %s", err)
	}

	cfg.P2P = nil
	if err := cfg.Validate(); err == nil {
		t.Error("expected missing P2P section to fail validation")
	}
}

func TestConfigReadWriteFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "config_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "config.yaml")
	cfg := DefaultConfig()
	cfg.P2P = DefaultP2PForTesting()

	if err := cfg.WriteToFile(path); err != nil {
		t.Fatalf("writing config: %s", err)
	}

	got, err := ReadFromFile(path)
	if err != nil {
		t.Fatalf("reading config: %s", err)
	}

	if got.Revision != cfg.Revision {
		t.Errorf("expected Revision %d, got %d", cfg.Revision, got.Revision)
	}
	if got.P2P.PeerID != cfg.P2P.PeerID {
		t.Errorf("expected PeerID %q, got %q", cfg.P2P.PeerID, got.P2P.PeerID)
	}
	if got.P2P.PrivKey != cfg.P2P.PrivKey {
		t.Errorf("expected PrivKey to round-trip")
	}
}

func TestConfigCopy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.P2P = DefaultP2PForTesting()

	cpy := cfg.Copy()
	cpy.P2P.PeerID = "changed"
	if cfg.P2P.PeerID == "changed" {
		t.Error("expected Copy to deep-copy the P2P section")
	}
}

func TestConfigWithoutPrivateValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.P2P = DefaultP2PForTesting()

	pub := cfg.WithoutPrivateValues()
	if pub.P2P.PrivKey != "" {
		t.Error("expected WithoutPrivateValues to clear PrivKey")
	}
	if cfg.P2P.PrivKey == "" {
		t.Error("expected original config to be unaffected")
	}

	restored := pub.WithPrivateValues(cfg)
	if restored.P2P.PrivKey != cfg.P2P.PrivKey {
		t.Error("expected WithPrivateValues to graft PrivKey back in")
	}
}

func TestImmutablePaths(t *testing.T) {
	paths := ImmutablePaths()
	if !paths["p2p.peerid"] || !paths["p2p.privkey"] {
		t.Error("expected p2p identity fields to be immutable")
	}
}
