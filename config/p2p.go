package config

import (
	"encoding/base64"
	"fmt"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/qri-io/libp2p/crypto"
	"github.com/qri-io/libp2p/peer"
)

// P2P encapsulates configuration options for the networking layer: the
// node's persisted identity plus the addresses it listens on and dials
// out to at startup.
type P2P struct {
	// Enabled controls whether the p2p subsystem starts at all.
	Enabled bool `json:"enabled"`
	// PeerID is the base58-encoded peer ID derived from PrivKey. It's
	// kept alongside PrivKey so a config can be inspected without
	// decoding the key.
	PeerID string `json:"peerid"`
	// PrivKey is the node's private key, marshaled and base64-encoded.
	PrivKey string `json:"privkey"`
	// ListenAddrs holds the multiaddrs the host listens on.
	ListenAddrs []string `json:"listenaddrs"`
	// BootstrapAddrs holds multiaddrs of peers to dial at startup to
	// join the network.
	BootstrapAddrs []string `json:"bootstrapaddrs"`
}

// DefaultBootstrapAddrs is consulted by DefaultP2P when it needs
// something to seed BootstrapAddrs with. It's empty by default; a node
// with no bootstrap peers configured simply won't connect to anyone
// until told to.
var DefaultBootstrapAddrs []string

// DefaultP2P gives a new default P2P configuration, with no identity.
// A consumer that needs a usable identity should generate a keypair
// (see auth/key) and fill in PeerID/PrivKey before using it.
func DefaultP2P() *P2P {
	return &P2P{
		Enabled:        true,
		ListenAddrs:    []string{"/ip4/0.0.0.0/tcp/0"},
		BootstrapAddrs: DefaultBootstrapAddrs,
	}
}

// DefaultP2PForTesting gives a P2P config with a freshly generated
// Ed25519 identity and no bootstrap peers, suitable for spinning up
// isolated test hosts.
func DefaultP2PForTesting() *P2P {
	p := DefaultP2P()
	p.BootstrapAddrs = nil

	sk, _, err := crypto.GenKeyPair(crypto.Ed25519, 0)
	if err != nil {
		panic(err)
	}
	skBytes, err := crypto.MarshalPrivateKey(sk)
	if err != nil {
		panic(err)
	}
	id, err := peer.IDFromPrivateKey(sk)
	if err != nil {
		panic(err)
	}

	p.PrivKey = base64.StdEncoding.EncodeToString(skBytes)
	p.PeerID = peer.IDB58Encode(id)
	return p
}

// DecodePrivateKey decodes and unmarshals the configured private key.
func (cfg *P2P) DecodePrivateKey() (crypto.PrivKey, error) {
	if cfg.PrivKey == "" {
		return nil, fmt.Errorf("missing private key")
	}
	data, err := base64.StdEncoding.DecodeString(cfg.PrivKey)
	if err != nil {
		return nil, fmt.Errorf("decoding private key: %w", err)
	}
	return crypto.UnmarshalPrivateKey(data)
}

// Validate checks that a P2P config is internally consistent: if an
// identity is present it must decode and its PeerID must match it, and
// every configured address must parse.
func (cfg *P2P) Validate() error {
	if cfg.PrivKey != "" {
		sk, err := cfg.DecodePrivateKey()
		if err != nil {
			return err
		}
		id, err := peer.IDFromPrivateKey(sk)
		if err != nil {
			return fmt.Errorf("deriving peer ID: %w", err)
		}
		if cfg.PeerID != "" && peer.IDB58Encode(id) != cfg.PeerID {
			return fmt.Errorf("p2p: PeerID does not match PrivKey")
		}
	}
	for _, a := range cfg.ListenAddrs {
		if _, err := ma.NewMultiaddr(a); err != nil {
			return fmt.Errorf("invalid listen address %q: %w", a, err)
		}
	}
	for _, a := range cfg.BootstrapAddrs {
		if _, err := ma.NewMultiaddr(a); err != nil {
			return fmt.Errorf("invalid bootstrap address %q: %w", a, err)
		}
	}
	return nil
}

// Copy returns a deep copy of the P2P config.
func (cfg *P2P) Copy() *P2P {
	res := &P2P{
		Enabled: cfg.Enabled,
		PeerID:  cfg.PeerID,
		PrivKey: cfg.PrivKey,
	}
	if cfg.ListenAddrs != nil {
		res.ListenAddrs = make([]string, len(cfg.ListenAddrs))
		copy(res.ListenAddrs, cfg.ListenAddrs)
	}
	if cfg.BootstrapAddrs != nil {
		res.BootstrapAddrs = make([]string, len(cfg.BootstrapAddrs))
		copy(res.BootstrapAddrs, cfg.BootstrapAddrs)
	}
	return res
}
