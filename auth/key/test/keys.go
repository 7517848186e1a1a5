// Package test supplies small, deterministic key fixtures for tests
// elsewhere in the module that need a stable identity without paying
// for key generation on every run.
package test

import (
	"bytes"
	"fmt"

	"github.com/qri-io/libp2p/crypto"
	"github.com/qri-io/libp2p/peer"
)

// KeyData bundles a generated identity for use in tests.
type KeyData struct {
	PeerID  peer.ID
	PrivKey crypto.PrivKey
	PubKey  crypto.PubKey
}

var fixtures []KeyData

// GetKeyData returns the i'th fixture key, generating (and caching) it
// and every fixture before it on first use. Each fixture is derived from
// a fixed, index-seeded byte stream, so repeated calls with the same i
// return equivalent keys across test runs.
func GetKeyData(i int) KeyData {
	for len(fixtures) <= i {
		idx := len(fixtures)
		sk, pk, err := crypto.GenKeyPairWithReader(crypto.Ed25519, 0, deterministicReader(idx))
		if err != nil {
			panic(fmt.Errorf("test: generating fixture key %d: %w", idx, err))
		}
		id, err := peer.IDFromPublicKey(pk)
		if err != nil {
			panic(fmt.Errorf("test: deriving fixture peer ID %d: %w", idx, err))
		}
		fixtures = append(fixtures, KeyData{PeerID: id, PrivKey: sk, PubKey: pk})
	}
	return fixtures[i]
}

// deterministicReader produces a fixed 4096-byte, index-seeded byte stream so
// fixture keys are stable across test runs without needing to embed
// real key material in source.
func deterministicReader(seed int) *bytes.Reader {
	buf := make([]byte, 4096)
	state := uint32(seed*2654435761 + 1)
	for i := range buf {
		state = state*1664525 + 1013904223
		buf[i] = byte(state >> 24)
	}
	return bytes.NewReader(buf)
}
