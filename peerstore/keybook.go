package peerstore

import (
	"errors"
	"sync"

	"github.com/qri-io/libp2p/crypto"
	"github.com/qri-io/libp2p/peer"
)

// ErrKeyMismatch is returned when a key offered for a peer ID doesn't
// actually derive that peer ID.
var ErrKeyMismatch = errors.New("peerstore: key does not match peer id")

// KeyBook tracks the public (and, for the local peer, private) keys
// associated with peers, mirroring the in-memory keybook shape used by
// this module's auth/key package for persisted identities.
type KeyBook struct {
	mu   sync.RWMutex
	pubs map[peer.ID]crypto.PubKey
	privs map[peer.ID]crypto.PrivKey
}

// NewKeyBook constructs an empty KeyBook.
func NewKeyBook() *KeyBook {
	return &KeyBook{
		pubs:  make(map[peer.ID]crypto.PubKey),
		privs: make(map[peer.ID]crypto.PrivKey),
	}
}

// PubKey returns p's public key, recovering it from the peer ID itself
// when possible (identity-hashed IDs embed their key).
func (kb *KeyBook) PubKey(p peer.ID) crypto.PubKey {
	kb.mu.RLock()
	pk, ok := kb.pubs[p]
	kb.mu.RUnlock()
	if ok {
		return pk
	}
	extracted, err := p.ExtractPublicKey()
	if err != nil || extracted == nil {
		return nil
	}
	kb.AddPubKey(p, extracted)
	return extracted
}

// AddPubKey records pk as p's public key, provided it actually matches p.
func (kb *KeyBook) AddPubKey(p peer.ID, pk crypto.PubKey) error {
	if !p.MatchesPublicKey(pk) {
		return ErrKeyMismatch
	}
	kb.mu.Lock()
	kb.pubs[p] = pk
	kb.mu.Unlock()
	return nil
}

// PrivKey returns the private key stored for p, if any (ordinarily only
// ever set for the local peer).
func (kb *KeyBook) PrivKey(p peer.ID) crypto.PrivKey {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	return kb.privs[p]
}

// AddPrivKey records sk as p's private key.
func (kb *KeyBook) AddPrivKey(p peer.ID, sk crypto.PrivKey) error {
	if !p.MatchesPrivateKey(sk) {
		return ErrKeyMismatch
	}
	kb.mu.Lock()
	kb.privs[p] = sk
	kb.mu.Unlock()
	return nil
}

// PeersWithKeys returns every peer this KeyBook has a public key for.
func (kb *KeyBook) PeersWithKeys() []peer.ID {
	kb.mu.RLock()
	defer kb.mu.RUnlock()
	out := make([]peer.ID, 0, len(kb.pubs))
	for p := range kb.pubs {
		out = append(out, p)
	}
	return out
}

func (kb *KeyBook) removePeer(p peer.ID) {
	kb.mu.Lock()
	delete(kb.pubs, p)
	delete(kb.privs, p)
	kb.mu.Unlock()
}
