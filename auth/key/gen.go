package key

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/qri-io/libp2p/crypto"
	"github.com/qri-io/libp2p/peer"
)

// CryptoGenerator is an interface for generating cryptographic info like
// private keys and peerIDs.
type CryptoGenerator interface {
	// GeneratePrivateKeyAndPeerID returns a base64 encoded private key, and a
	// peerID
	GeneratePrivateKeyAndPeerID() (string, string)
}

// CryptoSource is a source of cryptographic info
type CryptoSource struct{}

// NewCryptoSource returns a source of p2p cryptographic info that
// performs expensive computations like repeated primality testing
func NewCryptoSource() *CryptoSource {
	return &CryptoSource{}
}

// GeneratePrivateKeyAndPeerID returns a private key and peerID
func (g *CryptoSource) GeneratePrivateKeyAndPeerID() (privKey, peerID string) {
	r := rand.Reader
	// Generate a key pair for this host. This is a relatively expensive operation.
	if priv, pub, err := crypto.GenKeyPairWithReader(crypto.RSA, 2048, r); err == nil {
		if pdata, err := priv.Bytes(); err == nil {
			privKey = base64.StdEncoding.EncodeToString(pdata)
		}
		// Obtain peerID from public key
		if pid, err := peer.IDFromPublicKey(pub); err == nil {
			peerID = pid.Pretty()
		}
	}
	return
}
