// Package sec defines the SecureConn/SecureTransport contracts that turn a
// raw transport connection into an authenticated, encrypted one during the
// upgrade handshake.
package sec

import (
	"context"
	"errors"
	"net"

	"github.com/qri-io/libp2p/crypto"
	"github.com/qri-io/libp2p/peer"
)

// ErrPeerIDMismatch is returned when the peer ID observed during a secure
// handshake does not match the one the caller expected to dial.
var ErrPeerIDMismatch = errors.New("sec: remote peer id does not match expected id")

// SecureConn is a net.Conn augmented with the identity information the
// handshake established.
type SecureConn interface {
	net.Conn
	LocalPeer() peer.ID
	RemotePeer() peer.ID
	RemotePublicKey() crypto.PubKey
}

// SecureTransport upgrades a raw connection into a SecureConn, either as
// the dialer (SecureOutbound, which knows who it expects to reach) or as
// the listener (SecureInbound, which learns the remote identity from the
// handshake).
type SecureTransport interface {
	// ID is the protocol ID this transport negotiates under
	// multistream-select, e.g. "/noise" or "/plaintext/2.0.0".
	ID() string
	SecureInbound(ctx context.Context, conn net.Conn) (SecureConn, error)
	SecureOutbound(ctx context.Context, conn net.Conn, expectedPeer peer.ID) (SecureConn, error)
}
