// Package noise implements the Noise XX security transport, using
// flynn/noise for the handshake state machine and cipher suite, and
// binding the static Noise key to a libp2p identity key by way of a
// signature carried in the handshake payload.
package noise

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/flynn/noise"

	"github.com/qri-io/libp2p/crypto"
	"github.com/qri-io/libp2p/peer"
	"github.com/qri-io/libp2p/sec"
)

// ID is the multistream-select protocol ID for this transport.
const ID = "/noise"

// payloadSigPrefix is prepended to the static Noise public key before
// signing, so the signature cannot be reused as a signature over the raw
// key for an unrelated purpose.
const payloadSigPrefix = "noise-libp2p-static-key:"

// maxFrameLen is the largest single length-prefixed Noise message this
// transport will read, guarding against a peer claiming an absurd length.
const maxFrameLen = 65535

var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// ErrHandshakeFailed wraps any failure during the XX handshake or the
// identity-binding signature check that follows it.
var ErrHandshakeFailed = errors.New("noise: handshake failed")

// Transport implements sec.SecureTransport using the Noise XX pattern.
type Transport struct {
	LocalID peer.ID
	PrivKey crypto.PrivKey
}

// New constructs a Noise transport bound to the given identity key.
func New(sk crypto.PrivKey) (*Transport, error) {
	id, err := peer.IDFromPrivateKey(sk)
	if err != nil {
		return nil, err
	}
	return &Transport{LocalID: id, PrivKey: sk}, nil
}

func (t *Transport) ID() string { return ID }

func writeFrame(w io.Writer, b []byte) error {
	if len(b) > maxFrameLen {
		return fmt.Errorf("noise: frame too large: %d", len(b))
	}
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// identityPayload is what each side sends as the Noise handshake payload:
// its libp2p public key and a signature over its ephemeral-free static
// Noise key, binding the two identities together.
type identityPayload struct {
	pubKey crypto.PubKey
	sig    []byte
}

func encodeIdentityPayload(p identityPayload) ([]byte, error) {
	pkBytes, err := crypto.MarshalPublicKey(p.pubKey)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, 4+len(pkBytes)+4+len(p.sig))
	buf = appendLP(buf, pkBytes)
	buf = appendLP(buf, p.sig)
	return buf, nil
}

func appendLP(buf, field []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(field)))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, field...)
	return buf
}

func decodeIdentityPayload(data []byte) (identityPayload, error) {
	pkBytes, rest, err := readLP32(data)
	if err != nil {
		return identityPayload{}, err
	}
	sig, _, err := readLP32(rest)
	if err != nil {
		return identityPayload{}, err
	}
	pk, err := crypto.UnmarshalPublicKey(pkBytes)
	if err != nil {
		return identityPayload{}, err
	}
	return identityPayload{pubKey: pk, sig: sig}, nil
}

func readLP32(data []byte) (field, rest []byte, err error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("noise: truncated identity payload")
	}
	n := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	if uint64(len(data)) < uint64(n) {
		return nil, nil, fmt.Errorf("noise: truncated identity payload field")
	}
	return data[:n], data[n:], nil
}

func (t *Transport) handshake(conn net.Conn, initiator bool, expectedPeer peer.ID) (sec.SecureConn, error) {
	staticKeypair, err := cipherSuite.GenerateKeypair(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: generating static keypair: %s", ErrHandshakeFailed, err)
	}

	sig, err := t.PrivKey.Sign(append([]byte(payloadSigPrefix), staticKeypair.Public...))
	if err != nil {
		return nil, fmt.Errorf("%w: signing static key: %s", ErrHandshakeFailed, err)
	}
	myPayload, err := encodeIdentityPayload(identityPayload{pubKey: t.PrivKey.GetPublic(), sig: sig})
	if err != nil {
		return nil, fmt.Errorf("%w: encoding payload: %s", ErrHandshakeFailed, err)
	}

	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Pattern:       noise.HandshakeXX,
		Initiator:     initiator,
		StaticKeypair: staticKeypair,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: initializing handshake state: %s", ErrHandshakeFailed, err)
	}

	var remotePayload []byte
	var csOut, csIn *noise.CipherState

	step := func(send bool, payload []byte) ([]byte, error) {
		if send {
			out, cs1, cs2, err := hs.WriteMessage(nil, payload)
			if err != nil {
				return nil, err
			}
			if err := writeFrame(conn, out); err != nil {
				return nil, err
			}
			if cs1 != nil {
				csOut, csIn = cs1, cs2
			}
			return nil, nil
		}
		in, err := readFrame(conn)
		if err != nil {
			return nil, err
		}
		out, cs1, cs2, err := hs.ReadMessage(nil, in)
		if err != nil {
			return nil, err
		}
		if cs1 != nil {
			csOut, csIn = cs1, cs2
		}
		return out, nil
	}

	// Noise XX: -> e, <- e,ee,s,es, -> s,se, with the payload carrying our
	// identity proof riding on the second and third messages.
	if initiator {
		if _, err := step(true, nil); err != nil {
			return nil, fmt.Errorf("%w: msg1: %s", ErrHandshakeFailed, err)
		}
		payload, err := step(false, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: msg2: %s", ErrHandshakeFailed, err)
		}
		remotePayload = payload
		if _, err := step(true, myPayload); err != nil {
			return nil, fmt.Errorf("%w: msg3: %s", ErrHandshakeFailed, err)
		}
	} else {
		if _, err := step(false, nil); err != nil {
			return nil, fmt.Errorf("%w: msg1: %s", ErrHandshakeFailed, err)
		}
		if _, err := step(true, myPayload); err != nil {
			return nil, fmt.Errorf("%w: msg2: %s", ErrHandshakeFailed, err)
		}
		payload, err := step(false, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: msg3: %s", ErrHandshakeFailed, err)
		}
		remotePayload = payload
	}

	remoteIdentity, err := decodeIdentityPayload(remotePayload)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding remote identity: %s", ErrHandshakeFailed, err)
	}
	remoteID, err := peer.IDFromPublicKey(remoteIdentity.pubKey)
	if err != nil {
		return nil, fmt.Errorf("%w: deriving remote peer id: %s", ErrHandshakeFailed, err)
	}
	if expectedPeer != "" && remoteID != expectedPeer {
		return nil, sec.ErrPeerIDMismatch
	}
	ok, err := remoteIdentity.pubKey.Verify(append([]byte(payloadSigPrefix), hs.PeerStatic()...), remoteIdentity.sig)
	if err != nil || !ok {
		return nil, fmt.Errorf("%w: remote static key signature invalid", ErrHandshakeFailed)
	}

	return &transportConn{
		Conn:      conn,
		local:     t.LocalID,
		remote:    remoteID,
		remotePub: remoteIdentity.pubKey,
		send:      csOut,
		recv:      csIn,
	}, nil
}

func (t *Transport) SecureInbound(ctx context.Context, conn net.Conn) (sec.SecureConn, error) {
	return t.handshake(conn, false, "")
}

func (t *Transport) SecureOutbound(ctx context.Context, conn net.Conn, expectedPeer peer.ID) (sec.SecureConn, error) {
	return t.handshake(conn, true, expectedPeer)
}

// transportConn wraps the raw connection with the two Noise transport
// cipher states established by the handshake, encrypting every frame
// written and decrypting every frame read.
type transportConn struct {
	net.Conn
	local, remote peer.ID
	remotePub     crypto.PubKey
	send, recv    *noise.CipherState
	readBuf       []byte
}

func (c *transportConn) LocalPeer() peer.ID             { return c.local }
func (c *transportConn) RemotePeer() peer.ID            { return c.remote }
func (c *transportConn) RemotePublicKey() crypto.PubKey { return c.remotePub }

func (c *transportConn) Write(b []byte) (int, error) {
	const maxPlaintext = maxFrameLen - 16
	total := 0
	for len(b) > 0 {
		chunk := b
		if len(chunk) > maxPlaintext {
			chunk = chunk[:maxPlaintext]
		}
		ct := c.send.Encrypt(nil, nil, chunk)
		if err := writeFrame(c.Conn, ct); err != nil {
			return total, err
		}
		total += len(chunk)
		b = b[len(chunk):]
	}
	return total, nil
}

func (c *transportConn) Read(b []byte) (int, error) {
	if len(c.readBuf) == 0 {
		ct, err := readFrame(c.Conn)
		if err != nil {
			return 0, err
		}
		pt, err := c.recv.Decrypt(nil, nil, ct)
		if err != nil {
			return 0, fmt.Errorf("noise: decrypting frame: %w", err)
		}
		c.readBuf = pt
	}
	n := copy(b, c.readBuf)
	c.readBuf = c.readBuf[n:]
	return n, nil
}

var _ sec.SecureTransport = (*Transport)(nil)
