// Package plaintext implements the Plaintext/2.0.0 security transport: an
// identity exchange with no encryption, used for testing and for
// environments where confidentiality is handled below this layer.
package plaintext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/qri-io/libp2p/crypto"
	"github.com/qri-io/libp2p/peer"
	"github.com/qri-io/libp2p/sec"
	"github.com/qri-io/libp2p/varint"
)

// ID is the multistream-select protocol ID for this transport.
const ID = "/plaintext/2.0.0"

// ErrBadExchange is returned when the remote's exchange message doesn't
// decode or its embedded peer ID doesn't match its own public key.
var ErrBadExchange = errors.New("plaintext: malformed identity exchange")

// Transport implements sec.SecureTransport with no encryption: both sides
// exchange their peer ID and public key in the clear and verify the
// binding between them.
type Transport struct {
	LocalID  peer.ID
	PrivKey  crypto.PrivKey
}

// New constructs a plaintext transport bound to the given identity.
func New(sk crypto.PrivKey) (*Transport, error) {
	id, err := peer.IDFromPrivateKey(sk)
	if err != nil {
		return nil, err
	}
	return &Transport{LocalID: id, PrivKey: sk}, nil
}

func (t *Transport) ID() string { return ID }

// exchange is the wire message each side sends: its peer ID and public
// key, length-prefixed in sequence.
type exchange struct {
	id peer.ID
	pk crypto.PubKey
}

func writeExchange(w net.Conn, e exchange) error {
	pkBytes, err := crypto.MarshalPublicKey(e.pk)
	if err != nil {
		return err
	}
	buf := &bytes.Buffer{}
	varint.WriteUvarint(buf, uint64(len(e.id)))
	buf.WriteString(string(e.id))
	varint.WriteUvarint(buf, uint64(len(pkBytes)))
	buf.Write(pkBytes)
	_, err = w.Write(buf.Bytes())
	return err
}

func readExchange(r net.Conn) (exchange, error) {
	br := byteReader{r}
	idLen, err := varint.ReadUvarint(br)
	if err != nil {
		return exchange{}, fmt.Errorf("%w: %s", ErrBadExchange, err)
	}
	idBuf := make([]byte, idLen)
	if _, err := readFull(r, idBuf); err != nil {
		return exchange{}, fmt.Errorf("%w: %s", ErrBadExchange, err)
	}
	id, err := peer.IDFromBytes(idBuf)
	if err != nil {
		return exchange{}, fmt.Errorf("%w: %s", ErrBadExchange, err)
	}
	pkLen, err := varint.ReadUvarint(br)
	if err != nil {
		return exchange{}, fmt.Errorf("%w: %s", ErrBadExchange, err)
	}
	pkBuf := make([]byte, pkLen)
	if _, err := readFull(r, pkBuf); err != nil {
		return exchange{}, fmt.Errorf("%w: %s", ErrBadExchange, err)
	}
	pk, err := crypto.UnmarshalPublicKey(pkBuf)
	if err != nil {
		return exchange{}, fmt.Errorf("%w: %s", ErrBadExchange, err)
	}
	if !id.MatchesPublicKey(pk) {
		return exchange{}, fmt.Errorf("%w: peer id does not match embedded public key", ErrBadExchange)
	}
	return exchange{id: id, pk: pk}, nil
}

func readFull(r net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

type byteReader struct{ net.Conn }

func (b byteReader) ReadByte() (byte, error) {
	var tmp [1]byte
	_, err := readFull(b.Conn, tmp[:])
	return tmp[0], err
}

func (t *Transport) handshake(conn net.Conn, expectedPeer peer.ID) (sec.SecureConn, error) {
	local := exchange{id: t.LocalID, pk: t.PrivKey.GetPublic()}
	errCh := make(chan error, 1)
	go func() { errCh <- writeExchange(conn, local) }()

	remote, err := readExchange(conn)
	if err != nil {
		return nil, err
	}
	if writeErr := <-errCh; writeErr != nil {
		return nil, writeErr
	}
	if expectedPeer != "" && remote.id != expectedPeer {
		return nil, sec.ErrPeerIDMismatch
	}
	return &secureConn{Conn: conn, local: t.LocalID, remote: remote.id, remotePub: remote.pk}, nil
}

func (t *Transport) SecureInbound(ctx context.Context, conn net.Conn) (sec.SecureConn, error) {
	return t.handshake(conn, "")
}

func (t *Transport) SecureOutbound(ctx context.Context, conn net.Conn, expectedPeer peer.ID) (sec.SecureConn, error) {
	return t.handshake(conn, expectedPeer)
}

type secureConn struct {
	net.Conn
	local     peer.ID
	remote    peer.ID
	remotePub crypto.PubKey
}

func (c *secureConn) LocalPeer() peer.ID             { return c.local }
func (c *secureConn) RemotePeer() peer.ID            { return c.remote }
func (c *secureConn) RemotePublicKey() crypto.PubKey { return c.remotePub }

var _ sec.SecureTransport = (*Transport)(nil)
