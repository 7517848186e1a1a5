// Package record implements signed, self-describing records: a generic
// signature envelope (used to carry certified peer address records between
// peers without trusting the transport) and the PeerRecord payload that
// rides inside it.
package record

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/qri-io/libp2p/crypto"
	"github.com/qri-io/libp2p/peer"
	"github.com/qri-io/libp2p/varint"
)

// domain is prepended to the signed payload so a signature produced for
// one use (e.g. a different envelope payload type) can never be replayed
// as a valid signature for another.
const domain = "libp2p-peer-record"

// ErrInvalidSignature is returned by Envelope.Validate when the signature
// does not verify against the embedded public key.
var ErrInvalidSignature = errors.New("record: invalid envelope signature")

// ErrPayloadTypeMismatch is returned when consuming an envelope whose
// declared payload type does not match the expected one.
var ErrPayloadTypeMismatch = errors.New("record: payload type mismatch")

// Envelope is a signed container for an opaque payload, letting a
// PeerRecord (or any other typed record) be passed around and verified
// without the carrier needing to understand its contents.
type Envelope struct {
	PublicKey   crypto.PubKey
	PayloadType []byte
	Payload     []byte
	Signature   []byte
}

// payloadTypePeerRecord tags envelopes carrying a PeerRecord payload.
var payloadTypePeerRecord = []byte("peer-record")

// signaturePayload reconstructs the exact byte sequence that was signed:
// the domain string as-is, then payload-type length-prefixed, then payload
// length-prefixed, binding all three together.
func signaturePayload(payloadType, payload []byte) []byte {
	buf := &bytes.Buffer{}
	buf.WriteString(domain)
	writeLP(buf, payloadType)
	writeLP(buf, payload)
	return buf.Bytes()
}

func writeLP(buf *bytes.Buffer, b []byte) {
	varint.WriteUvarint(buf, uint64(len(b)))
	buf.Write(b)
}

func readLP(r io.Reader) ([]byte, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufReader{r}
	}
	n, err := varint.ReadUvarint(br)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// bufReader adapts an io.Reader lacking ReadByte to io.ByteReader.
type bufReader struct{ io.Reader }

func (b bufReader) ReadByte() (byte, error) {
	var tmp [1]byte
	_, err := io.ReadFull(b, tmp[:])
	return tmp[0], err
}

// MakeEnvelope signs payload (of the given payloadType) with sk and wraps
// it in an Envelope carrying sk's public key.
func MakeEnvelope(sk crypto.PrivKey, payloadType, payload []byte) (*Envelope, error) {
	sig, err := sk.Sign(signaturePayload(payloadType, payload))
	if err != nil {
		return nil, err
	}
	return &Envelope{
		PublicKey:   sk.GetPublic(),
		PayloadType: payloadType,
		Payload:     payload,
		Signature:   sig,
	}, nil
}

// Validate checks that the envelope's signature matches its payload.
func (e *Envelope) Validate() error {
	ok, err := e.PublicKey.Verify(signaturePayload(e.PayloadType, e.Payload), e.Signature)
	if err != nil {
		return fmt.Errorf("record: verifying envelope: %w", err)
	}
	if !ok {
		return ErrInvalidSignature
	}
	return nil
}

// Marshal encodes the envelope as a sequence of length-prefixed fields:
// public key, payload type, payload, signature.
func (e *Envelope) Marshal() ([]byte, error) {
	pkBytes, err := crypto.MarshalPublicKey(e.PublicKey)
	if err != nil {
		return nil, err
	}
	buf := &bytes.Buffer{}
	writeLP(buf, pkBytes)
	writeLP(buf, e.PayloadType)
	writeLP(buf, e.Payload)
	writeLP(buf, e.Signature)
	return buf.Bytes(), nil
}

// Unmarshal decodes an envelope previously produced by Marshal, without
// validating its signature (callers should call Validate explicitly).
func Unmarshal(data []byte) (*Envelope, error) {
	r := bytes.NewReader(data)
	pkBytes, err := readLP(r)
	if err != nil {
		return nil, fmt.Errorf("record: reading public key: %w", err)
	}
	pk, err := crypto.UnmarshalPublicKey(pkBytes)
	if err != nil {
		return nil, fmt.Errorf("record: unmarshaling public key: %w", err)
	}
	payloadType, err := readLP(r)
	if err != nil {
		return nil, fmt.Errorf("record: reading payload type: %w", err)
	}
	payload, err := readLP(r)
	if err != nil {
		return nil, fmt.Errorf("record: reading payload: %w", err)
	}
	sig, err := readLP(r)
	if err != nil {
		return nil, fmt.Errorf("record: reading signature: %w", err)
	}
	return &Envelope{PublicKey: pk, PayloadType: payloadType, Payload: payload, Signature: sig}, nil
}

// PeerRecord is the canonical self-certified description of a peer: its
// identity, a monotonic sequence number, and the addresses it currently
// listens on.
type PeerRecord struct {
	PeerID    peer.ID
	Seq       uint64
	Addrs     []ma.Multiaddr
}

// Marshal encodes the peer record as a length-prefixed field sequence.
func (r *PeerRecord) Marshal() ([]byte, error) {
	buf := &bytes.Buffer{}
	writeLP(buf, []byte(r.PeerID))
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], r.Seq)
	buf.Write(seqBuf[:])
	varint.WriteUvarint(buf, uint64(len(r.Addrs)))
	for _, a := range r.Addrs {
		writeLP(buf, a.Bytes())
	}
	return buf.Bytes(), nil
}

// UnmarshalPeerRecord decodes a PeerRecord previously produced by Marshal.
func UnmarshalPeerRecord(data []byte) (*PeerRecord, error) {
	r := bytes.NewReader(data)
	idBytes, err := readLP(r)
	if err != nil {
		return nil, fmt.Errorf("record: reading peer id: %w", err)
	}
	id, err := peer.IDFromBytes(idBytes)
	if err != nil {
		return nil, fmt.Errorf("record: decoding peer id: %w", err)
	}
	var seqBuf [8]byte
	if _, err := io.ReadFull(r, seqBuf[:]); err != nil {
		return nil, fmt.Errorf("record: reading seq: %w", err)
	}
	seq := binary.BigEndian.Uint64(seqBuf[:])
	n, err := varint.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("record: reading addr count: %w", err)
	}
	addrs := make([]ma.Multiaddr, 0, n)
	for i := uint64(0); i < n; i++ {
		ab, err := readLP(r)
		if err != nil {
			return nil, fmt.Errorf("record: reading addr: %w", err)
		}
		a, err := ma.NewMultiaddrBytes(ab)
		if err != nil {
			return nil, fmt.Errorf("record: parsing addr: %w", err)
		}
		addrs = append(addrs, a)
	}
	return &PeerRecord{PeerID: id, Seq: seq, Addrs: addrs}, nil
}

// MakePeerRecordEnvelope signs a PeerRecord under sk and wraps it as an
// Envelope tagged with the peer-record payload type.
func MakePeerRecordEnvelope(sk crypto.PrivKey, rec *PeerRecord) (*Envelope, error) {
	payload, err := rec.Marshal()
	if err != nil {
		return nil, err
	}
	return MakeEnvelope(sk, payloadTypePeerRecord, payload)
}

// ConsumePeerRecord validates e and, if it carries a peer-record payload,
// decodes and returns it.
func ConsumePeerRecord(e *Envelope) (*PeerRecord, error) {
	if !bytes.Equal(e.PayloadType, payloadTypePeerRecord) {
		return nil, ErrPayloadTypeMismatch
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return UnmarshalPeerRecord(e.Payload)
}
