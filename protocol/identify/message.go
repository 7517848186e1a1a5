package identify

import (
	"io"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/qri-io/libp2p/varint"
)

// message is the wire payload exchanged over the identify protocol: the
// same field set as the real go-libp2p-core Identify protobuf message,
// encoded with this module's own length-prefixed framing instead of a
// protobuf runtime (see DESIGN.md "Protobuf avoidance").
type message struct {
	Protocols        []string
	ListenAddrs      []ma.Multiaddr
	ObservedAddr     ma.Multiaddr
	PublicKey        []byte
	ProtocolVersion  string
	AgentVersion     string
	SignedPeerRecord []byte
}

func writeBytes(w io.Writer, b []byte) error {
	if err := varint.WriteUvarint(w, uint64(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func writeString(w io.Writer, s string) error {
	return writeBytes(w, []byte(s))
}

type byteReader struct{ io.Reader }

func (b byteReader) ReadByte() (byte, error) {
	var tmp [1]byte
	if _, err := io.ReadFull(b.Reader, tmp[:]); err != nil {
		return 0, err
	}
	return tmp[0], nil
}

func readBytes(r io.Reader) ([]byte, error) {
	br := byteReader{r}
	n, err := varint.ReadUvarint(br)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func readString(r io.Reader) (string, error) {
	b, err := readBytes(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// marshal writes m's fields to w in a fixed order.
func (m *message) marshal(w io.Writer) error {
	if err := varint.WriteUvarint(w, uint64(len(m.Protocols))); err != nil {
		return err
	}
	for _, p := range m.Protocols {
		if err := writeString(w, p); err != nil {
			return err
		}
	}

	var observed []byte
	if m.ObservedAddr != nil {
		observed = m.ObservedAddr.Bytes()
	}
	if err := writeBytes(w, observed); err != nil {
		return err
	}

	if err := varint.WriteUvarint(w, uint64(len(m.ListenAddrs))); err != nil {
		return err
	}
	for _, a := range m.ListenAddrs {
		if err := writeBytes(w, a.Bytes()); err != nil {
			return err
		}
	}

	if err := writeBytes(w, m.PublicKey); err != nil {
		return err
	}
	if err := writeString(w, m.ProtocolVersion); err != nil {
		return err
	}
	if err := writeString(w, m.AgentVersion); err != nil {
		return err
	}
	return writeBytes(w, m.SignedPeerRecord)
}

// unmarshalMessage reads a message previously written by marshal.
func unmarshalMessage(r io.Reader) (*message, error) {
	br := byteReader{r}
	m := &message{}

	n, err := varint.ReadUvarint(br)
	if err != nil {
		return nil, err
	}
	m.Protocols = make([]string, n)
	for i := range m.Protocols {
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		m.Protocols[i] = s
	}

	observed, err := readBytes(r)
	if err != nil {
		return nil, err
	}
	if len(observed) > 0 {
		if a, err := ma.NewMultiaddrBytes(observed); err == nil {
			m.ObservedAddr = a
		}
	}

	n, err = varint.ReadUvarint(br)
	if err != nil {
		return nil, err
	}
	m.ListenAddrs = make([]ma.Multiaddr, 0, n)
	for i := uint64(0); i < n; i++ {
		b, err := readBytes(r)
		if err != nil {
			return nil, err
		}
		a, err := ma.NewMultiaddrBytes(b)
		if err != nil {
			continue
		}
		m.ListenAddrs = append(m.ListenAddrs, a)
	}

	if m.PublicKey, err = readBytes(r); err != nil {
		return nil, err
	}
	if m.ProtocolVersion, err = readString(r); err != nil {
		return nil, err
	}
	if m.AgentVersion, err = readString(r); err != nil {
		return nil, err
	}
	if m.SignedPeerRecord, err = readBytes(r); err != nil {
		return nil, err
	}
	return m, nil
}
