// Package mplex implements the mplex stream-multiplexing protocol: a
// single connection carries many logical, flow-controlled streams, each
// framed with a stream ID and a small tag identifying the frame's purpose.
package mplex

import (
	"fmt"
	"io"

	"github.com/qri-io/libp2p/varint"
)

// Tag identifies the purpose of an mplex frame.
type Tag int

const (
	TagNewStream       Tag = 0
	TagMessageReceiver  Tag = 1
	TagMessageInitiator Tag = 2
	TagCloseReceiver    Tag = 3
	TagCloseInitiator   Tag = 4
	TagResetReceiver    Tag = 5
	TagResetInitiator   Tag = 6
)

// MaxNewStreamPayload bounds the name sent with a NewStream frame.
const MaxNewStreamPayload = 1024

// MaxMessagePayload bounds any single message frame's payload.
const MaxMessagePayload = 1 << 20

// Frame is one length-prefixed mplex protocol data unit.
type Frame struct {
	StreamID uint64
	Tag      Tag
	Payload  []byte
}

// header packs (streamID << 3) | tag into a single varint per the mplex
// wire format.
func header(streamID uint64, tag Tag) uint64 {
	return (streamID << 3) | uint64(tag)
}

func unpackHeader(h uint64) (streamID uint64, tag Tag) {
	return h >> 3, Tag(h & 0x7)
}

// WriteFrame writes f to w as header-varint, length-varint, payload.
func WriteFrame(w io.Writer, f Frame) error {
	if f.Tag == TagNewStream && len(f.Payload) > MaxNewStreamPayload {
		return fmt.Errorf("mplex: new stream name too long: %d bytes", len(f.Payload))
	}
	if (f.Tag == TagMessageReceiver || f.Tag == TagMessageInitiator) && len(f.Payload) > MaxMessagePayload {
		return fmt.Errorf("mplex: message payload too large: %d bytes", len(f.Payload))
	}
	if err := varint.WriteUvarint(w, header(f.StreamID, f.Tag)); err != nil {
		return err
	}
	if err := varint.WriteUvarint(w, uint64(len(f.Payload))); err != nil {
		return err
	}
	_, err := w.Write(f.Payload)
	return err
}

// ReadFrame reads one frame from r, enforcing the same per-tag payload
// bounds WriteFrame does.
func ReadFrame(r interface {
	io.Reader
	io.ByteReader
}) (Frame, error) {
	h, err := varint.ReadUvarint(r)
	if err != nil {
		return Frame{}, err
	}
	streamID, tag := unpackHeader(h)
	n, err := varint.ReadUvarint(r)
	if err != nil {
		return Frame{}, err
	}
	limit := uint64(MaxMessagePayload)
	if tag == TagNewStream {
		limit = MaxNewStreamPayload
	}
	if n > limit {
		return Frame{}, fmt.Errorf("mplex: frame payload %d exceeds limit %d", n, limit)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, err
	}
	return Frame{StreamID: streamID, Tag: tag, Payload: payload}, nil
}
