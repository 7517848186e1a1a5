// Package msmux implements the multistream-select protocol negotiation
// line protocol: a minimal handshake that lets two ends of a stream agree
// on which application protocol to speak before any of it is sent.
package msmux

import (
	"bufio"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/qri-io/libp2p/protocol"
	"github.com/qri-io/libp2p/varint"
)

// ProtocolID is the handshake token exchanged as the very first message on
// a newly opened stream, identifying the multistream-select version in use.
const ProtocolID = "/multistream/1.0.0"

// SimultaneousConnectID is negotiated as a sentinel protocol when both ends
// of a connection open a stream toward each other at the same time; the
// loser of the tie-break defers to the normal negotiation.
const SimultaneousConnectID = "/libp2p/simultaneous-connect"

const (
	lsMsg = "ls"
	naMsg = "na"
)

// ErrNotSupported is returned by the client helpers when the remote end
// rejects every protocol offered.
var ErrNotSupported = errors.New("msmux: protocol not supported")

// errUnexpectedResponse is returned internally when the remote sends a line
// that the handshake did not ask for.
var errUnexpectedResponse = errors.New("msmux: unexpected response line")

// ReadWriter is the minimal stream capability the negotiator needs: a
// byte-oriented duplex; the negotiator wraps the read side in its own
// bufio.Reader.
type ReadWriter interface {
	io.Reader
	io.Writer
}

// writeLine writes s as a length-prefixed, newline-terminated multistream
// line: varint(len(s)+1) || s || "\n".
func writeLine(w io.Writer, s string) error {
	line := s + "\n"
	if err := varint.WriteUvarint(w, uint64(len(line))); err != nil {
		return err
	}
	_, err := io.WriteString(w, line)
	return err
}

// readLine reads one length-prefixed multistream line and returns it with
// the trailing newline stripped.
func readLine(r *bufio.Reader) (string, error) {
	n, err := varint.ReadUvarint(r)
	if err != nil {
		return "", err
	}
	if n == 0 || n > 64*1024 {
		return "", fmt.Errorf("msmux: invalid line length %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	if buf[n-1] != '\n' {
		return "", fmt.Errorf("msmux: line missing trailing newline")
	}
	return string(buf[:n-1]), nil
}

// handshake performs the initial "/multistream/1.0.0" exchange both sides
// must do before any protocol-selection messages, confirming the peer
// speaks the same handshake version.
func handshake(rw ReadWriter) (*bufio.Reader, error) {
	// both sides send first, so write concurrently with the read: over a
	// synchronous transport a write-then-read order would block both ends.
	errCh := make(chan error, 1)
	go func() { errCh <- writeLine(rw, ProtocolID) }()
	br := bufio.NewReader(rw)
	got, err := readLine(br)
	if err != nil {
		return nil, err
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	if got != ProtocolID {
		return nil, fmt.Errorf("msmux: unexpected handshake response %q", got)
	}
	return br, nil
}

// SelectOneOf runs the client side of negotiation: it performs the
// handshake, then offers each candidate protocol in order until the
// listener accepts one or every candidate is rejected with "na".
func SelectOneOf(protos []protocol.ID, rw ReadWriter) (protocol.ID, error) {
	br, err := handshake(rw)
	if err != nil {
		return "", err
	}
	for _, p := range protos {
		if err := writeLine(rw, string(p)); err != nil {
			return "", err
		}
		resp, err := readLine(br)
		if err != nil {
			return "", err
		}
		switch resp {
		case string(p):
			return p, nil
		case naMsg:
			continue
		default:
			return "", errUnexpectedResponse
		}
	}
	return "", ErrNotSupported
}

// HandlerFunc is invoked by Negotiate once a protocol has been selected,
// given the stream and the chosen protocol ID.
type HandlerFunc func(protocol.ID, ReadWriter) error

// SupportsFunc reports whether the listener can handle the given protocol,
// used during Negotiate's server-side loop.
type SupportsFunc func(protocol.ID) bool

// Negotiate runs the listener side: it performs the handshake, then reads
// candidate protocol lines, responding "na" to anything supports rejects,
// echoing the protocol line back to confirm the first one supports
// accepts, and returning that protocol; rw stays open for the caller.
// A lone "ls" request lists the supported protocols.
func Negotiate(rw ReadWriter, supports SupportsFunc, known []protocol.ID) (protocol.ID, error) {
	br, err := handshake(rw)
	if err != nil {
		return "", err
	}
	for {
		line, err := readLine(br)
		if err != nil {
			return "", err
		}
		if line == lsMsg {
			if err := writeProtocolList(rw, known); err != nil {
				return "", err
			}
			continue
		}
		p := protocol.ID(line)
		if supports(p) {
			if err := writeLine(rw, line); err != nil {
				return "", err
			}
			return p, nil
		}
		if err := writeLine(rw, naMsg); err != nil {
			return "", err
		}
	}
}

func writeProtocolList(w io.Writer, known []protocol.ID) error {
	var sb strings.Builder
	if err := varint.WriteUvarint(&sb, uint64(len(known))); err != nil {
		return err
	}
	for _, p := range known {
		line := string(p) + "\n"
		if err := varint.WriteUvarint(&sb, uint64(len(line))); err != nil {
			return err
		}
		sb.WriteString(line)
	}
	payload := sb.String()
	if err := varint.WriteUvarint(w, uint64(len(payload))); err != nil {
		return err
	}
	_, err := io.WriteString(w, payload)
	return err
}

// RandNonce returns a fresh 32-byte nonce used to break simultaneous-open
// ties: each side sends its nonce and the side with the lexicographically
// larger nonce is declared the opener. An exact nonce collision is
// vanishingly unlikely; ResolveTie reports it as tied, and no fresh
// nonces are drawn.
func RandNonce() ([]byte, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// ResolveTie reports whether local wins the simultaneous-open tie-break
// against remote: the larger nonce, compared byte-wise, is the opener.
func ResolveTie(local, remote []byte) (isOpener bool, tied bool) {
	for i := range local {
		if local[i] > remote[i] {
			return true, false
		}
		if local[i] < remote[i] {
			return false, false
		}
	}
	return false, true
}
