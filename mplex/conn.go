package mplex

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
)

// ErrConnClosed is returned by operations on a Conn after Close.
var ErrConnClosed = errors.New("mplex: connection closed")

// Conn multiplexes many streams over a single underlying net.Conn. The
// initiator of the underlying connection allocates even stream IDs; the
// other side allocates odd ones, so both sides can open streams without
// coordinating.
type Conn struct {
	nc        net.Conn
	br        *bufio.Reader
	initiator bool

	writeMu sync.Mutex

	mu      sync.Mutex
	streams map[uint64]*stream
	nextID  uint64
	closed  bool

	acceptCh chan *stream
	closeCh  chan struct{}
}

// NewConn wraps nc as an mplex connection. initiator should be true for
// the side that dialed the underlying connection.
func NewConn(nc net.Conn, initiator bool) *Conn {
	c := &Conn{
		nc:        nc,
		br:        bufio.NewReader(nc),
		initiator: initiator,
		streams:   make(map[uint64]*stream),
		acceptCh:  make(chan *stream, 16),
		closeCh:   make(chan struct{}),
	}
	if initiator {
		c.nextID = 0
	} else {
		c.nextID = 1
	}
	go c.readLoop()
	return c
}

func (c *Conn) allocStreamID() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID += 2
	return id
}

// OpenStream allocates a fresh stream and sends the NewStream frame that
// announces it to the peer.
func (c *Conn) OpenStream(name string) (*stream, error) {
	if len(name) > MaxNewStreamPayload {
		return nil, errors.New("mplex: stream name too long")
	}
	id := c.allocStreamID()
	s := newStream(id, true, name, c)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrConnClosed
	}
	c.streams[id] = s
	c.mu.Unlock()

	if err := c.writeFrame(Frame{StreamID: id, Tag: TagNewStream, Payload: []byte(name)}); err != nil {
		c.removeStream(id)
		return nil, err
	}
	return s, nil
}

// AcceptStream blocks until a peer-initiated stream arrives or the
// connection closes.
func (c *Conn) AcceptStream() (*stream, error) {
	select {
	case s := <-c.acceptCh:
		return s, nil
	case <-c.closeCh:
		return nil, ErrConnClosed
	}
}

func (c *Conn) writeFrame(f Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteFrame(c.nc, f)
}

func (c *Conn) removeStream(id uint64) {
	c.mu.Lock()
	delete(c.streams, id)
	c.mu.Unlock()
}

func (c *Conn) getStream(id uint64) (*stream, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.streams[id]
	return s, ok
}

// remoteInitiated reports whether a stream ID was allocated by the peer,
// based on the odd/even split assigned at connection setup.
func (c *Conn) remoteInitiated(id uint64) bool {
	if c.initiator {
		return id%2 == 1
	}
	return id%2 == 0
}

func (c *Conn) readLoop() {
	defer c.Close()
	for {
		f, err := ReadFrame(c.br)
		if err != nil {
			return
		}
		switch f.Tag {
		case TagNewStream:
			s := newStream(f.StreamID, !c.remoteInitiated(f.StreamID), string(f.Payload), c)
			// the new stream is remote-initiated from our perspective, so
			// frames we send on it use the "receiver" tags: mark it
			// non-initiator.
			s.initiator = false
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}
			c.streams[f.StreamID] = s
			c.mu.Unlock()
			select {
			case c.acceptCh <- s:
			default:
				// backlog full; drop the oldest pending accept rather than
				// block the read loop indefinitely.
				select {
				case <-c.acceptCh:
				default:
				}
				c.acceptCh <- s
			}
		case TagMessageInitiator, TagMessageReceiver:
			s, ok := c.getStream(f.StreamID)
			if !ok {
				continue
			}
			s.pushData(f.Payload)
		case TagCloseInitiator, TagCloseReceiver:
			if s, ok := c.getStream(f.StreamID); ok {
				s.remoteClosed()
			}
		case TagResetInitiator, TagResetReceiver:
			if s, ok := c.getStream(f.StreamID); ok {
				s.remoteReset()
			}
		}
	}
}

// Close shuts down the underlying connection and resets every open
// stream.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	streams := make([]*stream, 0, len(c.streams))
	for _, s := range c.streams {
		streams = append(streams, s)
	}
	c.mu.Unlock()

	close(c.closeCh)
	for _, s := range streams {
		s.Reset()
	}
	return c.nc.Close()
}

var _ io.Closer = (*Conn)(nil)
