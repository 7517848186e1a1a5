// Package ping implements a minimal liveness/latency check: send a random
// payload, expect the exact same bytes echoed back, and treat the
// round-trip time as a latency sample.
package ping

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"time"

	logging "github.com/ipfs/go-log"

	"github.com/qri-io/libp2p/network"
	"github.com/qri-io/libp2p/peer"
	basichost "github.com/qri-io/libp2p/host/basic"
	"github.com/qri-io/libp2p/protocol"
)

var log = logging.Logger("net/ping")

// ID is the protocol this package speaks.
const ID protocol.ID = "/ipfs/ping/1.0.0"

// pingSize is the number of random bytes exchanged per ping.
const pingSize = 32

// Timeout is the deadline pingOnce sets on the stream when ctx has none.
// Over mplex streams, which do not enforce deadlines, neither Timeout nor
// ctx interrupts a round trip that is already waiting for the echo.
const Timeout = 60 * time.Second

// PingService answers pings addressed to this host and can issue pings
// to others.
type PingService struct {
	host *basichost.Host
}

// NewPingService registers a ping stream handler on h and returns a
// PingService that can also originate pings from h.
func NewPingService(h *basichost.Host) *PingService {
	s := &PingService{host: h}
	h.SetStreamHandler(ID, s.handleStream)
	return s
}

func (s *PingService) handleStream(st network.Stream) {
	defer st.Close()
	buf := make([]byte, pingSize)
	for {
		if _, err := io.ReadFull(st, buf); err != nil {
			if err != io.EOF {
				st.Reset()
			}
			return
		}
		if _, err := st.Write(buf); err != nil {
			st.Reset()
			return
		}
	}
}

// Ping opens a stream to p, round-trips one random payload, and returns
// the observed latency.
func (s *PingService) Ping(ctx context.Context, p peer.ID) (time.Duration, error) {
	st, err := s.host.NewStream(ctx, p, ID)
	if err != nil {
		return 0, fmt.Errorf("ping: opening stream to %s: %w", p.Pretty(), err)
	}
	defer st.Close()
	return pingOnce(ctx, st, s.host.Peerstore().Metrics, p)
}

func pingOnce(ctx context.Context, st network.Stream, metrics interface {
	RecordLatency(peer.ID, time.Duration)
}, p peer.ID) (time.Duration, error) {
	if deadline, ok := ctx.Deadline(); ok {
		st.SetDeadline(deadline)
	} else {
		st.SetDeadline(time.Now().Add(Timeout))
	}

	out := make([]byte, pingSize)
	if _, err := rand.Read(out); err != nil {
		return 0, fmt.Errorf("ping: generating payload: %w", err)
	}

	start := time.Now()
	if _, err := st.Write(out); err != nil {
		st.Reset()
		return 0, fmt.Errorf("ping: writing payload: %w", err)
	}

	in := make([]byte, pingSize)
	if _, err := io.ReadFull(st, in); err != nil {
		st.Reset()
		return 0, fmt.Errorf("ping: reading echo: %w", err)
	}
	rtt := time.Since(start)

	for i := range out {
		if out[i] != in[i] {
			st.Reset()
			return 0, fmt.Errorf("ping: echoed payload does not match what was sent")
		}
	}

	if metrics != nil {
		metrics.RecordLatency(p, rtt)
	}
	log.Debugf("ping: %s: %s", p.Pretty(), rtt)
	return rtt, nil
}

// PingN runs count successive pings against p and returns every observed
// round-trip time, stopping at the first error.
func (s *PingService) PingN(ctx context.Context, p peer.ID, count int) ([]time.Duration, error) {
	st, err := s.host.NewStream(ctx, p, ID)
	if err != nil {
		return nil, fmt.Errorf("ping: opening stream to %s: %w", p.Pretty(), err)
	}
	defer st.Close()

	rtts := make([]time.Duration, 0, count)
	metrics := s.host.Peerstore().Metrics
	for i := 0; i < count; i++ {
		rtt, err := pingOnce(ctx, st, metrics, p)
		if err != nil {
			return rtts, err
		}
		rtts = append(rtts, rtt)
	}
	return rtts, nil
}
