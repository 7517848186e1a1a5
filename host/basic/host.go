// Package basichost implements Host: a Network plus protocol-negotiated
// stream dispatch, connection bring-up from an AddrInfo, and per-peer
// preferred-protocol memory so repeat dials to a peer offer whichever
// protocol last succeeded first.
package basichost

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	semver "github.com/coreos/go-semver/semver"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/qri-io/libp2p/msmux"
	"github.com/qri-io/libp2p/network"
	"github.com/qri-io/libp2p/peer"
	"github.com/qri-io/libp2p/peerstore"
	"github.com/qri-io/libp2p/protocol"
)

// Host composes a Network with protocol multiplexing: registering
// handlers per protocol, negotiating inbound streams against them, and
// remembering which protocol last succeeded with each peer.
type Host struct {
	net network.Network
	ps  *peerstore.Peerstore
	mux *mux

	prefMu    sync.Mutex
	preferred map[peer.ID]protocol.ID
}

// New constructs a Host over net, using ps for address and peer-record
// bookkeeping, and registers the host's own raw-stream dispatcher with
// net so inbound streams get multistream-negotiated against the host's
// registered protocol handlers.
func New(net network.Network, ps *peerstore.Peerstore) *Host {
	h := &Host{
		net:       net,
		ps:        ps,
		mux:       newMux(),
		preferred: make(map[peer.ID]protocol.ID),
	}
	net.SetStreamHandler(h.handleRawStream)
	return h
}

func (h *Host) ID() peer.ID             { return h.net.LocalPeer() }
func (h *Host) Peerstore() *peerstore.Peerstore { return h.ps }
func (h *Host) Network() network.Network { return h.net }

// Addrs returns the addresses this host is listening on.
func (h *Host) Addrs() []ma.Multiaddr { return h.net.ListenAddresses() }

// Protocols returns every protocol this host has a handler registered
// for, exact or pattern-matched, in registration order.
func (h *Host) Protocols() []protocol.ID { return h.mux.protocols() }

// Close tears down the underlying network.
func (h *Host) Close() error { return h.net.Close() }

// SetStreamHandler registers handler as the handler for streams that
// negotiate exactly the protocol id p.
func (h *Host) SetStreamHandler(p protocol.ID, handler network.StreamHandler) {
	h.mux.setExact(p, handler)
}

// SetStreamHandlerMatch registers handler for any negotiated protocol id
// for which match returns true, labeling the stream with p.
func (h *Host) SetStreamHandlerMatch(p protocol.ID, match MatchFunc, handler network.StreamHandler) {
	h.mux.setMatch(p, match, handler)
}

// RemoveStreamHandler unregisters any handler (exact or matched)
// registered under p.
func (h *Host) RemoveStreamHandler(p protocol.ID) {
	h.mux.remove(p)
}

// Connect ensures pi's addresses are known to the peerstore, then dials
// if there is no connection already.
func (h *Host) Connect(ctx context.Context, pi peer.AddrInfo) error {
	if len(pi.Addrs) > 0 {
		h.ps.Addrs.AddAddresses(pi.ID, pi.Addrs, peerstore.TempAddrTTL)
	}
	if h.net.Connectedness(pi.ID) == network.Connected {
		return nil
	}
	_, err := h.net.Dial(ctx, pi.ID)
	return err
}

// NewStream opens an outbound stream to p and negotiates one of protos
// via multistream-select, trying p's remembered preferred protocol first
// if it appears in protos.
func (h *Host) NewStream(ctx context.Context, p peer.ID, protos ...protocol.ID) (network.Stream, error) {
	if len(protos) == 0 {
		return nil, fmt.Errorf("basichost: NewStream requires at least one protocol")
	}
	ordered := h.withPreferenceFirst(p, protos)

	st, err := h.net.NewStream(ctx, p)
	if err != nil {
		return nil, err
	}
	selected, err := msmux.SelectOneOf(ordered, st)
	if err != nil {
		st.Reset()
		return nil, fmt.Errorf("basichost: negotiating protocol with %s: %w", p.Pretty(), err)
	}
	st.SetProtocol(selected)
	h.rememberPreferred(p, selected)
	return st, nil
}

func (h *Host) withPreferenceFirst(p peer.ID, protos []protocol.ID) []protocol.ID {
	h.prefMu.Lock()
	pref, ok := h.preferred[p]
	h.prefMu.Unlock()
	if !ok {
		return protos
	}
	for i, proto := range protos {
		if proto == pref {
			if i == 0 {
				return protos
			}
			ordered := make([]protocol.ID, 0, len(protos))
			ordered = append(ordered, pref)
			ordered = append(ordered, protos[:i]...)
			ordered = append(ordered, protos[i+1:]...)
			return ordered
		}
	}
	return protos
}

func (h *Host) rememberPreferred(p peer.ID, proto protocol.ID) {
	h.prefMu.Lock()
	h.preferred[p] = proto
	h.prefMu.Unlock()
}

// handleRawStream is registered with the underlying Network as the
// single inbound stream handler: it runs multistream-select as the
// listener against every protocol this host knows how to handle, then
// dispatches to the matching application handler.
func (h *Host) handleRawStream(st network.Stream) {
	known := h.mux.protocols()
	selected, err := msmux.Negotiate(st, h.mux.supports, known)
	if err != nil {
		st.Reset()
		return
	}
	labeled, handler := h.mux.handlerFor(selected)
	if handler == nil {
		st.Reset()
		return
	}
	st.SetProtocol(labeled)
	handler(st)
}

// MultistreamSemverMatcher builds a MatchFunc that accepts any protocol
// id sharing base's path prefix and major version, with a minor version
// no newer than base's — e.g. a handler registered for ".../1.2.0" also
// matches ".../1.0.0" and ".../1.1.0" but not ".../1.3.0" or ".../2.0.0".
func MultistreamSemverMatcher(base protocol.ID) (MatchFunc, error) {
	prefix, baseVer, err := splitVersionedProtocol(base)
	if err != nil {
		return nil, err
	}
	return func(p protocol.ID) bool {
		candPrefix, candVer, err := splitVersionedProtocol(p)
		if err != nil || candPrefix != prefix {
			return false
		}
		return candVer.Major == baseVer.Major && candVer.Minor <= baseVer.Minor
	}, nil
}

func splitVersionedProtocol(p protocol.ID) (string, *semver.Version, error) {
	s := string(p)
	idx := strings.LastIndex(s, "/")
	if idx <= 0 {
		return "", nil, fmt.Errorf("basichost: %q has no version component", s)
	}
	prefix, verStr := s[:idx], s[idx+1:]
	parts := strings.Split(verStr, ".")
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	for _, part := range parts {
		if _, err := strconv.Atoi(part); err != nil {
			return "", nil, fmt.Errorf("basichost: %q is not a semver version", verStr)
		}
	}
	v, err := semver.NewVersion(strings.Join(parts[:3], "."))
	if err != nil {
		return "", nil, fmt.Errorf("basichost: parsing version %q: %w", verStr, err)
	}
	return prefix, v, nil
}
