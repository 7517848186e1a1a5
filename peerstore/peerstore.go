package peerstore

import (
	"github.com/qri-io/libp2p/peer"
)

// Peerstore composes every per-peer store this module keeps: addresses,
// protocols, metadata, keys, certified records and latency metrics.
type Peerstore struct {
	Addrs      *AddressBook
	Protocols  *ProtocolBook
	Metadata   *Metadata
	Keys       *KeyBook
	Certified  *CertifiedAddressBook
	Metrics    *Metrics
}

// NewPeerstore constructs a Peerstore with all sub-stores wired together.
func NewPeerstore() *Peerstore {
	addrs := NewAddressBook()
	return &Peerstore{
		Addrs:     addrs,
		Protocols: NewProtocolBook(),
		Metadata:  NewMetadata(),
		Keys:      NewKeyBook(),
		Certified: NewCertifiedAddressBook(addrs),
		Metrics:   NewMetrics(),
	}
}

// PeerInfo assembles an AddrInfo snapshot for p from the address book.
func (ps *Peerstore) PeerInfo(p peer.ID) peer.AddrInfo {
	return peer.AddrInfo{ID: p, Addrs: ps.Addrs.Addresses(p)}
}

// RemovePeer forgets everything this Peerstore knows about p across every
// sub-store. Each sub-store is cleared in turn under its own lock; the
// removal is not atomic across sub-stores.
func (ps *Peerstore) RemovePeer(p peer.ID) {
	ps.Addrs.ClearAddresses(p)
	ps.Protocols.removePeer(p)
	ps.Metadata.removePeer(p)
	ps.Keys.removePeer(p)
	ps.Certified.removePeer(p)
	ps.Metrics.removePeer(p)
}

// Close stops every sub-store's background work.
func (ps *Peerstore) Close() {
	ps.Addrs.Close()
}

// Peers returns the union of peers known across the address book and key
// book.
func (ps *Peerstore) Peers() []peer.ID {
	seen := make(map[peer.ID]struct{})
	var out []peer.ID
	for _, p := range ps.Addrs.Peers() {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	for _, p := range ps.Keys.PeersWithKeys() {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}
