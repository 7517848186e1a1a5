package peerstore

import (
	"sync"

	"github.com/qri-io/libp2p/peer"
	"github.com/qri-io/libp2p/record"
)

// CertifiedAddressBook stores the most recent signed PeerRecord envelope
// received from each peer, accepting a new one only if its sequence
// number is strictly greater than what's already stored — preventing a
// replayed or out-of-order record from clobbering newer information.
type CertifiedAddressBook struct {
	mu      sync.RWMutex
	records map[peer.ID]*record.Envelope
	seqs    map[peer.ID]uint64

	addrs *AddressBook
}

// NewCertifiedAddressBook constructs a CertifiedAddressBook that promotes
// consumed records' addresses into ab.
func NewCertifiedAddressBook(ab *AddressBook) *CertifiedAddressBook {
	return &CertifiedAddressBook{
		records: make(map[peer.ID]*record.Envelope),
		seqs:    make(map[peer.ID]uint64),
		addrs:   ab,
	}
}

// ConsumePeerRecord validates and decodes env, then, if its sequence
// number is newer than anything already stored for the record's peer,
// stores it and republishes its addresses into the AddressBook with
// ConnectedAddrTTL.
func (c *CertifiedAddressBook) ConsumePeerRecord(env *record.Envelope) (accepted bool, err error) {
	rec, err := record.ConsumePeerRecord(env)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	if prev, ok := c.seqs[rec.PeerID]; ok && rec.Seq <= prev {
		c.mu.Unlock()
		return false, nil
	}
	c.records[rec.PeerID] = env
	c.seqs[rec.PeerID] = rec.Seq
	c.mu.Unlock()

	if c.addrs != nil {
		c.addrs.AddAddresses(rec.PeerID, rec.Addrs, ConnectedAddrTTL)
	}
	return true, nil
}

// GetPeerRecord returns the most recently accepted envelope for p, if any.
func (c *CertifiedAddressBook) GetPeerRecord(p peer.ID) (*record.Envelope, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	env, ok := c.records[p]
	return env, ok
}

func (c *CertifiedAddressBook) removePeer(p peer.ID) {
	c.mu.Lock()
	delete(c.records, p)
	delete(c.seqs, p)
	c.mu.Unlock()
}
