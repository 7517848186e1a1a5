// Package peerstore stores everything known about other peers: their
// addresses (with per-address TTLs), supported protocols, free-form
// metadata, keys, certified address records, and latency estimates.
package peerstore

import (
	"sync"
	"time"

	ma "github.com/multiformats/go-multiaddr"
	lru "github.com/hashicorp/golang-lru"

	"github.com/qri-io/libp2p/peer"
)

// Well-known TTLs for AddAddress/AddAddresses, mirroring the conventional
// libp2p address-confidence levels.
const (
	TempAddrTTL       = 2 * time.Minute
	RecentlyConnectedAddrTTL = 10 * time.Minute
	ConnectedAddrTTL  = 10 * time.Minute
	PermanentAddrTTL  = 10 * 365 * 24 * time.Hour
)

// gcPurgeInterval is how often the background GC goroutine scans for
// expired addresses.
const gcPurgeInterval = time.Hour

// gcInitialDelay delays the first GC pass so a freshly started peerstore
// doesn't immediately contend with startup address churn.
const gcInitialDelay = time.Hour

// lruCacheSize bounds the front LRU cache of recently-touched peer address
// sets.
const lruCacheSize = 1024

// minAddrStreamBuffer is the minimum buffer size for an address
// subscription channel; see AddressStream.
const minAddrStreamBuffer = 16

type addrEntry struct {
	addr    ma.Multiaddr
	expires time.Time
}

// AddressBook tracks, per peer, a set of multiaddresses each with its own
// expiry, plus subscribers that want to be notified of new addresses as
// they arrive.
type AddressBook struct {
	mu      sync.RWMutex
	addrs   map[peer.ID]map[string]*addrEntry
	subs    map[peer.ID][]chan ma.Multiaddr
	front   *lru.Cache

	stopCh  chan struct{}
	stopped sync.Once
}

// NewAddressBook constructs an AddressBook and starts its background GC
// loop.
func NewAddressBook() *AddressBook {
	cache, _ := lru.New(lruCacheSize)
	ab := &AddressBook{
		addrs:  make(map[peer.ID]map[string]*addrEntry),
		subs:   make(map[peer.ID][]chan ma.Multiaddr),
		front:  cache,
		stopCh: make(chan struct{}),
	}
	go ab.gcLoop()
	return ab
}

// Close stops the background GC loop.
func (ab *AddressBook) Close() {
	ab.stopped.Do(func() { close(ab.stopCh) })
}

func (ab *AddressBook) gcLoop() {
	select {
	case <-time.After(gcInitialDelay):
	case <-ab.stopCh:
		return
	}
	t := time.NewTicker(gcPurgeInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			ab.purgeExpired()
		case <-ab.stopCh:
			return
		}
	}
}

func (ab *AddressBook) purgeExpired() {
	now := time.Now()
	ab.mu.Lock()
	defer ab.mu.Unlock()
	for p, set := range ab.addrs {
		for k, e := range set {
			if now.After(e.expires) {
				delete(set, k)
			}
		}
		if len(set) == 0 {
			delete(ab.addrs, p)
		}
		ab.front.Remove(p)
	}
}

// AddAddress adds a single address for p with the given TTL, extending
// (never shortening) an existing entry's expiry.
func (ab *AddressBook) AddAddress(p peer.ID, addr ma.Multiaddr, ttl time.Duration) {
	ab.AddAddresses(p, []ma.Multiaddr{addr}, ttl)
}

// AddAddresses adds addrs for p, each with the given TTL.
func (ab *AddressBook) AddAddresses(p peer.ID, addrs []ma.Multiaddr, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	expires := time.Now().Add(ttl)
	ab.mu.Lock()
	set, ok := ab.addrs[p]
	if !ok {
		set = make(map[string]*addrEntry)
		ab.addrs[p] = set
	}
	var fresh []ma.Multiaddr
	for _, a := range addrs {
		key := a.String()
		if e, ok := set[key]; ok {
			if expires.After(e.expires) {
				e.expires = expires
			}
			continue
		}
		set[key] = &addrEntry{addr: a, expires: expires}
		fresh = append(fresh, a)
	}
	subs := append([]chan ma.Multiaddr(nil), ab.subs[p]...)
	ab.mu.Unlock()

	// the address set for p changed; drop any cached snapshot so the next
	// Addresses(p) call recomputes it instead of serving stale data.
	ab.front.Remove(p)
	for _, a := range fresh {
		for _, ch := range subs {
			select {
			case ch <- a:
			default:
				// drop-oldest: make room rather than block the publisher.
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- a:
				default:
				}
			}
		}
	}
}

// SetAddresses replaces p's address set wholesale with addrs, each
// carrying the given TTL.
func (ab *AddressBook) SetAddresses(p peer.ID, addrs []ma.Multiaddr, ttl time.Duration) {
	ab.ClearAddresses(p)
	ab.AddAddresses(p, addrs, ttl)
}

// UpdateAddresses gives a fresh newTTL expiry to each of p's addresses
// whose remaining lifetime is within one second of oldTTL, used to promote
// e.g. temporary addresses to connected ones once a dial succeeds. Entries
// do not record the TTL they were added with, so an address added with
// oldTTL more than a second ago no longer matches.
func (ab *AddressBook) UpdateAddresses(p peer.ID, oldTTL, newTTL time.Duration) {
	ab.mu.Lock()
	set, ok := ab.addrs[p]
	if !ok {
		ab.mu.Unlock()
		return
	}
	for _, e := range set {
		remaining := time.Until(e.expires)
		if absDuration(remaining-oldTTL) < time.Second {
			e.expires = time.Now().Add(newTTL)
		}
	}
	ab.mu.Unlock()
	ab.front.Remove(p)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// Addresses returns the non-expired addresses currently known for p. Recent
// lookups are served from the front LRU cache rather than rescanning and
// re-filtering p's full address set; any mutation of p's addresses
// invalidates its cache entry.
func (ab *AddressBook) Addresses(p peer.ID) []ma.Multiaddr {
	// a snapshot is served only until its earliest address expires.
	type snapshot struct {
		addrs      []ma.Multiaddr
		validUntil time.Time
	}
	if cached, ok := ab.front.Get(p); ok {
		if hit := cached.(snapshot); time.Now().Before(hit.validUntil) {
			out := make([]ma.Multiaddr, len(hit.addrs))
			copy(out, hit.addrs)
			return out
		}
	}

	ab.mu.RLock()
	set, ok := ab.addrs[p]
	if !ok {
		ab.mu.RUnlock()
		return nil
	}
	now := time.Now()
	out := make([]ma.Multiaddr, 0, len(set))
	var validUntil time.Time
	for _, e := range set {
		if now.Before(e.expires) {
			out = append(out, e.addr)
			if validUntil.IsZero() || e.expires.Before(validUntil) {
				validUntil = e.expires
			}
		}
	}
	ab.mu.RUnlock()

	ab.front.Add(p, snapshot{addrs: out, validUntil: validUntil})
	return out
}

// ClearAddresses removes every address stored for p.
func (ab *AddressBook) ClearAddresses(p peer.ID) {
	ab.mu.Lock()
	delete(ab.addrs, p)
	ab.mu.Unlock()
	ab.front.Remove(p)
}

// AddrStream returns a channel of newly-added addresses for p. The
// channel has a bounded, drop-oldest buffer (minimum 16) so a slow
// subscriber cannot stall address ingestion for everyone else.
func (ab *AddressBook) AddrStream(p peer.ID) <-chan ma.Multiaddr {
	ch := make(chan ma.Multiaddr, minAddrStreamBuffer)
	ab.mu.Lock()
	ab.subs[p] = append(ab.subs[p], ch)
	ab.mu.Unlock()
	existing := ab.Addresses(p)
	go func() {
		for _, a := range existing {
			select {
			case ch <- a:
			default:
			}
		}
	}()
	return ch
}

// Peers returns every peer this AddressBook currently has at least one
// unexpired address for.
func (ab *AddressBook) Peers() []peer.ID {
	ab.mu.RLock()
	defer ab.mu.RUnlock()
	out := make([]peer.ID, 0, len(ab.addrs))
	now := time.Now()
	for p, set := range ab.addrs {
		for _, e := range set {
			if now.Before(e.expires) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}
