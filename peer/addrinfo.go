package peer

import (
	"encoding/json"
	"errors"
	"fmt"

	ma "github.com/multiformats/go-multiaddr"
)

// AddrInfo pairs a peer ID with a set of multiaddresses it is believed to
// be reachable at, the unit passed to Connect and returned by discovery.
type AddrInfo struct {
	ID    ID
	Addrs []ma.Multiaddr
}

// ErrInvalidAddr is returned when parsing a p2p-circuit-style "/p2p/<id>"
// address whose id component does not decode.
var ErrInvalidAddr = errors.New("peer: invalid p2p multiaddr")

// String renders the AddrInfo in "<peerid> <addr> <addr> ..." form, handy
// for logging.
func (pi AddrInfo) String() string {
	s := pi.ID.Pretty()
	for _, a := range pi.Addrs {
		s += " " + a.String()
	}
	return s
}

// Loggable returns a structured representation for structured loggers.
func (pi AddrInfo) Loggable() map[string]interface{} {
	addrs := make([]string, len(pi.Addrs))
	for i, a := range pi.Addrs {
		addrs[i] = a.String()
	}
	return map[string]interface{}{
		"peerID": pi.ID.Pretty(),
		"addrs":  addrs,
	}
}

type addrInfoJSON struct {
	ID    string   `json:"ID"`
	Addrs []string `json:"Addrs"`
}

// MarshalJSON encodes the AddrInfo as {"ID": "...", "Addrs": ["..."]}.
func (pi AddrInfo) MarshalJSON() ([]byte, error) {
	addrs := make([]string, len(pi.Addrs))
	for i, a := range pi.Addrs {
		addrs[i] = a.String()
	}
	return json.Marshal(addrInfoJSON{ID: pi.ID.Pretty(), Addrs: addrs})
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (pi *AddrInfo) UnmarshalJSON(b []byte) error {
	var raw addrInfoJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	id, err := IDB58Decode(raw.ID)
	if err != nil {
		return fmt.Errorf("peer: decoding AddrInfo.ID: %w", err)
	}
	addrs := make([]ma.Multiaddr, 0, len(raw.Addrs))
	for _, s := range raw.Addrs {
		a, err := ma.NewMultiaddr(s)
		if err != nil {
			return fmt.Errorf("peer: decoding AddrInfo.Addrs: %w", err)
		}
		addrs = append(addrs, a)
	}
	pi.ID = id
	pi.Addrs = addrs
	return nil
}

// AddrInfoToP2pAddrs expands an AddrInfo into one "/.../p2p/<id>" multiaddr
// per listen address.
func AddrInfoToP2pAddrs(pi *AddrInfo) ([]ma.Multiaddr, error) {
	p2ppart, err := ma.NewMultiaddr("/p2p/" + pi.ID.Pretty())
	if err != nil {
		return nil, err
	}
	if len(pi.Addrs) == 0 {
		return []ma.Multiaddr{p2ppart}, nil
	}
	out := make([]ma.Multiaddr, 0, len(pi.Addrs))
	for _, a := range pi.Addrs {
		out = append(out, a.Encapsulate(p2ppart))
	}
	return out, nil
}

// AddrInfoFromP2pAddr splits a "/.../p2p/<id>" multiaddr into its transport
// prefix and the peer ID carried in the trailing /p2p component.
func AddrInfoFromP2pAddr(m ma.Multiaddr) (*AddrInfo, error) {
	idStr, err := m.ValueForProtocol(ma.P_P2P)
	if err != nil {
		return nil, fmt.Errorf("peer: %w: %s", ErrInvalidAddr, err)
	}
	id, err := IDB58Decode(idStr)
	if err != nil {
		return nil, fmt.Errorf("peer: %w: %s", ErrInvalidAddr, err)
	}
	info := &AddrInfo{ID: id}
	if parts := ma.Split(m); len(parts) > 1 {
		info.Addrs = []ma.Multiaddr{ma.Join(parts[:len(parts)-1]...)}
	}
	return info, nil
}
