// Package peer implements the PeerId identity type: a multihash digest
// derived from a public key, used throughout the module to name the other
// end of a connection, stream or address-book entry.
package peer

import (
	"encoding/json"
	"errors"
	"fmt"

	b58 "github.com/mr-tron/base58"
	mh "github.com/multiformats/go-multihash"

	"github.com/qri-io/libp2p/crypto"
)

// ID is a libp2p peer identity: the multihash of a public key.
type ID string

// maxInlineKeyLength is the largest raw public key that is embedded
// directly in the multihash (identity hash function) rather than hashed
// with sha256. Matches the "inline" peer ID convention used throughout the
// libp2p ecosystem.
const maxInlineKeyLength = 42

// ErrEmptyPeerID is returned by Decode/IDFromBytes when given no data.
var ErrEmptyPeerID = errors.New("peer: empty peer id")

// IDFromPublicKey derives a peer ID from a public key: keys whose marshaled
// form is small enough are embedded as-is (identity multihash); larger keys
// are addressed by their sha256 digest.
func IDFromPublicKey(pk crypto.PubKey) (ID, error) {
	b, err := crypto.MarshalPublicKey(pk)
	if err != nil {
		return "", err
	}
	var alg uint64
	if len(b) <= maxInlineKeyLength {
		alg = mh.IDENTITY
	} else {
		alg = mh.SHA2_256
	}
	hash, err := mh.Sum(b, alg, -1)
	if err != nil {
		return "", err
	}
	return ID(hash), nil
}

// IDFromPrivateKey derives the peer ID of a private key's public half.
func IDFromPrivateKey(sk crypto.PrivKey) (ID, error) {
	return IDFromPublicKey(sk.GetPublic())
}

// Decode parses a multihash-encoded peer ID, either raw bytes or a
// base58-encoded string (accepting both for interop with callers that pass
// either form).
func Decode(s string) (ID, error) {
	if s == "" {
		return "", ErrEmptyPeerID
	}
	if m, err := mh.FromB58String(s); err == nil {
		return ID(m), nil
	}
	return IDFromBytes([]byte(s))
}

// IDB58Decode decodes a base58btc-encoded peer ID string, the canonical
// textual form printed by Pretty.
func IDB58Decode(s string) (ID, error) {
	m, err := mh.FromB58String(s)
	if err != nil {
		return "", err
	}
	return ID(m), nil
}

// IDB58Encode is the inverse of IDB58Decode.
func IDB58Encode(id ID) string {
	return b58.Encode([]byte(id))
}

// IDFromBytes wraps raw multihash bytes as a peer ID, validating that they
// decode as a well-formed multihash.
func IDFromBytes(b []byte) (ID, error) {
	if len(b) == 0 {
		return "", ErrEmptyPeerID
	}
	if _, err := mh.Cast(b); err != nil {
		return "", err
	}
	return ID(b), nil
}

// Pretty renders the peer ID in its canonical base58btc textual form.
func (id ID) Pretty() string {
	return IDB58Encode(id)
}

// String is an alias for Pretty, satisfying fmt.Stringer.
func (id ID) String() string {
	return id.Pretty()
}

// Loggable returns a structured representation suitable for a logger's
// key-value pairs.
func (id ID) Loggable() map[string]interface{} {
	return map[string]interface{}{"peerID": id.Pretty()}
}

// Validate reports whether id decodes as a well-formed multihash.
func (id ID) Validate() error {
	if len(id) == 0 {
		return ErrEmptyPeerID
	}
	_, err := mh.Cast([]byte(id))
	return err
}

// MatchesPublicKey reports whether id is the peer ID that IDFromPublicKey
// would derive from pk.
func (id ID) MatchesPublicKey(pk crypto.PubKey) bool {
	oid, err := IDFromPublicKey(pk)
	if err != nil {
		return false
	}
	return oid == id
}

// MatchesPrivateKey reports whether id is the peer ID of sk's public half.
func (id ID) MatchesPrivateKey(sk crypto.PrivKey) bool {
	return id.MatchesPublicKey(sk.GetPublic())
}

// ExtractPublicKey recovers the embedded public key from an identity-hashed
// peer ID. It returns (nil, nil) for sha256-hashed IDs, which do not embed
// the key.
func (id ID) ExtractPublicKey() (crypto.PubKey, error) {
	decoded, err := mh.Decode([]byte(id))
	if err != nil {
		return nil, err
	}
	if decoded.Code != mh.IDENTITY {
		return nil, nil
	}
	return crypto.UnmarshalPublicKey(decoded.Digest)
}

// MarshalJSON renders the peer ID as its base58 string form.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.Pretty())
}

// UnmarshalJSON parses a peer ID from its base58 string form.
func (id *ID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	pid, err := IDB58Decode(s)
	if err != nil {
		return fmt.Errorf("peer: unmarshaling id: %w", err)
	}
	*id = pid
	return nil
}
