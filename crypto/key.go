// Package crypto defines the key contracts used to derive peer identities
// and to authenticate security handshakes. It wraps the standard library's
// RSA, Ed25519 and ECDSA implementations plus btcec's secp256k1, rather than
// reimplementing any primitive: per the module's scope, cryptographic
// primitives are an external collaborator, not a core deliverable.
package crypto

import (
	"crypto/rand"
	"errors"
	"io"
)

// KeyType enumerates the supported public/private key algorithms. Values
// match the wire encoding used by Marshal{Public,Private}Key.
type KeyType int

const (
	// RSA keys, PKCS1 DER encoded.
	RSA KeyType = iota
	// Ed25519 keys, raw 32/64-byte encoding.
	Ed25519
	// Secp256k1 keys, compressed point / raw scalar encoding.
	Secp256k1
	// ECDSA P-256 keys, DER encoded.
	ECDSA
)

func (t KeyType) String() string {
	switch t {
	case RSA:
		return "RSA"
	case Ed25519:
		return "Ed25519"
	case Secp256k1:
		return "Secp256k1"
	case ECDSA:
		return "ECDSA"
	default:
		return "Unknown"
	}
}

// ErrBadKeyType is returned when unmarshaling encounters an unrecognized
// key-type tag.
var ErrBadKeyType = errors.New("crypto: invalid or unsupported key type")

// ErrSigTooShort is returned by Verify implementations fed an obviously
// truncated signature.
var ErrSigTooShort = errors.New("crypto: signature too short")

// Key is the behavior common to public and private keys: a type tag and a
// lossless marshaled form.
type Key interface {
	// Type returns the algorithm identifying this key.
	Type() KeyType
	// Bytes returns the wire-format encoding of the key (type tag + raw
	// key material).
	Bytes() ([]byte, error)
	// Equals reports whether two keys are the same key.
	Equals(Key) bool
	// Raw returns the unwrapped key material, with no type tag.
	Raw() ([]byte, error)
}

// PubKey is a public key that can verify signatures produced by its
// corresponding PrivKey.
type PubKey interface {
	Key
	// Verify reports whether sig is a valid signature of data under this key.
	Verify(data, sig []byte) (bool, error)
}

// PrivKey is a private key that can sign data and recover its own public
// counterpart.
type PrivKey interface {
	Key
	// Sign returns a signature of data under this key.
	Sign(data []byte) ([]byte, error)
	// GetPublic returns the public key matching this private key.
	GetPublic() PubKey
}

// GenKeyPairWithReader generates a new key pair of the given type and bit
// size (ignored by fixed-size curves), reading randomness from src.
func GenKeyPairWithReader(t KeyType, bits int, src io.Reader) (PrivKey, PubKey, error) {
	switch t {
	case RSA:
		return generateRSAKeyPair(bits, src)
	case Ed25519:
		return generateEd25519KeyPair(src)
	case Secp256k1:
		return generateSecp256k1KeyPair(src)
	case ECDSA:
		return generateECDSAKeyPair(src)
	default:
		return nil, nil, ErrBadKeyType
	}
}

// GenKeyPair generates a new key pair using crypto/rand as its source of
// randomness.
func GenKeyPair(t KeyType, bits int) (PrivKey, PubKey, error) {
	return GenKeyPairWithReader(t, bits, rand.Reader)
}

// MarshalPublicKey encodes a public key as a type tag followed by its raw
// bytes, mirroring the wire shape of spec §6's PublicKey{type,data} message
// without depending on a protobuf toolchain (see DESIGN.md).
func MarshalPublicKey(k PubKey) ([]byte, error) {
	return marshalKey(k)
}

// UnmarshalPublicKey decodes a key previously produced by MarshalPublicKey.
func UnmarshalPublicKey(data []byte) (PubKey, error) {
	t, raw, err := unmarshalKeyHeader(data)
	if err != nil {
		return nil, err
	}
	switch t {
	case RSA:
		return unmarshalRSAPublicKey(raw)
	case Ed25519:
		return unmarshalEd25519PublicKey(raw)
	case Secp256k1:
		return unmarshalSecp256k1PublicKey(raw)
	case ECDSA:
		return unmarshalECDSAPublicKey(raw)
	default:
		return nil, ErrBadKeyType
	}
}

// MarshalPrivateKey encodes a private key as a type tag followed by its raw
// bytes.
func MarshalPrivateKey(k PrivKey) ([]byte, error) {
	return marshalKey(k)
}

// UnmarshalPrivateKey decodes a key previously produced by
// MarshalPrivateKey.
func UnmarshalPrivateKey(data []byte) (PrivKey, error) {
	t, raw, err := unmarshalKeyHeader(data)
	if err != nil {
		return nil, err
	}
	switch t {
	case RSA:
		return unmarshalRSAPrivateKey(raw)
	case Ed25519:
		return unmarshalEd25519PrivateKey(raw)
	case Secp256k1:
		return unmarshalSecp256k1PrivateKey(raw)
	case ECDSA:
		return unmarshalECDSAPrivateKey(raw)
	default:
		return nil, ErrBadKeyType
	}
}

func marshalKey(k Key) ([]byte, error) {
	raw, err := k.Raw()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 1+len(raw))
	out[0] = byte(k.Type())
	copy(out[1:], raw)
	return out, nil
}

func unmarshalKeyHeader(data []byte) (KeyType, []byte, error) {
	if len(data) < 1 {
		return 0, nil, ErrBadKeyType
	}
	return KeyType(data[0]), data[1:], nil
}
