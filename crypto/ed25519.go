package crypto

import (
	"crypto/ed25519"
	"errors"
	"io"
)

var errEd25519WrongLen = errors.New("crypto: wrong ed25519 key length")

type ed25519PrivateKey struct {
	sk ed25519.PrivateKey
}

type ed25519PublicKey struct {
	pk ed25519.PublicKey
}

func generateEd25519KeyPair(src io.Reader) (PrivKey, PubKey, error) {
	pub, priv, err := ed25519.GenerateKey(src)
	if err != nil {
		return nil, nil, err
	}
	return &ed25519PrivateKey{priv}, &ed25519PublicKey{pub}, nil
}

func (k *ed25519PrivateKey) Type() KeyType { return Ed25519 }

func (k *ed25519PrivateKey) Raw() ([]byte, error) {
	out := make([]byte, len(k.sk))
	copy(out, k.sk)
	return out, nil
}

func (k *ed25519PrivateKey) Bytes() ([]byte, error) { return marshalKey(k) }

func (k *ed25519PrivateKey) Equals(other Key) bool {
	o, ok := other.(*ed25519PrivateKey)
	if !ok {
		return false
	}
	return k.sk.Equal(o.sk)
}

func (k *ed25519PrivateKey) GetPublic() PubKey {
	pub := k.sk.Public().(ed25519.PublicKey)
	return &ed25519PublicKey{pub}
}

func (k *ed25519PrivateKey) Sign(data []byte) ([]byte, error) {
	return ed25519.Sign(k.sk, data), nil
}

func (k *ed25519PublicKey) Type() KeyType { return Ed25519 }

func (k *ed25519PublicKey) Raw() ([]byte, error) {
	out := make([]byte, len(k.pk))
	copy(out, k.pk)
	return out, nil
}

func (k *ed25519PublicKey) Bytes() ([]byte, error) { return marshalKey(k) }

func (k *ed25519PublicKey) Equals(other Key) bool {
	o, ok := other.(*ed25519PublicKey)
	if !ok {
		return false
	}
	return k.pk.Equal(o.pk)
}

func (k *ed25519PublicKey) Verify(data, sig []byte) (bool, error) {
	if len(sig) != ed25519.SignatureSize {
		return false, ErrSigTooShort
	}
	return ed25519.Verify(k.pk, data, sig), nil
}

func unmarshalEd25519PrivateKey(raw []byte) (PrivKey, error) {
	if len(raw) != ed25519.PrivateKeySize {
		return nil, errEd25519WrongLen
	}
	sk := make(ed25519.PrivateKey, ed25519.PrivateKeySize)
	copy(sk, raw)
	return &ed25519PrivateKey{sk}, nil
}

func unmarshalEd25519PublicKey(raw []byte) (PubKey, error) {
	if len(raw) != ed25519.PublicKeySize {
		return nil, errEd25519WrongLen
	}
	pk := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(pk, raw)
	return &ed25519PublicKey{pk}, nil
}
