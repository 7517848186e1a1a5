package crypto

import (
	"crypto/sha256"
	"errors"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

var errSecp256k1WrongLen = errors.New("crypto: invalid secp256k1 key encoding")

type secp256k1PrivateKey struct {
	sk *btcec.PrivateKey
}

type secp256k1PublicKey struct {
	pk *btcec.PublicKey
}

func generateSecp256k1KeyPair(src io.Reader) (PrivKey, PubKey, error) {
	var buf [32]byte
	if _, err := io.ReadFull(src, buf[:]); err != nil {
		return nil, nil, err
	}
	sk, pk := btcec.PrivKeyFromBytes(buf[:])
	return &secp256k1PrivateKey{sk}, &secp256k1PublicKey{pk}, nil
}

func (k *secp256k1PrivateKey) Type() KeyType { return Secp256k1 }

func (k *secp256k1PrivateKey) Raw() ([]byte, error) {
	return k.sk.Serialize(), nil
}

func (k *secp256k1PrivateKey) Bytes() ([]byte, error) { return marshalKey(k) }

func (k *secp256k1PrivateKey) Equals(other Key) bool {
	o, ok := other.(*secp256k1PrivateKey)
	if !ok {
		return false
	}
	a, b := k.sk.Serialize(), o.sk.Serialize()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (k *secp256k1PrivateKey) GetPublic() PubKey {
	return &secp256k1PublicKey{k.sk.PubKey()}
}

func (k *secp256k1PrivateKey) Sign(data []byte) ([]byte, error) {
	h := sha256.Sum256(data)
	sig := ecdsa.Sign(k.sk, h[:])
	return sig.Serialize(), nil
}

func (k *secp256k1PublicKey) Type() KeyType { return Secp256k1 }

func (k *secp256k1PublicKey) Raw() ([]byte, error) {
	return k.pk.SerializeCompressed(), nil
}

func (k *secp256k1PublicKey) Bytes() ([]byte, error) { return marshalKey(k) }

func (k *secp256k1PublicKey) Equals(other Key) bool {
	o, ok := other.(*secp256k1PublicKey)
	if !ok {
		return false
	}
	return k.pk.IsEqual(o.pk)
}

func (k *secp256k1PublicKey) Verify(data, sig []byte) (bool, error) {
	s, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false, nil
	}
	h := sha256.Sum256(data)
	return s.Verify(h[:], k.pk), nil
}

func unmarshalSecp256k1PrivateKey(raw []byte) (PrivKey, error) {
	if len(raw) != 32 {
		return nil, errSecp256k1WrongLen
	}
	sk, _ := btcec.PrivKeyFromBytes(raw)
	return &secp256k1PrivateKey{sk}, nil
}

func unmarshalSecp256k1PublicKey(raw []byte) (PubKey, error) {
	pk, err := btcec.ParsePubKey(raw)
	if err != nil {
		return nil, err
	}
	return &secp256k1PublicKey{pk}, nil
}
