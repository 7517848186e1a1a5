package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"io"
)

// MinRSAKeyBits is the smallest RSA modulus this package will generate or
// accept. Anything smaller is rejected outright.
const MinRSAKeyBits = 2048

// ErrRSAKeyTooSmall is returned when generating or unmarshaling an RSA key
// whose modulus is below MinRSAKeyBits.
var ErrRSAKeyTooSmall = errors.New("crypto: rsa key too small")

type rsaPrivateKey struct {
	sk *rsa.PrivateKey
}

type rsaPublicKey struct {
	pk *rsa.PublicKey
}

func generateRSAKeyPair(bits int, src io.Reader) (PrivKey, PubKey, error) {
	if bits < MinRSAKeyBits {
		return nil, nil, ErrRSAKeyTooSmall
	}
	sk, err := rsa.GenerateKey(src, bits)
	if err != nil {
		return nil, nil, err
	}
	return &rsaPrivateKey{sk}, &rsaPublicKey{&sk.PublicKey}, nil
}

func (k *rsaPrivateKey) Type() KeyType { return RSA }

func (k *rsaPrivateKey) Raw() ([]byte, error) {
	return x509.MarshalPKCS1PrivateKey(k.sk), nil
}

func (k *rsaPrivateKey) Bytes() ([]byte, error) { return marshalKey(k) }

func (k *rsaPrivateKey) Equals(other Key) bool {
	o, ok := other.(*rsaPrivateKey)
	if !ok {
		return false
	}
	return k.sk.D.Cmp(o.sk.D) == 0 && k.sk.PublicKey.N.Cmp(o.sk.PublicKey.N) == 0
}

func (k *rsaPrivateKey) GetPublic() PubKey {
	return &rsaPublicKey{&k.sk.PublicKey}
}

func (k *rsaPrivateKey) Sign(data []byte) ([]byte, error) {
	h := sha256.Sum256(data)
	return rsa.SignPKCS1v15(rand.Reader, k.sk, crypto.SHA256, h[:])
}

func (k *rsaPublicKey) Type() KeyType { return RSA }

func (k *rsaPublicKey) Raw() ([]byte, error) {
	return x509.MarshalPKCS1PublicKey(k.pk), nil
}

func (k *rsaPublicKey) Bytes() ([]byte, error) { return marshalKey(k) }

func (k *rsaPublicKey) Equals(other Key) bool {
	o, ok := other.(*rsaPublicKey)
	if !ok {
		return false
	}
	return k.pk.N.Cmp(o.pk.N) == 0 && k.pk.E == o.pk.E
}

func (k *rsaPublicKey) Verify(data, sig []byte) (bool, error) {
	h := sha256.Sum256(data)
	err := rsa.VerifyPKCS1v15(k.pk, crypto.SHA256, h[:], sig)
	if err != nil {
		if errors.Is(err, rsa.ErrVerification) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func unmarshalRSAPrivateKey(raw []byte) (PrivKey, error) {
	sk, err := x509.ParsePKCS1PrivateKey(raw)
	if err != nil {
		return nil, err
	}
	if sk.N.BitLen() < MinRSAKeyBits {
		return nil, ErrRSAKeyTooSmall
	}
	return &rsaPrivateKey{sk}, nil
}

func unmarshalRSAPublicKey(raw []byte) (PubKey, error) {
	pk, err := x509.ParsePKCS1PublicKey(raw)
	if err != nil {
		return nil, err
	}
	if pk.N.BitLen() < MinRSAKeyBits {
		return nil, ErrRSAKeyTooSmall
	}
	return &rsaPublicKey{pk}, nil
}
