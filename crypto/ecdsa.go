package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"io"
)

type ecdsaPrivateKey struct {
	sk *ecdsa.PrivateKey
}

type ecdsaPublicKey struct {
	pk *ecdsa.PublicKey
}

func generateECDSAKeyPair(src io.Reader) (PrivKey, PubKey, error) {
	sk, err := ecdsa.GenerateKey(elliptic.P256(), src)
	if err != nil {
		return nil, nil, err
	}
	return &ecdsaPrivateKey{sk}, &ecdsaPublicKey{&sk.PublicKey}, nil
}

func (k *ecdsaPrivateKey) Type() KeyType { return ECDSA }

func (k *ecdsaPrivateKey) Raw() ([]byte, error) {
	return x509.MarshalECPrivateKey(k.sk)
}

func (k *ecdsaPrivateKey) Bytes() ([]byte, error) { return marshalKey(k) }

func (k *ecdsaPrivateKey) Equals(other Key) bool {
	o, ok := other.(*ecdsaPrivateKey)
	if !ok {
		return false
	}
	return k.sk.D.Cmp(o.sk.D) == 0
}

func (k *ecdsaPrivateKey) GetPublic() PubKey {
	return &ecdsaPublicKey{&k.sk.PublicKey}
}

func (k *ecdsaPrivateKey) Sign(data []byte) ([]byte, error) {
	h := sha256.Sum256(data)
	return ecdsa.SignASN1(rand.Reader, k.sk, h[:])
}

func (k *ecdsaPublicKey) Type() KeyType { return ECDSA }

func (k *ecdsaPublicKey) Raw() ([]byte, error) {
	return x509.MarshalPKIXPublicKey(k.pk)
}

func (k *ecdsaPublicKey) Bytes() ([]byte, error) { return marshalKey(k) }

func (k *ecdsaPublicKey) Equals(other Key) bool {
	o, ok := other.(*ecdsaPublicKey)
	if !ok {
		return false
	}
	return k.pk.X.Cmp(o.pk.X) == 0 && k.pk.Y.Cmp(o.pk.Y) == 0
}

func (k *ecdsaPublicKey) Verify(data, sig []byte) (bool, error) {
	h := sha256.Sum256(data)
	return ecdsa.VerifyASN1(k.pk, h[:], sig), nil
}

func unmarshalECDSAPrivateKey(raw []byte) (PrivKey, error) {
	sk, err := x509.ParseECPrivateKey(raw)
	if err != nil {
		return nil, err
	}
	return &ecdsaPrivateKey{sk}, nil
}

func unmarshalECDSAPublicKey(raw []byte) (PubKey, error) {
	pub, err := x509.ParsePKIXPublicKey(raw)
	if err != nil {
		return nil, err
	}
	pk, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, errBadECDSAKey
	}
	return &ecdsaPublicKey{pk}, nil
}

var errBadECDSAKey = ecdsaKeyTypeError{}

type ecdsaKeyTypeError struct{}

func (ecdsaKeyTypeError) Error() string { return "crypto: not an ECDSA public key" }
