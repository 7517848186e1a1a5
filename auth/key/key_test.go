package key

import (
	"testing"

	"github.com/qri-io/libp2p/crypto"
)

type testRunner struct {
	AlicePrivKey crypto.PrivKey
	BasitPrivKey crypto.PrivKey
}

func newTestRunner(t *testing.T) (tr *testRunner, cleanup func()) {
	tr = &testRunner{
		AlicePrivKey: testPrivKey(t),
		BasitPrivKey: testPrivKey(t),
	}
	return tr, func() {}
}

func testPrivKey(t *testing.T) crypto.PrivKey {
	sk, _, err := crypto.GenKeyPair(crypto.Ed25519, 0)
	if err != nil {
		t.Fatalf("generating test key: %s", err)
	}
	return sk
}

func TestIDFromPrivKey(t *testing.T) {
	tr, cleanup := newTestRunner(t)
	defer cleanup()

	got, err := IDFromPrivKey(tr.AlicePrivKey)
	if err != nil {
		t.Fatal(err)
	}
	if got == "" {
		t.Error("expected a non-empty ID")
	}

	otherGot, err := IDFromPrivKey(tr.BasitPrivKey)
	if err != nil {
		t.Fatal(err)
	}
	if got == otherGot {
		t.Error("expected distinct keys to produce distinct IDs")
	}
}

func TestIDFromPubKey(t *testing.T) {
	tr, cleanup := newTestRunner(t)
	defer cleanup()

	if _, err := IDFromPubKey(nil); err == nil {
		t.Error("expected error calculating the ID of nil")
	}

	fromPriv, err := IDFromPrivKey(tr.AlicePrivKey)
	if err != nil {
		t.Fatal(err)
	}
	fromPub, err := IDFromPubKey(tr.AlicePrivKey.GetPublic())
	if err != nil {
		t.Fatal(err)
	}
	if fromPriv != fromPub {
		t.Errorf("expected ID from private key (%s) to match ID from its public key (%s)", fromPriv, fromPub)
	}
}

func TestEncodeDecodePrivKeyB64(t *testing.T) {
	tr, cleanup := newTestRunner(t)
	defer cleanup()

	enc, err := EncodePrivKeyB64(tr.AlicePrivKey)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := DecodeB64PrivKey(enc)
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Equals(tr.AlicePrivKey) {
		t.Error("expected decoded key to equal the original")
	}

	if _, err := DecodeB64PrivKey("not valid base64!!"); err == nil {
		t.Error("expected error decoding invalid base64")
	}
}

func TestEncodeDecodePubKeyB64(t *testing.T) {
	tr, cleanup := newTestRunner(t)
	defer cleanup()

	pub := tr.AlicePrivKey.GetPublic()
	enc, err := EncodePubKeyB64(pub)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := DecodeB64PubKey(enc)
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Equals(pub) {
		t.Error("expected decoded key to equal the original")
	}
}

func TestDecodeID(t *testing.T) {
	tr, cleanup := newTestRunner(t)
	defer cleanup()

	s, err := IDFromPrivKey(tr.AlicePrivKey)
	if err != nil {
		t.Fatal(err)
	}
	id, err := DecodeID(s)
	if err != nil {
		t.Fatal(err)
	}
	if id.Pretty() != s {
		t.Errorf("expected round-tripped ID to match, got %s want %s", id.Pretty(), s)
	}
}
