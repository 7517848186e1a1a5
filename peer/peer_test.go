package peer

import (
	"encoding/json"
	"testing"

	"github.com/qri-io/libp2p/crypto"
)

func TestIDFromPublicKeyAndMatches(t *testing.T) {
	sk, pk, err := crypto.GenKeyPair(crypto.Ed25519, 0)
	if err != nil {
		t.Fatal(err)
	}
	id, err := IDFromPublicKey(pk)
	if err != nil {
		t.Fatal(err)
	}
	if !id.MatchesPublicKey(pk) {
		t.Fatal("id should match the key it was derived from")
	}
	if !id.MatchesPrivateKey(sk) {
		t.Fatal("id should match the private key of the derived public key")
	}
	if err := id.Validate(); err != nil {
		t.Fatalf("expected valid id, got %s", err)
	}
}

func TestPrettyRoundTrip(t *testing.T) {
	_, pk, err := crypto.GenKeyPair(crypto.Ed25519, 0)
	if err != nil {
		t.Fatal(err)
	}
	id, err := IDFromPublicKey(pk)
	if err != nil {
		t.Fatal(err)
	}
	s := id.Pretty()
	decoded, err := IDB58Decode(s)
	if err != nil {
		t.Fatal(err)
	}
	if decoded != id {
		t.Fatalf("round trip mismatch: %s != %s", decoded.Pretty(), id.Pretty())
	}
}

func TestEmptyPeerID(t *testing.T) {
	if _, err := Decode(""); err != ErrEmptyPeerID {
		t.Fatalf("expected ErrEmptyPeerID, got %v", err)
	}
}

func TestExtractPublicKeyInline(t *testing.T) {
	_, pk, err := crypto.GenKeyPair(crypto.Ed25519, 0)
	if err != nil {
		t.Fatal(err)
	}
	id, err := IDFromPublicKey(pk)
	if err != nil {
		t.Fatal(err)
	}
	extracted, err := id.ExtractPublicKey()
	if err != nil {
		t.Fatal(err)
	}
	if extracted == nil {
		t.Fatal("expected embedded key to be extractable for a small ed25519 key")
	}
	if !extracted.Equals(pk) {
		t.Fatal("extracted key does not match original")
	}
}

func TestIDJSONRoundTrip(t *testing.T) {
	_, pk, err := crypto.GenKeyPair(crypto.Ed25519, 0)
	if err != nil {
		t.Fatal(err)
	}
	id, err := IDFromPublicKey(pk)
	if err != nil {
		t.Fatal(err)
	}
	b, err := json.Marshal(id)
	if err != nil {
		t.Fatal(err)
	}
	var id2 ID
	if err := json.Unmarshal(b, &id2); err != nil {
		t.Fatal(err)
	}
	if id2 != id {
		t.Fatalf("json round trip mismatch: %s != %s", id2, id)
	}
}
