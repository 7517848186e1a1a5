package key_test

import (
	"errors"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/qri-io/libp2p/auth/key"
	keytest "github.com/qri-io/libp2p/auth/key/test"
)

func TestLocalStore(t *testing.T) {
	path, err := ioutil.TempDir("", "keys")
	if err != nil {
		t.Fatalf("error creating tmp directory: %s", err.Error())
	}

	ks, err := key.NewLocalStore(filepath.Join(path, "keystore_test.json"))
	if err != nil {
		t.Fatal(err)
	}

	kd0 := keytest.GetKeyData(0)

	if err = ks.AddPubKey(key.ID("this_must_fail"), kd0.PrivKey.GetPublic()); err == nil {
		t.Error("expected adding public key with mismatching ID to fail. got nil")
	} else if !errors.Is(err, key.ErrKeyAndIDMismatch) {
		t.Errorf("mismatched ID error must wrap exported package error, got: %s", err)
	}

	if err = ks.AddPubKey(kd0.PeerID, kd0.PrivKey.GetPublic()); err != nil {
		t.Fatal(err)
	}

	if err = ks.AddPrivKey(kd0.PeerID, kd0.PrivKey); err != nil {
		t.Fatal(err)
	}

	if err = ks.AddPrivKey(key.ID("this_must_fail"), kd0.PrivKey); err == nil {
		t.Error("expected adding private key with mismatching ID to fail. got nil")
	} else if !errors.Is(err, key.ErrKeyAndIDMismatch) {
		t.Errorf("mismatched ID error must wrap exported package error, got: %s", err)
	}

	reopened, err := key.NewLocalStore(filepath.Join(path, "keystore_test.json"))
	if err != nil {
		t.Fatal(err)
	}
	if pub := reopened.PubKey(kd0.PeerID); pub == nil || !pub.Equals(kd0.PrivKey.GetPublic()) {
		t.Error("expected public key written by one store handle to be readable from a fresh one")
	}
	if priv := reopened.PrivKey(kd0.PeerID); priv == nil || !priv.Equals(kd0.PrivKey) {
		t.Error("expected private key written by one store handle to be readable from a fresh one")
	}
}

func TestMemStore(t *testing.T) {
	ks, err := key.NewMemStore()
	if err != nil {
		t.Fatal(err)
	}

	kd0 := keytest.GetKeyData(0)
	if err := ks.AddPrivKey(kd0.PeerID, kd0.PrivKey); err != nil {
		t.Fatal(err)
	}

	ids := ks.IDsWithKeys()
	if len(ids) != 1 || ids[0] != kd0.PeerID {
		t.Errorf("expected exactly one ID with keys, got %v", ids)
	}
}
