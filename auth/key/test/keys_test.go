package test

import "testing"

func TestGetKeyData(t *testing.T) {
	kd0 := GetKeyData(0)
	kd1 := GetKeyData(1)

	if kd0.PeerID == kd1.PeerID {
		t.Error("expected distinct fixture indices to produce distinct peer IDs")
	}

	if !kd0.PrivKey.GetPublic().Equals(kd0.PubKey) {
		t.Error("expected fixture PubKey to match PrivKey.GetPublic()")
	}

	// fetching the same index twice must be stable within a process
	again := GetKeyData(0)
	if again.PeerID != kd0.PeerID {
		t.Error("expected repeated GetKeyData(0) calls to return the same identity")
	}
}
