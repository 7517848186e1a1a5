package varint

import (
	"bufio"
	"bytes"
	"math/rand"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		v := rnd.Uint64()
		if i < 64 {
			// bias toward small values, which exercise the 1-byte path
			v = uint64(i)
		}
		buf := &bytes.Buffer{}
		if err := WriteUvarint(buf, v); err != nil {
			t.Fatalf("write(%d): %s", v, err)
		}
		if buf.Len() != UvarintSize(v) {
			t.Errorf("UvarintSize(%d) = %d, wrote %d bytes", v, UvarintSize(v), buf.Len())
		}
		got, err := ReadUvarint(bufio.NewReader(buf))
		if err != nil {
			t.Fatalf("read(%d): %s", v, err)
		}
		if got != v {
			t.Errorf("round-trip mismatch: wrote %d, read %d", v, got)
		}
	}
}

func TestNonCanonicalTrailingZero(t *testing.T) {
	// 0x80 0x00 decodes to zero but isn't the canonical one-byte encoding.
	r := bufio.NewReader(bytes.NewReader([]byte{0x80, 0x00}))
	if _, err := ReadUvarint(r); err != ErrNotMinimal {
		t.Fatalf("expected ErrNotMinimal, got %v", err)
	}
}

func TestTruncated(t *testing.T) {
	r := bufio.NewReader(bytes.NewReader([]byte{0x80, 0x80}))
	if _, err := ReadUvarint(r); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
}

func TestOverflow(t *testing.T) {
	buf := bytes.Repeat([]byte{0x80}, 10)
	r := bufio.NewReader(bytes.NewReader(buf))
	if _, err := ReadUvarint(r); err != ErrOverflow {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
}

func TestZero(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := WriteUvarint(buf, 0); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(buf.Bytes(), []byte{0}) {
		t.Errorf("expected single zero byte, got %x", buf.Bytes())
	}
}
