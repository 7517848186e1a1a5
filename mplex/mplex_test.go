package mplex

import (
	"bytes"
	"io"
	"net"
	"testing"
	"time"
)

func TestOpenStreamAndExchangeData(t *testing.T) {
	ncA, ncB := net.Pipe()
	a := NewConn(ncA, true)
	b := NewConn(ncB, false)
	defer a.Close()
	defer b.Close()

	sA, err := a.OpenStream("hello")
	if err != nil {
		t.Fatal(err)
	}

	acceptErrCh := make(chan error, 1)
	var sB *stream
	go func() {
		var err error
		sB, err = b.AcceptStream()
		acceptErrCh <- err
	}()

	msg := []byte("ping")
	writeErrCh := make(chan error, 1)
	go func() {
		_, err := sA.Write(msg)
		writeErrCh <- err
	}()

	if err := <-acceptErrCh; err != nil {
		t.Fatalf("accept: %s", err)
	}
	buf := make([]byte, len(msg))
	if _, err := io.ReadFull(sB, buf); err != nil {
		t.Fatalf("read: %s", err)
	}
	if err := <-writeErrCh; err != nil {
		t.Fatalf("write: %s", err)
	}
	if !bytes.Equal(buf, msg) {
		t.Fatalf("got %q want %q", buf, msg)
	}
}

func TestCloseHalfCloses(t *testing.T) {
	ncA, ncB := net.Pipe()
	a := NewConn(ncA, true)
	b := NewConn(ncB, false)
	defer a.Close()
	defer b.Close()

	sA, err := a.OpenStream("")
	if err != nil {
		t.Fatal(err)
	}
	var sB *stream
	done := make(chan struct{})
	go func() {
		sB, _ = b.AcceptStream()
		close(done)
	}()
	sA.Close()
	<-done

	time.Sleep(20 * time.Millisecond)
	n, err := sB.Read(make([]byte, 16))
	if n != 0 || err != io.EOF {
		t.Fatalf("expected EOF after peer close, got n=%d err=%v", n, err)
	}
}

func TestResetAbortsStream(t *testing.T) {
	ncA, ncB := net.Pipe()
	a := NewConn(ncA, true)
	b := NewConn(ncB, false)
	defer a.Close()
	defer b.Close()

	sA, err := a.OpenStream("")
	if err != nil {
		t.Fatal(err)
	}
	go func() { b.AcceptStream() }()
	time.Sleep(10 * time.Millisecond)

	sA.Reset()
	if _, err := sA.Write([]byte("x")); err != ErrReset {
		t.Fatalf("expected ErrReset after reset, got %v", err)
	}
}

func TestStreamNameTooLong(t *testing.T) {
	ncA, ncB := net.Pipe()
	a := NewConn(ncA, true)
	defer a.Close()
	defer ncB.Close()

	_, err := a.OpenStream(string(make([]byte, MaxNewStreamPayload+1)))
	if err == nil {
		t.Fatal("expected error opening stream with an oversized name")
	}
}
