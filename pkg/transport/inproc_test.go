package transport

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func TestInprocOpenDialRoundTrip(t *testing.T) {
	tr := NewInproc()

	listener, err := tr.Open("pipe-a")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer listener.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	client, err := tr.Dial(ctx, "pipe-a")
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer client.Close()

	server, err := listener.Accept(ctx)
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}

	sent := [][]byte{[]byte("hello"), {}, []byte("world")}
	if err := client.SendFrames(sent); err != nil {
		t.Fatalf("SendFrames() error = %v", err)
	}

	got, err := server.ReceiveFrames(ctx)
	if err != nil {
		t.Fatalf("ReceiveFrames() error = %v", err)
	}
	if len(got) != len(sent) {
		t.Fatalf("received %d frames, want %d", len(got), len(sent))
	}
	for i := range sent {
		if !bytes.Equal(got[i], sent[i]) {
			t.Errorf("frame %d = %q, want %q", i, got[i], sent[i])
		}
	}

	// Reply flows the other way on the same channel
	if err := server.SendFrames([][]byte{[]byte("ack")}); err != nil {
		t.Fatalf("SendFrames() reply error = %v", err)
	}
	reply, err := client.ReceiveFrames(ctx)
	if err != nil {
		t.Fatalf("ReceiveFrames() reply error = %v", err)
	}
	if string(reply[0]) != "ack" {
		t.Errorf("reply = %q, want %q", reply[0], "ack")
	}
}

func TestInprocAddrInUse(t *testing.T) {
	tr := NewInproc()

	listener, err := tr.Open("busy")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer listener.Close()

	if _, err := tr.Open("busy"); !errors.Is(err, ErrAddrInUse) {
		t.Fatalf("second Open() error = %v, want ErrAddrInUse", err)
	}
}

func TestInprocDialUnknownEndpoint(t *testing.T) {
	tr := NewInproc()
	if _, err := tr.Dial(context.Background(), "nowhere"); !errors.Is(err, ErrNoListener) {
		t.Fatalf("Dial() error = %v, want ErrNoListener", err)
	}
}

func TestInprocCloseUnblocksReceive(t *testing.T) {
	tr := NewInproc()

	listener, err := tr.Open("closing")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	client, err := tr.Dial(ctx, "closing")
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	server, err := listener.Accept(ctx)
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}

	received := make(chan error, 1)
	go func() {
		_, err := server.ReceiveFrames(context.Background())
		received <- err
	}()

	client.Close()

	select {
	case err := <-received:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("ReceiveFrames() after close error = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("ReceiveFrames() did not unblock after peer close")
	}
}

func TestInprocListenerCloseUnblocksAccept(t *testing.T) {
	tr := NewInproc()

	listener, err := tr.Open("accepting")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	accepted := make(chan error, 1)
	go func() {
		_, err := listener.Accept(context.Background())
		accepted <- err
	}()

	time.Sleep(10 * time.Millisecond)
	listener.Close()

	select {
	case err := <-accepted:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("Accept() after close error = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Accept() did not unblock after listener close")
	}

	// Endpoint name is free again
	relisten, err := tr.Open("accepting")
	if err != nil {
		t.Fatalf("re-Open() after close error = %v", err)
	}
	relisten.Close()
}
