package rpcpeer

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"
)

// pipePeers wires two Peers back to back over in-memory pipes so tests can
// exercise Call/Notify/OnRequest without a real subprocess.
func pipePeers(t *testing.T) (client, server *Peer) {
	t.Helper()
	cr, sw := io.Pipe()
	sr, cw := io.Pipe()
	client = New(cr, cw, nil, nil)
	server = New(sr, sw, nil, nil)
	t.Cleanup(func() {
		client.Close(nil)
		server.Close(nil)
	})
	return client, server
}

func TestCallRoundTrip(t *testing.T) {
	client, server := pipePeers(t)

	server.OnRequest("echo", func(params json.RawMessage) (any, *RPCError) {
		var s string
		json.Unmarshal(params, &s)
		return s + "-pong", nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, err := client.Call(ctx, "echo", "ping")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	var got string
	if err := json.Unmarshal(result, &got); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if got != "ping-pong" {
		t.Errorf("got %q, want %q", got, "ping-pong")
	}
}

func TestCallWithoutHandlerRespondsNull(t *testing.T) {
	client, _ := pipePeers(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	// server never registered a handler for "unregistered"; per spec.md
	// §4.2 the default response is a null result, not an error.
	result, err := client.Call(ctx, "unregistered", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if string(result) != "null" {
		t.Errorf("expected null result for an unhandled method, got %s", result)
	}
}

func TestCallTimeoutRemovesPendingSlot(t *testing.T) {
	client, server := pipePeers(t)
	_ = server // never responds

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.Call(ctx, "neverReplies", nil)
	if err != context.DeadlineExceeded {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}

	client.mu.Lock()
	n := len(client.pending)
	client.mu.Unlock()
	if n != 0 {
		t.Errorf("expected pending map empty after timeout, got %d entries", n)
	}
}

func TestLateResponseAfterTimeoutIsDropped(t *testing.T) {
	client, server := pipePeers(t)

	release := make(chan struct{})
	server.OnRequest("slow", func(json.RawMessage) (any, *RPCError) {
		<-release
		return "late", nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := client.Call(ctx, "slow", nil)
	if err != context.DeadlineExceeded {
		t.Fatalf("expected timeout, got %v", err)
	}
	close(release)
	// give the dispatcher loop a moment to process and drop the late reply.
	time.Sleep(50 * time.Millisecond)
}

func TestNotifyDeliversInOrder(t *testing.T) {
	client, server := pipePeers(t)

	var got []int
	done := make(chan struct{})
	server.OnNotification("tick", func(params json.RawMessage) {
		var n int
		json.Unmarshal(params, &n)
		got = append(got, n)
		if n == 3 {
			close(done)
		}
	})

	client.Notify("tick", 1)
	client.Notify("tick", 2)
	client.Notify("tick", 3)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notifications")
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Errorf("expected [1 2 3] in order, got %v", got)
	}
}

func TestCloseFailsPendingCalls(t *testing.T) {
	client, server := pipePeers(t)
	server.OnRequest("hang", func(json.RawMessage) (any, *RPCError) {
		select {} // never responds
	})

	errCh := make(chan error, 1)
	go func() {
		_, err := client.Call(context.Background(), "hang", nil)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	client.Close(io.ErrClosedPipe)

	select {
	case err := <-errCh:
		if err == nil {
			t.Error("expected an error after Close")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Call did not unblock after Close")
	}
}
