package rpcpeer

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestWriteThenReadRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewFrameWriter(&buf)
	if err := w.WriteMessage([]byte(`{"jsonrpc":"2.0","id":1,"method":"ping"}`)); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	r := NewFrameReader(&buf)
	body, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if string(body) != `{"jsonrpc":"2.0","id":1,"method":"ping"}` {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestReadMessageCleanEOF(t *testing.T) {
	r := NewFrameReader(strings.NewReader(""))
	_, err := r.ReadMessage()
	if err != io.EOF {
		t.Errorf("expected io.EOF at a clean stream boundary, got %v", err)
	}
}

func TestReadMessageMissingContentLength(t *testing.T) {
	r := NewFrameReader(strings.NewReader("Content-Type: application/json\r\n\r\n"))
	_, err := r.ReadMessage()
	if !errors.Is(err, ErrProtocol) {
		t.Errorf("expected ErrProtocol, got %v", err)
	}
}

func TestReadMessageTruncatedBody(t *testing.T) {
	r := NewFrameReader(strings.NewReader("Content-Length: 10\r\n\r\n{\"a\":1}"))
	_, err := r.ReadMessage()
	if !errors.Is(err, ErrProtocol) {
		t.Errorf("expected ErrProtocol for a truncated body, got %v", err)
	}
}

func TestReadMessageHeaderCaseInsensitive(t *testing.T) {
	r := NewFrameReader(strings.NewReader("content-length: 2\r\n\r\n{}"))
	body, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if string(body) != "{}" {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestMultipleMessagesInSequence(t *testing.T) {
	var buf bytes.Buffer
	w := NewFrameWriter(&buf)
	w.WriteMessage([]byte(`{"n":1}`))
	w.WriteMessage([]byte(`{"n":2}`))

	r := NewFrameReader(&buf)
	first, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("first ReadMessage: %v", err)
	}
	second, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("second ReadMessage: %v", err)
	}
	if string(first) != `{"n":1}` || string(second) != `{"n":2}` {
		t.Errorf("unexpected bodies: %s, %s", first, second)
	}
}
