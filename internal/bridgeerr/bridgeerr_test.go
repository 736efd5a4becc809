package bridgeerr

import (
	"errors"
	"testing"
)

func TestCallErrorIs(t *testing.T) {
	err := New(KindTimeout, "hover", errors.New("deadline exceeded"))

	if !errors.Is(err, Timeout) {
		t.Error("expected errors.Is to match Timeout")
	}
	if errors.Is(err, RPCError) {
		t.Error("did not expect errors.Is to match RPCError")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    Kind
		wantOK  bool
	}{
		{"call error", New(KindProtocolError, "initialize", nil), KindProtocolError, true},
		{"plain error", errors.New("boom"), "", false},
		{"nil error", nil, "", false},
	}

	for _, tt := range tests {
		got, ok := KindOf(tt.err)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("%s: KindOf() = (%q, %v), want (%q, %v)", tt.name, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestCallErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := New(KindIOError, "write", cause)

	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}

func TestCallErrorMessage(t *testing.T) {
	err := New(KindSpawnError, "start", errors.New("exec: not found"))
	got := err.Error()
	want := "start: spawnError: exec: not found"
	if got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
