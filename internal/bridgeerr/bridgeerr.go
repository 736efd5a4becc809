// Package bridgeerr defines the error kinds shared across the LSP bridge
// core so that per-call failures can be classified without inspecting
// error strings.
package bridgeerr

import (
	"errors"
	"fmt"
)

// Kind is one of the ten error kinds the core can produce.
type Kind string

const (
	KindConfigError       Kind = "configError"
	KindSpawnError        Kind = "spawnError"
	KindProtocolError     Kind = "protocolError"
	KindRPCError          Kind = "rpcError"
	KindTimeout           Kind = "timeout"
	KindTransportClosed   Kind = "transportClosed"
	KindUnknownWorkspace  Kind = "unknownWorkspace"
	KindUnavailable       Kind = "unavailable"
	KindIOError           Kind = "ioError"
	KindNotFound          Kind = "notFound"
)

// sentinel values so callers can do errors.Is(err, bridgeerr.Timeout) etc.
var (
	ConfigError      = &CallError{Kind: KindConfigError}
	SpawnError       = &CallError{Kind: KindSpawnError}
	ProtocolError    = &CallError{Kind: KindProtocolError}
	RPCError         = &CallError{Kind: KindRPCError}
	Timeout          = &CallError{Kind: KindTimeout}
	TransportClosed  = &CallError{Kind: KindTransportClosed}
	UnknownWorkspace = &CallError{Kind: KindUnknownWorkspace}
	Unavailable      = &CallError{Kind: KindUnavailable}
	IOError          = &CallError{Kind: KindIOError}
	NotFound         = &CallError{Kind: KindNotFound}
)

// CallError wraps an underlying cause with the operation that produced it
// and the kind it should be classified as.
type CallError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *CallError) Error() string {
	if e.Err == nil {
		if e.Op == "" {
			return string(e.Kind)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *CallError) Unwrap() error { return e.Err }

// Is makes *CallError comparable by Kind via errors.Is, so callers can
// write errors.Is(err, bridgeerr.Timeout) regardless of Op/Err.
func (e *CallError) Is(target error) bool {
	t, ok := target.(*CallError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds a *CallError for the given kind, operation label, and cause.
func New(kind Kind, op string, cause error) *CallError {
	return &CallError{Kind: kind, Op: op, Err: cause}
}

// KindOf extracts the Kind from err if it (or something it wraps) is a
// *CallError, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind, true
	}
	return "", false
}
