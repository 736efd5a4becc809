// Package rpcpeer implements a concurrent stdio JSON-RPC 2.0 peer: the
// engine underneath an LSP session. It owns request-id allocation,
// request/response correlation, notification and server-request
// dispatch, and the single-writer discipline a child process's stdin
// requires.
package rpcpeer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"lspbridge/internal/logging"
)

// NotificationHandler handles a server-to-client notification. It runs on
// the dispatcher goroutine — see dispatchLoop for the ordering guarantee
// this buys, and keep handlers fast.
type NotificationHandler func(params json.RawMessage)

// RequestHandler handles a server-to-client request and returns the
// result to send back, or an RPCError to send as the error response.
type RequestHandler func(params json.RawMessage) (any, *RPCError)

// CloseHandler is invoked exactly once when the peer's transport closes,
// whether cleanly (EOF) or due to a protocol violation. err is nil for a
// clean close.
type CloseHandler func(err error)

type pendingCall struct {
	method string
	ch     chan callResult
}

type callResult struct {
	result json.RawMessage
	err    *RPCError
}

// Peer is one JSON-RPC 2.0 conversation over a pair of framed streams.
// Exactly one Peer exists per LSP session (spec.md Invariant 1).
type Peer struct {
	reader *FrameReader
	writer *FrameWriter
	log    logging.Logger

	writeMu sync.Mutex // serializes all frame writes (single-writer discipline)

	nextID atomic.Int64

	mu      sync.Mutex
	pending map[int64]*pendingCall
	closed  bool
	closeErr error

	notifyMu sync.RWMutex
	notifyHandlers map[string]NotificationHandler

	requestMu sync.RWMutex
	requestHandlers map[string]RequestHandler

	onClose CloseHandler
}

// New constructs a Peer over r/w and starts its dispatcher goroutine.
// The dispatcher runs until r returns an error or io.EOF; onClose (if
// non-nil) fires exactly once when that happens.
func New(r io.Reader, w io.Writer, log logging.Logger, onClose CloseHandler) *Peer {
	if log == nil {
		log = logging.NewNoop()
	}
	p := &Peer{
		reader:          NewFrameReader(r),
		writer:          NewFrameWriter(w),
		log:             log,
		pending:         make(map[int64]*pendingCall),
		notifyHandlers:  make(map[string]NotificationHandler),
		requestHandlers: make(map[string]RequestHandler),
		onClose:         onClose,
	}
	go p.dispatchLoop()
	return p
}

// OnNotification registers the handler for a notification method. Methods
// without a registered handler are logged and dropped (spec.md §4.2).
func (p *Peer) OnNotification(method string, h NotificationHandler) {
	p.notifyMu.Lock()
	defer p.notifyMu.Unlock()
	p.notifyHandlers[method] = h
}

// OnRequest registers the handler for a server-to-client request method.
// If no handler is registered, a generic default responds with null so
// the server is never left blocked (spec.md §4.2).
func (p *Peer) OnRequest(method string, h RequestHandler) {
	p.requestMu.Lock()
	defer p.requestMu.Unlock()
	p.requestHandlers[method] = h
}

// Call issues a request and blocks until the response arrives, ctx is
// done, or the peer closes. On ctx expiry the pending slot is removed and
// a bridgeerr-flavored timeout is NOT constructed here — callers classify
// context.DeadlineExceeded/context.Canceled themselves (rpcpeer has no
// dependency on bridgeerr, keeping the two packages decoupled).
func (p *Peer) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := p.nextID.Add(1)

	raw, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params for %s: %w", method, err)
	}
	idJSON := json.RawMessage(fmt.Sprintf("%d", id))
	msg := wireMessage{JSONRPC: "2.0", ID: &idJSON, Method: method, Params: raw}

	pc := &pendingCall{method: method, ch: make(chan callResult, 1)}

	p.mu.Lock()
	if p.closed {
		cerr := p.closeErr
		p.mu.Unlock()
		return nil, fmt.Errorf("peer closed: %w", errOrClosed(cerr))
	}
	p.pending[id] = pc
	p.mu.Unlock()

	if err := p.writeFrame(msg); err != nil {
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
		return nil, fmt.Errorf("write %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		p.mu.Lock()
		delete(p.pending, id)
		p.mu.Unlock()
		return nil, ctx.Err()
	case res := <-pc.ch:
		if res.err != nil {
			return nil, res.err
		}
		return res.result, nil
	}
}

// Notify writes a notification; no reply is expected.
func (p *Peer) Notify(method string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal params for %s: %w", method, err)
	}
	msg := wireMessage{JSONRPC: "2.0", Method: method, Params: raw}
	return p.writeFrame(msg)
}

// Close marks the peer closed and fails every pending call with cause.
// Safe to call more than once; only the first call has effect.
func (p *Peer) Close(cause error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.closeErr = cause
	pending := p.pending
	p.pending = make(map[int64]*pendingCall)
	p.mu.Unlock()

	for id, pc := range pending {
		pc.ch <- callResult{err: &RPCError{Code: ErrCodeInternalError, Message: errOrClosed(cause).Error()}}
		_ = id
	}
}

func errOrClosed(err error) error {
	if err != nil {
		return err
	}
	return io.EOF
}

func (p *Peer) writeFrame(msg wireMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return p.writer.WriteMessage(body)
}

// dispatchLoop is the single fiber that reads frames and correlates
// responses, runs notification handlers (in the order the server emitted
// them, per spec.md §5), and answers server-to-client requests.
func (p *Peer) dispatchLoop() {
	var closeErr error
	for {
		body, err := p.reader.ReadMessage()
		if err != nil {
			if err != io.EOF {
				closeErr = err
			}
			break
		}
		var msg wireMessage
		if err := json.Unmarshal(body, &msg); err != nil {
			closeErr = fmt.Errorf("%w: %v", ErrProtocol, err)
			break
		}
		switch {
		case msg.isResponse():
			p.handleResponse(&msg)
		case msg.isServerRequest():
			p.handleServerRequest(&msg)
		case msg.isNotification():
			p.handleNotification(&msg)
		default:
			p.log.Warning("rpcpeer: dropping message with no id and no method")
		}
	}
	p.Close(closeErr)
	if p.onClose != nil {
		p.onClose(closeErr)
	}
}

func (p *Peer) handleResponse(msg *wireMessage) {
	var id int64
	if err := json.Unmarshal(*msg.ID, &id); err != nil {
		p.log.Warning("rpcpeer: response with non-integer id {ID}", string(*msg.ID))
		return
	}
	p.mu.Lock()
	pc, ok := p.pending[id]
	if ok {
		delete(p.pending, id)
	}
	p.mu.Unlock()
	if !ok {
		// Either never sent, or the caller already timed out and
		// removed the slot — the response is dropped (spec.md §5).
		return
	}
	pc.ch <- callResult{result: msg.Result, err: msg.Error}
}

func (p *Peer) handleNotification(msg *wireMessage) {
	p.notifyMu.RLock()
	h, ok := p.notifyHandlers[msg.Method]
	p.notifyMu.RUnlock()
	if !ok {
		p.log.Debug("rpcpeer: no handler for notification {Method}", msg.Method)
		return
	}
	h(msg.Params)
}

func (p *Peer) handleServerRequest(msg *wireMessage) {
	p.requestMu.RLock()
	h, ok := p.requestHandlers[msg.Method]
	p.requestMu.RUnlock()

	var result any
	var rpcErr *RPCError
	if ok {
		result, rpcErr = h(msg.Params)
	} else {
		result = nil // generic default: respond null (spec.md §4.2)
	}

	resp := wireMessage{JSONRPC: "2.0", ID: msg.ID}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		raw, err := json.Marshal(result)
		if err != nil {
			resp.Error = &RPCError{Code: ErrCodeInternalError, Message: err.Error()}
		} else {
			resp.Result = raw
		}
	}
	if err := p.writeFrame(resp); err != nil {
		p.log.Warning("rpcpeer: failed to respond to server request {Method}: {Error}", msg.Method, err.Error())
	}
}
