// Package transport implements the concrete socket.io-style duplex
// channel (component H): a websocket carrying request/response RPC calls
// multiplexed against server-pushed events by a frame envelope, underneath
// the room.Socket interface spec.md §6 declares. The socket.io handshake
// and framing itself are out of scope; this package plays the same duplex
// role with a simpler id-tagged JSON frame.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/takker99/scrapbox-core-go/pkg/logger"
	"github.com/takker99/scrapbox-core-go/pkg/room"
)

const (
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultEventBuffer  = 32
)

// frame is the wire envelope carried over the websocket: a request or its
// response is tagged by ID, a server-pushed event is tagged by Event.
type frame struct {
	ID     string          `json:"id,omitempty"`
	Method string          `json:"method,omitempty"`
	Event  string          `json:"event,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

type pendingRequest struct {
	resultCh chan requestResult
}

type requestResult struct {
	data json.RawMessage
	err  error
}

// Socket is the websocket-backed room.Socket implementation. One Socket
// owns one connection; Request and Responses may be called concurrently,
// serialized internally by writeMu and the pending-request map.
type Socket struct {
	conn *websocket.Conn

	writeMu      sync.Mutex
	writeTimeout time.Duration

	pendingMu sync.Mutex
	pending   map[string]*pendingRequest

	subsMu sync.Mutex
	subs   map[string][]chan room.Envelope

	closed    chan struct{}
	closeOnce sync.Once
}

// Dial opens a websocket connection to url and starts the background
// read pump that demultiplexes inbound frames. readTimeout/writeTimeout
// of zero select the package defaults.
func Dial(ctx context.Context, url string, readTimeout, writeTimeout time.Duration) (*Socket, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial: %w", err)
	}
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	s := &Socket{
		conn:         conn,
		writeTimeout: writeTimeout,
		pending:      make(map[string]*pendingRequest),
		subs:         make(map[string][]chan room.Envelope),
		closed:       make(chan struct{}),
	}
	go s.readPump(readTimeout)
	return s, nil
}

func (s *Socket) readPump(readTimeout time.Duration) {
	for {
		ctx, cancel := context.WithTimeout(context.Background(), readTimeout)
		var f frame
		err := wsjson.Read(ctx, s.conn, &f)
		cancel()
		if err != nil {
			s.failAllPending(fmt.Errorf("transport: read: %w", err))
			return
		}
		switch {
		case f.ID != "":
			s.completeRequest(f)
		case f.Event != "":
			s.dispatchEvent(f)
		default:
			logger.Warn("transport: dropped frame with neither id nor event")
		}
	}
}

func (s *Socket) completeRequest(f frame) {
	s.pendingMu.Lock()
	pr, ok := s.pending[f.ID]
	if ok {
		delete(s.pending, f.ID)
	}
	s.pendingMu.Unlock()
	if !ok {
		return
	}
	var err error
	if f.Error != "" {
		err = fmt.Errorf("transport: server error: %s", f.Error)
	}
	pr.resultCh <- requestResult{data: f.Data, err: err}
}

func (s *Socket) dispatchEvent(f frame) {
	s.subsMu.Lock()
	chans := append([]chan room.Envelope{}, s.subs[f.Event]...)
	s.subsMu.Unlock()

	env := room.Envelope{Event: f.Event, Data: f.Data}
	for _, ch := range chans {
		select {
		case ch <- env:
		default:
			logger.Warn("transport: subscriber channel full, dropping event", "event", f.Event)
		}
	}
}

func (s *Socket) failAllPending(err error) {
	s.pendingMu.Lock()
	pending := s.pending
	s.pending = make(map[string]*pendingRequest)
	s.pendingMu.Unlock()
	for _, pr := range pending {
		pr.resultCh <- requestResult{err: err}
	}
}

// Request issues a request/response RPC call, matched to its response by
// a generated correlation id.
func (s *Socket) Request(ctx context.Context, method string, data any) (json.RawMessage, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("transport: marshal request: %w", err)
	}

	id := uuid.NewString()
	pr := &pendingRequest{resultCh: make(chan requestResult, 1)}
	s.pendingMu.Lock()
	s.pending[id] = pr
	s.pendingMu.Unlock()

	s.writeMu.Lock()
	writeCtx, cancel := context.WithTimeout(ctx, s.writeTimeout)
	err = wsjson.Write(writeCtx, s.conn, frame{ID: id, Method: method, Data: payload})
	cancel()
	s.writeMu.Unlock()
	if err != nil {
		s.pendingMu.Lock()
		delete(s.pending, id)
		s.pendingMu.Unlock()
		return nil, fmt.Errorf("transport: write request: %w", err)
	}

	select {
	case res := <-pr.resultCh:
		return res.data, res.err
	case <-ctx.Done():
		s.pendingMu.Lock()
		delete(s.pending, id)
		s.pendingMu.Unlock()
		return nil, ctx.Err()
	case <-s.closed:
		return nil, fmt.Errorf("transport: socket closed")
	}
}

// Responses subscribes to one or more named events. The returned channel
// is never closed by this call; it stops receiving once Disconnect runs.
func (s *Socket) Responses(ctx context.Context, events ...string) (<-chan room.Envelope, error) {
	ch := make(chan room.Envelope, defaultEventBuffer)
	s.subsMu.Lock()
	for _, event := range events {
		s.subs[event] = append(s.subs[event], ch)
	}
	s.subsMu.Unlock()
	return ch, nil
}

// Disconnect closes the underlying websocket connection; every in-flight
// Request then returns a "transport: socket closed" error.
func (s *Socket) Disconnect() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		err = s.conn.Close(websocket.StatusNormalClosure, "client disconnect")
	})
	return err
}

var _ room.Socket = (*Socket)(nil)

// Dialer dials with capped exponential backoff on failure, grounded on
// ehrlich-b-wingthing's reconnecting websocket client. It retries until
// ctx is cancelled or a dial succeeds; Join only needs one successful
// dial per room, so this does not attempt to reconnect an established
// Socket — a disconnected room must be rejoined by the caller.
type Dialer struct {
	URL          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Backoff      *Backoff
}

// Dial attempts Dial repeatedly with the configured backoff until ctx is
// done or a connection succeeds.
func (d *Dialer) Dial(ctx context.Context) (room.Socket, error) {
	backoff := d.Backoff
	if backoff == nil {
		backoff = NewBackoff(time.Second, 10*time.Second)
	}
	for {
		socket, err := Dial(ctx, d.URL, d.ReadTimeout, d.WriteTimeout)
		if err == nil {
			backoff.Reset()
			return socket, nil
		}
		logger.Warn("transport: dial failed, retrying", "url", d.URL, "error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff.Next()):
		}
	}
}
