package gateway

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hendrywilliam/siren/src/credential"
	"github.com/hendrywilliam/siren/src/structs"
	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"
)

var errFakeClosed = errors.New("fake connection closed")

type fakeFrame struct {
	messageType int
	data        []byte
	err         error
}

// fakeConn is an in-memory socket. The test plays the server: it pushes
// frames with send and reads what the client wrote with expect.
type fakeConn struct {
	url       string
	in        chan fakeFrame
	out       chan []byte
	closeMu   sync.Mutex
	closes    []int
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn(url string) *fakeConn {
	return &fakeConn{
		url:    url,
		in:     make(chan fakeFrame, 64),
		out:    make(chan []byte, 256),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-c.in:
		return f.messageType, f.data, f.err
	case <-c.closed:
		return 0, nil, errFakeClosed
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	select {
	case <-c.closed:
		return errFakeClosed
	default:
	}
	select {
	case c.out <- data:
		return nil
	case <-c.closed:
		return errFakeClosed
	}
}

func (c *fakeConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	select {
	case <-c.closed:
		return errFakeClosed
	default:
	}
	if messageType != websocket.CloseMessage || len(data) < 2 {
		return nil
	}
	code := int(binary.BigEndian.Uint16(data))
	c.closeMu.Lock()
	c.closes = append(c.closes, code)
	c.closeMu.Unlock()
	// Echo the close like a well-behaved server.
	select {
	case c.in <- fakeFrame{err: &websocket.CloseError{Code: code}}:
	default:
	}
	return nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error { return nil }

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) closeCodes() []int {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return append([]int(nil), c.closes...)
}

func (c *fakeConn) send(t *testing.T, op int, d any, s *uint64, name string) {
	t.Helper()
	payload, err := json.Marshal(d)
	require.NoError(t, err)
	frame, err := json.Marshal(structs.RawEvent{Op: op, D: payload, S: s, T: name})
	require.NoError(t, err)
	c.in <- fakeFrame{messageType: websocket.TextMessage, data: frame}
}

func (c *fakeConn) sendRaw(data []byte) {
	c.in <- fakeFrame{messageType: websocket.TextMessage, data: data}
}

func (c *fakeConn) sendCompressed(t *testing.T, op int, d any) {
	t.Helper()
	payload, err := json.Marshal(d)
	require.NoError(t, err)
	frame, err := json.Marshal(structs.RawEvent{Op: op, D: payload})
	require.NoError(t, err)
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, err = w.Write(frame)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	c.in <- fakeFrame{messageType: websocket.BinaryMessage, data: buf.Bytes()}
}

func (c *fakeConn) hello(t *testing.T, interval time.Duration) {
	c.send(t, OpcodeHello, structs.HelloEvent{HeartbeatInterval: uint(interval / time.Millisecond)}, nil, "")
}

func (c *fakeConn) dispatch(t *testing.T, seq uint64, name string, d any) {
	c.send(t, OpcodeDispatch, d, &seq, name)
}

func (c *fakeConn) ready(t *testing.T, sessionID string, seq uint64) {
	c.dispatch(t, seq, structs.EventNameReady, structs.ReadyEvent{
		V:                10,
		User:             structs.User{ID: "1", Username: "siren"},
		SessionID:        sessionID,
		ResumeGatewayURL: "wss://resume.gateway.test",
	})
}

// serverClose simulates the server dropping the socket with code.
func (c *fakeConn) serverClose(code int) {
	c.in <- fakeFrame{err: &websocket.CloseError{Code: code}}
}

type outbound struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

// expect returns the next frame the client wrote with op, skipping
// heartbeats unless op is a heartbeat.
func (c *fakeConn) expect(t *testing.T, op int) outbound {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case data := <-c.out:
			var f outbound
			require.NoError(t, json.Unmarshal(data, &f))
			if f.Op == op {
				return f
			}
			if f.Op == OpcodeHeartbeat {
				continue
			}
			t.Fatalf("expected op %d, client sent op %d: %s", op, f.Op, data)
		case <-timeout:
			t.Fatalf("client never sent op %d", op)
		}
	}
}

type fakeDialer struct {
	conns chan *fakeConn
	mu    sync.Mutex
	urls  []string
	err   error
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(chan *fakeConn, 128)}
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, url)
	err := d.err
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	c := newFakeConn(url)
	d.conns <- c
	return c, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls)
}

func (d *fakeDialer) next(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(3 * time.Second):
		t.Fatal("client never dialed")
		return nil
	}
}

type sinkFrame struct {
	name string
	raw  json.RawMessage
}

type recordingSink struct {
	frames chan sinkFrame
}

func newRecordingSink() *recordingSink {
	return &recordingSink{frames: make(chan sinkFrame, 128)}
}

func (s *recordingSink) Dispatch(ctx context.Context, name string, raw json.RawMessage) {
	s.frames <- sinkFrame{name: name, raw: raw}
}

func (s *recordingSink) next(t *testing.T) sinkFrame {
	t.Helper()
	select {
	case f := <-s.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame dispatched")
		return sinkFrame{}
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions(dialer Dialer, sink Sink) Options {
	return Options{
		URL:             "wss://gateway.test",
		Credentials:     credential.Static("T1"),
		Intents:         GuildsIntent,
		Dialer:          dialer,
		Sink:            sink,
		BackoffBase:     5 * time.Millisecond,
		BackoffMax:      20 * time.Millisecond,
		IdentifyLimit:   100,
		IdentifyWindow:  time.Second,
		ShutdownTimeout: 2 * time.Second,
		Jitter:          func() float64 { return 0.99 },
		Logger:          discardLogger(),
	}
}

type running struct {
	g    *Gateway
	errc chan error
}

func startGateway(t *testing.T, opts Options) *running {
	t.Helper()
	g := NewGateway(opts)
	r := &running{g: g, errc: make(chan error, 1)}
	go func() { r.errc <- g.Start(context.Background()) }()
	t.Cleanup(g.Stop)
	return r
}

func (r *running) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-r.errc:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return")
		return nil
	}
}

func waitForState(t *testing.T, g *Gateway, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return g.State() == want }, 3*time.Second, time.Millisecond,
		"state never became %s, last %s", want, g.State())
}
