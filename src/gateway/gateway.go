// Package gateway maintains a single shard's session with the realtime
// gateway: handshake, heartbeating, sequence tracking, and the
// resume-or-identify reconnect loop.
//
// A Gateway runs one connection at a time. Frames flow through a single
// receive loop per connection; dispatch frames are handed to a Sink in
// arrival order.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/hendrywilliam/siren/src/credential"
	"github.com/hendrywilliam/siren/src/errs"
	"github.com/hendrywilliam/siren/src/metrics"
	"github.com/hendrywilliam/siren/src/ratelimit"
	"github.com/hendrywilliam/siren/src/structs"
)

const DefaultURL = "wss://gateway.discord.gg"

// Sink receives every dispatch frame exactly once, in arrival order.
type Sink interface {
	Dispatch(ctx context.Context, name string, raw json.RawMessage)
}

type Options struct {
	// URL of the gateway. When empty, Discover is consulted once and
	// DefaultURL is used as the fallback.
	URL      string
	Discover func(ctx context.Context) (string, error)
	Version  int
	Encoding string
	// Compress requests zlib-compressed payloads. Binary frames are
	// inflated regardless of this setting.
	Compress bool

	Credentials    credential.Provider
	Intents        Intent
	ShardID        int
	ShardCount     int
	Properties     structs.IdentifyEventProperties
	Presence       *structs.UpdatePresence
	LargeThreshold int

	// Limiter governs the identify and send budgets. It is usually shared
	// with the REST client.
	Limiter        *ratelimit.Limiter
	IdentifyLimit  int
	IdentifyWindow time.Duration
	SendLimit      int
	SendWindow     time.Duration

	Sink    Sink
	OnError func(error)

	BackoffBase  time.Duration
	BackoffMax   time.Duration
	StablePeriod time.Duration
	// HeartbeatTimeoutFactor times the heartbeat interval is how long an
	// unacknowledged heartbeat may stay outstanding.
	HeartbeatTimeoutFactor float64
	// MaxReconnectAttempts bounds consecutive failed reconnects. Zero means
	// unlimited.
	MaxReconnectAttempts   int
	ShutdownTimeout        time.Duration
	HelloTimeout           time.Duration
	ProtocolErrorThreshold int
	// Jitter returns a value in [0,1). It scales the first heartbeat and
	// shortens every later one by up to 5% of the interval.
	Jitter func() float64

	Dialer  Dialer
	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

func (o *Options) setDefaults() {
	if o.Version == 0 {
		o.Version = 10
	}
	if o.Encoding == "" {
		o.Encoding = "json"
	}
	if o.ShardCount == 0 {
		o.ShardCount = 1
	}
	if o.Properties == (structs.IdentifyEventProperties{}) {
		o.Properties = structs.IdentifyEventProperties{Os: "linux", Browser: "siren", Device: "siren"}
	}
	if o.IdentifyLimit == 0 {
		o.IdentifyLimit = 1
	}
	if o.IdentifyWindow == 0 {
		o.IdentifyWindow = 5 * time.Second
	}
	if o.SendLimit == 0 {
		o.SendLimit = 120
	}
	if o.SendWindow == 0 {
		o.SendWindow = 60 * time.Second
	}
	if o.BackoffBase == 0 {
		o.BackoffBase = time.Second
	}
	if o.BackoffMax == 0 {
		o.BackoffMax = 60 * time.Second
	}
	if o.StablePeriod == 0 {
		o.StablePeriod = 60 * time.Second
	}
	if o.HeartbeatTimeoutFactor == 0 {
		o.HeartbeatTimeoutFactor = 2
	}
	if o.ShutdownTimeout == 0 {
		o.ShutdownTimeout = 5 * time.Second
	}
	if o.HelloTimeout == 0 {
		o.HelloTimeout = 30 * time.Second
	}
	if o.ProtocolErrorThreshold == 0 {
		o.ProtocolErrorThreshold = 5
	}
	if o.Jitter == nil {
		o.Jitter = rand.Float64
	}
	if o.Dialer == nil {
		o.Dialer = WebsocketDialer{}
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Limiter == nil {
		o.Limiter = ratelimit.New(ratelimit.Options{Clock: o.Clock, Logger: o.Logger, Metrics: o.Metrics})
	}
}

type run struct {
	done   chan struct{}
	cancel context.CancelFunc
	err    error
}

type Gateway struct {
	opts    Options
	log     *slog.Logger
	clock   clock.Clock
	limiter *ratelimit.Limiter
	metrics *metrics.Metrics

	runMu    sync.Mutex
	run      *run
	stopping atomic.Bool

	// mu guards the session fields and serializes snapshot publication.
	mu          sync.Mutex
	state       State
	sessionID   string
	resumeURL   string
	gatewayURL  string
	connectedAt time.Time
	heartbeat   HeartbeatState
	latency     time.Duration
	info        atomic.Pointer[SessionInfo]

	sequence atomic.Uint64
	hasSeq   atomic.Bool

	// writeMu serializes writes and guards conn.
	writeMu sync.Mutex
	conn    Conn
}

// NewGateway builds a stopped session for one shard and registers the
// identify and send budgets on its limiter.
func NewGateway(opts Options) *Gateway {
	opts.setDefaults()
	g := &Gateway{
		opts:       opts,
		log:        opts.Logger.With("shard", opts.ShardID),
		clock:      opts.Clock,
		limiter:    opts.Limiter,
		metrics:    opts.Metrics,
		gatewayURL: opts.URL,
	}
	g.limiter.Configure(ratelimit.GatewayIdentify, opts.IdentifyLimit, opts.IdentifyWindow)
	g.limiter.Configure(ratelimit.GatewaySend, opts.SendLimit, opts.SendWindow)
	g.mu.Lock()
	g.publishLocked()
	g.mu.Unlock()
	return g
}

// Start runs the session until Stop is called, ctx is done, or an
// unrecoverable error occurs. Calling Start while a run is active joins that
// run instead of opening a second connection.
func (g *Gateway) Start(ctx context.Context) error {
	g.runMu.Lock()
	r := g.run
	owner := r == nil
	if owner {
		runCtx, cancel := context.WithCancel(ctx)
		r = &run{done: make(chan struct{}), cancel: cancel}
		g.run = r
		g.stopping.Store(false)
		go func() {
			r.err = g.loop(runCtx)
			cancel()
			g.runMu.Lock()
			if g.run == r {
				g.run = nil
			}
			g.runMu.Unlock()
			close(r.done)
		}()
	}
	g.runMu.Unlock()

	if owner {
		<-r.done
		return r.err
	}
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the connection with a normal closure and waits up to
// ShutdownTimeout for the run to finish before forcing the socket closed.
// It is safe to call more than once and before Start.
func (g *Gateway) Stop() {
	g.runMu.Lock()
	r := g.run
	g.runMu.Unlock()
	if r == nil {
		g.setState(Disconnected)
		return
	}

	g.setState(Closing)
	g.stopping.Store(true)
	r.cancel()
	select {
	case <-r.done:
	case <-g.clock.After(g.opts.ShutdownTimeout):
		g.log.Warn("gateway did not stop in time, forcing connection closed")
		g.writeMu.Lock()
		if g.conn != nil {
			g.conn.Close()
		}
		g.writeMu.Unlock()
	}
	g.setState(Disconnected)
}

// Info returns the latest session snapshot. ok is false while disconnected.
func (g *Gateway) Info() (SessionInfo, bool) {
	info := g.info.Load()
	return *info, info.State != Disconnected
}

func (g *Gateway) State() State {
	return g.info.Load().State
}

func (g *Gateway) IsConnected() bool {
	return g.State() == Connected
}

// Send writes an outbound command frame, waiting for the send budget.
func (g *Gateway) Send(ctx context.Context, op GatewayOpcode, d any) error {
	const errOp = "gateway.Send"
	if !g.IsConnected() {
		return errs.E(errs.KindTransport, errOp, ErrNotConnected)
	}
	release, err := g.limiter.Acquire(ctx, ratelimit.GatewaySend)
	if err != nil {
		return err
	}
	defer release()

	g.writeMu.Lock()
	conn := g.conn
	g.writeMu.Unlock()
	if conn == nil {
		return errs.E(errs.KindTransport, errOp, ErrNotConnected)
	}
	if err := g.sendEvent(conn, structs.Event{Op: op, D: d}); err != nil {
		return errs.E(errs.KindTransport, errOp, err)
	}
	return nil
}

func (g *Gateway) UpdatePresence(ctx context.Context, presence structs.UpdatePresence) error {
	return g.Send(ctx, OpcodePresenceUpdate, presence)
}

func (g *Gateway) RequestGuildMembers(ctx context.Context, req structs.RequestGuildMembers) error {
	return g.Send(ctx, OpcodeRequestGuildMember, req)
}

func (g *Gateway) UpdateVoiceState(ctx context.Context, state structs.UpdateVoiceState) error {
	return g.Send(ctx, OpcodeVoiceStateUpdate, state)
}

func (g *Gateway) sendEvent(conn Conn, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (g *Gateway) writeClose(conn Conn, code int) {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	msg := websocket.FormatCloseMessage(code, "")
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)); err != nil {
		g.log.Debug("failed to write close frame", "code", code, "error", err)
	}
}

func (g *Gateway) setConn(conn Conn) {
	g.writeMu.Lock()
	g.conn = conn
	g.writeMu.Unlock()
}

func (g *Gateway) dropConn(conn Conn) {
	g.writeMu.Lock()
	if g.conn == conn {
		g.conn = nil
	}
	g.writeMu.Unlock()
	conn.Close()
}

func (g *Gateway) setState(s State) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopping.Load() && s != Closing && s != Disconnected {
		return
	}
	if g.state == s {
		return
	}
	g.log.Debug("gateway state changed", "from", g.state.String(), "to", s.String())
	g.state = s
	if s == Connected {
		g.connectedAt = g.clock.Now()
	}
	g.metrics.State(g.opts.ShardID, int(s))
	g.publishLocked()
}

func (g *Gateway) publishLocked() {
	g.info.Store(&SessionInfo{
		SessionID:   g.sessionID,
		Sequence:    g.sequence.Load(),
		HasSequence: g.hasSeq.Load(),
		ShardID:     g.opts.ShardID,
		ShardCount:  g.opts.ShardCount,
		State:       g.state,
		ResumeURL:   g.resumeURL,
		ConnectedAt: g.connectedAt,
		Heartbeat:   g.heartbeat,
		Latency:     g.latency,
	})
}

// trackSequence stores s if it is greater than the stored sequence. A
// smaller value is reported and otherwise ignored.
func (g *Gateway) trackSequence(s uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.hasSeq.Load() {
		current := g.sequence.Load()
		if s < current {
			g.log.Warn("sequence went backwards, ignoring", "current", current, "received", s)
			return
		}
		if s == current {
			return
		}
	}
	g.sequence.Store(s)
	g.hasSeq.Store(true)
	g.publishLocked()
}

func (g *Gateway) lastSequence() *uint64 {
	if !g.hasSeq.Load() {
		return nil
	}
	s := g.sequence.Load()
	return &s
}

func (g *Gateway) onReady(ready *structs.ReadyEvent) {
	g.mu.Lock()
	g.sessionID = ready.SessionID
	g.resumeURL = ready.ResumeGatewayURL
	g.mu.Unlock()
	g.log.Info("gateway is ready", "session_id", ready.SessionID, "user", ready.User.Username, "guilds", len(ready.Guilds))
	g.setState(Connected)
}

func (g *Gateway) canResume() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sessionID != "" && g.hasSeq.Load()
}

func (g *Gateway) clearSession() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessionID = ""
	g.resumeURL = ""
	g.sequence.Store(0)
	g.hasSeq.Store(false)
	g.publishLocked()
}

func (g *Gateway) updateHeartbeat(fn func(hb *HeartbeatState)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&g.heartbeat)
	if !g.heartbeat.LastAckAt.IsZero() && !g.heartbeat.LastSentAt.IsZero() && !g.heartbeat.Outstanding {
		g.latency = g.heartbeat.LastAckAt.Sub(g.heartbeat.LastSentAt)
	}
	g.publishLocked()
}

func (g *Gateway) reportError(err error) {
	if g.opts.OnError != nil {
		g.opts.OnError(err)
		return
	}
	g.log.Error("gateway error", "error", err)
}

// endpoint returns the URL to dial, with version and encoding parameters.
func (g *Gateway) endpoint(ctx context.Context, resume bool) (string, error) {
	g.mu.Lock()
	base := g.gatewayURL
	if resume && g.resumeURL != "" {
		base = g.resumeURL
	}
	g.mu.Unlock()

	if base == "" && g.opts.Discover != nil {
		discovered, err := g.opts.Discover(ctx)
		if err != nil {
			g.log.Warn("gateway discovery failed, using default url", "error", err)
		} else {
			base = discovered
			g.mu.Lock()
			g.gatewayURL = discovered
			g.mu.Unlock()
		}
	}
	if base == "" {
		base = DefaultURL
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("v", strconv.Itoa(g.opts.Version))
	q.Set("encoding", g.opts.Encoding)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// rawToken strips the authorization scheme; the gateway takes the bare token.
func rawToken(header string) string {
	for _, prefix := range []string{"Bot ", "Bearer "} {
		if strings.HasPrefix(header, prefix) {
			return strings.TrimPrefix(header, prefix)
		}
	}
	return header
}
