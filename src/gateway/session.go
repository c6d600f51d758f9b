package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/hendrywilliam/siren/src/errs"
	"github.com/hendrywilliam/siren/src/ratelimit"
	"github.com/hendrywilliam/siren/src/structs"
	"golang.org/x/sync/errgroup"
)

// closeGrace is how long a graceful shutdown waits for the server to echo
// the close frame.
const closeGrace = time.Second

// disconnect describes why a connection ended and what the next attempt
// should do about the session.
type disconnect struct {
	err       error
	reason    string
	resumable bool
	fatal     bool
}

func (d *disconnect) Error() string { return d.reason + ": " + d.err.Error() }
func (d *disconnect) Unwrap() error { return d.err }

// loop drives the reconnect state machine. It returns nil when ctx is done.
func (g *Gateway) loop(ctx context.Context) error {
	defer g.setState(Disconnected)

	policy := newReconnectBackoff(g.opts.BackoffBase, g.opts.BackoffMax, g.clock)
	attempts := 0
	// A run always starts with a fresh identify: the previous run ended
	// with a normal closure, which invalidates its session.
	resume := false
	g.clearSession()
	for {
		if ctx.Err() != nil {
			return nil
		}
		connectedAt, d := g.connect(ctx, resume)
		if ctx.Err() != nil {
			return nil
		}
		if d.fatal {
			g.log.Error("gateway closed with unrecoverable error", "reason", d.reason, "error", d.err)
			return d.err
		}

		g.setState(Reconnecting)
		g.metrics.Reconnect(g.opts.ShardID, d.reason)
		if !connectedAt.IsZero() {
			attempts = 0
			if g.clock.Since(connectedAt) >= g.opts.StablePeriod {
				policy.Reset()
			}
		}
		attempts++
		if g.opts.MaxReconnectAttempts > 0 && attempts > g.opts.MaxReconnectAttempts {
			return errs.E(errs.KindTransport, "gateway.Start", fmt.Errorf("%w: %w", ErrReconnectExhausted, d.err))
		}

		resume = d.resumable && g.canResume()
		if !resume {
			g.clearSession()
		}
		delay := policy.Next()
		g.log.Warn("gateway disconnected, reconnecting",
			"reason", d.reason, "error", d.err, "resume", resume, "attempt", attempts, "delay", delay)
		select {
		case <-ctx.Done():
			return nil
		case <-g.clock.After(delay):
		}
	}
}

// connect runs one connection from dial to teardown. connectedAt is zero
// when the connection never reached Connected.
func (g *Gateway) connect(ctx context.Context, resume bool) (time.Time, *disconnect) {
	g.setState(Connecting)
	log := g.log.With("conn_id", uuid.NewString())

	token, err := g.opts.Credentials.Token(ctx)
	if err != nil {
		return time.Time{}, &disconnect{err: err, reason: "credentials", resumable: resume, fatal: errs.Is(err, errs.KindAuthentication)}
	}
	if !resume {
		release, err := g.limiter.Acquire(ctx, ratelimit.GatewayIdentify)
		if err != nil {
			return time.Time{}, &disconnect{err: err, reason: "identify_budget"}
		}
		release()
	}

	endpoint, err := g.endpoint(ctx, resume)
	if err != nil {
		return time.Time{}, &disconnect{err: errs.E(errs.KindFatal, "gateway.dial", err), reason: "bad_url", fatal: true}
	}
	log.Info("connecting to gateway", "url", endpoint, "resume", resume)
	conn, err := g.opts.Dialer.Dial(ctx, endpoint)
	if err != nil {
		return time.Time{}, &disconnect{err: errs.E(errs.KindTransport, "gateway.dial", err), reason: "dial", resumable: resume}
	}
	g.setConn(conn)
	defer g.dropConn(conn)

	// Until the connection loops run, a shutdown can only interrupt the
	// handshake by closing the socket.
	stopHandshake := context.AfterFunc(ctx, func() { conn.Close() })
	defer stopHandshake()

	hello, err := g.readHello(conn)
	if err != nil {
		return time.Time{}, classifyReadError(err, resume)
	}
	interval := time.Duration(hello.HeartbeatInterval) * time.Millisecond
	g.updateHeartbeat(func(hb *HeartbeatState) {
		*hb = HeartbeatState{Interval: interval}
	})

	if resume {
		g.setState(Resuming)
		err = g.sendEvent(conn, structs.Event{Op: OpcodeResume, D: structs.ResumeEvent{
			Token:     rawToken(token),
			SessionID: g.snapshot().SessionID,
			Seq:       g.sequence.Load(),
		}})
	} else {
		g.setState(Identifying)
		err = g.sendEvent(conn, structs.Event{Op: OpcodeIdentify, D: g.identify(token)})
	}
	if err != nil {
		return time.Time{}, &disconnect{err: errs.E(errs.KindTransport, "gateway.handshake", err), reason: "handshake", resumable: resume}
	}
	log.Debug("handshake sent", "resume", resume, "heartbeat_interval", interval)
	if !stopHandshake() {
		return time.Time{}, &disconnect{err: ctx.Err(), reason: "shutdown"}
	}

	c := &connection{
		g:        g,
		conn:     conn,
		log:      log,
		interval: interval,
		acks:     make(chan time.Time, 1),
		beatNow:  make(chan struct{}, 1),
		recvDone: make(chan struct{}),
	}
	grp, gctx := errgroup.WithContext(ctx)
	grp.Go(func() error { return c.receive(ctx) })
	grp.Go(func() error { return c.heartbeat(gctx) })
	grp.Go(func() error { return c.watch(ctx, gctx) })
	err = grp.Wait()

	connectedAt := c.connectedAt
	var d *disconnect
	if errors.As(err, &d) {
		return connectedAt, d
	}
	if err == nil {
		err = errs.E(errs.KindTransport, "gateway.receive", errors.New("connection closed"))
	}
	return connectedAt, &disconnect{err: err, reason: "closed", resumable: true}
}

// snapshot returns the current session info regardless of state.
func (g *Gateway) snapshot() SessionInfo {
	return *g.info.Load()
}

func (g *Gateway) identify(token string) structs.IdentifyEvent {
	shard := [2]int{g.opts.ShardID, g.opts.ShardCount}
	return structs.IdentifyEvent{
		Token:          rawToken(token),
		Properties:     g.opts.Properties,
		Intents:        uint64(g.opts.Intents),
		Compress:       g.opts.Compress,
		LargeThreshold: g.opts.LargeThreshold,
		Shard:          &shard,
		Presence:       g.opts.Presence,
	}
}

func (g *Gateway) readHello(conn Conn) (*structs.HelloEvent, error) {
	if err := conn.SetReadDeadline(time.Now().Add(g.opts.HelloTimeout)); err != nil {
		return nil, err
	}
	event, err := readFrame(conn)
	if err != nil {
		return nil, err
	}
	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return nil, err
	}
	if event.Op != OpcodeHello {
		return nil, errs.E(errs.KindProtocol, "gateway.hello", fmt.Errorf("%w, got op %d", ErrUnexpectedHandshake, event.Op))
	}
	hello := &structs.HelloEvent{}
	if err := json.Unmarshal(event.D, hello); err != nil {
		return nil, errs.E(errs.KindProtocol, "gateway.hello", err)
	}
	if hello.HeartbeatInterval == 0 {
		return nil, errs.E(errs.KindProtocol, "gateway.hello", errors.New("zero heartbeat interval"))
	}
	return hello, nil
}

// frameError marks a frame that was read but could not be decoded.
type frameError struct{ err error }

func (e *frameError) Error() string { return e.err.Error() }
func (e *frameError) Unwrap() error { return e.err }

func readFrame(conn Conn) (*structs.RawEvent, error) {
	messageType, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if messageType == websocket.BinaryMessage {
		if data, err = inflate(data); err != nil {
			return nil, &frameError{errs.E(errs.KindProtocol, "gateway.inflate", err)}
		}
	}
	event := &structs.RawEvent{}
	if err := json.Unmarshal(data, event); err != nil {
		return nil, &frameError{errs.E(errs.KindProtocol, "gateway.decode", err)}
	}
	return event, nil
}

// classifyReadError maps a socket read failure to the reconnect decision.
func classifyReadError(err error, resumable bool) *disconnect {
	var fe *frameError
	if errors.As(err, &fe) || errs.Is(err, errs.KindProtocol) {
		return &disconnect{err: err, reason: "protocol", resumable: resumable}
	}
	var ce *websocket.CloseError
	if !errors.As(err, &ce) {
		return &disconnect{err: errs.E(errs.KindTransport, "gateway.receive", err), reason: "read", resumable: resumable}
	}

	sentinel, ok := closeCodeErrors[ce.Code]
	if !ok {
		sentinel = err
	}
	reason := fmt.Sprintf("close_%d", ce.Code)
	e := &errs.Error{Op: "gateway.receive", Status: ce.Code, Err: sentinel}
	switch ce.Code {
	case AuthenticationFailed:
		e.Kind = errs.KindAuthentication
		return &disconnect{err: e, reason: reason, fatal: true}
	case InvalidShard, ShardingRequired, InvalidAPIVersion, InvalidIntents, DisallowedIntents:
		e.Kind = errs.KindFatal
		return &disconnect{err: e, reason: reason, fatal: true}
	case NotAuthenticated, InvalidSeq, SessionTimedOut:
		e.Kind = errs.KindSessionInvalid
		return &disconnect{err: e, reason: reason}
	}
	e.Kind = errs.KindTransport
	return &disconnect{err: e, reason: reason, resumable: resumable}
}

// connection holds the per-connection loops.
type connection struct {
	g        *Gateway
	conn     Conn
	log      *slog.Logger
	interval time.Duration

	acks     chan time.Time
	beatNow  chan struct{}
	recvDone chan struct{}

	// connectedAt is written by receive and read after the group finished.
	connectedAt time.Time
}

// receive is the only reader of the socket. It runs until the socket fails
// or a frame demands a reconnect.
func (c *connection) receive(ctx context.Context) error {
	defer close(c.recvDone)
	g := c.g
	failures := 0
	protocolError := func(err error) error {
		failures++
		g.reportError(err)
		if failures >= g.opts.ProtocolErrorThreshold {
			return &disconnect{err: fmt.Errorf("%w: %w", ErrTooManyProtocolErrs, err), reason: "protocol_errors", resumable: true}
		}
		return nil
	}

	for {
		event, err := readFrame(c.conn)
		if err != nil {
			var fe *frameError
			if errors.As(err, &fe) {
				if d := protocolError(err); d != nil {
					return d
				}
				continue
			}
			return classifyReadError(err, true)
		}
		c.log.Debug("frame received", "event", event)

		switch event.Op {
		case OpcodeDispatch:
			failures = 0
			if event.S != nil {
				g.trackSequence(*event.S)
			}
			switch event.T {
			case structs.EventNameReady:
				ready := &structs.ReadyEvent{}
				if err := json.Unmarshal(event.D, ready); err != nil || ready.SessionID == "" {
					if err == nil {
						err = errors.New("ready without session_id")
					}
					return &disconnect{err: errs.E(errs.KindProtocol, "gateway.ready", err), reason: "bad_ready"}
				}
				g.onReady(ready)
				c.connectedAt = g.clock.Now()
			case structs.EventNameResumed:
				g.log.Info("gateway session resumed", "session_id", g.snapshot().SessionID, "sequence", g.sequence.Load())
				g.setState(Connected)
				c.connectedAt = g.clock.Now()
			}
			if g.opts.Sink != nil {
				g.opts.Sink.Dispatch(ctx, event.T, event.D)
			}
		case OpcodeHeartbeat:
			failures = 0
			select {
			case c.beatNow <- struct{}{}:
			default:
			}
		case OpcodeHeartbeatAck:
			failures = 0
			select {
			case c.acks <- g.clock.Now():
			default:
			}
		case OpcodeReconnect:
			return &disconnect{err: errs.E(errs.KindTransport, "gateway.receive", ErrReconnectRequested), reason: "reconnect_requested", resumable: true}
		case OpcodeInvalidSession:
			var resumable bool
			_ = json.Unmarshal(event.D, &resumable)
			return &disconnect{err: errs.E(errs.KindSessionInvalid, "gateway.receive", ErrInvalidSession), reason: "invalid_session", resumable: resumable}
		case OpcodeHello:
			failures = 0
		default:
			if d := protocolError(errs.E(errs.KindProtocol, "gateway.receive", fmt.Errorf("unknown op code %d", event.Op))); d != nil {
				return d
			}
		}
	}
}

// tickJitter is the largest fraction of the interval taken off each
// regular beat. Beats may come early, never late.
const tickJitter = 0.05

func (c *connection) nextBeat() time.Duration {
	return c.interval - time.Duration(float64(c.interval)*tickJitter*c.g.opts.Jitter())
}

// heartbeat beats roughly every interval, the first one after a jittered
// fraction of it. A heartbeat left unacknowledged for
// HeartbeatTimeoutFactor intervals ends the connection.
func (c *connection) heartbeat(ctx context.Context) error {
	g := c.g
	timer := g.clock.Timer(time.Duration(float64(c.interval) * g.opts.Jitter()))
	defer timer.Stop()
	timeout := time.Duration(float64(c.interval) * g.opts.HeartbeatTimeoutFactor)

	// deadline is armed by the first unacknowledged heartbeat.
	var deadline *clock.Timer
	var deadlineC <-chan time.Time
	defer func() {
		if deadline != nil {
			deadline.Stop()
		}
	}()

	beat := func() error {
		if err := g.sendEvent(c.conn, structs.HeartbeatEvent{Op: OpcodeHeartbeat, D: g.lastSequence()}); err != nil {
			return &disconnect{err: errs.E(errs.KindTransport, "gateway.heartbeat", err), reason: "write", resumable: true}
		}
		now := g.clock.Now()
		g.updateHeartbeat(func(hb *HeartbeatState) {
			hb.LastSentAt = now
			hb.Outstanding = true
		})
		if deadline == nil {
			deadline = g.clock.Timer(timeout)
			deadlineC = deadline.C
		}
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			if err := beat(); err != nil {
				return err
			}
			timer.Reset(c.nextBeat())
		case <-c.beatNow:
			if err := beat(); err != nil {
				return err
			}
		case at := <-c.acks:
			if deadline != nil {
				deadline.Stop()
				deadline, deadlineC = nil, nil
			}
			g.updateHeartbeat(func(hb *HeartbeatState) {
				hb.LastAckAt = at
				hb.Outstanding = false
			})
			g.metrics.HeartbeatLatency(g.snapshot().Latency)
		case <-deadlineC:
			return &disconnect{
				err:       errs.E(errs.KindTransport, "gateway.heartbeat", ErrHeartbeatTimeout),
				reason:    "heartbeat_timeout",
				resumable: true,
			}
		}
	}
}

// watch closes the socket once the connection is over. On shutdown it sends
// a normal closure and gives the server a moment to echo it; otherwise it
// closes with a code that keeps the session resumable.
func (c *connection) watch(ctx, gctx context.Context) error {
	select {
	case <-gctx.Done():
	case <-c.recvDone:
	}
	if ctx.Err() != nil {
		c.g.writeClose(c.conn, websocket.CloseNormalClosure)
		select {
		case <-c.recvDone:
		case <-c.g.clock.After(closeGrace):
		}
	} else {
		c.g.writeClose(c.conn, UnknownError)
	}
	c.conn.Close()
	return nil
}
