package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/hendrywilliam/siren/src/credential"
	"github.com/hendrywilliam/siren/src/metrics"
	"github.com/hendrywilliam/siren/src/rest"
)

// DispatchError reports a frame that did not make it through a handler:
// either it failed to decode, the handler returned an error, or it panicked.
type DispatchError struct {
	Event string
	Raw   json.RawMessage
	Err   error
	// Panic holds the recovered value when the handler panicked.
	Panic any
}

func (e DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s: %v", e.Event, e.Err)
}

func (e DispatchError) Unwrap() error { return e.Err }

type ErrorHook func(DispatchError)

type Options struct {
	Handler Handler
	// Concurrent runs each handler invocation on its own goroutine. Ordering
	// between events is not preserved in that mode.
	Concurrent bool
	// MaxConcurrency bounds in-flight handlers in concurrent mode. Zero
	// means unbounded.
	MaxConcurrency int
	ErrorHook      ErrorHook
	ShardID        int
	REST           *rest.Client
	Credentials    credential.Provider
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
}

type Dispatcher struct {
	handler    Handler
	concurrent bool
	sem        chan struct{}
	wg         sync.WaitGroup
	inflight   atomic.Int64
	onError    ErrorHook

	shardID int
	rest    *rest.Client
	creds   credential.Provider
	log     *slog.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(opts Options) *Dispatcher {
	d := &Dispatcher{
		handler:    opts.Handler,
		concurrent: opts.Concurrent,
		onError:    opts.ErrorHook,
		shardID:    opts.ShardID,
		rest:       opts.REST,
		creds:      opts.Credentials,
		log:        opts.Logger,
		metrics:    opts.Metrics,
	}
	if d.handler == nil {
		d.handler = BaseHandler{}
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	if d.concurrent && opts.MaxConcurrency > 0 {
		d.sem = make(chan struct{}, opts.MaxConcurrency)
	}
	return d
}

// Dispatch decodes one dispatch frame and invokes the matching handler
// method exactly once. Decode failures, handler errors and handler panics
// go to the error hook; none of them is returned to the caller.
//
// Cancelling ctx only stops new handlers from being scheduled. Handlers
// run on a context that keeps ctx's values but is never cancelled, so
// REST calls they started complete or fail on their own.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, raw json.RawMessage) {
	ev, err := Decode(name, raw)
	if err != nil {
		d.report(DispatchError{Event: name, Raw: raw, Err: err})
		return
	}
	d.metrics.Event(name)

	hctx := Context{
		Context:     context.WithoutCancel(ctx),
		ShardID:     d.shardID,
		Source:      sourceFrom(ctx),
		REST:        d.rest,
		Credentials: d.creds,
		Logger:      d.log.With("event", name),
	}
	if !d.concurrent {
		d.invoke(hctx, ev, raw)
		return
	}

	if d.sem != nil {
		select {
		case d.sem <- struct{}{}:
		case <-ctx.Done():
			d.report(DispatchError{Event: name, Raw: raw, Err: ctx.Err()})
			return
		}
	}
	d.wg.Add(1)
	d.inflight.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.inflight.Add(-1)
		if d.sem != nil {
			defer func() { <-d.sem }()
		}
		d.invoke(hctx, ev, raw)
	}()
}

// Wait blocks until every in-flight concurrent handler returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Idle is closed once every in-flight concurrent handler returned. Use it
// to bound the wait during shutdown.
func (d *Dispatcher) Idle() <-chan struct{} {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	return done
}

// InFlight reports how many concurrent handlers are still running.
func (d *Dispatcher) InFlight() int {
	return int(d.inflight.Load())
}

func (d *Dispatcher) invoke(ctx Context, ev Event, raw json.RawMessage) {
	name := ev.EventName()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("handler panicked", "event", name, "panic", r, "stack", string(debug.Stack()))
			d.report(DispatchError{Event: name, Raw: raw, Err: fmt.Errorf("handler panic: %v", r), Panic: r})
		}
	}()
	if err := route(d.handler, ctx, ev); err != nil {
		d.report(DispatchError{Event: name, Raw: raw, Err: err})
	}
}

func (d *Dispatcher) report(de DispatchError) {
	d.metrics.HandlerError(de.Event)
	if d.onError != nil {
		d.onError(de)
		return
	}
	d.log.Error("failed to dispatch event", "event", de.Event, "error", de.Err)
}
