// Package client wires the credential provider, rate limiter, REST client,
// event dispatcher and gateway session into a single bot client.
package client

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hendrywilliam/siren/src/credential"
	"github.com/hendrywilliam/siren/src/errs"
	"github.com/hendrywilliam/siren/src/events"
	"github.com/hendrywilliam/siren/src/gateway"
	"github.com/hendrywilliam/siren/src/interactions"
	"github.com/hendrywilliam/siren/src/messages"
	"github.com/hendrywilliam/siren/src/metrics"
	"github.com/hendrywilliam/siren/src/ratelimit"
	"github.com/hendrywilliam/siren/src/rest"
	"github.com/hendrywilliam/siren/src/structs"
)

type Options struct {
	// Token is a bot token. Ignored when Credentials is set.
	Token       string
	Credentials credential.Provider

	Intents    gateway.Intent
	ShardID    int
	ShardCount int
	// GatewayURL skips discovery through GET /gateway/bot when set.
	GatewayURL     string
	GatewayVersion int
	Compress       bool
	Presence       *structs.UpdatePresence
	BaseURL        string
	HTTPClient     *http.Client

	Handler        events.Handler
	Concurrent     bool
	MaxConcurrency int
	ErrorHook      events.ErrorHook

	MaxRateLimitWait       time.Duration
	HeartbeatTimeoutFactor float64
	BackoffBase            time.Duration
	BackoffMax             time.Duration
	StablePeriod           time.Duration
	MaxReconnectAttempts   int
	ShutdownTimeout        time.Duration

	Dialer  gateway.Dialer
	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

type Client struct {
	creds        credential.Provider
	limiter      *ratelimit.Limiter
	rest         *rest.Client
	dispatcher   *events.Dispatcher
	gateway      *gateway.Gateway
	messages     *messages.MessageAPI
	interactions *interactions.InteractionAPI
	clock        clock.Clock
	drainTimeout time.Duration
	log          *slog.Logger
}

// New builds a client. Nothing connects until Start.
func New(opts Options) (*Client, error) {
	creds := opts.Credentials
	if creds == nil {
		if opts.Token == "" {
			return nil, errs.E(errs.KindAuthentication, "client.New", credential.ErrEmptyToken)
		}
		creds = credential.Static(opts.Token)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	drainTimeout := opts.ShutdownTimeout
	if drainTimeout <= 0 {
		drainTimeout = 5 * time.Second
	}

	limiter := ratelimit.New(ratelimit.Options{
		Clock:   clk,
		MaxWait: opts.MaxRateLimitWait,
		Logger:  log.With("component", "ratelimit"),
		Metrics: opts.Metrics,
	})
	restClient := rest.NewREST(rest.Options{
		BaseURL:     opts.BaseURL,
		Credentials: creds,
		Limiter:     limiter,
		HTTPClient:  opts.HTTPClient,
		Logger:      log.With("component", "rest"),
		Metrics:     opts.Metrics,
	})
	dispatcher := events.NewDispatcher(events.Options{
		Handler:        opts.Handler,
		Concurrent:     opts.Concurrent,
		MaxConcurrency: opts.MaxConcurrency,
		ErrorHook:      opts.ErrorHook,
		ShardID:        opts.ShardID,
		REST:           restClient,
		Credentials:    creds,
		Logger:         log.With("component", "dispatcher"),
		Metrics:        opts.Metrics,
	})

	var discover func(ctx context.Context) (string, error)
	if opts.GatewayURL == "" {
		discover = func(ctx context.Context) (string, error) {
			gb, err := restClient.GatewayBot(ctx)
			if err != nil {
				return "", err
			}
			return gb.URL, nil
		}
	}
	gw := gateway.NewGateway(gateway.Options{
		URL:                    opts.GatewayURL,
		Discover:               discover,
		Version:                opts.GatewayVersion,
		Compress:               opts.Compress,
		Credentials:            creds,
		Intents:                opts.Intents,
		ShardID:                opts.ShardID,
		ShardCount:             opts.ShardCount,
		Presence:               opts.Presence,
		Limiter:                limiter,
		Sink:                   dispatcher,
		BackoffBase:            opts.BackoffBase,
		BackoffMax:             opts.BackoffMax,
		StablePeriod:           opts.StablePeriod,
		HeartbeatTimeoutFactor: opts.HeartbeatTimeoutFactor,
		MaxReconnectAttempts:   opts.MaxReconnectAttempts,
		ShutdownTimeout:        opts.ShutdownTimeout,
		Dialer:                 opts.Dialer,
		Clock:                  clk,
		Logger:                 log.With("component", "gateway"),
		Metrics:                opts.Metrics,
	})

	return &Client{
		creds:        creds,
		limiter:      limiter,
		rest:         restClient,
		dispatcher:   dispatcher,
		gateway:      gw,
		messages:     messages.New(restClient),
		interactions: interactions.NewInteractionAPI(restClient),
		clock:        clk,
		drainTimeout: drainTimeout,
		log:          log,
	}, nil
}

// Start connects and blocks until Stop, ctx is done, or the session ends
// with an unrecoverable error. The client does not retry beyond what the
// gateway's reconnect policy already does.
func (c *Client) Start(ctx context.Context) error {
	err := c.gateway.Start(ctx)
	c.drain()
	if err != nil {
		c.log.Error("client stopped", "error", err, "retryable", errs.IsRetryable(err))
	}
	return err
}

// Stop closes the session gracefully and waits up to ShutdownTimeout for
// in-flight handlers. Handlers still running after that are left to finish
// on their own.
func (c *Client) Stop() {
	c.gateway.Stop()
	c.drain()
}

func (c *Client) drain() {
	select {
	case <-c.dispatcher.Idle():
	case <-c.clock.After(c.drainTimeout):
		c.log.Warn("handlers still running after shutdown timeout", "in_flight", c.dispatcher.InFlight(), "timeout", c.drainTimeout)
	}
}

func (c *Client) IsConnected() bool {
	return c.gateway.IsConnected()
}

func (c *Client) SessionInfo() (gateway.SessionInfo, bool) {
	return c.gateway.Info()
}

func (c *Client) REST() *rest.Client {
	return c.rest
}

func (c *Client) Gateway() *gateway.Gateway {
	return c.gateway
}

func (c *Client) Dispatcher() *events.Dispatcher {
	return c.dispatcher
}

func (c *Client) Messages() *messages.MessageAPI {
	return c.messages
}

func (c *Client) Interactions() *interactions.InteractionAPI {
	return c.interactions
}

func (c *Client) Credentials() credential.Provider {
	return c.creds
}

func (c *Client) Limiter() *ratelimit.Limiter {
	return c.limiter
}
