// Package webhook serves the HTTP side of the bot: the signed
// interactions endpoint, a health check and Prometheus metrics.
package webhook

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/hendrywilliam/siren/src/events"
	"github.com/hendrywilliam/siren/src/gateway"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var ErrInvalidPublicKey = errors.New("public key must be 32 hex-encoded bytes")

// Status reports the gateway session for /healthz.
type Status interface {
	IsConnected() bool
	SessionInfo() (gateway.SessionInfo, bool)
}

type Options struct {
	// PublicKey is the application's hex-encoded Ed25519 key.
	PublicKey string
	// Sink receives verified interactions as INTERACTION_CREATE. Usually
	// the client's dispatcher.
	Sink     gateway.Sink
	Status   Status
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

type Server struct {
	router *fiber.App
	pubKey ed25519.PublicKey
	sink   gateway.Sink
	status Status
	log    *slog.Logger
	// baseCtx outlives requests; handlers may still run after the
	// response went out.
	baseCtx context.Context
}

func NewServer(opts Options) (*Server, error) {
	key, err := hex.DecodeString(opts.PublicKey)
	if err != nil || len(key) != ed25519.PublicKeySize {
		return nil, ErrInvalidPublicKey
	}
	server := &Server{
		pubKey:  ed25519.PublicKey(key),
		sink:    opts.Sink,
		status:  opts.Status,
		log:     opts.Logger,
		baseCtx: context.Background(),
	}
	if server.log == nil {
		server.log = slog.Default()
	}
	server.setupRouter(opts.Gatherer)
	return server, nil
}

// App exposes the router, mainly for app.Test.
func (server *Server) App() *fiber.App {
	return server.router
}

func (server *Server) setupRouter(gatherer prometheus.Gatherer) {
	router := fiber.New()
	router.Post("/interactions", server.handleInteraction, server.VerifyKeyMiddleware, server.PingRequestMiddleware)
	router.Get("/healthz", server.handleHealth)
	if gatherer != nil {
		router.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	server.router = router
}

func (server *Server) handleInteraction(c fiber.Ctx) error {
	if server.sink == nil {
		return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{"error": "no interaction handler"})
	}
	// fasthttp reuses the body buffer once the handler returns.
	raw := append([]byte(nil), c.Body()...)
	ctx := events.WithSource(server.baseCtx, events.SourceWebhook)
	server.sink.Dispatch(ctx, events.NameInteractionCreate, raw)
	return c.SendStatus(http.StatusAccepted)
}

type health struct {
	Connected bool   `json:"connected"`
	State     string `json:"state"`
	SessionID string `json:"session_id,omitempty"`
	Sequence  uint64 `json:"sequence"`
	Shard     [2]int `json:"shard"`
}

func (server *Server) handleHealth(c fiber.Ctx) error {
	if server.status == nil {
		return c.JSON(health{State: gateway.Disconnected.String()})
	}
	info, _ := server.status.SessionInfo()
	body := health{
		Connected: server.status.IsConnected(),
		State:     info.State.String(),
		SessionID: info.SessionID,
		Sequence:  info.Sequence,
		Shard:     [2]int{info.ShardID, info.ShardCount},
	}
	if !body.Connected {
		return c.Status(http.StatusServiceUnavailable).JSON(body)
	}
	return c.JSON(body)
}

// StartServer listens on addr until ctx is done.
func (server *Server) StartServer(ctx context.Context, addr string) error {
	server.baseCtx = ctx
	server.log.Info(fmt.Sprintf("server start at %s", addr))
	return server.router.Listen(addr, fiber.ListenConfig{
		GracefulContext:       ctx,
		DisableStartupMessage: true,
		OnShutdownSuccess: func() {
			server.log.Info("server stopped.")
		},
	})
}
