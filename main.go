package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hendrywilliam/siren/src/bot"
	"github.com/hendrywilliam/siren/src/client"
	"github.com/hendrywilliam/siren/src/config"
	"github.com/hendrywilliam/siren/src/credential"
	"github.com/hendrywilliam/siren/src/events"
	"github.com/hendrywilliam/siren/src/gateway"
	"github.com/hendrywilliam/siren/src/logger"
	"github.com/hendrywilliam/siren/src/metrics"
	"github.com/hendrywilliam/siren/src/voicemanager"
	"github.com/hendrywilliam/siren/src/webhook"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

var signals = []os.Signal{
	os.Interrupt,
	syscall.SIGINT,
	syscall.SIGTERM,
}

func main() {
	flags := pflag.NewFlagSet("siren", pflag.ExitOnError)
	configPath := flags.String("config", os.Getenv("SIREN_CONFIG"), "path to a YAML config file")
	logLevel := flags.String("log-level", "", "log level override (debug, info, warn, error)")
	registerCmds := flags.Bool("register-commands", false, "register application commands before connecting")
	flags.Parse(os.Args[1:])

	if err := run(*configPath, *logLevel, *registerCmds); err != nil {
		fmt.Fprintln(os.Stderr, "siren:", err)
		os.Exit(1)
	}
}

func run(configPath, logLevel string, registerCmds bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	log, err := logger.New(os.Stderr, logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return err
	}
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), signals...)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	var creds credential.Provider
	if cfg.Discord.BotToken == "" {
		creds = credential.NewClientCredentials(ctx, credential.ClientCredentialsConfig{
			ClientID:     cfg.Discord.OAuth2ClientID,
			ClientSecret: cfg.Discord.OAuth2ClientSecret,
			TokenURL:     cfg.Discord.HTTPBaseURL + "/oauth2/token",
			Scopes:       []string{"bot", "applications.commands.update"},
		})
	} else {
		creds = credential.Static(cfg.Discord.BotToken)
	}

	c, err := client.New(client.Options{
		Credentials:            creds,
		Intents:                gateway.Intent(cfg.Gateway.Intents),
		ShardID:                cfg.Gateway.ShardID,
		ShardCount:             cfg.Gateway.ShardCount,
		GatewayURL:             cfg.Gateway.Address,
		GatewayVersion:         cfg.Gateway.Version,
		Compress:               cfg.Gateway.Compress,
		BaseURL:                cfg.Discord.HTTPBaseURL,
		Handler:                bot.Handler{Voice: voicemanager.NewVoiceManager()},
		Concurrent:             cfg.Gateway.Concurrent,
		MaxConcurrency:         cfg.Gateway.MaxConcurrency,
		ErrorHook:              func(de events.DispatchError) { log.Error("handler failed", "event", de.Event, "error", de.Err) },
		MaxRateLimitWait:       cfg.Gateway.MaxRateLimitWait.Std(),
		HeartbeatTimeoutFactor: cfg.Gateway.HeartbeatTimeoutFactor,
		BackoffBase:            cfg.Gateway.BackoffBase.Std(),
		BackoffMax:             cfg.Gateway.BackoffMax.Std(),
		StablePeriod:           cfg.Gateway.StablePeriod.Std(),
		MaxReconnectAttempts:   cfg.Gateway.MaxReconnectAttempts,
		ShutdownTimeout:        cfg.Gateway.ShutdownTimeout.Std(),
		Logger:                 log,
		Metrics:                m,
	})
	if err != nil {
		return err
	}

	if registerCmds {
		cmds, err := bot.InstallCmds(ctx, c.Interactions(), cfg.Discord.ApplicationID, cfg.Discord.GuildID)
		if err != nil {
			return fmt.Errorf("registering commands: %w", err)
		}
		log.Info("registered commands", "count", len(cmds))
	}

	var server *webhook.Server
	if cfg.Server.Address != "" {
		server, err = webhook.NewServer(webhook.Options{
			PublicKey: cfg.Discord.PublicKey,
			Sink:      c.Dispatcher(),
			Status:    c,
			Gatherer:  registry,
			Logger:    log.With("component", "webhook"),
		})
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.Start(gctx)
	})
	if server != nil {
		g.Go(func() error {
			return server.StartServer(gctx, cfg.Server.Address)
		})
	}
	err = g.Wait()
	log.Info("siren stopped")
	return err
}
