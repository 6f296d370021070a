package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"go-auth-server/internal/authn"
	"go-auth-server/internal/config"
	"go-auth-server/internal/event"
	"go-auth-server/internal/handler"
	"go-auth-server/internal/metrics"
	"go-auth-server/internal/middleware"
	"go-auth-server/internal/router"
	"go-auth-server/internal/throttle"
)

type App struct {
	server       *http.Server
	core         *Core
	logger       *slog.Logger
	cleanupFuncs []func()
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	core, err := Bootstrap(context.Background(), cfg, logger)
	if err != nil {
		return nil, err
	}

	h, cleanup, err := NewHandler(core)
	if err != nil {
		core.Close()
		return nil, err
	}

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           h,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{
		server:       server,
		core:         core,
		logger:       logger,
		cleanupFuncs: []func(){cleanup},
	}, nil
}

// NewHandler wires metrics, event sinks, authentication and throttling around the
// HTTP routes. The returned func stops the event sinks.
func NewHandler(core *Core) (http.Handler, func(), error) {
	cfg, logger := core.Config, core.Logger

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var tiers []throttle.Tier
	if cfg.ThrottleEnabled {
		var err error
		if tiers, err = cfg.ThrottleTiers(); err != nil {
			return nil, nil, fmt.Errorf("failed to parse throttle rates: %w", err)
		}
	}

	sinkCtx, sinkCancel := context.WithCancel(context.Background())
	cleanups := []func(){sinkCancel}

	countCh, unsubscribeCount := core.Bus.Subscribe()
	go m.CountEvents(sinkCtx, countCh)
	cleanups = append(cleanups, unsubscribeCount)

	sinkCh, unsubscribeSink := core.Bus.Subscribe()
	cleanups = append(cleanups, unsubscribeSink)
	if len(cfg.KafkaBrokers) > 0 {
		sink := event.NewKafkaSink(event.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic), logger)
		go sink.Run(sinkCtx, sinkCh)
		cleanups = append(cleanups, func() {
			if err := sink.Close(); err != nil {
				logger.Error("failed to close kafka writer", "error", err)
			}
		})
		logger.Info("security events forwarded to kafka", "topic", cfg.KafkaTopic)
	} else {
		go event.LogSink(sinkCtx, sinkCh, logger)
	}

	hmacCfg := authn.HMACConfig{
		TimestampHeader: cfg.HMACTimestampHeader,
		NonceHeader:     cfg.HMACNonceHeader,
		Threshold:       cfg.HMACTimestampThreshold,
		MaxBodyBytes:    cfg.HMACMaxBodyBytes,
	}
	dispatcher := authn.NewDispatcher(cfg.AuthRealm, logger,
		authn.NewBearer(core.Tokens, core.Credentials),
		authn.NewHMAC(core.Credentials, core.Store, hmacCfg, core.Bus, logger),
		authn.NewBasic(core.Credentials),
	)

	oauthDispatcher := authn.NewDispatcher(cfg.AuthRealm, logger, authn.NewBasic(core.Credentials))

	mw := router.Middleware{
		Auth:      middleware.NewAuthMiddleware(dispatcher, m),
		OAuthAuth: middleware.NewAuthMiddleware(oauthDispatcher, m),
		RateLimit: middleware.NewRateLimitMiddleware(cfg.AuthRateLimitRPM, m),
	}
	if cfg.ThrottleEnabled {
		mw.Throttle = middleware.NewThrottleMiddleware(throttle.New(core.Store, logger), tiers, core.Bus, m)
	}

	handlers := router.Handlers{
		OAuth:  handler.NewOAuthHandler(core.Tokens, core.Credentials, cfg.AuthRealm, m, logger),
		User:   handler.NewUserHandler(core.Credentials),
		Policy: handler.NewPolicyHandler(core.Credentials),
		Docs:   handler.NewDocsHandler(),
		Health: handler.NewHealthHandler(map[string]handler.HealthCheck{
			"database": core.DB.Health,
			"redis":    core.Store.Health,
		}),
	}

	opts := router.Options{
		CORSOrigins:    cfg.CORSOrigins,
		CORSHeaders:    []string{cfg.HMACTimestampHeader, cfg.HMACNonceHeader},
		TrustedProxies: cfg.TrustedProxyCount,
		RequestTimeout: cfg.RequestTimeout,
		Metrics:        m,
	}
	if cfg.MetricsEnabled {
		opts.Gatherer = reg
	}

	cleanup := func() {
		for _, fn := range cleanups {
			fn()
		}
	}
	return router.New(opts, mw, handlers), cleanup, nil
}

func (a *App) Run() error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case <-stop:
	case serveErr = <-errCh:
		a.logger.Error("server failed", "error", serveErr)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownErr := a.server.Shutdown(ctx)

	for _, cleanup := range a.cleanupFuncs {
		cleanup()
	}
	a.core.Close()

	if serveErr != nil {
		return serveErr
	}
	if shutdownErr != nil {
		return fmt.Errorf("graceful shutdown failed: %w", shutdownErr)
	}

	a.logger.Info("server stopped")
	return nil
}
