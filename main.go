package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"github.com/padraicbc/tracker/auth"
	"github.com/padraicbc/tracker/bridge"
	"github.com/padraicbc/tracker/config"
	"github.com/padraicbc/tracker/db"
	"github.com/padraicbc/tracker/handlers"
	"github.com/padraicbc/tracker/hub"
	"github.com/padraicbc/tracker/ingest"
	applog "github.com/padraicbc/tracker/logger"
	mw "github.com/padraicbc/tracker/middleware"
	"github.com/padraicbc/tracker/models"
	"github.com/padraicbc/tracker/store"
)

func main() {
	cfg := config.Load()
	logger, err := applog.New(cfg.Debug)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bdb := db.Setup(cfg)
	defer bdb.Close()

	if err := db.CreateTables(ctx, bdb); err != nil {
		logger.Fatal("create tables failed", zap.Error(err))
	}
	st := store.New(bdb)

	hash, err := auth.HashPassword(cfg.WriterUsername, cfg.WriterPassword)
	if err != nil {
		logger.Fatal("hash writer password failed", zap.Error(err))
	}
	if err := st.UpsertUser(ctx, &models.User{Username: cfg.WriterUsername, Password: hash}); err != nil {
		logger.Fatal("save writer failed", zap.Error(err))
	}
	authn := auth.NewAuthenticator(st, cfg.JWTKey())

	live := hub.New(st, logger.Named("hub"),
		hub.WithQueueSize(cfg.HubQueueSize),
		hub.WithObserverBuffer(cfg.ObserverBuffer),
	)
	go live.Run(ctx)

	last, err := st.LastCaptured(ctx)
	if err != nil {
		logger.Fatal("read last capture failed", zap.Error(err))
	}
	svc := ingest.NewService(authn, st, live, logger.Named("ingest"), ingest.WithLastCaptured(last))

	if cfg.BridgeEnabled() {
		b := bridge.New(bridge.Config{
			Broker:   cfg.MQTTBroker,
			Topic:    cfg.MQTTTopic,
			ClientID: cfg.MQTTClientID,
			QoS:      1,
		}, svc, auth.Credentials{Username: cfg.WriterUsername, Password: cfg.WriterPassword}, logger)
		if err := b.Start(ctx); err != nil {
			logger.Fatal("start mqtt bridge failed", zap.Error(err))
		}
		defer b.Stop()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogError:     true,
		LogRequestID: true,
		LogLatency:   true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.Int("status", v.Status),
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.String("request_id", v.RequestID),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			switch {
			case v.Status >= 500:
				logger.Error("http request", fields...)
			case v.Status >= 400:
				logger.Warn("http request", fields...)
			default:
				logger.Info("http request", fields...)
			}
			return nil
		},
	}))
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"*", echo.HeaderAuthorization},
	}))
	e.Use(mw.Metrics())

	handlers.Routes(e, handlers.New(st, svc, live, authn, logger.Named("http")))

	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      e,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	errc := make(chan error, 1)
	if cfg.Debug {
		logger.Info("starting server", zap.String("mode", "debug"), zap.String("addr", cfg.Port))
		go func() { errc <- srv.ListenAndServe() }()
	} else {
		autoTLS := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			Cache:      autocert.DirCache(".cache"),
			HostPolicy: autocert.HostWhitelist(cfg.TLSDomains...),
		}
		srv.Addr = ":443"
		srv.TLSConfig = autoTLS.TLSConfig()
		logger.Info("starting server", zap.String("mode", "tls"), zap.Strings("domains", cfg.TLSDomains))
		go func() { errc <- srv.ListenAndServeTLS("", "") }()
	}

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server exited", zap.Error(err))
		}
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	// Closing the hub first ends live sessions, which Shutdown does not wait for.
	live.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
}
