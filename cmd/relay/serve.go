package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/inaiurai/relay/internal/auth"
	"github.com/inaiurai/relay/internal/conversation"
	"github.com/inaiurai/relay/internal/dashboard"
	"github.com/inaiurai/relay/internal/entitlement"
	"github.com/inaiurai/relay/internal/gemini"
	"github.com/inaiurai/relay/internal/handlers"
	"github.com/inaiurai/relay/internal/intent"
	"github.com/inaiurai/relay/internal/quota"
	"github.com/inaiurai/relay/internal/relay"
	"github.com/inaiurai/relay/internal/router"
	"github.com/inaiurai/relay/internal/safety"
	"github.com/inaiurai/relay/internal/validate"
)

const safetyPolicyTTL = time.Minute

func runServe(ctx context.Context, v *viper.Viper) error {
	cfg, logger, err := loadConfig(v)
	if err != nil {
		return err
	}
	if err := cfg.RequireServe(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStorage(ctx, cfg, true, logger)
	if err != nil {
		logger.Error("failed to open storage", "error", err)
		return err
	}
	defer st.Close()

	runJobs, err := startJobs(st, cfg, logger)
	if err != nil {
		logger.Error("failed to set up background jobs", "error", err)
		return err
	}

	personas := entitlement.DefaultCatalog()
	if cfg.PersonasFile != "" {
		if personas, err = entitlement.LoadCatalog(cfg.PersonasFile); err != nil {
			logger.Error("failed to load personas", "path", cfg.PersonasFile, "error", err)
			return err
		}
	}

	generator, err := gemini.New(ctx, gemini.Config{
		APIKey:            cfg.GeminiAPIKey,
		RequestsPerSecond: cfg.UpstreamRPS,
		Timeout:           cfg.UpstreamTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to create Gemini client", "error", err)
		return err
	}

	safetySvc := safety.NewService(st, safetyPolicyTTL, logger)
	relaySvc := relay.NewService(relay.Deps{
		Store:      st,
		Resolver:   entitlement.NewResolver(st, st, logger),
		Quota:      quota.NewEnforcer(st, cfg.QuotaTimezone, logger),
		Classifier: intent.NewClassifier(personas.Keys()),
		Assembler:  conversation.NewAssembler(st, safetySvc, personas, logger),
		Generator:  generator,
		Personas:   personas,
	}, relay.Config{MaxMediaBytes: cfg.MaxMediaBytes, MediaDir: cfg.MediaDir}, logger)

	validator, err := validate.New()
	if err != nil {
		logger.Error("failed to compile request schemas", "error", err)
		return err
	}

	mux := http.NewServeMux()
	RegisterTransportRoutes(mux, &handlers.RelayHandler{Relay: relaySvc, Logger: logger}, cfg.TransportToken, validator, cfg.MaxMediaBytes)
	if cfg.TransportToken == "" {
		logger.Warn("TRANSPORT_TOKEN is empty, transport API is unauthenticated")
	}

	if err := cfg.RequireAdmin(); err != nil {
		logger.Warn("admin API disabled", "reason", err.Error())
	} else {
		authSvc, err := auth.NewService(cfg.AdminJWTSecret, cfg.AdminAccountIDs, cfg.AdminTokenTTL)
		if err != nil {
			return err
		}
		dashHandler := dashboard.NewHandler(st, safetySvc, logger)
		mux.Handle("/api/", router.New(dashHandler, authSvc, validator))
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(mux)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           corsHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runJobs(gctx)
	})
	g.Go(func() error {
		logger.Info("starting HTTP server", "addr", srv.Addr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", "error", err)
		return err
	}
	logger.Info("server stopped")
	return nil
}
