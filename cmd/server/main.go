package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/lingzc/dormlife/internal/auth"
	"github.com/lingzc/dormlife/internal/config"
	"github.com/lingzc/dormlife/internal/directory"
	"github.com/lingzc/dormlife/internal/elec"
	"github.com/lingzc/dormlife/internal/ledger"
	"github.com/lingzc/dormlife/internal/metrics"
	"github.com/lingzc/dormlife/internal/middleware"
	"github.com/lingzc/dormlife/internal/service"
	"github.com/lingzc/dormlife/internal/storage/sqlite"
	"github.com/lingzc/dormlife/pkg/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogFormat)

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		logger.Error("init storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("storage initialized", "database", cfg.DBPath)

	dir := directory.NewClient(directory.Options{
		APIBase:  cfg.LogtoAPIBase,
		TokenURL: cfg.LogtoTokenURL,
		ClientID: cfg.LogtoClientID,
		Secret:   cfg.LogtoClientSecret,
	})
	verifier := auth.NewVerifier(cfg.JWKSURL, cfg.Issuer, cfg.Audience)
	portal := elec.NewClient(cfg.PortalLoginURL, cfg.PortalSearchURL)
	billLedger := ledger.New(store)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.Metrics)

	r.Handle("/metrics", metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(verifier))
		service.NewBillService(billLedger, store, dir).MountRoutes(r)
		service.NewCommonService(dir).MountRoutes(r)
		service.NewProfileService(store, portal).MountRoutes(r)
		service.NewElecService(store, store).MountRoutes(r)
	})

	srv := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      r,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("server starting", "address", cfg.AppAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("server stopped")
}
