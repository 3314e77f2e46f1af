package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/mamadbah2/nutrilog/internal/config"
	"github.com/mamadbah2/nutrilog/internal/metrics"
	"github.com/mamadbah2/nutrilog/internal/repository/memory"
	"github.com/mamadbah2/nutrilog/internal/repository/mongodb"
	"github.com/mamadbah2/nutrilog/internal/repository/sheets"
	"github.com/mamadbah2/nutrilog/internal/scheduler"
	"github.com/mamadbah2/nutrilog/internal/server/handlers"
	"github.com/mamadbah2/nutrilog/internal/server/router"
	"github.com/mamadbah2/nutrilog/internal/service/dailymeals"
	"github.com/mamadbah2/nutrilog/internal/session"
	"github.com/mamadbah2/nutrilog/pkg/clients/identity"
	"github.com/mamadbah2/nutrilog/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Log.Level))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	loc, err := cfg.Tracking.Location()
	if err != nil {
		baseLogger.Fatal("invalid timezone", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store dailymeals.MealStore
	switch cfg.Store.Driver {
	case config.StoreMemory:
		baseLogger.Warn("using in-memory meal store, meals are lost on restart")
		store = memory.NewStore(baseLogger.Named("repo.memory"))
	default:
		mongoStore, err := mongodb.NewMealStore(ctx, cfg.MongoDB, baseLogger.Named("repo.mongodb"))
		if err != nil {
			baseLogger.Fatal("failed to init mongodb meal store", zap.Error(err))
		}
		defer func() {
			if err := mongoStore.Close(context.Background()); err != nil {
				baseLogger.Error("failed to close mongodb connection", zap.Error(err))
			}
		}()
		store = mongoStore
	}

	var auth session.Authenticator = session.LocalAuthenticator{UserID: cfg.Identity.AnonymousUserID}
	if cfg.Identity.APIKey != "" {
		auth = identity.NewClient(cfg.Identity)
		baseLogger.Info("hosted anonymous sign-in enabled")
	} else {
		baseLogger.Warn("identity api key missing, signing in locally")
	}
	sessions := session.NewProvider(auth, baseLogger.Named("session"))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	view := dailymeals.NewService(store, sessions, loc, baseLogger.Named("svc.dailymeals"), dailymeals.WithRecorder(collector))
	viewDone := make(chan struct{})
	go func() {
		defer close(viewDone)
		if err := view.Run(ctx); err != nil {
			baseLogger.Error("daily view stopped", zap.Error(err))
		}
	}()

	signInCtx, cancelSignIn := context.WithTimeout(ctx, 30*time.Second)
	if _, err := sessions.SignInAnonymously(signInCtx); err != nil {
		baseLogger.Error("anonymous sign-in failed, daily view stays loading", zap.Error(err))
	}
	cancelSignIn()

	var sheetsRepo sheets.Repository
	if cfg.Sheets.Enabled() {
		repo, err := sheets.NewGoogleSheetRepository(ctx, cfg.Sheets, baseLogger.Named("repo.sheets"))
		if err != nil {
			baseLogger.Fatal("failed to init sheets repository", zap.Error(err))
		}
		sheetsRepo = repo
	}

	sched := scheduler.NewScheduler(*cfg, view, sheetsRepo, loc, baseLogger.Named("scheduler"))
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	mealHandler := handlers.NewMealHandler(view, sessions, baseLogger.Named("handlers.meals"))
	engine := router.New(mealHandler, metrics.Handler(registry), baseLogger.Named("router"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
	<-viewDone
}
