package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/therebelliongame/backend/internal/config"
	"github.com/therebelliongame/backend/internal/httpapi"
	"github.com/therebelliongame/backend/internal/hub"
	"github.com/therebelliongame/backend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := buildLogger(cfg.Dev)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	var players store.Players = store.Noop{}
	if cfg.DatabaseURL != "" {
		db, err := store.Open(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("opening player store", zap.Error(err))
		}
		players = db
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := hub.NewHub(ctx, logger)
	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.SetupRoutes(h, cfg, players, logger),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		h.Inbox() <- hub.ShutdownHub{}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

func buildLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
