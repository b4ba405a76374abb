package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/island-duel-backend/internal/arena"
	"github.com/DoyleJ11/island-duel-backend/internal/challenge"
	"github.com/DoyleJ11/island-duel-backend/internal/config"
	"github.com/DoyleJ11/island-duel-backend/internal/conn"
	"github.com/DoyleJ11/island-duel-backend/internal/httpapi"
	"github.com/DoyleJ11/island-duel-backend/internal/hub"
	"github.com/DoyleJ11/island-duel-backend/internal/logging"
	"github.com/DoyleJ11/island-duel-backend/internal/presence"
	"github.com/DoyleJ11/island-duel-backend/internal/reaper"
	"github.com/DoyleJ11/island-duel-backend/internal/session"
	"github.com/DoyleJ11/island-duel-backend/internal/storage"
	"github.com/DoyleJ11/island-duel-backend/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func run(parent context.Context, cfg *config.Config) (err error) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := logging.New(cfg.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	var store *storage.Store
	if cfg.DatabaseURL != "" {
		db, err := storage.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		store = storage.NewStore(db)
		logger.Info("match archive enabled")
	}
	defer func() { err = multierr.Append(err, store.Close()) }()

	users := presence.NewRegistry(cfg.OfflineAfter, presence.RejectOnlineDuplicates(cfg.RejectDuplicateUsers))
	challenges := challenge.NewQueue(nil)
	conns := conn.NewRegistry(logger.Named("conn"))
	sessions := hub.NewHub(ctx, session.Deps{
		Notifier: conns,
		Log:      logger.Named("session"),
	})

	svc := arena.New(arena.Deps{
		Users:            users,
		Challenges:       challenges,
		Sessions:         sessions,
		Conns:            conns,
		Log:              logger.Named("arena"),
		RejectDuplicates: cfg.RejectDuplicateUsers,
	})

	r := reaper.New(reaper.Config{
		Interval:          cfg.ReapInterval,
		AbandonAfter:      cfg.AbandonAfter,
		FinishedRetention: cfg.FinishedRetention,
	}, reaper.Deps{
		Users:      users,
		Challenges: challenges,
		Sessions:   sessions,
		Conns:      conns,
		Archive:    store,
		Log:        logger.Named("reaper"),
	})

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: httpapi.SetupRoutes(svc, ws.Options{
			Keepalive:   cfg.Keepalive,
			ReadTimeout: cfg.OfflineAfter,
			Log:         logger.Named("ws"),
		}, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error { return r.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		conns.CloseAll()
		return multierr.Combine(
			srv.Shutdown(sctx),
			sessions.Shutdown(sctx),
		)
	})
	return g.Wait()
}
