package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoyleJ11/match-control-backend/internal/archive"
	"github.com/DoyleJ11/match-control-backend/internal/config"
	"github.com/DoyleJ11/match-control-backend/internal/httpapi"
	"github.com/DoyleJ11/match-control-backend/internal/hub"
	"github.com/DoyleJ11/match-control-backend/internal/room"
	"github.com/DoyleJ11/match-control-backend/internal/store"
	"github.com/DoyleJ11/match-control-backend/internal/ws"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

// archiveStore is what the server needs from the database.
type archiveStore interface {
	archive.Archive
	httpapi.HistoryReader
	Close() error
}

type storeOpener func(cfg config.Config, log *zap.Logger) (archiveStore, error)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintln(os.Stderr, "load .env:", err)
		os.Exit(1)
	}
	cfg := config.Load()

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "build logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, openStore); err != nil {
		logger.Error("server stopped", zap.Error(err))
		stop()
		_ = logger.Sync()
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zcfg := zap.NewDevelopmentConfig()
	if cfg.Production() {
		zcfg = zap.NewProductionConfig()
	}
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func openStore(cfg config.Config, log *zap.Logger) (archiveStore, error) {
	conn, err := store.Open(cfg.DatabaseURL, store.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime(),
	})
	if err != nil {
		return nil, err
	}
	st := store.New(conn, log)
	if err := st.Migrate(); err != nil {
		return nil, multierr.Combine(err, st.Close())
	}
	return st, nil
}

// run serves until ctx is done. The store close error, if any, is folded into
// the returned error.
func run(ctx context.Context, cfg config.Config, log *zap.Logger, open storeOpener) (err error) {
	g, ctx := errgroup.WithContext(ctx)
	hubOpts := []hub.Option{
		hub.WithLogger(log),
		hub.WithRoomInboxSize(cfg.RoomInboxSize),
	}

	var states httpapi.HistoryReader
	if cfg.DatabaseURL != "" {
		st, openErr := open(cfg, log)
		if openErr != nil {
			return openErr
		}
		defer multierr.AppendInvoke(&err, multierr.Close(st))
		states = st

		tap := make(chan room.Tapped, cfg.ArchiveBuffer)
		hubOpts = append(hubOpts, hub.WithTap(tap))
		recorder := archive.NewRecorder(st, log.Named("archive"))
		g.Go(func() error { return recorder.Run(ctx, tap) })
	} else {
		log.Warn("DATABASE_URL not set; archive disabled")
	}

	h := hub.NewHub(ctx, hubOpts...)
	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: httpapi.SetupRoutes(httpapi.Deps{
			Hub:    h,
			States: states,
			WS: ws.Config{
				SubscriberBuffer: cfg.SubscriberBuffer,
				WriteTimeout:     cfg.WSWriteTimeout(),
				PingInterval:     cfg.WSPingInterval(),
			},
			Log: log,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		// Stop accepting first, then close the rooms so relay connections end.
		err := srv.Shutdown(shutdownCtx)
		h.Shutdown()
		return err
	})

	return g.Wait()
}
