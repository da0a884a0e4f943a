package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"worksdesk.io/internal/audit"
	"worksdesk.io/internal/auth"
	"worksdesk.io/internal/config"
	"worksdesk.io/internal/httpapi"
	"worksdesk.io/internal/migrate"
	"worksdesk.io/internal/obs"
	"worksdesk.io/internal/ratelimit"
	"worksdesk.io/internal/store/memory"
	"worksdesk.io/internal/store/pg"
	"worksdesk.io/internal/works"
	"worksdesk.io/migrations"
)

// backend is what the services need from either store.
type backend interface {
	auth.Store
	works.Store
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	log, err := obs.NewLogger(cfg.LogLevel, cfg.Environment)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("worksdesk-api stopped", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs.Init()
	obs.InitBuildInfo(cfg.Version, cfg.Commit, cfg.Environment)
	shutdownTracing, err := obs.InitTracing(ctx, log, cfg.OTLPEndpoint, "worksdesk-api", cfg.Environment)
	if err != nil {
		return err
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(tctx)
	}()

	var (
		store backend
		ready httpapi.ReadyProbe
	)
	if cfg.DatabaseDSN != "" {
		pgStore, err := pg.Open(cfg.DatabaseDSN)
		if err != nil {
			return err
		}
		defer pgStore.Close()
		if cfg.MigrateOnStart {
			mgr := migrate.NewManager(pgStore.DB(), migrations.FS, migrations.SQLDir, migrations.SeedsDir, migrate.WithLogger(log))
			mctx, cancel := context.WithTimeout(ctx, time.Minute)
			err := mgr.Up(mctx)
			if err == nil {
				err = mgr.Seed(mctx)
			}
			cancel()
			if err != nil {
				return err
			}
		}
		store, ready = pgStore, httpapi.ReadyProbe{DB: pgStore}
	} else {
		log.Warn("WORKSDESK_PG_DSN is not set; using the in-memory store")
		store = memory.NewSeeded()
	}

	authSvc, err := auth.NewService(store, cfg.Token,
		auth.WithLogger(log),
		auth.WithIdentityTimeout(cfg.IdentityTimeout))
	if err != nil {
		return err
	}
	worksSvc, err := works.NewService(store)
	if err != nil {
		return err
	}
	bootstrap := auth.NewBootstrapper(store, cfg.Bootstrap, log)
	if _, err := bootstrap.EnsureAdmin(ctx); err != nil {
		log.Error("admin bootstrap failed", zap.Error(err))
	}

	var limiter ratelimit.Limiter = ratelimit.NewMemoryLimiter()
	if cfg.Redis.Addr != "" {
		client, err := ratelimit.Dial(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer client.Close()
		rl, err := ratelimit.NewRedisLimiter(client, nil)
		if err != nil {
			return err
		}
		limiter = rl
	}

	api, err := httpapi.New(httpapi.Deps{
		Config:    cfg,
		Auth:      authSvc,
		Bootstrap: bootstrap,
		Audit:     audit.NewRecorder(store, log),
		Works:     worksSvc,
		Limiter:   limiter,
		Ready:     ready,
		Logger:    log,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(api.Handler(), "worksdesk-api"),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcServer := grpc.NewServer()
	health := httpapi.NewHealthServer(ready, log)
	health.Register(grpcServer)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	go health.Run(ctx, 10*time.Second)

	errc := make(chan error, 2)
	go func() {
		log.Info("http listening", zap.String("addr", srv.Addr), zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	go func() {
		log.Info("grpc listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errc:
		log.Error("server failed", zap.Error(err))
		stop()
	}

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	grpcServer.GracefulStop()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	log.Info("stopped")
	return nil
}
