package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"protocell/internal/chloroplast"
	chstore "protocell/internal/chloroplast/store"
	"protocell/internal/culture"
	"protocell/internal/environment"
	"protocell/internal/nucleus"
	nstore "protocell/internal/nucleus/store"
	"protocell/internal/platform/config"
	"protocell/internal/platform/httpserver"
	"protocell/internal/platform/logger"
	"protocell/internal/platform/metrics"
	platformredis "protocell/internal/platform/redis"
	"protocell/internal/platform/token"
	httptransport "protocell/internal/transport/http"
	"protocell/pkg/domain"
	"protocell/pkg/platform/lineage"
)

const (
	lineageBufferSize = 256
	callerTokenTTL    = 24 * time.Hour
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mode, err := nucleus.ParseMode(cfg.RegisterMode)
	if err != nil {
		return err
	}

	organelles, replications, cleanup, err := buildStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	buffer := lineage.NewBuffer(lineageBufferSize, log)
	sink, closeSink, err := buildSink(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeSink()
	worker := lineage.NewWorker(buffer.Events(), sink, log)

	m := metrics.New()
	env := environment.New()
	cells := culture.New(env, organelles, replications, buffer, m, log, mode, cfg.ReplicationCost)

	tokens := token.NewService(cfg.JWTSigningKey, "protocell")
	creds := token.NewCredentials(tokens, callerTokenTTL)
	if cfg.OperatorSecret != "" {
		operator, err := domain.ParseAddress(cfg.OperatorAddress)
		if err != nil {
			return fmt.Errorf("PROTOCELL_OPERATOR_ADDRESS: %w", err)
		}
		if err := creds.Register(operator, cfg.OperatorSecret); err != nil {
			return err
		}
		log.Info("operator credential registered", "operator", operator.String())
	}

	handler := httptransport.NewHandler(cells, log)
	router := httptransport.NewRouter(handler, tokens, creds, log)
	server := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Addr, "store", cfg.StoreBackend, "mode", cfg.RegisterMode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("server stopped")
	return nil
}

// buildStores selects the persistence backend for the organelle directory and
// the replication log. The returned cleanup closes whatever was opened.
func buildStores(ctx context.Context, cfg config.Server, log *slog.Logger) (nstore.Store, chstore.Log, func(), error) {
	switch cfg.StoreBackend {
	case "memory":
		return nstore.NewInMemory(), chstore.NewInMemoryLog(), func() {}, nil

	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, nil, nil, errors.New("postgres backend selected but PROTOCELL_POSTGRES_DSN is empty")
		}
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		organelles := nstore.NewPostgres(db)
		if err := organelles.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			db.Close()
			return nil, nil, nil, fmt.Errorf("open pgx pool: %w", err)
		}
		replications := chstore.NewPostgresLog(pool)
		if err := replications.EnsureSchema(ctx); err != nil {
			pool.Close()
			db.Close()
			return nil, nil, nil, err
		}
		return organelles, replications, func() { pool.Close(); db.Close() }, nil

	case "redis":
		client, err := platformredis.New(cfg.RedisURL)
		if err != nil {
			return nil, nil, nil, err
		}
		if client == nil {
			return nil, nil, nil, errors.New("redis backend selected but PROTOCELL_REDIS_URL is empty")
		}
		// The replication log stays in memory here: it is append-only
		// operational history, and the directory is the consistency-critical
		// state.
		log.Warn("redis backend keeps the replication log in memory; replication history will not survive a restart")
		return nstore.NewRedis(client.Client), chstore.NewInMemoryLog(), func() { client.Close() }, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func buildSink(ctx context.Context, cfg config.Server, log *slog.Logger) (lineage.Sink, func(), error) {
	if cfg.KafkaBrokers == "" {
		return lineage.NewLogSink(log), func() {}, nil
	}
	sink, err := lineage.NewKafkaSink(ctx, cfg.KafkaBrokers)
	if err != nil {
		return nil, nil, err
	}
	return sink, sink.Close, nil
}

var _ chloroplast.Resolver = (*culture.Culture)(nil)
