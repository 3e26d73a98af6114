package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"

	"github.com/rl1809/allocation/internal/adapter/broker"
	"github.com/rl1809/allocation/internal/adapter/bus"
	"github.com/rl1809/allocation/internal/adapter/handler"
	"github.com/rl1809/allocation/internal/adapter/notification"
	"github.com/rl1809/allocation/internal/adapter/storage"
	"github.com/rl1809/allocation/internal/app"
	"github.com/rl1809/allocation/internal/core/message"
	"github.com/rl1809/allocation/internal/platform/observability"
	"github.com/rl1809/allocation/internal/port"
	"github.com/rl1809/allocation/pkg/config"
	"github.com/rl1809/allocation/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(logger.Config{Env: cfg.App.Env, Level: cfg.App.LogLevel})
	zl := log.Zerolog()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.App.Name, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up tracing")
	}

	// Redis serves the bus and, when no SQL store is configured, the read model.
	var rdb *redis.Client
	if cfg.Bus.Broker == "redis" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Bus.RedisAddr,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Bus.RedisAddr).Msg("failed to connect redis")
		}
		log.Info().Str("addr", cfg.Bus.RedisAddr).Msg("connected to redis")
	}

	var (
		db   *sql.DB
		uow  port.UnitOfWorkFactory
		view port.AllocationView
	)
	if cfg.DB.Driver == "memory" {
		uow = storage.NewMemoryStore().UnitOfWork
		if rdb != nil {
			view = storage.NewRedisAllocationView(rdb)
		} else {
			view = storage.NewMemoryAllocationView()
		}
		log.Info().Msg("using in-memory product store")
	} else {
		db, err = storage.Open(ctx, cfg.DB.Driver, cfg.DB.DSN)
		if err != nil {
			log.Fatal().Err(err).Str("driver", cfg.DB.Driver).Msg("failed to open database")
		}
		if err := storage.Migrate(ctx, db); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
		store, err := storage.NewSQLStore(db, cfg.DB.Driver)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create product store")
		}
		uow = store.UnitOfWork
		view, err = storage.NewSQLAllocationView(db, cfg.DB.Driver)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create allocation view")
		}
		log.Info().Str("driver", cfg.DB.Driver).Msg("connected to database")
	}

	var transport port.Transport
	switch cfg.Bus.Broker {
	case "redis":
		transport = broker.NewRedisTransport(rdb, zl)
	case "kafka":
		transport = broker.NewKafkaTransport(broker.KafkaConfig{
			Brokers: cfg.Bus.KafkaBrokers,
			GroupID: cfg.Bus.KafkaGroupID,
		}, zl)
	default:
		transport = bus.NewLoopbackTransport()
	}

	application, err := app.New(ctx, app.Options{
		UnitOfWork:            uow,
		View:                  view,
		Transport:             transport,
		Notifier:              notification.NewLogNotifier(zl),
		NotificationRecipient: cfg.Notification.Recipient,
		Retry: message.RetryPolicy{
			Retries:         cfg.Retry.Attempts,
			InitialInterval: cfg.Retry.InitialInterval,
		},
		Logger: zl,
	})
	if err != nil {
		log.Fatal().Err(err).Str("broker", cfg.Bus.Broker).Msg("failed to start application")
	}

	// Initialize gRPC server
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	grpcHandler := handler.NewGRPCHandler(cfg.App.Name)
	grpcHandler.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPC.Addr())
	if err != nil {
		log.Fatal().Err(err).Str("addr", cfg.GRPC.Addr()).Msg("failed to listen")
	}

	go func() {
		log.Info().Str("addr", cfg.GRPC.Addr()).Msg("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC server error")
		}
	}()

	// Initialize HTTP server
	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr(),
		Handler: application.HTTP.Routes(),
	}

	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr()).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	grpcHandler.SetServing(true)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down...")
	grpcHandler.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown")
	}
	log.Info().Msg("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Info().Msg("gRPC server stopped")

	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("application shutdown")
	}
	log.Info().Msg("background handlers stopped")

	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("tracing shutdown")
	}

	// Close connections
	if rdb != nil {
		rdb.Close()
	}
	if db != nil {
		db.Close()
	}
	log.Info().Msg("connections closed")
}
