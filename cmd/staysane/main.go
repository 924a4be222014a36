package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"staysane/internal/app/bootstrap"
	"staysane/internal/app/middleware"
	"staysane/internal/app/outbox"
	"staysane/internal/app/policies"
	"staysane/internal/app/uow"
	"staysane/internal/infra/broker/kafka"
	"staysane/internal/infra/config"
	"staysane/internal/infra/db/mongo"
	"staysane/internal/infra/db/postgres"
	"staysane/internal/infra/db/scylla"
	grpcserver "staysane/internal/infra/grpc"
	"staysane/internal/infra/history"
	ginserver "staysane/internal/infra/http/gin"
	"staysane/internal/infra/inbox"
	redislock "staysane/internal/infra/lock/redis"
	"staysane/internal/infra/obs"
	infraoutbox "staysane/internal/infra/outbox"
	"staysane/internal/infra/payments"
	"staysane/internal/infra/storage/memory"
	"staysane/internal/infra/storage/s3"
	"staysane/internal/infra/worker"
)

// storage is what one STORE_DRIVER provides.
type storage struct {
	uow         uow.Factory
	outbox      outbox.Outbox
	relay       infraoutbox.Store
	wake        <-chan struct{}
	idempotency middleware.IdempotencyStore
	inbox       inbox.Store
	ping        obs.Check
	close       func()
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load configuration", "error", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("service stopped", "error", err)
		os.Exit(1)
	}
	logger.Info("service stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.close()

	if cfg.SeedDemo {
		if err := memory.Seed(ctx, store.uow, cfg.Currency, time.Now()); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
		logger.Info("demo data seeded", "driver", cfg.StoreDriver)
	}

	checks := map[string]obs.Check{"store": store.ping}
	deps := bootstrap.Deps{
		UoW:           store.uow,
		Outbox:        store.outbox,
		Idempotency:   store.idempotency,
		Location:      cfg.Location,
		PaymentWindow: cfg.PaymentWindow,
		Tolerance:     cfg.PriceTolerance,
		Logger:        logger,
	}

	if cfg.RedisAddr != "" {
		client := redislock.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer client.Close()
		locker := redislock.NewLocker(client, cfg.RoomLockTTL, cfg.RoomLockTTL)
		deps.Locker = locker
		checks["redis"] = locker.Ping
	}
	if cfg.GatewayURL != "" {
		deps.Payments = payments.NewGatewayClient(cfg.GatewayURL, cfg.GatewayServerKey, cfg.GatewayTimeout, logger)
	} else {
		deps.Payments = policies.DisabledInitiator{}
	}
	if cfg.S3Endpoint != "" {
		proofs, err := s3.NewProofStore(s3.Config{
			Endpoint:       cfg.S3Endpoint,
			PublicEndpoint: cfg.S3PublicEndpoint,
			AccessKey:      cfg.S3AccessKey,
			SecretKey:      cfg.S3SecretKey,
			Bucket:         cfg.S3Bucket,
			UseSSL:         cfg.S3UseSSL,
		}, logger)
		if err != nil {
			return err
		}
		deps.Proofs = proofs
		checks["s3"] = proofs.Ping
	}

	var historyStore history.Store = history.NewMemoryStore()
	if len(cfg.ScyllaHosts) > 0 {
		session, err := scylla.NewSession(ctx, scylla.Config{
			Hosts:             cfg.ScyllaHosts,
			Keyspace:          cfg.ScyllaKeyspace,
			Username:          cfg.ScyllaUsername,
			Password:          cfg.ScyllaPassword,
			ReplicationFactor: cfg.ScyllaReplicationFactor,
			Consistency:       cfg.ScyllaConsistency,
			Timeout:           cfg.ScyllaTimeout,
		}, logger)
		if err != nil {
			return err
		}
		defer session.Close()
		scyllaHistory := scylla.NewHistoryStore(session, logger)
		historyStore = scyllaHistory
		checks["scylla"] = scyllaHistory.Ping
	}
	deps.History = historyStore
	projector := &history.Projector{Store: historyStore, Logger: logger}

	metrics := obs.NewMetrics(prometheus.DefaultRegisterer)
	deps.Observer = metrics

	buses := bootstrap.Build(deps)

	relay := &infraoutbox.Worker{
		Store:       store.relay,
		Wake:        store.wake,
		Interval:    cfg.OutboxPollInterval,
		TopicPrefix: cfg.KafkaTopicPrefix,
		Backoff:     cfg.RetryBackoff,
		Logger:      logger.With("component", "outbox"),
		Published:   metrics.OutboxResult,
	}

	g, gctx := errgroup.WithContext(ctx)

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := kafka.NewProducer(cfg.KafkaBrokers, kafka.NewConfig("staysane-outbox"))
		if err != nil {
			return fmt.Errorf("kafka producer: %w", err)
		}
		defer producer.Close()
		relay.Producer = producer

		paymentsConsumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaConsumerGroup+"-payments", nil,
			kafka.PaymentsHandler{Commands: buses.Commands, Inbox: store.inbox, Logger: logger}, logger)
		if err != nil {
			return fmt.Errorf("kafka payments consumer: %w", err)
		}
		defer paymentsConsumer.Close()
		historyConsumer, err := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaConsumerGroup+"-history", nil,
			kafka.HistoryHandler{Projector: projector, Logger: logger}, logger)
		if err != nil {
			return fmt.Errorf("kafka history consumer: %w", err)
		}
		defer historyConsumer.Close()

		g.Go(func() error { return paymentsConsumer.Run(gctx, []string{cfg.KafkaPaymentsTopic}) })
		g.Go(func() error {
			return historyConsumer.Run(gctx, []string{infraoutbox.TopicFor(cfg.KafkaTopicPrefix, "booking.created")})
		})
	} else {
		logger.Info("kafka not configured, projecting history in process")
		relay.Producer = history.LocalProducer{Projector: projector}
	}
	g.Go(func() error { return relay.Run(gctx) })

	sweeper := &worker.Sweeper{Commands: buses.Commands, Interval: cfg.SweepInterval, Logger: logger.With("component", "sweeper")}
	g.Go(func() error { return sweeper.Run(gctx) })

	healthHandlers := obs.HealthHandlers{Checks: checks}
	handlers := ginserver.Handlers{
		Booking:        ginserver.BookingHandler{Commands: buses.Commands, Queries: buses.Queries, Logger: logger},
		TenantBooking:  ginserver.TenantBookingHandler{Commands: buses.Commands, Queries: buses.Queries, Logger: logger},
		Availability:   ginserver.AvailabilityHandler{Commands: buses.Commands, Queries: buses.Queries, Logger: logger},
		Pricing:        ginserver.PricingHandler{Commands: buses.Commands, Queries: buses.Queries, Logger: logger},
		Webhook:        ginserver.PaymentWebhookHandler{Commands: buses.Commands, ServerKey: cfg.GatewayServerKey, Logger: logger},
		CreateLimiter:  ginserver.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		Metrics:        metrics,
		MetricsHandler: ginserver.DefaultMetricsHandler(),
	}
	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, healthHandlers, handlers)

	health := grpcserver.NewHealth(healthHandlers.Ready, 5*time.Second, logger)
	grpcServer := grpcserver.NewServer(health)
	g.Go(func() error {
		health.Run(gctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.HTTPAddr, "driver", cfg.StoreDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
		}
		g.Go(func() error {
			logger.Info("grpc health listening", "addr", cfg.GRPCAddr)
			return grpcServer.Serve(lis)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown failed", "error", err)
		}
		grpcServer.GracefulStop()
		return nil
	})

	return g.Wait()
}

func openStorage(ctx context.Context, cfg config.Config, logger *slog.Logger) (storage, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.PostgresDSN, 20)
		if err != nil {
			return storage{}, err
		}
		pg := postgres.NewStore(pool)
		logger.Info("postgres connected")
		return storage{
			uow:         pg,
			outbox:      pg,
			relay:       pg,
			wake:        pg.Wake(),
			idempotency: postgres.NewIdempotencyStore(pool),
			inbox:       postgres.NewInboxStore(pool, "payments"),
			ping:        pg.Ping,
			close:       pool.Close,
		}, nil
	case config.DriverMongo:
		client, err := mongo.New(ctx, cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return storage{}, err
		}
		closeClient := func() { _ = client.Close(context.Background()) }
		idempotency, err := mongo.NewIdempotencyStore(ctx, client.DB)
		if err != nil {
			closeClient()
			return storage{}, err
		}
		consumed, err := inbox.NewMongoStore(ctx, client.DB, "payments")
		if err != nil {
			closeClient()
			return storage{}, err
		}
		factory := mongo.NewFactory(client.DB)
		logger.Info("mongo connected", "database", cfg.MongoDB)
		return storage{
			uow:         factory,
			outbox:      factory,
			relay:       factory,
			wake:        factory.Wake(),
			idempotency: idempotency,
			inbox:       consumed,
			ping:        client.Ping,
			close:       closeClient,
		}, nil
	default:
		mem := memory.NewStore()
		return storage{
			uow:         mem,
			outbox:      mem,
			relay:       mem,
			wake:        mem.Wake(),
			idempotency: memory.NewIdempotencyStore(),
			inbox:       inbox.NewMemoryStore(),
			ping:        func(context.Context) error { return nil },
			close:       func() {},
		}, nil
	}
}
