package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/example/tablebook/internal/account"
	"github.com/example/tablebook/internal/auth"
	"github.com/example/tablebook/internal/outbox"
	"github.com/example/tablebook/internal/ranking"
	"github.com/example/tablebook/internal/reservation/domain"
	"github.com/example/tablebook/internal/reservation/handler"
	"github.com/example/tablebook/internal/reservation/repository"
	"github.com/example/tablebook/internal/reservation/service"
	"github.com/example/tablebook/internal/reservation/slotlock"
	"github.com/example/tablebook/internal/review"
	"github.com/example/tablebook/internal/store"
	"github.com/example/tablebook/pkg/events"
	"github.com/example/tablebook/pkg/observability"
)

type appConfig struct {
	HTTPAddr    string
	PostgresDSN string
	RedisAddr   string
	NATSURL     string
	JWTSecret   string
	TokenTTL    time.Duration
	OutboxPoll  time.Duration
	OutboxBatch int
	OutboxRetry int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := observability.SetupLogger("reservation-service")
	defer logger.Sync() //nolint:errcheck

	shutdown, err := observability.SetupTracer(ctx, "reservation-service")
	if err != nil {
		logger.Warn("tracer setup failed", zap.Error(err))
	} else {
		defer shutdown(context.Background())
	}

	cfg := loadConfig()

	var db *sql.DB
	if cfg.PostgresDSN != "" {
		db, err = sql.Open("pgx", cfg.PostgresDSN)
		if err != nil {
			logger.Fatal("postgres connect", zap.Error(err))
		}
		db.SetMaxOpenConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.PingContext(ctx); err != nil {
			logger.Fatal("postgres ping", zap.Error(err))
		}
		defer db.Close()
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		defer redisClient.Close()
	}

	var natsConn *nats.Conn
	if cfg.NATSURL != "" {
		if conn, err := nats.Connect(cfg.NATSURL, nats.Name("reservationservice")); err == nil {
			natsConn = conn
			defer conn.Drain()
		} else {
			logger.Warn("nats connection failed", zap.Error(err))
		}
	}

	var (
		accountsRepo     domain.AccountRepository
		storesRepo       domain.StoreRepository
		reservationsRepo domain.ReservationRepository
		reviewsRepo      domain.ReviewRepository
	)
	if db != nil {
		pg := repository.NewPostgresRepository(db)
		accountsRepo, storesRepo, reservationsRepo, reviewsRepo = pg, pg, pg, pg
	} else {
		mem := repository.NewMemoryRepository()
		accountsRepo, storesRepo, reservationsRepo, reviewsRepo = mem, mem, mem, mem
	}

	var holds slotlock.HoldStore
	if redisClient != nil {
		holds = slotlock.NewRedisHoldStore(redisClient, "")
	} else {
		holds = slotlock.NewMemoryHoldStore()
	}

	// With Postgres the outbox table carries events so the relay can
	// deliver them; memory mode publishes straight to NATS.
	var publisher domain.EventPublisher
	if db != nil {
		publisher = events.NewOutboxPublisher(db, "reservation.events")
	} else {
		publisher = events.NewNATSPublisher(natsConn, "reservation.events")
	}

	clock := domain.SystemClock{}
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL, clock)

	accountSvc := account.New(accountsRepo, issuer, clock, logger.Named("account"))
	storeSvc := store.New(storesRepo, logger.Named("store"))
	ranker := ranking.New(storesRepo)
	ledger := service.NewLedger(storesRepo, reservationsRepo, holds, publisher, clock, logger.Named("ledger"))
	gate := service.NewArrivalGate(storesRepo, reservationsRepo, clock)
	reviewSvc := review.NewAggregator(accountsRepo, storesRepo, reservationsRepo, reviewsRepo, publisher, clock, logger.Named("review"))

	api := handler.NewHTTP(accountSvc, storeSvc, ranker, ledger, gate, reviewSvc, cfg.JWTSecret)

	r := chi.NewRouter()
	r.Mount("/", api.Router())
	r.Mount("/observability", observability.MetricsRouter())

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if db != nil && natsConn != nil {
		relay := outbox.NewRelay(db, natsConn, logger.Named("outbox"), outbox.Config{
			PollInterval: cfg.OutboxPoll,
			BatchSize:    cfg.OutboxBatch,
			RetryMax:     cfg.OutboxRetry,
		})
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("outbox relay stopped", zap.Error(err))
			}
		}()
	} else {
		logger.Warn("outbox relay disabled", zap.Bool("db", db != nil), zap.Bool("nats", natsConn != nil))
	}

	go func() {
		logger.Info("reservation service listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func loadConfig() appConfig {
	return appConfig{
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		PostgresDSN: firstNonEmpty(os.Getenv("POSTGRES_DSN"), os.Getenv("DATABASE_URL")),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		NATSURL:     os.Getenv("NATS_URL"),
		JWTSecret:   getenv("JWT_SECRET", "dev-secret"),
		TokenTTL:    time.Duration(parseIntEnv("TOKEN_TTL_MIN", 60)) * time.Minute,
		OutboxPoll:  time.Duration(parseIntEnv("OUTBOX_POLL_MS", 200)) * time.Millisecond,
		OutboxBatch: parseIntEnv("OUTBOX_BATCH", 100),
		OutboxRetry: parseIntEnv("OUTBOX_RETRY_MAX", 3),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func parseIntEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}
