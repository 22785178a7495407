package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"

	"paflow/internal/account"
	"paflow/internal/dashboard"
	"paflow/internal/notify"
	"paflow/internal/paf/handler"
	"paflow/internal/paf/lifecycle"
	pafmetrics "paflow/internal/paf/metrics"
	pafstore "paflow/internal/paf/store"
	"paflow/internal/platform/config"
	"paflow/internal/platform/httpserver"
	"paflow/internal/platform/logger"
	platformredis "paflow/internal/platform/redis"
	httptransport "paflow/internal/transport/http"
)

// main wires dependencies and owns process lifecycle. Business logic lives in
// the internal service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if cfg.DatabaseURL == "" {
		log.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	accountStore := account.NewPostgres(db)
	accountService := account.NewService(accountStore, cfg.PlatformCode, log)

	pafStore := pafstore.NewPostgres(db)
	notifier := notify.NewTransitionNotifier(
		notify.LogMailer{Logger: log},
		newPartyRecipients(accountStore, log),
		log)
	pafService := lifecycle.New(pafStore, cfg.PlatformCode,
		lifecycle.WithLogger(log),
		lifecycle.WithMetrics(pafmetrics.New()),
		lifecycle.WithNotifier(notifier))

	var statsCache dashboard.Cache
	if redisClient != nil {
		statsCache = redisClient.Client
	}
	dashboardService := dashboard.NewService(pafStore, statsCache,
		config.StatsCacheTTL, log, dashboard.NewMetrics())

	router := httptransport.NewRouter(log, []byte(cfg.JWTSigningKey),
		healthHandler(db, redisClient),
		handler.New(pafService, log),
		account.NewHandler(accountService, log),
		dashboard.NewHandler(dashboardService, log))

	srv := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting paflow server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if len(cfg.KafkaBrokers) > 0 {
		publisher, err := notify.NewKafkaPublisher(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Error("failed to connect to kafka", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()

		worker := notify.NewWorker(notify.NewPostgresOutbox(db), publisher, log)
		group.Go(func() error {
			log.Info("starting outbox worker", "topic", cfg.KafkaTopic)
			if err := worker.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	} else {
		log.Warn("KAFKA_BROKERS not set; status events stay in the outbox")
	}

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func healthHandler(db *sql.DB, redisClient *platformredis.Client) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{"postgres": "ok"}
		status := http.StatusOK
		if err := db.PingContext(ctx); err != nil {
			checks["postgres"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if redisClient != nil {
			checks["redis"] = "ok"
			if err := redisClient.Health(ctx); err != nil {
				checks["redis"] = err.Error()
				status = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(checks)
	}
}
