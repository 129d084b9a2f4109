package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-core/internal/config"
	"github.com/hackgods/clinic-core/internal/db"
	"github.com/hackgods/clinic-core/internal/job"
	"github.com/hackgods/clinic-core/internal/logger"
	"github.com/hackgods/clinic-core/internal/notify"
	"github.com/hackgods/clinic-core/internal/outbox"
	"github.com/hackgods/clinic-core/internal/prescription"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Err(err).Msg("config load error")
	}

	log, err := logger.New(cfg.LogLevel, cfg.Env, "outbox-worker")
	if err != nil {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Err(err).Msg("logger init error")
	}

	log.Info().
		Str("env", cfg.Env).
		Dur("interval", cfg.WorkerInterval).
		Strs("kafka_brokers", cfg.Kafka.Brokers).
		Msg("outbox-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PostgresMaxConn, db.WithSlowQueryLog(cfg.SlowQuery))
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	var pub outbox.Publisher = notify.NewLogPublisher(log)
	if len(cfg.Kafka.Brokers) > 0 {
		kp := notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.NotifyTopic, log)
		defer kp.Close()
		pub = kp
	}

	store := outbox.NewPgStore(pgPool)
	dispatcher := outbox.NewDispatcher(store, pub, cfg.Outbox.BatchSize, cfg.Outbox.MaxAttempts, log)
	gate := prescription.NewGate(prescription.NewPgRepository(pgPool), nil)

	runner := job.NewRunner(log).
		Register("outbox-dispatch", cfg.WorkerInterval, 20*time.Second, dispatcher.Drain).
		Register("prescription-reconcile", cfg.Outbox.ReconcileInterval, 20*time.Second, func(ctx context.Context) error {
			_, err := gate.ReconcilePaid(ctx)
			return err
		}).
		TryRegister(cfg.Outbox.RetentionDays > 0, "outbox-purge", 24*time.Hour, time.Minute, func(ctx context.Context) error {
			n, err := store.Purge(ctx, cfg.Outbox.RetentionDays)
			if n > 0 {
				zerolog.Ctx(ctx).Info().Int64("deleted", n).Msg("outbox purged")
			}
			return err
		})

	runner.Start(rootCtx)
	<-rootCtx.Done()

	log.Info().Msg("shutdown signal received, stopping outbox-worker")
	runner.Wait()
}
