package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-core/internal/api"
	"github.com/hackgods/clinic-core/internal/appointment"
	"github.com/hackgods/clinic-core/internal/billing"
	"github.com/hackgods/clinic-core/internal/config"
	"github.com/hackgods/clinic-core/internal/db"
	"github.com/hackgods/clinic-core/internal/document"
	"github.com/hackgods/clinic-core/internal/logger"
	"github.com/hackgods/clinic-core/internal/prescription"
	redisclient "github.com/hackgods/clinic-core/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Err(err).Msg("config load error")
	}

	log, err := logger.New(cfg.LogLevel, cfg.Env, "api-server")
	if err != nil {
		stderrLog := zerolog.New(os.Stderr)
		stderrLog.Fatal().Err(err).Msg("logger init error")
	}

	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Str("version", version).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.RunMigrations {
		if err := db.Migrate(cfg.PostgresDSN); err != nil {
			log.Fatal().Err(err).Msg("migrations failed")
		}
		log.Info().Msg("migrations applied")
	}

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PostgresMaxConn, db.WithSlowQueryLog(cfg.SlowQuery))
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	// Redis only guards the booking fast path; without it the unique
	// index still rejects double bookings.
	var (
		locker    redisclient.Locker = redisclient.NoopLocker{}
		redisPing api.Pinger
	)
	rdb, err := redisclient.NewRedisClient(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, booking lock disabled")
	} else {
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Error().Err(err).Msg("error closing redis")
			}
		}()
		locker = redisclient.NewRedisLocker(rdb, cfg.LockTTL)
		redisPing = api.RedisPinger{Client: rdb}
		log.Info().Msg("connected to Redis")
	}

	renderer := document.NewPDFRenderer(cfg.ClinicName)

	prescriptions := prescription.NewPgRepository(pgPool)
	invoices := billing.NewPgRepository(pgPool, prescriptions.MarkInvoicePaid)
	appointments := appointment.NewPgRepository(pgPool)

	router := api.NewRouter(api.RouterConfig{
		Appointments:  appointment.NewScheduler(appointments, locker, renderer, cfg.Schedule),
		Billing:       billing.NewLedger(invoices),
		Prescriptions: prescription.NewGate(prescriptions, renderer),
		Health:        api.NewHealthHandler(pgPool, redisPing, cfg.Env, version),
		Logger:        log,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-rootCtx.Done():
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("http server failed")
		}
	}

	log.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
