package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"voice_verification/config"
	"voice_verification/internal/controller/rmq"
	"voice_verification/internal/db/gorm/mysql"
	ttrace "voice_verification/internal/telemetry/trace"
	"voice_verification/internal/verification"
	"voice_verification/pkg/logger"
)

var name = "voice-verification-worker"

// NewWorker ...
func NewWorker(cfg *config.Config) *Worker {
	worker := &Worker{}

	worker.InitGlobalProvider(name, cfg.App.Version, cfg.OTEL)

	return worker
}

type Worker struct {
	traceProviderCloseFn []ttrace.CloseFunc
}

// Run ...
func (w *Worker) Run(ctx context.Context, cfg *config.Config) error {
	l := logger.New(cfg.Log.Level)

	db, err := mysql.NewDB(cfg.MYSQL)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - mysql.NewDB: %w", err))
	}

	repo := verification.NewRecordRepository(db, l)
	if err := repo.Migrate(); err != nil {
		l.Fatal(fmt.Errorf("app - Run - repo.Migrate: %w", err))
	}

	amqpWorker, err := rmq.NewAMQPWorker(cfg.RMQ, l, repo)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - rmq.NewAMQPWorker: %w", err))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	consumerErr := make(chan error, 1)
	go func() {
		consumerErr <- amqpWorker.StartConsumer(ctx)
	}()

	l.Info("verification worker started")

	// Waiting signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case s := <-interrupt:
		l.Info("app - Run - signal: " + s.String())
	case err = <-consumerErr:
		if err != nil {
			l.Error(fmt.Errorf("app - Run - amqpWorker.StartConsumer: %w", err))
		}
	}
	cancel()

	// Shutdown
	if cerr := amqpWorker.CloseChan(); cerr != nil {
		l.Error(fmt.Errorf("app - Run - amqpWorker.CloseChan: %w", cerr))
	}

	if sqlDB, derr := db.DB(); derr == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("unable close db connection")
		}
	}

	ctxShutDown, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	for _, closeFn := range w.traceProviderCloseFn {
		if cerr := closeFn(ctxShutDown); cerr != nil {
			log.Error().Err(cerr).Msgf("Unable to close trace provider")
		}
	}

	log.Printf("worker exited properly")
	return err
}
