package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"voice_verification/config"
	v1 "voice_verification/internal/controller/http/v1"
	"voice_verification/internal/controller/rmq"
	ttrace "voice_verification/internal/telemetry/trace"
	"voice_verification/internal/verification"
	"voice_verification/pkg/httpserver"
	"voice_verification/pkg/logger"
)

var name = "voice-verification"

// pipelineStages bounds how many stage timeouts one request can spend.
const pipelineStages = 6

// NewServer ...
func NewServer(cfg *config.Config) *Server {
	srv := &Server{}

	srv.InitGlobalProvider(name, cfg.App.Version, cfg.OTEL)

	return srv
}

type Server struct {
	traceProviderCloseFn []ttrace.CloseFunc
}

// Run ...
func (s *Server) Run(ctx context.Context, cfg *config.Config) error {
	l := logger.New(cfg.Log.Level)
	l.Info("Starting server...")

	opts := []verification.Option{
		verification.WithMetrics(verification.NewMetrics(prometheus.DefaultRegisterer)),
	}
	if cfg.RMQ.URL != "" {
		amqpClient, err := rmq.NewAMQPClient(cfg.RMQ, l)
		if err != nil {
			l.Warn("app - Run - rmq.NewAMQPClient: %v; verification events disabled", err)
		} else {
			defer amqpClient.Close()
			opts = append(opts, verification.WithEvents(amqpClient))
		}
	}

	uc, err := verification.FromConfig(cfg, l, opts...)
	if err != nil {
		l.Fatal(fmt.Errorf("app - Run - verification.FromConfig: %w", err))
	}

	handler := gin.New()
	v1.NewRouter(handler, l, uc, cfg.Server.MaxUploadMB<<20)
	httpServer := httpserver.New(s.cors().Handler(handler),
		httpserver.Port(cfg.Server.Port),
		httpserver.WriteTimeout(writeTimeout(cfg.Pipeline.StageTimeout)),
	)

	l.Info("server serving on port %s", cfg.Server.Port)

	// Waiting signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		l.Info("app - Run - context done")
	case s := <-interrupt:
		l.Info("app - Run - signal: " + s.String())
	case err = <-httpServer.Notify():
		l.Error(fmt.Errorf("app - Run - httpServer.Notify: %w", err))
	}

	// Shutdown
	if err := httpServer.Shutdown(); err != nil {
		l.Error(fmt.Errorf("app - Run - httpServer.Shutdown: %w", err))
	}

	ctxShutDown, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, closeFn := range s.traceProviderCloseFn {
		if cerr := closeFn(ctxShutDown); cerr != nil {
			log.Error().Err(cerr).Msgf("Unable to close trace provider")
		}
	}

	log.Printf("server exited properly")
	return err
}

func writeTimeout(stage time.Duration) time.Duration {
	const floor = 120 * time.Second
	if t := pipelineStages*stage + 30*time.Second; t > floor {
		return t
	}
	return floor
}

func (s *Server) cors() *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins:     []string{"*"},
		AllowedMethods:     []string{"POST", "GET", "HEAD", "OPTIONS"},
		AllowedHeaders:     []string{"Accept", "Content-Type", "Content-Length", "Accept-Encoding", "X-CSRF-Token", "Authorization"},
		ExposedHeaders:     []string{"X-Request-ID", "Content-Disposition"},
		MaxAge:             60, // 1 minutes
		AllowCredentials:   true,
		OptionsPassthrough: false,
		Debug:              false,
	})
}
