package server

import (
	"github.com/rs/zerolog/log"

	"voice_verification/config"
	ttrace "voice_verification/internal/telemetry/trace"
)

func (s *Server) InitGlobalProvider(name, version string, cfg config.OTEL) {
	closeFn, err := ttrace.InitGlobalProvider(name, version, cfg)
	if err != nil {
		log.Fatal().Err(err).Msgf("failed initializing the tracer provider")
	}
	s.traceProviderCloseFn = append(s.traceProviderCloseFn, closeFn)
}
