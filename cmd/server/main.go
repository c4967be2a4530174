package main

import (
	"context"
	"log"

	"voice_verification/config"
	"voice_verification/internal/server"

	_ "voice_verification/cmd/server/docs"
)

// @title           Voice verification API
// @version         1.0
// @description     Compares two recordings for same-speaker likelihood and stores the probe under its identity key.

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /

func main() {
	// Configuration
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Config error: %s", err)
	}

	// Run
	ctx := context.Background()
	s := server.NewServer(cfg)
	if err := s.Run(ctx, cfg); err != nil {
		log.Fatalf("Server error: %s", err)
	}
}
