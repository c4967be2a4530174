package main

import (
	"context"
	"log"

	"voice_verification/config"
	"voice_verification/internal/worker"
)

func main() {
	// Configuration
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Config error: %s", err)
	}

	// Run
	ctx := context.Background()
	w := worker.NewWorker(cfg)
	if err := w.Run(ctx, cfg); err != nil {
		log.Fatalf("Worker error: %s", err)
	}
}
