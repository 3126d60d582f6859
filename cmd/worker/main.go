package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"newsletter-courier/internal/app"
	"newsletter-courier/internal/config"
)

const defaultConfigFilePath = "config/worker.yaml"

var runFn = run

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()
	runFn(ctx)
}

func run(ctx context.Context) {
	_ = godotenv.Load()

	configFilePath := os.Getenv("WORKER_CONFIG")
	if configFilePath == "" {
		configFilePath = defaultConfigFilePath
	}

	cfg := app.Config{}
	if err := config.NewLoader(configFilePath).Load(&cfg); err != nil {
		log.Fatal(err)
	}

	runner, err := app.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer runner.Close()

	runner.Run(ctx)
}
