package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/marksheet/internal/app"
	"github.com/shrimpsizemoose/marksheet/internal/jobs"
)

func main() {
	var (
		configPath = flag.String("config", "config.toml", "Path to config file")
		once       = flag.Bool("once", false, "Run a single verification pass and exit")
	)
	flag.Parse()

	service, err := app.NewService(*configPath)
	if err != nil {
		logger.Error.Fatalf("Failed to load config: %v", err)
	}
	defer service.Close()

	verifier, err := jobs.NewVerifier(service, service.Config.Scheduler.RecomputeCron)
	if err != nil {
		logger.Error.Fatalf("Failed to initialize verifier: %v", err)
	}

	if *once {
		if run := verifier.RunOnce(context.Background()); run.Err != nil {
			os.Exit(1)
		}
		return
	}

	verifier.Start()
	defer verifier.Stop()
	logger.Info.Println("Verifier started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info.Println("Verifier stopped")
}
