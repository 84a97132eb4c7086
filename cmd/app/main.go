package main

import (
	"flag"
	"log"
	"os"

	"StagAlgo/internal/di"
	"StagAlgo/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path; empty uses defaults and STAG_* env only")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s kafka=%t clickhouse=%t feed=%t search=%s",
		cfg.Environment, cfg.Kafka.Enabled, cfg.ClickHouse.Enabled, cfg.Finnhub.Enabled, cfg.Search.Backend)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
