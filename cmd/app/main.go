package main

import (
	"flag"
	"log"
	"os"

	"github.com/will1980j/trading-hmm-server-sub001/internal/di"
	"github.com/will1980j/trading-hmm-server-sub001/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s symbol=%s", cfg.Environment, cfg.BarFeed.Symbol)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	log.Printf("clickhouse: connected - db: %s", cfg.ClickHouse.Database)
	log.Printf("kafka: brokers=%v events_topic=%s signals_topic=%s",
		cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, cfg.Kafka.SignalsTopic)

	// Run application (blocks until signal)
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
