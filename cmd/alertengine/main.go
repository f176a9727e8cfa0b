package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"trading-alerts/config"
	"trading-alerts/internal/alertengine"
	"trading-alerts/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	once := flag.Bool("once", false, "run a single sweep, print the results as JSON and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.Init(logger.Options{Service: cfg.Service, Level: cfg.LogLevel, File: cfg.LogFile})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc, err := alertengine.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("init failed")
	}

	if *once {
		results := svc.RunOnce(ctx)
		svc.Close()
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			log.WithError(err).Fatal("encode results")
		}
		for _, r := range results {
			if !r.OK() {
				os.Exit(2)
			}
		}
		return
	}

	if err := svc.Run(ctx); err != nil {
		log.WithError(err).Fatal("fatal")
	}
}
