package main

import (
	"context"
	"os"

	"github.com/manifesto-gateway/core/pkg/config"
	"github.com/manifesto-gateway/core/pkg/logx"
)

func main() {
	logLevel := getEnv("LOG_LEVEL", "info")
	switch logLevel {
	case "debug":
		logx.SetLevel(logx.LevelDebug)
	case "warn":
		logx.SetLevel(logx.LevelWarn)
	case "error":
		logx.SetLevel(logx.LevelError)
	default:
		logx.SetLevel(logx.LevelInfo)
	}

	logx.Info("starting gateway...")

	cfg, err := config.Load()
	if err != nil {
		logx.Fatalf("invalid configuration: %v", err)
	}

	container := NewContainer(cfg)
	defer container.Cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	container.StartBackgroundServices(ctx)

	internalApp := container.InternalAPI.BuildApp()
	go container.InternalAPI.Run(internalApp, container.Config.Gateway.InternalPort)

	app := container.Gateway.BuildApp()
	container.Gateway.Run(app)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
