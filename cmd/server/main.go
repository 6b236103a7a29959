// Command server runs the RecordGate HTTP gateway.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/dharsanguruparan/RecordGate/internal/app"
	"github.com/dharsanguruparan/RecordGate/internal/config"
	"github.com/dharsanguruparan/RecordGate/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("load config")
	}
	logging.Configure(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("init gateway")
	}
	runErr := a.Run(ctx)
	if err := a.Close(); err != nil {
		log.WithError(err).Warn("closing backends")
	}
	if runErr != nil {
		log.WithError(runErr).Error("server stopped")
		os.Exit(1)
	}
}
