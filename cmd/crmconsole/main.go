// Package main запускает консольное меню CRM.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/mmeshcher/crm-system/internal/app"
	"github.com/mmeshcher/crm-system/internal/config"
	"github.com/mmeshcher/crm-system/internal/console"
	"github.com/mmeshcher/crm-system/internal/logger"
	"github.com/mmeshcher/crm-system/internal/service"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fallback, _ := zap.NewProduction()
		fallback.Sugar().Fatalw("configuration error", "error", err.Error())
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fallback, _ := zap.NewProduction()
		fallback.Sugar().Fatalw("logger initialization error", "error", err.Error())
	}
	defer log.Sync()

	sugar := log.Sugar()

	repo, err := app.OpenRepository(cfg)
	if err != nil {
		sugar.Fatalw("storage initialization error", "error", err.Error())
	}

	svc := service.NewService(repo, nil)
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := console.New(svc, os.Stdin, os.Stdout, log).Run(ctx); err != nil && ctx.Err() == nil {
		sugar.Errorw("console terminated with error", "error", err)
	}
}
