package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sms-scheduler/internal/app"
	"sms-scheduler/internal/bootstrap"
	cfg "sms-scheduler/internal/config"
	"sms-scheduler/internal/middleware"
	"sms-scheduler/internal/transport"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
	if err := run(log); err != nil {
		log.Error("application failed", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	conf, err := cfg.FromEnv()
	if err != nil {
		return errors.New("invalid configuration: " + err.Error())
	}

	repo, err := bootstrap.OpenRepository(conf)
	if err != nil {
		return err
	}
	defer repo.Close()

	receipts := app.NewDeliveryReportService(repo, log.With("component", "receipts"))

	fiberApp := fiber.New(fiber.Config{
		AppName:               "dlr-webhook",
		DisableStartupMessage: true,
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          5 * time.Second,
		IdleTimeout:           60 * time.Second,
		ServerHeader:          "",
		BodyLimit:             512 * 1024, // 512KB - webhooks are small
	})

	fiberApp.Use(recover.New())
	fiberApp.Use(logger.New())
	fiberApp.Use(middleware.RequestIDMiddleware())
	fiberApp.Use(middleware.SecurityHeaders())
	// Provider retries can arrive in bursts; 200 req/min per IP
	fiberApp.Use(middleware.DDoSProtection(200))

	fiberApp.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	handler := transport.NewHandler(nil, nil, receipts, log)
	handler.RegisterDLR(fiberApp)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		log.Info("dlr-webhook started", "addr", conf.DLRWebhookAddr)
		if err := fiberApp.Listen(conf.DLRWebhookAddr); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := fiberApp.ShutdownWithContext(shutdownCtx); err != nil {
		return errors.New("failed to shutdown gracefully: " + err.Error())
	}

	log.Info("dlr-webhook stopped gracefully")
	return nil
}
