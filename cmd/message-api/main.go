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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := bootstrap.OpenRepository(conf)
	if err != nil {
		return err
	}
	defer repo.Close()

	dispatcher, err := bootstrap.NewDispatcher(ctx, conf, repo, log)
	if err != nil {
		return errors.New("failed to build dispatcher: " + err.Error())
	}
	defer dispatcher.Close()

	intake := app.NewIntakeService(repo, log.With("component", "intake"), conf.SendAtGrace)

	if conf.CronSecret == "" {
		log.Warn("CRON_SECRET is empty, /api/cron/send-messages is unauthenticated")
	}

	fiberApp := fiber.New(fiber.Config{
		AppName:               "message-api",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		// A triggered dispatch run answers only once the batch is done.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
		ServerHeader: "",
		BodyLimit:    1 * 1024 * 1024, // 1MB
	})

	fiberApp.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	fiberApp.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} - ${method} ${path} ${latency}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))
	fiberApp.Use(middleware.RequestIDMiddleware())
	fiberApp.Use(middleware.SecurityHeaders())
	fiberApp.Use(middleware.CORSConfig(conf.Origins()))

	// 100 requests per minute per IP
	rateLimiter := middleware.NewRateLimiter(100, 1*time.Minute)
	go rateLimiter.RunCleanup(5*time.Minute, ctx.Done())
	fiberApp.Use(rateLimiter.Middleware())

	fiberApp.Get("/health", func(c *fiber.Ctx) error {
		if err := repo.Ping(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "unhealthy"})
		}
		return c.JSON(fiber.Map{"status": "healthy"})
	})

	handler := transport.NewHandler(intake, dispatcher.Dispatcher, nil, log)
	handler.Register(fiberApp.Group("/api"), conf.CronSecret)

	errChan := make(chan error, 1)
	go func() {
		log.Info("message-api started", "addr", conf.HTTPAddr)
		if err := fiberApp.Listen(conf.HTTPAddr); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := fiberApp.ShutdownWithContext(shutdownCtx); err != nil {
		return errors.New("failed to shutdown gracefully: " + err.Error())
	}

	log.Info("message-api stopped gracefully")
	return nil
}
