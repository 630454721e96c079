package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sms-scheduler/internal/adapters/queue/rabbitmq"
	"sms-scheduler/internal/bootstrap"
	cfg "sms-scheduler/internal/config"
	"sms-scheduler/internal/ports"

	"github.com/robfig/cron/v3"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	conf, err := cfg.FromEnv()
	if err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Adapters ─────────────────────────────────────────────────────────────
	repo, err := bootstrap.OpenRepository(conf)
	if err != nil {
		log.Error("open store", "err", err)
		os.Exit(1)
	}
	defer repo.Close()

	dispatcher, err := bootstrap.NewDispatcher(ctx, conf, repo, log)
	if err != nil {
		log.Error("build dispatcher", "err", err)
		os.Exit(1)
	}
	defer dispatcher.Close()

	runOnce := func(ctx context.Context) {
		if _, err := dispatcher.RunOnce(ctx, time.Now().UTC()); err != nil {
			log.Error("dispatch run failed", "err", err)
		}
	}

	log.Info("dispatch-worker started", "trigger_mode", conf.TriggerMode)

	switch conf.TriggerMode {
	case "queue":
		consumer, err := rabbitmq.NewConsumer(conf.AMQPURL, log)
		if err != nil {
			log.Error("connect rabbitmq consumer", "err", err)
			os.Exit(1)
		}
		defer consumer.Close()

		err = consumer.Consume(ctx, func(ctx context.Context, tick ports.Tick) error {
			log.Info("tick received", "tick_id", tick.ID, "issued_at", tick.IssuedAt)
			runOnce(ctx)
			return nil
		})
		if err != nil && ctx.Err() == nil {
			log.Error("consumer error", "err", err)
			os.Exit(1)
		}

	default:
		scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
		if _, err := scheduler.AddFunc(conf.DispatchSchedule, func() { runOnce(ctx) }); err != nil {
			log.Error("invalid DISPATCH_SCHEDULE", "schedule", conf.DispatchSchedule, "err", err)
			os.Exit(1)
		}
		scheduler.Start()
		log.Info("dispatch schedule registered", "schedule", conf.DispatchSchedule)

		<-ctx.Done()
		// Wait for an in-flight run; its claimed recipients still get their outcome recorded.
		<-scheduler.Stop().Done()
	}

	log.Info("shutting down dispatch-worker")
}
