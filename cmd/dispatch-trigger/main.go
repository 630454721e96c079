package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sms-scheduler/internal/adapters/queue/rabbitmq"
	cfg "sms-scheduler/internal/config"
	"sms-scheduler/internal/ports"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// dispatch-trigger publishes a tick on every DISPATCH_SCHEDULE firing for
// workers running with TRIGGER_MODE=queue.
func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	conf, err := cfg.FromEnv()
	if err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	publisher, err := rabbitmq.NewPublisher(conf.AMQPURL)
	if err != nil {
		log.Error("connect rabbitmq publisher", "err", err)
		os.Exit(1)
	}
	defer publisher.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler := cron.New()
	_, err = scheduler.AddFunc(conf.DispatchSchedule, func() {
		tick := ports.Tick{ID: uuid.NewString(), IssuedAt: time.Now().UTC()}
		pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := publisher.PublishTick(pubCtx, tick); err != nil {
			log.Error("publish tick", "err", err)
			return
		}
		log.Info("tick published", "tick_id", tick.ID)
	})
	if err != nil {
		log.Error("invalid DISPATCH_SCHEDULE", "schedule", conf.DispatchSchedule, "err", err)
		os.Exit(1)
	}

	scheduler.Start()
	log.Info("dispatch-trigger started", "schedule", conf.DispatchSchedule)

	<-ctx.Done()
	<-scheduler.Stop().Done()
	log.Info("shutting down dispatch-trigger")
}
