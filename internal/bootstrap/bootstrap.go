// Package bootstrap builds the adapters every binary needs from Config.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"sms-scheduler/internal/adapters/db/memory"
	"sms-scheduler/internal/adapters/db/postgres"
	redislock "sms-scheduler/internal/adapters/lock/redis"
	"sms-scheduler/internal/adapters/provider/httpmock"
	"sms-scheduler/internal/adapters/provider/twilio"
	"sms-scheduler/internal/adapters/queue/rabbitmq"
	"sms-scheduler/internal/app"
	"sms-scheduler/internal/config"
	"sms-scheduler/internal/ports"
)

// OpenRepository opens the store selected by STORE_DRIVER.
func OpenRepository(conf config.Config) (ports.MessageRepository, error) {
	switch conf.StoreDriver {
	case "memory":
		return memory.New(), nil
	default:
		repo, err := postgres.New(conf.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return repo, nil
	}
}

// NewGateway builds the SMS gateway selected by GATEWAY.
func NewGateway(conf config.Config) ports.SMSGateway {
	if conf.Gateway == "twilio" {
		return twilio.New(twilio.Config{
			AccountSID:        conf.TwilioAccountSID,
			AuthToken:         conf.TwilioAuthToken,
			FromNumber:        conf.TwilioFromNumber,
			BaseURL:           conf.TwilioBaseURL,
			StatusCallbackURL: conf.DLRWebhookURL,
			RatePerSecond:     conf.GatewayRatePerSec,
		})
	}
	return httpmock.New(conf.ProviderURL, conf.DLRWebhookURL)
}

// Dispatcher bundles a dispatcher with the connections it owns.
type Dispatcher struct {
	*app.Dispatcher
	closers []func()
}

// Close releases the publisher and lock connections.
func (d *Dispatcher) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// NewDispatcher builds a dispatcher with the optional report publisher (AMQP_URL)
// and run lock (REDIS_ADDR). Those are best effort: when they cannot be
// reached the dispatcher runs without them.
func NewDispatcher(ctx context.Context, conf config.Config, repo ports.MessageRepository, log *slog.Logger) (*Dispatcher, error) {
	d := &Dispatcher{}
	opts := []app.DispatcherOption{
		app.WithConcurrency(conf.DispatchConcurrency),
		app.WithSendTimeout(conf.SendTimeout),
	}

	if conf.AMQPURL != "" {
		publisher, err := rabbitmq.NewPublisher(conf.AMQPURL)
		if err != nil {
			log.Warn("report publisher unavailable, reports will only be logged", "err", err)
		} else {
			opts = append(opts, app.WithReportPublisher(publisher))
			d.closers = append(d.closers, publisher.Close)
		}
	}

	if conf.RedisAddr != "" {
		locker, err := redislock.New(ctx, conf.RedisAddr, conf.RedisPassword)
		if err != nil {
			log.Warn("run lock unavailable, overlapping runs rely on conditional updates", "err", err)
		} else {
			opts = append(opts, app.WithRunLocker(locker, conf.RunLockTTL))
			d.closers = append(d.closers, func() { _ = locker.Close() })
		}
	}

	dispatcher, err := app.NewDispatcher(repo, NewGateway(conf), log.With("component", "dispatcher"), opts...)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.Dispatcher = dispatcher
	return d, nil
}
