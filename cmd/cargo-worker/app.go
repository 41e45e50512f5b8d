package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/BearBump/CargoDesk/config"
	"github.com/BearBump/CargoDesk/internal/broker/kafka"
	"github.com/BearBump/CargoDesk/internal/cache"
	"github.com/BearBump/CargoDesk/internal/cache/rediscache"
	"github.com/BearBump/CargoDesk/internal/integrations/mailrelay"
	"github.com/BearBump/CargoDesk/internal/services/notifier"
	"github.com/BearBump/CargoDesk/internal/services/sweep"
	"github.com/BearBump/CargoDesk/internal/storage/pgstore"
	"golang.org/x/sync/errgroup"
)

// workerStore is everything the worker reads and writes.
type workerStore interface {
	notifier.Store
	sweep.UnassignedStore
	Ping(ctx context.Context) error
}

type eventConsumer interface {
	Consume(ctx context.Context, handler func(ctx context.Context, key, value []byte) error) error
}

type workerFactories struct {
	newStorage     func(cfg *config.Config) (store workerStore, closeFn func(), err error)
	newConsumer    func(cfg *config.Config) (eventConsumer, func())
	newProducer    func(cfg *config.Config) (sweep.EventPublisher, func())
	newRateLimiter func(cfg *config.Config) notifier.RateLimiter
	newMailer      func(cfg *config.Config) notifier.Mailer
	newGroupCache  func(cfg *config.Config) (cache.BytesCache, func())
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (workerStore, func(), error) {
			st, err := pgstore.New(cfg.PostgresConnString())
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newConsumer: func(cfg *config.Config) (eventConsumer, func()) {
			group := cfg.CargoDesk.KafkaConsumerGroup
			if group == "" {
				group = "cargo-worker"
			}
			c := kafka.NewConsumer(cfg.KafkaBrokers(), cfg.EventsTopic(), group)
			return c, func() { _ = c.Close() }
		},
		newProducer: func(cfg *config.Config) (sweep.EventPublisher, func()) {
			p := kafka.NewProducer(cfg.KafkaBrokers(), cfg.EventsTopic())
			return p, func() { _ = p.Close() }
		},
		newRateLimiter: func(cfg *config.Config) notifier.RateLimiter {
			return rediscache.NewRateLimiter(cfg.RedisAddr())
		},
		newMailer: func(cfg *config.Config) notifier.Mailer {
			if cfg.CargoDesk.MailRelayURL == "" {
				return notifier.LogMailer{}
			}
			return mailrelay.New(cfg.CargoDesk.MailRelayURL, cfg.CargoDesk.MailRelayAPIKey, cfg.CargoDesk.MailFrom)
		},
		newGroupCache: func(cfg *config.Config) (cache.BytesCache, func()) {
			rc := rediscache.New(cfg.RedisAddr())
			return rc, func() { _ = rc.Close() }
		},
	}
}

type workerRunOpts struct {
	httpAddr string
	onListen func(httpAddr string)
}

// RunCargoWorker consumes domain events into the notifier, runs the periodic
// unassigned sweep and serves the operational HTTP endpoints until ctx ends
// or one of them fails.
func RunCargoWorker(ctx context.Context, cfg *config.Config, f workerFactories, opts workerRunOpts) error {
	interval := time.Duration(cfg.CargoDesk.SweepIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	perMinute := int64(cfg.CargoDesk.NotifyRateLimitPerMinute)
	if perMinute <= 0 {
		perMinute = 120
	}
	if opts.httpAddr == "" {
		opts.httpAddr = cfg.CargoDesk.WorkerHTTPAddr
	}

	store, closeStore, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}
	consumer, closeConsumer := f.newConsumer(cfg)
	if closeConsumer != nil {
		defer closeConsumer()
	}
	producer, closeProducer := f.newProducer(cfg)
	if closeProducer != nil {
		defer closeProducer()
	}

	groups, closeGroups := f.newGroupCache(cfg)
	if closeGroups != nil {
		defer closeGroups()
	}

	n := notifier.New(store, f.newMailer(cfg), f.newRateLimiter(cfg), perMinute, notifier.Site{
		Name: cfg.CargoDesk.SiteName,
		URL:  cfg.CargoDesk.SiteURL,
	})
	sched := sweep.NewScheduler(sweep.NewUnassignedSweeper(store, producer, groups), interval, cfg.CargoDesk.SweepVerbose)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("event consumer started", "topic", cfg.EventsTopic(), "group", cfg.CargoDesk.KafkaConsumerGroup)
		return consumer.Consume(gctx, n.HandleMessage)
	})
	g.Go(func() error {
		slog.Info("unassigned sweep scheduled", "interval", interval.String())
		return sched.Run(gctx)
	})
	g.Go(func() error {
		return runWorkerHTTPServer(gctx, workerHTTPOpts{
			httpAddr:  opts.httpAddr,
			onListen:  opts.onListen,
			scheduler: sched,
			ready:     store.Ping,
			cfg:       cfg,
		})
	})
	return g.Wait()
}
