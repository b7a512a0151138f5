package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/oklog/run"
	"github.com/rs/zerolog"

	"github.com/unclebandit/pushleopard-backend/internal/config"
	"github.com/unclebandit/pushleopard-backend/internal/db"
	"github.com/unclebandit/pushleopard-backend/internal/logging"
	"github.com/unclebandit/pushleopard-backend/internal/push"
	"github.com/unclebandit/pushleopard-backend/internal/queue"
	"github.com/unclebandit/pushleopard-backend/internal/repository"
	"github.com/unclebandit/pushleopard-backend/internal/service"
)

func main() {
	if err := runWorker(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "worker:", err)
		os.Exit(1)
	}
}

type worker struct {
	scheduler *service.Scheduler
	tracker   *service.Tracker
}

func newWorker(cfg config.Config, conn *sql.DB, sender push.Sender, log zerolog.Logger) *worker {
	campaigns := &repository.CampaignRepository{DB: conn}
	subs := &repository.SubscriptionRepository{DB: conn}
	notes := &repository.NotificationRepository{DB: conn}

	tracker := service.NewTracker(notes, subs, logging.Component(log, "tracker"))
	dispatcher := service.NewDispatcher(subs, tracker, sender, service.DispatcherConfig{
		PageSize:    cfg.PageSize,
		Concurrency: cfg.FanoutConcurrency,
		Rate:        cfg.PushRate,
	}, logging.Component(log, "dispatcher"))
	scheduler := service.NewScheduler(campaigns, dispatcher, service.SchedulerConfig{
		Interval: cfg.TickInterval,
		PageSize: cfg.PageSize,
	}, logging.Component(log, "scheduler"))

	return &worker{scheduler: scheduler, tracker: tracker}
}

func runWorker(args []string) error {
	cfg, err := config.Load("worker", args)
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err := cfg.RequirePush(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, cfg.DatabaseURL, db.Options{MaxOpenConns: cfg.FanoutConcurrency + 4}, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	sender := push.NewClient(push.Config{
		Subscriber:      cfg.VAPIDSubject,
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		TTL:             cfg.PushTTL,
		Timeout:         cfg.DeliveryTimeout,
	})
	w := newWorker(cfg, conn, sender, log)

	var g run.Group

	schedCtx, schedCancel := context.WithCancel(ctx)
	g.Add(func() error {
		return w.scheduler.Run(schedCtx)
	}, func(error) {
		schedCancel()
	})

	if cfg.AMQPURL != "" {
		q, err := queue.DialAMQP(cfg.AMQPURL, logging.Component(log, "queue"))
		if err != nil {
			return err
		}
		consumeCtx, consumeCancel := context.WithCancel(ctx)
		g.Add(func() error {
			if err := queue.StartEngagementSubscriber(consumeCtx, q, w.tracker, logging.Component(log, "engagement")); err != nil {
				return err
			}
			log.Info().Str("topic", queue.TopicEngagement).Msg("consuming engagement events")
			<-consumeCtx.Done()
			return nil
		}, func(error) {
			consumeCancel()
			if err := q.Close(); err != nil {
				log.Error().Err(err).Msg("closing queue")
			}
		})
	} else {
		log.Info().Msg("no amqp url, engagement events are applied by the server")
	}

	log.Info().Dur("tick_interval", cfg.TickInterval).Int("page_size", cfg.PageSize).Msg("worker running")
	return g.Run()
}
