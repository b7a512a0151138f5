// cmd/server/main.go
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/run"
	"github.com/rs/zerolog"

	"github.com/unclebandit/pushleopard-backend/internal/config"
	"github.com/unclebandit/pushleopard-backend/internal/controller"
	"github.com/unclebandit/pushleopard-backend/internal/db"
	"github.com/unclebandit/pushleopard-backend/internal/handler"
	"github.com/unclebandit/pushleopard-backend/internal/logging"
	"github.com/unclebandit/pushleopard-backend/internal/queue"
	"github.com/unclebandit/pushleopard-backend/internal/repository"
	"github.com/unclebandit/pushleopard-backend/internal/service"
)

func main() {
	if err := runServer(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "server:", err)
		os.Exit(1)
	}
}

func newRouter(conn *sql.DB, q queue.Queue, log zerolog.Logger) chi.Router {
	campaignRepo := &repository.CampaignRepository{DB: conn}
	notificationRepo := &repository.NotificationRepository{DB: conn}

	campaignService := &service.CampaignService{
		CampaignRepo:     campaignRepo,
		NotificationRepo: notificationRepo,
	}
	campaignHandler := handler.NewCampaignHandler(campaignService, logging.Component(log, "campaigns"))
	notificationController := &controller.NotificationController{
		Queue: q,
		Log:   logging.Component(log, "notifications"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/accounts/{accountID}", func(r chi.Router) {
		r.Get("/campaigns/{id}/stats", campaignHandler.GetCampaignHandlerWithStats)

		r.Post("/notifications/{id}/shown", notificationController.MarkShown)
		r.Post("/notifications/{id}/click", notificationController.MarkClicked)
		r.Post("/notifications/{id}/close", notificationController.MarkClosed)
	})
	return r
}

// newQueue connects to the broker when one is configured. Otherwise events
// stay in process and the server applies them itself.
func newQueue(ctx context.Context, cfg config.Config, conn *sql.DB, log zerolog.Logger) (queue.Queue, error) {
	if cfg.AMQPURL != "" {
		return queue.DialAMQP(cfg.AMQPURL, logging.Component(log, "queue"))
	}

	q := queue.NewInMemoryQueue(logging.Component(log, "queue"))
	tracker := service.NewTracker(
		&repository.NotificationRepository{DB: conn},
		&repository.SubscriptionRepository{DB: conn},
		logging.Component(log, "tracker"),
	)
	if err := queue.StartEngagementSubscriber(ctx, q, tracker, logging.Component(log, "engagement")); err != nil {
		return nil, err
	}
	return q, nil
}

func runServer(args []string) error {
	cfg, err := config.Load("server", args)
	if err != nil {
		return err
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, cfg.DatabaseURL, db.Options{}, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	q, err := newQueue(ctx, cfg, conn, log)
	if err != nil {
		return err
	}
	defer q.Close()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           newRouter(conn, q, log),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var g run.Group
	g.Add(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutting down server")
		}
	})
	g.Add(func() error {
		<-ctx.Done()
		return nil
	}, func(error) {
		stop()
	})
	return g.Run()
}
