package service

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/unclebandit/pushleopard-backend/internal/model"
	"github.com/unclebandit/pushleopard-backend/internal/push"
	"github.com/unclebandit/pushleopard-backend/internal/repository"
)

// CampaignDispatcher fans one claimed boundary out to its subscribers.
type CampaignDispatcher interface {
	Dispatch(ctx context.Context, c *model.Campaign, boundary time.Time) (DispatchReport, error)
}

type DispatchReport struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
	Gone      int `json:"gone"`
	// Skipped counts subscribers that already had an attempt for the boundary
	// or were not reached because the context ended.
	Skipped int `json:"skipped"`
	// Errors counts subscribers whose attempt record could not be written.
	Errors int `json:"errors"`
}

type DispatcherConfig struct {
	PageSize    int
	Concurrency int
	// Rate is pushes per second for one dispatch. Zero disables limiting.
	Rate float64
}

type Dispatcher struct {
	Subscriptions repository.SubscriptionRepositoryInterface
	Tracker       *Tracker
	Sender        push.Sender
	Log           zerolog.Logger
	cfg           DispatcherConfig
}

func NewDispatcher(subs repository.SubscriptionRepositoryInterface, tracker *Tracker, sender push.Sender, cfg DispatcherConfig, log zerolog.Logger) *Dispatcher {
	if cfg.PageSize <= 0 {
		cfg.PageSize = repository.DefaultPageSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	return &Dispatcher{Subscriptions: subs, Tracker: tracker, Sender: sender, Log: log, cfg: cfg}
}

// Dispatch delivers the campaign to every eligible subscriber. A failure for
// one subscriber never stops the others; only a failed page read is returned,
// after the subscribers already read have been attempted.
func (d *Dispatcher) Dispatch(ctx context.Context, c *model.Campaign, boundary time.Time) (DispatchReport, error) {
	var (
		mu     sync.Mutex
		report DispatchReport
		g      errgroup.Group
	)
	g.SetLimit(d.cfg.Concurrency)

	var limiter *rate.Limiter
	if d.cfg.Rate > 0 {
		burst := int(d.cfg.Rate)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(d.cfg.Rate), burst)
	}

	log := d.Log.With().
		Str("tenant_id", c.TenantID).
		Str("campaign_id", c.ID).
		Time("boundary", boundary).
		Logger()

	filter := repository.SubscriptionFilter{TenantID: c.TenantID, CampaignID: c.ID, Tags: c.Target.Tags}

	var pageErr error
	for page, err := range d.Subscriptions.Pages(ctx, filter, d.cfg.PageSize) {
		if err != nil {
			pageErr = errors.Wrapf(err, "read subscribers of campaign %s", c.ID)
			break
		}
		for _, sub := range page {
			g.Go(func() error {
				res := d.deliverOne(ctx, limiter, c, boundary, sub, log)
				mu.Lock()
				res.addTo(&report)
				mu.Unlock()
				return nil
			})
		}
	}
	_ = g.Wait()

	return report, pageErr
}

type outcome int

const (
	outcomeDelivered outcome = iota
	outcomeFailed
	outcomeGone
	outcomeSkipped
	outcomeError
)

func (o outcome) addTo(r *DispatchReport) {
	switch o {
	case outcomeDelivered:
		r.Attempted++
		r.Delivered++
	case outcomeFailed:
		r.Attempted++
		r.Failed++
	case outcomeGone:
		r.Attempted++
		r.Failed++
		r.Gone++
	case outcomeSkipped:
		r.Skipped++
	case outcomeError:
		r.Errors++
	}
}

func (d *Dispatcher) deliverOne(ctx context.Context, limiter *rate.Limiter, c *model.Campaign, boundary time.Time, sub model.Subscription, log zerolog.Logger) outcome {
	log = log.With().Str("subscription_id", sub.ID).Logger()

	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return outcomeSkipped
		}
	} else if ctx.Err() != nil {
		return outcomeSkipped
	}

	id, err := d.Tracker.RecordSend(ctx, c.TenantID, c.ID, sub.ID, boundary)
	if err != nil {
		if errors.Is(err, repository.ErrAlreadyAttempted) {
			log.Debug().Msg("already attempted for boundary")
			return outcomeSkipped
		}
		log.Error().Err(err).Msg("create notification failed")
		return outcomeError
	}
	log = log.With().Str("notification_id", id).Logger()

	body, err := BuildPayload(c, id).Encode()
	if err == nil {
		_, err = d.Sender.Deliver(ctx, push.Target{Endpoint: sub.Endpoint, P256dh: sub.Keys.P256dh, Auth: sub.Keys.Auth}, body)
	}
	if err == nil {
		return outcomeDelivered
	}

	de, ferr := d.Tracker.RecordFailure(ctx, c.TenantID, id, sub.ID, err)
	if ferr != nil {
		log.Error().Err(ferr).Msg("record delivery failure")
	}
	log.Warn().Err(err).Str("code", de.Code).Bool("gone", de.Gone).Msg("push not accepted")
	if de.Gone {
		return outcomeGone
	}
	return outcomeFailed
}

var _ CampaignDispatcher = (*Dispatcher)(nil)
