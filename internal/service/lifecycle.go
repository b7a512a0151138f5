package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/pushleopard-backend/internal/errors"
	"github.com/unclebandit/pushleopard-backend/internal/model"
	"github.com/unclebandit/pushleopard-backend/internal/repository"
)

// Tracker owns every status change of a notification record.
type Tracker struct {
	Notifications repository.NotificationRepositoryInterface
	Subscriptions repository.SubscriptionRepositoryInterface
	Log           zerolog.Logger
	Now           func() time.Time
}

func NewTracker(n repository.NotificationRepositoryInterface, s repository.SubscriptionRepositoryInterface, log zerolog.Logger) *Tracker {
	return &Tracker{Notifications: n, Subscriptions: s, Log: log, Now: time.Now}
}

// RecordSend creates the attempt in sent status. It returns
// repository.ErrAlreadyAttempted when this subscriber already has a record for
// the boundary.
func (t *Tracker) RecordSend(ctx context.Context, tenantID, campaignID, subscriptionID string, boundary time.Time) (string, error) {
	return t.Notifications.CreateForSend(ctx, repository.CreateForSendInput{
		TenantID:       tenantID,
		CampaignID:     campaignID,
		SubscriptionID: subscriptionID,
		BoundaryAt:     boundary,
	})
}

// RecordFailure marks the attempt failed with the classified error. A gone
// endpoint also cancels its subscription so later fan-outs skip it.
func (t *Tracker) RecordFailure(ctx context.Context, tenantID, notificationID, subscriptionID string, cause error) (*appErrors.DeliveryError, error) {
	de := appErrors.AsDeliveryError(cause)

	ok, err := t.Notifications.MarkFailed(ctx, tenantID, notificationID, de.Code, de.Message)
	if err != nil {
		return de, errors.Wrapf(err, "mark notification %s failed", notificationID)
	}
	if !ok {
		t.Log.Warn().
			Str("tenant_id", tenantID).
			Str("notification_id", notificationID).
			Msg("notification left sent before failure was recorded")
	}

	if !de.Gone {
		return de, nil
	}
	if err := t.Subscriptions.UpdateStatus(ctx, tenantID, subscriptionID, model.SubscriptionCancelled); err != nil {
		return de, errors.Wrapf(err, "cancel subscription %s", subscriptionID)
	}
	t.Log.Info().
		Str("tenant_id", tenantID).
		Str("subscription_id", subscriptionID).
		Int("status_code", de.StatusCode).
		Msg("subscription cancelled, endpoint gone")
	return de, nil
}

// Apply moves a notification according to a client engagement callback.
// Repeats refresh timestamps. Unknown records and records in a state that
// does not accept the event yield ErrNotificationNotFound.
func (t *Tracker) Apply(ctx context.Context, ev model.EngagementEvent) error {
	if ev.TenantID == "" || ev.NotificationID == "" {
		return errors.Wrap(appErrors.ErrInvalidEngagement, "tenant and notification id are required")
	}
	at := t.Now().UTC()
	if ev.At != nil && !ev.At.IsZero() {
		at = ev.At.UTC()
	}

	var (
		ok  bool
		err error
	)
	switch ev.Type {
	case model.EngagementShown:
		ok, err = t.Notifications.MarkShown(ctx, ev.TenantID, ev.NotificationID, at)
	case model.EngagementClick:
		ok, err = t.Notifications.MarkClicked(ctx, ev.TenantID, ev.NotificationID, ev.Action, at)
	case model.EngagementClose:
		ok, err = t.Notifications.MarkClosed(ctx, ev.TenantID, ev.NotificationID, at)
	default:
		return errors.Wrapf(appErrors.ErrInvalidEngagement, "unknown type %q", ev.Type)
	}
	if err != nil {
		return errors.Wrapf(err, "apply %s to notification %s", ev.Type, ev.NotificationID)
	}
	if !ok {
		return appErrors.NewNotificationNotFound(ev.TenantID, ev.NotificationID)
	}
	return nil
}
