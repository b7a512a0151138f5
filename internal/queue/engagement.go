package queue

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/pushleopard-backend/internal/errors"
	"github.com/unclebandit/pushleopard-backend/internal/model"
)

// EngagementApplier is the part of the lifecycle tracker the consumer needs.
type EngagementApplier interface {
	Apply(ctx context.Context, ev model.EngagementEvent) error
}

func PublishEngagement(ctx context.Context, q Queue, ev model.EngagementEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "encode engagement event")
	}
	return q.Publish(ctx, TopicEngagement, body)
}

// StartEngagementSubscriber applies engagement events from the queue.
// Malformed events and events for unknown or terminal notifications are
// dropped; store errors are retried by the queue.
func StartEngagementSubscriber(ctx context.Context, q Queue, tracker EngagementApplier, log zerolog.Logger) error {
	return q.Subscribe(ctx, TopicEngagement, func(ctx context.Context, body []byte) error {
		var ev model.EngagementEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return Permanent(errors.Wrap(err, "decode engagement event"))
		}

		err := tracker.Apply(ctx, ev)
		switch {
		case err == nil:
			log.Debug().
				Str("tenant_id", ev.TenantID).
				Str("notification_id", ev.NotificationID).
				Str("type", string(ev.Type)).
				Msg("engagement applied")
			return nil
		case appErrors.IsNotFound(err):
			log.Debug().Err(err).Str("type", string(ev.Type)).Msg("engagement ignored")
			return nil
		case errors.Is(err, appErrors.ErrInvalidEngagement):
			return Permanent(err)
		default:
			return err
		}
	})
}
