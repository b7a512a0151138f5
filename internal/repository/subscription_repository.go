package repository

import (
	"context"
	"database/sql"
	"iter"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/unclebandit/pushleopard-backend/internal/model"
)

// SubscriptionFilter selects the registered subscriptions a campaign fans out to:
// those scoped to the campaign, plus tenant-wide ones matching any target tag.
// With no tags every tenant-wide subscription matches.
type SubscriptionFilter struct {
	TenantID   string
	CampaignID string
	Tags       []string
}

type SubscriptionRepositoryInterface interface {
	ListEligible(ctx context.Context, f SubscriptionFilter, after string, limit int) ([]model.Subscription, error)
	Pages(ctx context.Context, f SubscriptionFilter, size int) iter.Seq2[[]model.Subscription, error]
	UpdateStatus(ctx context.Context, tenantID, id string, status model.SubscriptionStatus) error
}

type SubscriptionRepository struct {
	DB *sql.DB
}

func (r *SubscriptionRepository) ListEligible(ctx context.Context, f SubscriptionFilter, after string, limit int) ([]model.Subscription, error) {
	query := `
        SELECT id, tenant_id, campaign_id, status, endpoint, p256dh, auth, tags, last_seen_at, created_at
        FROM subscriptions
        WHERE tenant_id = $1
          AND status = $2
          AND (
                campaign_id = $3
             OR (campaign_id IS NULL AND (cardinality($4::text[]) = 0 OR tags && $4::text[]))
          )
          AND id > $5
        ORDER BY id
        LIMIT $6
    `
	tags := f.Tags
	if tags == nil {
		tags = []string{}
	}
	rows, err := r.DB.QueryContext(ctx, query, f.TenantID, model.SubscriptionRegistered, f.CampaignID, pq.Array(tags), after, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list eligible subscriptions")
	}
	defer rows.Close()

	subs := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		if err := rows.Scan(
			&s.ID, &s.TenantID, &s.CampaignID, &s.Status, &s.Endpoint, &s.Keys.P256dh, &s.Keys.Auth,
			pq.Array(&s.Tags), &s.LastSeenAt, &s.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan subscription")
		}
		subs = append(subs, s)
	}
	return subs, errors.Wrap(rows.Err(), "iterate subscriptions")
}

func (r *SubscriptionRepository) Pages(ctx context.Context, f SubscriptionFilter, size int) iter.Seq2[[]model.Subscription, error] {
	fetch := func(ctx context.Context, after string, limit int) ([]model.Subscription, error) {
		return r.ListEligible(ctx, f, after, limit)
	}
	return Pages(ctx, size, fetch, func(s model.Subscription) string { return s.ID })
}

func (r *SubscriptionRepository) UpdateStatus(ctx context.Context, tenantID, id string, status model.SubscriptionStatus) error {
	query := `UPDATE subscriptions SET status = $3 WHERE tenant_id = $1 AND id = $2`
	_, err := r.DB.ExecContext(ctx, query, tenantID, id, status)
	return errors.Wrapf(err, "update subscription %s", id)
}

var _ SubscriptionRepositoryInterface = (*SubscriptionRepository)(nil)
