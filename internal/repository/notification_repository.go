package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/unclebandit/pushleopard-backend/internal/model"
)

// ErrAlreadyAttempted is returned by CreateForSend when the subscriber already
// has an attempt for the same campaign boundary.
var ErrAlreadyAttempted = errors.New("notification already attempted for this boundary")

type CreateForSendInput struct {
	TenantID       string
	CampaignID     string
	SubscriptionID string
	BoundaryAt     time.Time
}

type NotificationRepositoryInterface interface {
	CreateForSend(ctx context.Context, in CreateForSendInput) (string, error)
	MarkFailed(ctx context.Context, tenantID, id, code, message string) (bool, error)
	MarkShown(ctx context.Context, tenantID, id string, at time.Time) (bool, error)
	MarkClicked(ctx context.Context, tenantID, id, action string, at time.Time) (bool, error)
	MarkClosed(ctx context.Context, tenantID, id string, at time.Time) (bool, error)
	GetCampaignStats(ctx context.Context, tenantID, campaignID string) (map[string]int, error)
}

type NotificationRepository struct {
	DB *sql.DB
}

// CreateForSend inserts the attempt in sent status and returns its id, which
// the push payload carries back in engagement callbacks.
func (r *NotificationRepository) CreateForSend(ctx context.Context, in CreateForSendInput) (string, error) {
	query := `
        INSERT INTO notifications (id, tenant_id, campaign_id, subscription_id, boundary_at, status, attempt_count, sent_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, 1, NOW(), NOW(), NOW())
        ON CONFLICT (campaign_id, subscription_id, boundary_at) DO NOTHING
        RETURNING id
    `
	var id string
	err := r.DB.QueryRowContext(ctx, query,
		uuid.NewString(), in.TenantID, in.CampaignID, in.SubscriptionID, in.BoundaryAt.UTC(), model.NotificationSent,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrAlreadyAttempted
		}
		return "", errors.Wrap(err, "create notification")
	}
	return id, nil
}

func (r *NotificationRepository) MarkFailed(ctx context.Context, tenantID, id, code, message string) (bool, error) {
	query := `
        UPDATE notifications
        SET status = $3, failed_at = NOW(), error_code = $4, error_message = $5,
            attempt_count = attempt_count + 1, updated_at = NOW()
        WHERE tenant_id = $1 AND id = $2 AND status = ANY($6)
    `
	return r.exec(ctx, "mark failed", query,
		tenantID, id, model.NotificationFailed, code, message, statusArray(model.NotificationFailed))
}

func (r *NotificationRepository) MarkShown(ctx context.Context, tenantID, id string, at time.Time) (bool, error) {
	query := `
        UPDATE notifications
        SET status = $3, shown_at = $4, updated_at = NOW()
        WHERE tenant_id = $1 AND id = $2 AND status = ANY($5)
    `
	return r.exec(ctx, "mark shown", query,
		tenantID, id, model.NotificationShown, at.UTC(), statusArray(model.NotificationShown))
}

// MarkClicked also fills shown_at when the shown callback never arrived.
func (r *NotificationRepository) MarkClicked(ctx context.Context, tenantID, id, action string, at time.Time) (bool, error) {
	query := `
        UPDATE notifications
        SET status = $3, clicked_at = $4, clicked_action = $5, shown_at = COALESCE(shown_at, $4), updated_at = NOW()
        WHERE tenant_id = $1 AND id = $2 AND status = ANY($6)
    `
	return r.exec(ctx, "mark clicked", query,
		tenantID, id, model.NotificationClicked, at.UTC(), action, statusArray(model.NotificationClicked))
}

func (r *NotificationRepository) MarkClosed(ctx context.Context, tenantID, id string, at time.Time) (bool, error) {
	query := `
        UPDATE notifications
        SET status = $3, closed_at = $4, shown_at = COALESCE(shown_at, $4), updated_at = NOW()
        WHERE tenant_id = $1 AND id = $2 AND status = ANY($5)
    `
	return r.exec(ctx, "mark closed", query,
		tenantID, id, model.NotificationClosed, at.UTC(), statusArray(model.NotificationClosed))
}

func (r *NotificationRepository) GetCampaignStats(ctx context.Context, tenantID, campaignID string) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM notifications WHERE tenant_id = $1 AND campaign_id = $2 GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, query, tenantID, campaignID)
	if err != nil {
		return nil, errors.Wrap(err, "campaign stats")
	}
	defer rows.Close()

	stats := map[string]int{
		"total":                           0,
		string(model.NotificationSent):    0,
		string(model.NotificationFailed):  0,
		string(model.NotificationShown):   0,
		string(model.NotificationClicked): 0,
		string(model.NotificationClosed):  0,
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Wrap(err, "scan stats row")
		}
		stats[status] = count
		stats["total"] += count
	}
	return stats, errors.Wrap(rows.Err(), "iterate stats")
}

func (r *NotificationRepository) exec(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, errors.Wrap(err, op)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, op)
	}
	return n > 0, nil
}

func statusArray(to model.NotificationStatus) any {
	from := to.AllowedFrom()
	out := make([]string, len(from))
	for i, s := range from {
		out[i] = string(s)
	}
	return pq.Array(out)
}

var _ NotificationRepositoryInterface = (*NotificationRepository)(nil)
