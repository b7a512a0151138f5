package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"iter"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"

	appErrors "github.com/unclebandit/pushleopard-backend/internal/errors"
	"github.com/unclebandit/pushleopard-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	// ListActive is deliberately cross-tenant: the scheduler walks every tenant.
	ListActive(ctx context.Context, status model.CampaignStatus, at time.Time, after string, limit int) ([]*model.Campaign, error)
	Pages(ctx context.Context, status model.CampaignStatus, at time.Time, size int) iter.Seq2[[]*model.Campaign, error]
	GetByID(ctx context.Context, tenantID, id string) (*model.Campaign, error)

	// ClaimDispatchIfDue moves last_dispatched_at to boundary only when it is
	// unset or earlier. It reports whether this call made the change.
	ClaimDispatchIfDue(ctx context.Context, tenantID, id string, boundary time.Time) (bool, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, tenant_id, status, title, body, icon, image, actions, target_tags,
        schedule_mode, start_at, schedule_interval, end_at, last_dispatched_at, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var (
		c       model.Campaign
		actions []byte
	)
	err := row.Scan(
		&c.ID, &c.TenantID, &c.Status, &c.Title, &c.Body, &c.Icon, &c.Image, &actions, pq.Array(&c.Target.Tags),
		&c.Schedule.Mode, &c.Schedule.StartAt, &c.Schedule.Interval, &c.Schedule.EndAt,
		&c.LastDispatchedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(actions) > 0 {
		if err := json.Unmarshal(actions, &c.Actions); err != nil {
			return nil, errors.Wrapf(err, "decode actions of campaign %s", c.ID)
		}
	}
	return &c, nil
}

func (r *CampaignRepository) ListActive(ctx context.Context, status model.CampaignStatus, at time.Time, after string, limit int) ([]*model.Campaign, error) {
	query := `
        SELECT ` + campaignColumns + `
        FROM campaigns
        WHERE status = $1
          AND start_at <= $2
          AND (end_at IS NULL OR end_at >= $2)
          AND id > $3
        ORDER BY id
        LIMIT $4
    `
	rows, err := r.DB.QueryContext(ctx, query, status, at, after, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list active campaigns")
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan campaign")
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, errors.Wrap(rows.Err(), "iterate campaigns")
}

func (r *CampaignRepository) Pages(ctx context.Context, status model.CampaignStatus, at time.Time, size int) iter.Seq2[[]*model.Campaign, error] {
	fetch := func(ctx context.Context, after string, limit int) ([]*model.Campaign, error) {
		return r.ListActive(ctx, status, at, after, limit)
	}
	return Pages(ctx, size, fetch, func(c *model.Campaign) string { return c.ID })
}

func (r *CampaignRepository) GetByID(ctx context.Context, tenantID, id string) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE tenant_id = $1 AND id = $2`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, tenantID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.NewCampaignNotFound(tenantID, id)
		}
		return nil, errors.Wrapf(err, "get campaign %s", id)
	}
	return c, nil
}

// ClaimDispatchIfDue relies on the row lock taken by UPDATE: a concurrent
// claimer blocks, re-evaluates the WHERE clause against the committed value
// and matches zero rows.
func (r *CampaignRepository) ClaimDispatchIfDue(ctx context.Context, tenantID, id string, boundary time.Time) (bool, error) {
	query := `
        UPDATE campaigns
        SET last_dispatched_at = $3, updated_at = NOW()
        WHERE tenant_id = $1
          AND id = $2
          AND (last_dispatched_at IS NULL OR last_dispatched_at < $3)
    `
	res, err := r.DB.ExecContext(ctx, query, tenantID, id, boundary.UTC())
	if err != nil {
		return false, errors.Wrapf(err, "claim campaign %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "claim rows affected")
	}
	return n == 1, nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
