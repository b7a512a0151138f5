package service_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/pushleopard-backend/internal/errors"
	"github.com/unclebandit/pushleopard-backend/internal/model"
	"github.com/unclebandit/pushleopard-backend/internal/service"
)

func TestGetCampaignDetailsWithStats(t *testing.T) {
	campaigns := newCampaignRepo(oneTime("c1", at("2024-01-01T00:00:00Z")))
	notes := newNotificationRepo()
	tr := service.NewTracker(notes, &MockSubscriptionRepo{}, zerolog.Nop())
	ctx := context.Background()

	for _, sub := range []string{"s1", "s2", "s3"} {
		_, err := tr.RecordSend(ctx, "tenant-1", "c1", sub, at("2024-01-01T00:00:00Z"))
		require.NoError(t, err)
	}
	require.NoError(t, tr.Apply(ctx, model.EngagementEvent{TenantID: "tenant-1", NotificationID: "n2", Type: model.EngagementShown}))

	svc := &service.CampaignService{CampaignRepo: campaigns, NotificationRepo: notes}
	details, err := svc.GetCampaignDetailsWithStats(ctx, "tenant-1", "c1")
	require.NoError(t, err)

	assert.Equal(t, "c1", details.ID)
	assert.Equal(t, "tenant-1", details.AccountID)
	assert.Equal(t, 3, details.Stats["total"])
	assert.Equal(t, 2, details.Stats["sent"])
	assert.Equal(t, 1, details.Stats["shown"])
}

func TestGetCampaignDetailsIsTenantScoped(t *testing.T) {
	svc := &service.CampaignService{
		CampaignRepo:     newCampaignRepo(oneTime("c1", at("2024-01-01T00:00:00Z"))),
		NotificationRepo: newNotificationRepo(),
	}

	_, err := svc.GetCampaignDetailsWithStats(context.Background(), "tenant-2", "c1")
	var nf *appErrors.ErrCampaignNotFound
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "tenant-2", nf.TenantID)
}
