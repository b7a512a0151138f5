// internal/service/campaign_service.go
package service

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/unclebandit/pushleopard-backend/internal/model"
	"github.com/unclebandit/pushleopard-backend/internal/repository"
)

// CampaignService serves read-only campaign views for the HTTP layer.
type CampaignService struct {
	CampaignRepo     repository.CampaignRepositoryInterface
	NotificationRepo repository.NotificationRepositoryInterface
}

type CampaignDetails struct {
	ID               string               `json:"id"`
	AccountID        string               `json:"accountId"`
	Title            string               `json:"title"`
	Status           model.CampaignStatus `json:"status"`
	Schedule         model.Schedule       `json:"schedule"`
	LastDispatchedAt *time.Time           `json:"lastDispatchedAt,omitempty"`
	CreatedAt        time.Time            `json:"createdAt"`
	UpdatedAt        *time.Time           `json:"updatedAt,omitempty"`
	Stats            map[string]int       `json:"stats"`
}

// GetCampaignDetailsWithStats returns the campaign with notification counts
// per status. A missing campaign comes back as ErrCampaignNotFound.
func (s *CampaignService) GetCampaignDetailsWithStats(ctx context.Context, tenantID, campaignID string) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, tenantID, campaignID)
	if err != nil {
		return nil, err
	}

	stats, err := s.NotificationRepo.GetCampaignStats(ctx, tenantID, campaignID)
	if err != nil {
		return nil, errors.Wrapf(err, "stats for campaign %s", campaignID)
	}

	return &CampaignDetails{
		ID:               campaign.ID,
		AccountID:        campaign.TenantID,
		Title:            campaign.Title,
		Status:           campaign.Status,
		Schedule:         campaign.Schedule,
		LastDispatchedAt: campaign.LastDispatchedAt,
		CreatedAt:        campaign.CreatedAt,
		UpdatedAt:        campaign.UpdatedAt,
		Stats:            stats,
	}, nil
}
