// internal/handler/campaign_handler.go
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	appErrors "github.com/unclebandit/pushleopard-backend/internal/errors"
	"github.com/unclebandit/pushleopard-backend/internal/service"
)

// CampaignHandler holds the dependencies for campaign-related HTTP handlers
type CampaignHandler struct {
	Service *service.CampaignService
	Log     zerolog.Logger
}

func NewCampaignHandler(svc *service.CampaignService, log zerolog.Logger) *CampaignHandler {
	return &CampaignHandler{Service: svc, Log: log}
}

// GetCampaignHandlerWithStats returns a campaign with its notification counts.
func (h *CampaignHandler) GetCampaignHandlerWithStats(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "accountID")
	id := chi.URLParam(r, "id")
	if tenantID == "" || id == "" {
		http.Error(w, "account and campaign id are required", http.StatusBadRequest)
		return
	}

	details, err := h.Service.GetCampaignDetailsWithStats(r.Context(), tenantID, id)
	if err != nil {
		if appErrors.IsNotFound(err) {
			http.Error(w, "campaign not found", http.StatusNotFound)
			return
		}
		h.Log.Error().Err(err).Str("tenant_id", tenantID).Str("campaign_id", id).Msg("failed to fetch campaign stats")
		http.Error(w, "failed to fetch campaign", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(details)
}
