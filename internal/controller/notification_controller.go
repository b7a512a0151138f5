// internal/controller/notification_controller.go
package controller

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/unclebandit/pushleopard-backend/internal/model"
	"github.com/unclebandit/pushleopard-backend/internal/queue"
)

// NotificationController receives engagement callbacks from service workers
// and queues them for the tracker.
type NotificationController struct {
	Queue queue.Queue
	Log   zerolog.Logger
}

type engagementBody struct {
	Action string          `json:"action"`
	TS     json.RawMessage `json:"ts"`
}

func (c *NotificationController) MarkShown(w http.ResponseWriter, r *http.Request) {
	c.enqueue(w, r, model.EngagementShown)
}

func (c *NotificationController) MarkClicked(w http.ResponseWriter, r *http.Request) {
	c.enqueue(w, r, model.EngagementClick)
}

func (c *NotificationController) MarkClosed(w http.ResponseWriter, r *http.Request) {
	c.enqueue(w, r, model.EngagementClose)
}

func (c *NotificationController) enqueue(w http.ResponseWriter, r *http.Request, typ model.EngagementType) {
	tenantID := chi.URLParam(r, "accountID")
	id := chi.URLParam(r, "id")
	if tenantID == "" || id == "" {
		http.Error(w, "account and notification id are required", http.StatusBadRequest)
		return
	}

	var body engagementBody
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&body); err != nil && err != io.EOF {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	ev := model.EngagementEvent{
		TenantID:       tenantID,
		NotificationID: id,
		Type:           typ,
		At:             parseTS(body.TS),
	}
	if typ == model.EngagementClick {
		ev.Action = strings.TrimSpace(body.Action)
	}

	if err := queue.PublishEngagement(r.Context(), c.Queue, ev); err != nil {
		c.Log.Error().Err(err).Str("tenant_id", tenantID).Str("notification_id", id).Msg("failed to queue engagement")
		http.Error(w, "failed to queue event", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]bool{"ok": true})
}

// parseTS accepts an RFC 3339 string or Unix milliseconds. Anything else is
// ignored and the tracker stamps the event itself.
func parseTS(raw json.RawMessage) *time.Time {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil
		}
		t = t.UTC()
		return &t
	}

	var ms int64
	if err := json.Unmarshal(raw, &ms); err == nil && ms > 0 {
		t := time.UnixMilli(ms).UTC()
		return &t
	}
	return nil
}
