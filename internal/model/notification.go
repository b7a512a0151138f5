// internal/model/notification.go
package model

import "time"

type NotificationStatus string

const (
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
	NotificationShown   NotificationStatus = "shown"
	NotificationClicked NotificationStatus = "clicked"
	NotificationClosed  NotificationStatus = "closed"
)

// allowedFrom lists, for every target status, the statuses a record may be in
// for the move to happen. Repeating an engagement event is allowed and only
// refreshes its timestamp. Failed is reachable from sent only and never left.
var allowedFrom = map[NotificationStatus][]NotificationStatus{
	NotificationFailed:  {NotificationSent},
	NotificationShown:   {NotificationSent, NotificationShown},
	NotificationClicked: {NotificationSent, NotificationShown, NotificationClicked},
	NotificationClosed:  {NotificationSent, NotificationShown, NotificationClosed},
}

// AllowedFrom returns the statuses from which a record may move to s.
func (s NotificationStatus) AllowedFrom() []NotificationStatus {
	return append([]NotificationStatus(nil), allowedFrom[s]...)
}

func (s NotificationStatus) CanMoveTo(next NotificationStatus) bool {
	for _, from := range allowedFrom[next] {
		if from == s {
			return true
		}
	}
	return false
}

type Notification struct {
	ID             string             `db:"id" json:"id"`
	TenantID       string             `db:"tenant_id" json:"accountId"`
	CampaignID     string             `db:"campaign_id" json:"campaignId"`
	SubscriptionID string             `db:"subscription_id" json:"subscriptionId"`
	BoundaryAt     time.Time          `db:"boundary_at" json:"boundaryAt"`
	Status         NotificationStatus `db:"status" json:"status"`
	AttemptCount   int                `db:"attempt_count" json:"attemptCount"`
	ErrorCode      string             `db:"error_code" json:"errorCode,omitempty"`
	ErrorMessage   string             `db:"error_message" json:"errorMessage,omitempty"`
	SentAt         *time.Time         `db:"sent_at" json:"sentAt,omitempty"`
	FailedAt       *time.Time         `db:"failed_at" json:"failedAt,omitempty"`
	ShownAt        *time.Time         `db:"shown_at" json:"shownAt,omitempty"`
	ClickedAt      *time.Time         `db:"clicked_at" json:"clickedAt,omitempty"`
	ClosedAt       *time.Time         `db:"closed_at" json:"closedAt,omitempty"`
	ClickedAction  string             `db:"clicked_action" json:"clickedAction,omitempty"`
	CreatedAt      time.Time          `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time          `db:"updated_at" json:"updatedAt"`
}

type EngagementType string

const (
	EngagementShown EngagementType = "shown"
	EngagementClick EngagementType = "click"
	EngagementClose EngagementType = "close"
)

// EngagementEvent is what the push runtime reports back after delivery.
type EngagementEvent struct {
	TenantID       string         `json:"tenant_id"`
	NotificationID string         `json:"notification_id"`
	Type           EngagementType `json:"type"`
	Action         string         `json:"action,omitempty"`
	At             *time.Time     `json:"ts,omitempty"`
}
