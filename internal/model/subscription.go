// internal/model/subscription.go
package model

import "time"

type SubscriptionStatus string

const (
	SubscriptionRegistered SubscriptionStatus = "registered"
	SubscriptionCancelled  SubscriptionStatus = "cancelled"
)

type SubscriptionKeys struct {
	P256dh string `db:"p256dh" json:"p256dh"`
	Auth   string `db:"auth" json:"auth"`
}

type Subscription struct {
	ID       string `db:"id" json:"id"`
	TenantID string `db:"tenant_id" json:"accountId"`
	// CampaignID is nil for tenant-wide subscriptions.
	CampaignID *string            `db:"campaign_id" json:"campaignId,omitempty"`
	Status     SubscriptionStatus `db:"status" json:"status"`
	Endpoint   string             `db:"endpoint" json:"endpoint"`
	Keys       SubscriptionKeys   `json:"keys"`
	Tags       []string           `db:"tags" json:"tags"`
	LastSeenAt *time.Time         `db:"last_seen_at" json:"lastSeenAt,omitempty"`
	CreatedAt  time.Time          `db:"created_at" json:"createdAt"`
}
