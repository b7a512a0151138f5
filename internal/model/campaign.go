// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignPublished CampaignStatus = "published"
	CampaignPaused    CampaignStatus = "paused"
	CampaignArchived  CampaignStatus = "archived"
)

type ScheduleMode string

const (
	ScheduleOneTime   ScheduleMode = "ONE_TIME"
	ScheduleRecurring ScheduleMode = "RECURRING"
)

// ScheduleInterval is the fixed set of recurrence steps a campaign may use.
type ScheduleInterval string

const (
	IntervalFiveMinutes   ScheduleInterval = "FIVE_MINUTES"
	IntervalTenMinutes    ScheduleInterval = "TEN_MINUTES"
	IntervalThirtyMinutes ScheduleInterval = "THIRTY_MINUTES"
	IntervalOneHour       ScheduleInterval = "ONE_HOUR"
	IntervalThreeHours    ScheduleInterval = "THREE_HOURS"
	IntervalSixHours      ScheduleInterval = "SIX_HOURS"
	IntervalOneDay        ScheduleInterval = "ONE_DAY"
	IntervalOneWeek       ScheduleInterval = "ONE_WEEK"
)

type Schedule struct {
	Mode     ScheduleMode     `db:"schedule_mode" json:"mode"`
	StartAt  time.Time        `db:"start_at" json:"startAt"`
	Interval ScheduleInterval `db:"schedule_interval" json:"interval,omitempty"`
	EndAt    *time.Time       `db:"end_at" json:"endAt,omitempty"`
}

type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	URL    string `json:"url"`
}

type Content struct {
	Title   string   `db:"title" json:"title"`
	Body    string   `db:"body" json:"body"`
	Icon    string   `db:"icon" json:"icon"`
	Image   string   `db:"image" json:"image,omitempty"`
	Actions []Action `db:"actions" json:"actions"`
}

type Target struct {
	Tags []string `db:"target_tags" json:"tags"`
}

type Campaign struct {
	ID       string         `db:"id" json:"id"`
	TenantID string         `db:"tenant_id" json:"accountId"`
	Status   CampaignStatus `db:"status" json:"status"`
	Content
	Target   Target   `json:"target"`
	Schedule Schedule `json:"schedule"`

	// LastDispatchedAt is the last boundary claimed for this campaign.
	LastDispatchedAt *time.Time `db:"last_dispatched_at" json:"lastDispatchedAt,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt        *time.Time `db:"updated_at" json:"updatedAt,omitempty"`
}
