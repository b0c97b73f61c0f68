// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
	CampaignCancelled CampaignStatus = "cancelled"
)

// Runnable reports whether the orchestrator may act on a campaign.
func (s CampaignStatus) Runnable() bool { return s == CampaignActive }

// Campaign is a bulk email sending job. Recipients come either from an
// explicit ordered ContactIDs list or from Criteria evaluated at send time.
type Campaign struct {
	ID          int64          `db:"id" json:"id"`
	Name        string         `db:"name" json:"name"`
	Status      CampaignStatus `db:"status" json:"status"`
	Subject     string         `db:"subject" json:"subject"`
	FromEmail   string         `db:"from_email" json:"from_email"`
	ReplyTo     string         `db:"reply_to" json:"reply_to,omitempty"`
	HTMLContent string         `db:"html_content" json:"html_content"`
	TextContent string         `db:"text_content" json:"text_content,omitempty"`

	ContactIDs []int64          `db:"contact_ids" json:"contact_ids,omitempty"`
	Criteria   *SegmentCriteria `db:"criteria" json:"criteria,omitempty"`

	TotalContacts  int  `db:"total_contacts" json:"total_contacts"`
	SentContacts   int  `db:"sent_contacts" json:"sent_contacts"`
	FailedContacts int  `db:"failed_contacts" json:"failed_contacts"`
	EmailsPerHour  *int `db:"emails_per_hour" json:"emails_per_hour,omitempty"`

	StartedAt    *time.Time `db:"started_at" json:"started_at,omitempty"`
	PausedAt     *time.Time `db:"paused_at" json:"paused_at,omitempty"`
	CompletedAt  *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	NextSendTime *time.Time `db:"next_send_time" json:"next_send_time,omitempty"`

	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}
