// internal/model/analytics.go
package model

import "time"

// RecipientAnalytics is one per-recipient attribution row, keyed by
// (campaign_id, email). The send path inserts it at most once per recipient.
type RecipientAnalytics struct {
	CampaignID   int64      `db:"campaign_id" json:"campaign_id"`
	Email        string     `db:"email" json:"email"`
	Token        string     `db:"token" json:"token"`
	SentAt       time.Time  `db:"sent_at" json:"sent_at"`
	OpenedAt     *time.Time `db:"opened_at" json:"opened_at,omitempty"`
	ClickedAt    *time.Time `db:"clicked_at" json:"clicked_at,omitempty"`
	OpenCount    int        `db:"open_count" json:"open_count"`
	ClickCount   int        `db:"click_count" json:"click_count"`
	Unsubscribed bool       `db:"unsubscribed" json:"unsubscribed"`
}

// CampaignStats aggregates delivery and engagement counts for one campaign.
type CampaignStats struct {
	Recipients   int            `json:"recipients"`
	Opened       int            `json:"opened"`
	Clicked      int            `json:"clicked"`
	Unsubscribed int            `json:"unsubscribed"`
	Queue        map[string]int `json:"queue"`
}
