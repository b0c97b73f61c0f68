// internal/model/queue_item.go
package model

import "time"

type QueueStatus string

const (
	QueuePending    QueueStatus = "pending"
	QueueProcessing QueueStatus = "processing"
	QueueCompleted  QueueStatus = "completed"
	QueueFailed     QueueStatus = "failed"
)

// QueueItem is one durable, independently schedulable slice of a campaign's
// recipient list. Content is snapshotted at enqueue time so later campaign
// edits do not change batches already in flight.
type QueueItem struct {
	ID         string  `db:"id" json:"id"`
	CampaignID int64   `db:"campaign_id" json:"campaign_id"`
	ContactIDs []int64 `db:"contact_ids" json:"contact_ids"`

	Subject     string `db:"subject" json:"subject"`
	FromEmail   string `db:"from_email" json:"from_email"`
	ReplyTo     string `db:"reply_to" json:"reply_to,omitempty"`
	HTMLContent string `db:"html_content" json:"html_content"`
	TextContent string `db:"text_content" json:"text_content,omitempty"`

	RunAfter  time.Time   `db:"run_after" json:"run_after"`
	Status    QueueStatus `db:"status" json:"status"`
	Attempts  int         `db:"attempts" json:"attempts"`
	LastError string      `db:"last_error" json:"last_error,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SendResult summarizes one processed queue item.
type SendResult struct {
	Sent     int `json:"sent"`
	Failed   int `json:"failed"`
	Deferred int `json:"deferred"`
}
