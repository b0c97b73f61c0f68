package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/unclebandit/mailpress/internal/model"
)

type SendQueueRepositoryInterface interface {
	Enqueue(ctx context.Context, items []*model.QueueItem) (int, error)
	ClaimDue(ctx context.Context, limit int) ([]*model.QueueItem, error)
	ClaimByID(ctx context.Context, id string) (*model.QueueItem, error)
	MarkCompleted(ctx context.Context, id string, res model.SendResult) error
	Requeue(ctx context.Context, id string, runAfter time.Time, reason string) error
	MarkFailed(ctx context.Context, id string, reason string) error
	CountByStatus(ctx context.Context, campaignID int64) (map[string]int, error)
}

type SendQueueRepository struct {
	DB *sql.DB
}

const queueColumns = `id, campaign_id, contact_ids, subject, from_email, reply_to,
html_content, text_content, run_after, status, attempts, last_error, created_at, updated_at`

// Enqueue persists items one by one; each insert is independently atomic and
// a failure does not roll back items already written. Returns how many were
// persisted.
func (r *SendQueueRepository) Enqueue(ctx context.Context, items []*model.QueueItem) (int, error) {
	query := `
        INSERT INTO send_queue (id, campaign_id, contact_ids, subject, from_email, reply_to,
            html_content, text_content, run_after, status, attempts, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 0, NOW(), NOW())
    `
	persisted := 0
	for _, item := range items {
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		if item.Status == "" {
			item.Status = model.QueuePending
		}
		_, err := r.DB.ExecContext(ctx, query,
			item.ID, item.CampaignID, pq.Array(item.ContactIDs),
			item.Subject, item.FromEmail, item.ReplyTo, item.HTMLContent, item.TextContent,
			item.RunAfter, item.Status,
		)
		if err != nil {
			return persisted, fmt.Errorf("enqueue item %s: %w", item.ID, err)
		}
		persisted++
	}
	return persisted, nil
}

// ClaimDue atomically selects up to limit pending items whose run_after has
// passed, moves them to processing and increments attempts. The conditional
// update plus SKIP LOCKED guarantees two overlapping invocations never both
// receive the same item; this is the single concurrency-critical operation
// in the pipeline.
func (r *SendQueueRepository) ClaimDue(ctx context.Context, limit int) ([]*model.QueueItem, error) {
	query := `
        UPDATE send_queue
        SET status=$1, attempts=attempts+1, updated_at=NOW()
        WHERE id IN (
            SELECT id FROM send_queue
            WHERE status=$2 AND run_after <= NOW()
            ORDER BY run_after
            LIMIT $3
            FOR UPDATE SKIP LOCKED
        )
        RETURNING ` + queueColumns
	rows, err := r.DB.QueryContext(ctx, query, model.QueueProcessing, model.QueuePending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := []*model.QueueItem{}
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ClaimByID claims one specific item if it is still pending and due; returns
// nil when another invocation already owns it.
func (r *SendQueueRepository) ClaimByID(ctx context.Context, id string) (*model.QueueItem, error) {
	query := `
        UPDATE send_queue
        SET status=$1, attempts=attempts+1, updated_at=NOW()
        WHERE id=$2 AND status=$3 AND run_after <= NOW()
        RETURNING ` + queueColumns
	item, err := scanQueueItem(r.DB.QueryRowContext(ctx, query, model.QueueProcessing, id, model.QueuePending))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return item, nil
}

func (r *SendQueueRepository) MarkCompleted(ctx context.Context, id string, res model.SendResult) error {
	query := `UPDATE send_queue
        SET status=$1, result_sent=$2, result_failed=$3, result_deferred=$4, last_error='', updated_at=NOW()
        WHERE id=$5 AND status=$6`
	_, err := r.DB.ExecContext(ctx, query,
		model.QueueCompleted, res.Sent, res.Failed, res.Deferred, id, model.QueueProcessing)
	return err
}

// Requeue pushes a claimed item back to pending with a deferred run_after.
// Used both for retry backoff and for domain-cap deferrals; reason records
// which, so deferrals stay distinguishable from failures.
func (r *SendQueueRepository) Requeue(ctx context.Context, id string, runAfter time.Time, reason string) error {
	query := `UPDATE send_queue
        SET status=$1, run_after=$2, last_error=$3, updated_at=NOW()
        WHERE id=$4`
	_, err := r.DB.ExecContext(ctx, query, model.QueuePending, runAfter, reason, id)
	return err
}

// MarkFailed is terminal: the batch is abandoned and stays visible to
// operators, never silently dropped.
func (r *SendQueueRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	query := `UPDATE send_queue SET status=$1, last_error=$2, updated_at=NOW() WHERE id=$3`
	_, err := r.DB.ExecContext(ctx, query, model.QueueFailed, reason, id)
	return err
}

func (r *SendQueueRepository) CountByStatus(ctx context.Context, campaignID int64) (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM send_queue WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.QueryContext(ctx, query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{"pending": 0, "processing": 0, "completed": 0, "failed": 0}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func scanQueueItem(row rowScanner) (*model.QueueItem, error) {
	var (
		item model.QueueItem
		ids  pq.Int64Array
	)
	err := row.Scan(
		&item.ID, &item.CampaignID, &ids, &item.Subject, &item.FromEmail, &item.ReplyTo,
		&item.HTMLContent, &item.TextContent, &item.RunAfter, &item.Status, &item.Attempts,
		&item.LastError, &item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	item.ContactIDs = []int64(ids)
	return &item, nil
}

var _ SendQueueRepositoryInterface = (*SendQueueRepository)(nil)
