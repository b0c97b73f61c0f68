package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/mailpress/internal/errors"
	"github.com/unclebandit/mailpress/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id int64) (*model.Campaign, error)
	List(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error)
	ListRunnable(ctx context.Context) ([]*model.Campaign, error)

	Activate(ctx context.Context, id int64) error
	Pause(ctx context.Context, id int64) error
	Resume(ctx context.Context, id int64) error
	Cancel(ctx context.Context, id int64) error
	Complete(ctx context.Context, id int64) error

	IncrementSent(ctx context.Context, id int64, n int) error
	IncrementFailed(ctx context.Context, id int64, n int) error
	UpdateTotal(ctx context.Context, id int64, total int) error
	SetNextSendTime(ctx context.Context, id int64, t time.Time) error
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, name, status, subject, from_email, reply_to, html_content, text_content,
contact_ids, criteria, total_contacts, sent_contacts, failed_contacts, emails_per_hour,
started_at, paused_at, completed_at, next_send_time, created_at, updated_at`

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	criteria, err := marshalCriteria(c.Criteria)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO campaigns (name, status, subject, from_email, reply_to, html_content, text_content,
            contact_ids, criteria, total_contacts, emails_per_hour, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        RETURNING id
    `
	return r.DB.QueryRowContext(ctx, query,
		c.Name, c.Status, c.Subject, c.FromEmail, c.ReplyTo, c.HTMLContent, c.TextContent,
		pq.Array(c.ContactIDs), criteria, c.TotalContacts, c.EmailsPerHour, c.CreatedAt,
	).Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(ctx context.Context, id int64) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) List(ctx context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countQuery := `SELECT COUNT(*) FROM campaigns WHERE 1=1`
	countArgs := []interface{}{}
	if status != "" {
		countQuery += " AND status=$1"
		countArgs = append(countArgs, status)
	}
	var total int
	if err := r.DB.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	return campaigns, total, nil
}

func (r *CampaignRepository) ListRunnable(ctx context.Context) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status=$1 ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query, model.CampaignActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// ====================== Status transitions ======================
//
// Each transition is a conditional update guarded by the current status, so
// concurrent invocations cannot move a campaign through an illegal edge.

func (r *CampaignRepository) Activate(ctx context.Context, id int64) error {
	query := `UPDATE campaigns
        SET status=$1, started_at=COALESCE(started_at, NOW()), updated_at=NOW()
        WHERE id=$2 AND status IN ($3, $4)`
	return r.transition(ctx, query, id, string(model.CampaignActive),
		model.CampaignActive, id, model.CampaignDraft, model.CampaignPaused)
}

func (r *CampaignRepository) Pause(ctx context.Context, id int64) error {
	query := `UPDATE campaigns SET status=$1, paused_at=NOW(), updated_at=NOW()
        WHERE id=$2 AND status=$3`
	return r.transition(ctx, query, id, string(model.CampaignPaused),
		model.CampaignPaused, id, model.CampaignActive)
}

func (r *CampaignRepository) Resume(ctx context.Context, id int64) error {
	query := `UPDATE campaigns SET status=$1, paused_at=NULL, updated_at=NOW()
        WHERE id=$2 AND status=$3`
	return r.transition(ctx, query, id, string(model.CampaignActive),
		model.CampaignActive, id, model.CampaignPaused)
}

func (r *CampaignRepository) Cancel(ctx context.Context, id int64) error {
	query := `UPDATE campaigns SET status=$1, updated_at=NOW()
        WHERE id=$2 AND status IN ($3, $4, $5)`
	return r.transition(ctx, query, id, string(model.CampaignCancelled),
		model.CampaignCancelled, id, model.CampaignDraft, model.CampaignActive, model.CampaignPaused)
}

func (r *CampaignRepository) Complete(ctx context.Context, id int64) error {
	query := `UPDATE campaigns SET status=$1, completed_at=NOW(), updated_at=NOW()
        WHERE id=$2 AND status=$3`
	return r.transition(ctx, query, id, string(model.CampaignCompleted),
		model.CampaignCompleted, id, model.CampaignActive)
}

func (r *CampaignRepository) transition(ctx context.Context, query string, id int64, to string, args ...interface{}) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.NewInvalidTransition(id, to)
	}
	return nil
}

// ====================== Counters ======================

// IncrementSent applies a monotonic, clamped increment; sent_contacts never
// decreases and never exceeds total_contacts.
func (r *CampaignRepository) IncrementSent(ctx context.Context, id int64, n int) error {
	if n <= 0 {
		return nil
	}
	query := `UPDATE campaigns
        SET sent_contacts = LEAST(sent_contacts + $1, total_contacts), updated_at=NOW()
        WHERE id=$2`
	_, err := r.DB.ExecContext(ctx, query, n, id)
	return err
}

func (r *CampaignRepository) IncrementFailed(ctx context.Context, id int64, n int) error {
	if n <= 0 {
		return nil
	}
	query := `UPDATE campaigns SET failed_contacts = failed_contacts + $1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.ExecContext(ctx, query, n, id)
	return err
}

func (r *CampaignRepository) UpdateTotal(ctx context.Context, id int64, total int) error {
	// total never drops below what has already been sent
	query := `UPDATE campaigns
        SET total_contacts = GREATEST($1, sent_contacts), updated_at=NOW()
        WHERE id=$2`
	_, err := r.DB.ExecContext(ctx, query, total, id)
	return err
}

func (r *CampaignRepository) SetNextSendTime(ctx context.Context, id int64, t time.Time) error {
	query := `UPDATE campaigns SET next_send_time=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.ExecContext(ctx, query, t, id)
	return err
}

// ====================== Scan helpers ======================

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var (
		c        model.Campaign
		ids      pq.Int64Array
		criteria []byte
	)
	err := row.Scan(
		&c.ID, &c.Name, &c.Status, &c.Subject, &c.FromEmail, &c.ReplyTo, &c.HTMLContent, &c.TextContent,
		&ids, &criteria, &c.TotalContacts, &c.SentContacts, &c.FailedContacts, &c.EmailsPerHour,
		&c.StartedAt, &c.PausedAt, &c.CompletedAt, &c.NextSendTime, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.ContactIDs = []int64(ids)
	if len(criteria) > 0 {
		var crit model.SegmentCriteria
		if err := json.Unmarshal(criteria, &crit); err != nil {
			return nil, fmt.Errorf("decode campaign %d criteria: %w", c.ID, err)
		}
		c.Criteria = &crit
	}
	return &c, nil
}

func marshalCriteria(crit *model.SegmentCriteria) ([]byte, error) {
	if crit == nil {
		return nil, nil
	}
	return json.Marshal(crit)
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
