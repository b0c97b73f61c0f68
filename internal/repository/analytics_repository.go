package repository

import (
	"context"
	"database/sql"

	"github.com/unclebandit/mailpress/internal/model"
)

type AnalyticsRepositoryInterface interface {
	RecordSends(ctx context.Context, campaignID int64, rows []model.RecipientAnalytics) ([]string, error)
	RecordOpen(ctx context.Context, campaignID int64, token string) (string, error)
	RecordClick(ctx context.Context, campaignID int64, token string) (string, error)
	MarkUnsubscribed(ctx context.Context, campaignID int64, email string) error
	Stats(ctx context.Context, campaignID int64) (*model.CampaignStats, error)
}

type AnalyticsRepository struct {
	DB *sql.DB
}

// RecordSends merges per-recipient attribution rows, deduplicated by email.
// Rows already present from a prior partial run are left untouched; the
// returned emails are only the newly inserted ones, which is what campaign
// progress may be advanced by.
func (r *AnalyticsRepository) RecordSends(ctx context.Context, campaignID int64, rows []model.RecipientAnalytics) ([]string, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	query := `
        INSERT INTO recipient_analytics (campaign_id, email, token, sent_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (campaign_id, email) DO NOTHING
        RETURNING email
    `
	inserted := []string{}
	for _, row := range rows {
		var email string
		err := r.DB.QueryRowContext(ctx, query, campaignID, row.Email, row.Token, row.SentAt).Scan(&email)
		if err == sql.ErrNoRows {
			continue // already attributed by an earlier run
		}
		if err != nil {
			return inserted, err
		}
		inserted = append(inserted, email)
	}
	return inserted, nil
}

// RecordOpen stamps the first open and counts repeats, returning the
// recipient's email for engagement scoring.
func (r *AnalyticsRepository) RecordOpen(ctx context.Context, campaignID int64, token string) (string, error) {
	query := `
        UPDATE recipient_analytics
        SET opened_at=COALESCE(opened_at, NOW()), open_count=open_count+1
        WHERE campaign_id=$1 AND token=$2
        RETURNING email
    `
	var email string
	err := r.DB.QueryRowContext(ctx, query, campaignID, token).Scan(&email)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return email, err
}

func (r *AnalyticsRepository) RecordClick(ctx context.Context, campaignID int64, token string) (string, error) {
	query := `
        UPDATE recipient_analytics
        SET clicked_at=COALESCE(clicked_at, NOW()), click_count=click_count+1,
            opened_at=COALESCE(opened_at, NOW())
        WHERE campaign_id=$1 AND token=$2
        RETURNING email
    `
	var email string
	err := r.DB.QueryRowContext(ctx, query, campaignID, token).Scan(&email)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return email, err
}

func (r *AnalyticsRepository) MarkUnsubscribed(ctx context.Context, campaignID int64, email string) error {
	query := `UPDATE recipient_analytics SET unsubscribed=TRUE WHERE campaign_id=$1 AND email=$2`
	_, err := r.DB.ExecContext(ctx, query, campaignID, model.NormalizeEmail(email))
	return err
}

func (r *AnalyticsRepository) Stats(ctx context.Context, campaignID int64) (*model.CampaignStats, error) {
	query := `
        SELECT COUNT(*),
               COUNT(opened_at),
               COUNT(clicked_at),
               COUNT(*) FILTER (WHERE unsubscribed)
        FROM recipient_analytics
        WHERE campaign_id=$1
    `
	var s model.CampaignStats
	err := r.DB.QueryRowContext(ctx, query, campaignID).
		Scan(&s.Recipients, &s.Opened, &s.Clicked, &s.Unsubscribed)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

var _ AnalyticsRepositoryInterface = (*AnalyticsRepository)(nil)
