package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/mailpress/internal/errors"
	"github.com/unclebandit/mailpress/internal/model"
)

type ContactRepositoryInterface interface {
	Create(ctx context.Context, c *model.Contact) error
	GetByIDs(ctx context.Context, ids []int64) ([]*model.Contact, error)
	GetByEmail(ctx context.Context, email string) (*model.Contact, error)
	ListActive(ctx context.Context) ([]*model.Contact, error)
	UpdateStatus(ctx context.Context, id int64, status model.ContactStatus) error
	Unsubscribe(ctx context.Context, email string) error
	StampLastSent(ctx context.Context, ids []int64, t time.Time) error
	AdjustEngagement(ctx context.Context, email string, delta float64) error
}

type ContactRepository struct {
	DB *sql.DB
}

const contactColumns = `id, email, first_name, last_name, company, source, status, segments,
engagement_score, last_sent, created_at`

// Create upserts by case-normalized email; re-importing an address refreshes
// its profile fields but never resets its status.
func (r *ContactRepository) Create(ctx context.Context, c *model.Contact) error {
	c.Email = model.NormalizeEmail(c.Email)
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.ContactPending
	}
	query := `
        INSERT INTO contacts (email, first_name, last_name, company, source, status, segments, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (email) DO UPDATE
            SET first_name=EXCLUDED.first_name,
                last_name=EXCLUDED.last_name,
                company=EXCLUDED.company,
                segments=EXCLUDED.segments
        RETURNING id, status
    `
	return r.DB.QueryRowContext(ctx, query,
		c.Email, c.FirstName, c.LastName, c.Company, c.Source, c.Status,
		pq.Array(c.Segments), c.CreatedAt,
	).Scan(&c.ID, &c.Status)
}

// GetByIDs resolves contact records in one round trip. Callers never see the
// store's lookup batching, if any; results follow the order of ids.
func (r *ContactRepository) GetByIDs(ctx context.Context, ids []int64) ([]*model.Contact, error) {
	if len(ids) == 0 {
		return []*model.Contact{}, nil
	}
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = ANY($1)`
	rows, err := r.DB.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[int64]*model.Contact, len(ids))
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*model.Contact, 0, len(byID))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *ContactRepository) GetByEmail(ctx context.Context, email string) (*model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE email=$1`
	c, err := scanContact(r.DB.QueryRowContext(ctx, query, model.NormalizeEmail(email)))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewContactNotFound(email)
		}
		return nil, err
	}
	return c, nil
}

// ListActive returns every contact that could still receive mail, for
// in-memory segment evaluation. Unsubscribed and invalid addresses are
// excluded at the query.
func (r *ContactRepository) ListActive(ctx context.Context) ([]*model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts
        WHERE status NOT IN ($1, $2) ORDER BY id`
	rows, err := r.DB.QueryContext(ctx, query, model.ContactUnsubscribed, model.ContactInvalid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []*model.Contact{}
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

func (r *ContactRepository) UpdateStatus(ctx context.Context, id int64, status model.ContactStatus) error {
	query := `UPDATE contacts SET status=$1 WHERE id=$2`
	_, err := r.DB.ExecContext(ctx, query, status, id)
	return err
}

func (r *ContactRepository) Unsubscribe(ctx context.Context, email string) error {
	query := `UPDATE contacts SET status=$1 WHERE email=$2`
	_, err := r.DB.ExecContext(ctx, query, model.ContactUnsubscribed, model.NormalizeEmail(email))
	return err
}

func (r *ContactRepository) StampLastSent(ctx context.Context, ids []int64, t time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE contacts SET last_sent=$1 WHERE id = ANY($2)`
	_, err := r.DB.ExecContext(ctx, query, t, pq.Array(ids))
	return err
}

func (r *ContactRepository) AdjustEngagement(ctx context.Context, email string, delta float64) error {
	query := `UPDATE contacts SET engagement_score = engagement_score + $1 WHERE email=$2`
	_, err := r.DB.ExecContext(ctx, query, delta, model.NormalizeEmail(email))
	return err
}

func scanContact(row rowScanner) (*model.Contact, error) {
	var (
		c        model.Contact
		segments pq.StringArray
	)
	err := row.Scan(
		&c.ID, &c.Email, &c.FirstName, &c.LastName, &c.Company, &c.Source, &c.Status,
		&segments, &c.EngagementScore, &c.LastSent, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Segments = []string(segments)
	return &c, nil
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
