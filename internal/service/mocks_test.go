package service_test

// Shared in-memory fakes for the service tests. They model just enough store
// behavior to exercise the pipeline: the queue fake implements the same
// claim-time compare-and-set the Postgres repository does with FOR UPDATE
// SKIP LOCKED, so claim-contention tests mean something.

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/mailpress/internal/mailer"
	"github.com/unclebandit/mailpress/internal/model"
)

// --- campaigns ---

type fakeCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[int64]*model.Campaign
}

func newFakeCampaignRepo(cs ...*model.Campaign) *fakeCampaignRepo {
	r := &fakeCampaignRepo{campaigns: map[int64]*model.Campaign{}}
	for _, c := range cs {
		r.campaigns[c.ID] = c
	}
	return r
}

func (r *fakeCampaignRepo) get(id int64) *model.Campaign {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.campaigns[id]
}

func (r *fakeCampaignRepo) Create(_ context.Context, c *model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = int64(len(r.campaigns) + 1)
	r.campaigns[c.ID] = c
	return nil
}

func (r *fakeCampaignRepo) GetByID(_ context.Context, id int64) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, fmt.Errorf("campaign %d not found", id)
	}
	return c, nil
}

func (r *fakeCampaignRepo) List(_ context.Context, offset, limit int, status string) ([]*model.Campaign, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.Campaign{}
	for _, c := range r.campaigns {
		if status == "" || string(c.Status) == status {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (r *fakeCampaignRepo) ListRunnable(_ context.Context) ([]*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.Campaign{}
	for _, c := range r.campaigns {
		if c.Status.Runnable() {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeCampaignRepo) setStatus(id int64, s model.CampaignStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return fmt.Errorf("campaign %d not found", id)
	}
	c.Status = s
	return nil
}

func (r *fakeCampaignRepo) Activate(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.campaigns[id]
	c.Status = model.CampaignActive
	if c.StartedAt == nil {
		t := time.Now()
		c.StartedAt = &t
	}
	return nil
}

func (r *fakeCampaignRepo) Pause(_ context.Context, id int64) error {
	return r.setStatus(id, model.CampaignPaused)
}

func (r *fakeCampaignRepo) Resume(_ context.Context, id int64) error {
	return r.setStatus(id, model.CampaignActive)
}

func (r *fakeCampaignRepo) Cancel(_ context.Context, id int64) error {
	return r.setStatus(id, model.CampaignCancelled)
}

func (r *fakeCampaignRepo) Complete(_ context.Context, id int64) error {
	return r.setStatus(id, model.CampaignCompleted)
}

func (r *fakeCampaignRepo) IncrementSent(_ context.Context, id int64, n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.campaigns[id]
	c.SentContacts += n
	if c.SentContacts > c.TotalContacts {
		c.SentContacts = c.TotalContacts
	}
	return nil
}

func (r *fakeCampaignRepo) IncrementFailed(_ context.Context, id int64, n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[id].FailedContacts += n
	return nil
}

func (r *fakeCampaignRepo) UpdateTotal(_ context.Context, id int64, total int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.campaigns[id]
	if total < c.SentContacts {
		total = c.SentContacts
	}
	c.TotalContacts = total
	return nil
}

func (r *fakeCampaignRepo) SetNextSendTime(_ context.Context, id int64, t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[id].NextSendTime = &t
	return nil
}

// --- contacts ---

type fakeContactRepo struct {
	mu       sync.Mutex
	contacts map[int64]*model.Contact
	lastSent map[int64]time.Time

	failGetByIDs bool
}

func newFakeContactRepo(cs ...*model.Contact) *fakeContactRepo {
	r := &fakeContactRepo{
		contacts: map[int64]*model.Contact{},
		lastSent: map[int64]time.Time{},
	}
	for _, c := range cs {
		r.contacts[c.ID] = c
	}
	return r
}

func (r *fakeContactRepo) Create(_ context.Context, c *model.Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = int64(len(r.contacts) + 1)
	r.contacts[c.ID] = c
	return nil
}

func (r *fakeContactRepo) GetByIDs(_ context.Context, ids []int64) ([]*model.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failGetByIDs {
		return nil, fmt.Errorf("contacts store unavailable")
	}
	out := []*model.Contact{}
	for _, id := range ids {
		if c, ok := r.contacts[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeContactRepo) GetByEmail(_ context.Context, email string) (*model.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.contacts {
		if c.Email == model.NormalizeEmail(email) {
			return c, nil
		}
	}
	return nil, fmt.Errorf("contact %s not found", email)
}

func (r *fakeContactRepo) ListActive(_ context.Context) ([]*model.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.Contact{}
	for _, c := range r.contacts {
		if c.Status != model.ContactUnsubscribed && c.Status != model.ContactInvalid {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeContactRepo) UpdateStatus(_ context.Context, id int64, status model.ContactStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contacts[id].Status = status
	return nil
}

func (r *fakeContactRepo) Unsubscribe(_ context.Context, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.contacts {
		if c.Email == model.NormalizeEmail(email) {
			c.Status = model.ContactUnsubscribed
		}
	}
	return nil
}

func (r *fakeContactRepo) StampLastSent(_ context.Context, ids []int64, t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		r.lastSent[id] = t
	}
	return nil
}

func (r *fakeContactRepo) AdjustEngagement(_ context.Context, email string, delta float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.contacts {
		if c.Email == model.NormalizeEmail(email) {
			c.EngagementScore += delta
		}
	}
	return nil
}

// --- send queue ---

type fakeQueueRepo struct {
	mu    sync.Mutex
	items map[string]*model.QueueItem
	now   func() time.Time
}

func newFakeQueueRepo(now func() time.Time) *fakeQueueRepo {
	if now == nil {
		now = time.Now
	}
	return &fakeQueueRepo{items: map[string]*model.QueueItem{}, now: now}
}

func (r *fakeQueueRepo) byStatus(status model.QueueStatus) []*model.QueueItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.QueueItem{}
	for _, it := range r.items {
		if it.Status == status {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunAfter.Before(out[j].RunAfter) })
	return out
}

func (r *fakeQueueRepo) Enqueue(_ context.Context, items []*model.QueueItem) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range items {
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		if it.Status == "" {
			it.Status = model.QueuePending
		}
		cp := *it
		r.items[it.ID] = &cp
	}
	return len(items), nil
}

func (r *fakeQueueRepo) ClaimDue(_ context.Context, limit int) ([]*model.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	due := []*model.QueueItem{}
	for _, it := range r.items {
		if it.Status == model.QueuePending && !it.RunAfter.After(now) {
			due = append(due, it)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].RunAfter.Before(due[j].RunAfter) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	claimed := []*model.QueueItem{}
	for _, it := range due {
		it.Status = model.QueueProcessing
		it.Attempts++
		cp := *it
		claimed = append(claimed, &cp)
	}
	return claimed, nil
}

func (r *fakeQueueRepo) ClaimByID(_ context.Context, id string) (*model.QueueItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok || it.Status != model.QueuePending || it.RunAfter.After(r.now()) {
		return nil, nil
	}
	it.Status = model.QueueProcessing
	it.Attempts++
	cp := *it
	return &cp, nil
}

func (r *fakeQueueRepo) MarkCompleted(_ context.Context, id string, res model.SendResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok || it.Status != model.QueueProcessing {
		return nil
	}
	it.Status = model.QueueCompleted
	it.LastError = ""
	return nil
}

func (r *fakeQueueRepo) Requeue(_ context.Context, id string, runAfter time.Time, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok {
		return fmt.Errorf("queue item %s not found", id)
	}
	it.Status = model.QueuePending
	it.RunAfter = runAfter
	it.LastError = reason
	return nil
}

func (r *fakeQueueRepo) MarkFailed(_ context.Context, id string, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok {
		return fmt.Errorf("queue item %s not found", id)
	}
	it.Status = model.QueueFailed
	it.LastError = reason
	return nil
}

func (r *fakeQueueRepo) CountByStatus(_ context.Context, campaignID int64) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]int{}
	for _, it := range r.items {
		if it.CampaignID == campaignID {
			out[string(it.Status)]++
		}
	}
	return out, nil
}

// --- analytics ---

type fakeAnalyticsRepo struct {
	mu   sync.Mutex
	rows map[string]*model.RecipientAnalytics // keyed campaignID/email
}

func newFakeAnalyticsRepo() *fakeAnalyticsRepo {
	return &fakeAnalyticsRepo{rows: map[string]*model.RecipientAnalytics{}}
}

func analyticsKey(campaignID int64, email string) string {
	return fmt.Sprintf("%d/%s", campaignID, email)
}

func (r *fakeAnalyticsRepo) RecordSends(_ context.Context, campaignID int64, rows []model.RecipientAnalytics) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inserted := []string{}
	for _, row := range rows {
		key := analyticsKey(campaignID, row.Email)
		if _, exists := r.rows[key]; exists {
			continue
		}
		cp := row
		r.rows[key] = &cp
		inserted = append(inserted, row.Email)
	}
	return inserted, nil
}

func (r *fakeAnalyticsRepo) RecordOpen(_ context.Context, campaignID int64, token string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.CampaignID == campaignID && row.Token == token {
			if row.OpenedAt == nil {
				t := time.Now()
				row.OpenedAt = &t
			}
			row.OpenCount++
			return row.Email, nil
		}
	}
	return "", nil
}

func (r *fakeAnalyticsRepo) RecordClick(_ context.Context, campaignID int64, token string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.CampaignID == campaignID && row.Token == token {
			now := time.Now()
			if row.OpenedAt == nil {
				row.OpenedAt = &now
			}
			if row.ClickedAt == nil {
				row.ClickedAt = &now
			}
			row.ClickCount++
			return row.Email, nil
		}
	}
	return "", nil
}

func (r *fakeAnalyticsRepo) MarkUnsubscribed(_ context.Context, campaignID int64, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row, ok := r.rows[analyticsKey(campaignID, model.NormalizeEmail(email))]; ok {
		row.Unsubscribed = true
	}
	return nil
}

func (r *fakeAnalyticsRepo) Stats(_ context.Context, campaignID int64) (*model.CampaignStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &model.CampaignStats{}
	for _, row := range r.rows {
		if row.CampaignID != campaignID {
			continue
		}
		s.Recipients++
		if row.OpenedAt != nil {
			s.Opened++
		}
		if row.ClickedAt != nil {
			s.Clicked++
		}
		if row.Unsubscribed {
			s.Unsubscribed++
		}
	}
	return s, nil
}

// --- mailer ---

// fakeMailer records every delivered message and fails addresses listed in
// failFor.
type fakeMailer struct {
	mu      sync.Mutex
	sent    []mailer.Message
	failFor map[string]bool
	sendErr error
}

func newFakeMailer(failFor ...string) *fakeMailer {
	m := &fakeMailer{failFor: map[string]bool{}}
	for _, email := range failFor {
		m.failFor[email] = true
	}
	return m
}

func (m *fakeMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	if m.failFor[msg.To] {
		return fmt.Errorf("smtp 550: rejected %s", msg.To)
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) messages() []mailer.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mailer.Message, len(m.sent))
	copy(out, m.sent)
	return out
}
