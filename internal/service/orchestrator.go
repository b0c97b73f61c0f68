// internal/service/orchestrator.go
package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/mailpress/internal/model"
	"github.com/unclebandit/mailpress/internal/queue"
	"github.com/unclebandit/mailpress/internal/ratelimit"
	"github.com/unclebandit/mailpress/internal/repository"
	"github.com/unclebandit/mailpress/internal/segment"
	"github.com/unclebandit/mailpress/internal/warmup"
)

// minBreakerSample is the minimum attempted recipients before the
// failure-ratio circuit breaker may trip. The ratio is evaluated per batch,
// not cumulatively.
const minBreakerSample = 5

// Orchestrator drives the two periodic passes. It is stateless across
// invocations; overlapping runs are safe because the queue claim is the only
// contended step and it is atomic in the store.
type Orchestrator struct {
	Campaigns repository.CampaignRepositoryInterface
	Contacts  repository.ContactRepositoryInterface
	Queue     repository.SendQueueRepositoryInterface
	Analytics repository.AnalyticsRepositoryInterface
	Sender    Sender
	Limiter   *ratelimit.Limiter
	Publisher queue.Publisher
	Logger    *zap.SugaredLogger

	BatchSize        int
	StaggerInterval  time.Duration
	ClaimLimit       int
	MaxAttempts      int
	FailureThreshold float64

	// Now is swappable for tests; defaults to time.Now.
	Now func() time.Time
}

// WarmupResult is the per-campaign outcome of one enqueue pass.
type WarmupResult struct {
	CampaignID    int64  `json:"campaign_id"`
	Enqueued      int    `json:"enqueued,omitempty"`
	EmailsPerHour int    `json:"emails_per_hour,omitempty"`
	Completed     bool   `json:"completed,omitempty"`
	Error         string `json:"error,omitempty"`
}

// DrainResult is the per-item outcome of one drain pass.
type DrainResult struct {
	ID             string   `json:"id"`
	Sent           int      `json:"sent"`
	Failed         int      `json:"failed"`
	Deferred       int      `json:"deferred"`
	BlockedDomains []string `json:"blocked_domains,omitempty"`
	Error          string   `json:"error,omitempty"`
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// RunWarmup is the enqueue pass: for every runnable campaign, compute the
// hour's safe rate, slice the next recipients, and persist staggered
// mini-batches. One campaign's failure never blocks the rest.
func (o *Orchestrator) RunWarmup(ctx context.Context) ([]WarmupResult, error) {
	campaigns, err := o.Campaigns.ListRunnable(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]WarmupResult, 0, len(campaigns))
	for _, c := range campaigns {
		results = append(results, o.warmupCampaign(ctx, c))
	}
	return results, nil
}

func (o *Orchestrator) warmupCampaign(ctx context.Context, c *model.Campaign) WarmupResult {
	now := o.now()

	ids, err := o.recipientIDs(ctx, c)
	if err != nil {
		return WarmupResult{CampaignID: c.ID, Error: err.Error()}
	}

	// criteria-selected audiences move; keep the total honest before slicing
	if len(ids) != c.TotalContacts {
		if err := o.Campaigns.UpdateTotal(ctx, c.ID, len(ids)); err != nil {
			return WarmupResult{CampaignID: c.ID, Error: err.Error()}
		}
		c.TotalContacts = len(ids)
		if c.SentContacts > c.TotalContacts {
			c.TotalContacts = c.SentContacts
		}
	}

	if c.SentContacts >= c.TotalContacts {
		return o.completeCampaign(ctx, c)
	}

	startedAt := now
	if c.StartedAt != nil {
		startedAt = *c.StartedAt
	}
	rate := warmup.ComputeRate(c.TotalContacts, c.SentContacts, startedAt, now,
		c.EmailsPerHour, o.engagementFor(ctx, c))
	if rate <= 0 {
		return WarmupResult{CampaignID: c.ID, EmailsPerHour: rate}
	}

	end := c.SentContacts + rate
	if end > len(ids) {
		end = len(ids)
	}
	if c.SentContacts >= len(ids) {
		// exhausted, nothing left to try
		return o.completeCampaign(ctx, c)
	}
	slice := ids[c.SentContacts:end]

	items := o.buildBatches(c, slice, now)
	persisted, err := o.Queue.Enqueue(ctx, items)
	if err != nil {
		o.Logger.Errorw("enqueue failed", "campaign_id", c.ID, "persisted", persisted, "error", err)
		if persisted == 0 {
			return WarmupResult{CampaignID: c.ID, Error: err.Error()}
		}
	}
	enqueued := 0
	for i := 0; i < persisted; i++ {
		enqueued += len(items[i].ContactIDs)
		if err := o.Publisher.PublishBatchReady(items[i].ID); err != nil {
			// best effort; the cron drain pass will pick the item up
			o.Logger.Warnw("publish batch-ready failed", "item_id", items[i].ID, "error", err)
		}
	}

	if persisted > 0 {
		last := items[persisted-1].RunAfter
		if err := o.Campaigns.SetNextSendTime(ctx, c.ID, last); err != nil {
			o.Logger.Warnw("set next_send_time failed", "campaign_id", c.ID, "error", err)
		}
	}

	return WarmupResult{CampaignID: c.ID, Enqueued: enqueued, EmailsPerHour: rate}
}

func (o *Orchestrator) completeCampaign(ctx context.Context, c *model.Campaign) WarmupResult {
	if err := o.Campaigns.Complete(ctx, c.ID); err != nil {
		return WarmupResult{CampaignID: c.ID, Error: err.Error()}
	}
	o.Logger.Infow("campaign completed", "campaign_id", c.ID, "sent", c.SentContacts)
	return WarmupResult{CampaignID: c.ID, Completed: true}
}

// recipientIDs returns the campaign's full ordered recipient list: the
// explicit id list resolved and filtered to currently-sendable contacts in
// list order, or the segment-matched sendable contacts in id order. Filtering
// both paths keeps the total honest, so a campaign whose remaining recipients
// unsubscribe or bounce still converges to completed.
func (o *Orchestrator) recipientIDs(ctx context.Context, c *model.Campaign) ([]int64, error) {
	if len(c.ContactIDs) > 0 {
		contacts, err := o.Contacts.GetByIDs(ctx, c.ContactIDs)
		if err != nil {
			return nil, err
		}
		ids := make([]int64, 0, len(contacts))
		for _, contact := range contacts {
			if contact.Sendable() {
				ids = append(ids, contact.ID)
			}
		}
		return ids, nil
	}
	all, err := o.Contacts.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	matched := segment.Filter(all, c.Criteria)
	ids := make([]int64, 0, len(matched))
	for _, contact := range matched {
		if contact.Sendable() {
			ids = append(ids, contact.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// buildBatches splits a recipient slice into bounded mini-batches with
// staggered run-after times so the hour's volume is spread, not bursted.
func (o *Orchestrator) buildBatches(c *model.Campaign, slice []int64, now time.Time) []*model.QueueItem {
	items := []*model.QueueItem{}
	for start := 0; start < len(slice); start += o.BatchSize {
		end := start + o.BatchSize
		if end > len(slice) {
			end = len(slice)
		}
		ids := make([]int64, end-start)
		copy(ids, slice[start:end])
		items = append(items, &model.QueueItem{
			CampaignID:  c.ID,
			ContactIDs:  ids,
			Subject:     c.Subject,
			FromEmail:   c.FromEmail,
			ReplyTo:     c.ReplyTo,
			HTMLContent: c.HTMLContent,
			TextContent: c.TextContent,
			RunAfter:    now.Add(time.Duration(len(items)) * o.StaggerInterval),
			Status:      model.QueuePending,
		})
	}
	return items
}

func (o *Orchestrator) engagementFor(ctx context.Context, c *model.Campaign) *warmup.Engagement {
	if c.SentContacts == 0 && c.FailedContacts == 0 {
		return nil
	}
	stats, err := o.Analytics.Stats(ctx, c.ID)
	if err != nil {
		o.Logger.Warnw("load engagement stats failed", "campaign_id", c.ID, "error", err)
		return nil
	}
	eng := &warmup.Engagement{}
	if c.SentContacts > 0 {
		eng.OpenRate = float64(stats.Opened) / float64(c.SentContacts)
	}
	if attempted := c.SentContacts + c.FailedContacts; attempted > 0 {
		eng.BounceRate = float64(c.FailedContacts) / float64(attempted)
	}
	return eng
}

// RunDrain is the drain pass: claim a bounded number of due items and execute
// them under the domain rate limiter.
func (o *Orchestrator) RunDrain(ctx context.Context) ([]DrainResult, error) {
	items, err := o.Queue.ClaimDue(ctx, o.ClaimLimit)
	if err != nil {
		return nil, err
	}
	results := make([]DrainResult, 0, len(items))
	for _, item := range items {
		results = append(results, o.drainItem(ctx, item))
	}
	return results, nil
}

// DrainOne executes a single already-published item, used by the AMQP worker.
// Returns a nil result when the item was not claimable (someone else owns it
// or it is not due yet).
func (o *Orchestrator) DrainOne(ctx context.Context, id string) (*DrainResult, error) {
	item, err := o.Queue.ClaimByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}
	res := o.drainItem(ctx, item)
	return &res, nil
}

func (o *Orchestrator) drainItem(ctx context.Context, item *model.QueueItem) DrainResult {
	now := o.now()

	contacts, err := o.Contacts.GetByIDs(ctx, item.ContactIDs)
	if err != nil {
		return o.failItem(ctx, item, err)
	}

	demand := map[string]int{}
	idsByDomain := map[string][]int64{}
	for _, c := range contacts {
		if !c.Sendable() {
			continue
		}
		d := model.EmailDomain(c.Email)
		demand[d]++
		idsByDomain[d] = append(idsByDomain[d], c.ID)
	}

	allowed, blocked, err := o.Limiter.Apportion(ctx, now, demand)
	if err != nil {
		return o.failItem(ctx, item, err)
	}

	blockedDomains := make([]string, 0, len(blocked))
	for domain := range blocked {
		blockedDomains = append(blockedDomains, domain)
	}
	sort.Strings(blockedDomains)

	sendNow := []int64{}
	deferred := []int64{}
	for domain, ids := range idsByDomain {
		n := allowed[domain]
		if n > len(ids) {
			n = len(ids)
		}
		sendNow = append(sendNow, ids[:n]...)
		deferred = append(deferred, ids[n:]...)
	}

	if len(sendNow) == 0 && len(deferred) > 0 {
		// whole batch is over cap; push the item into the next window,
		// recorded as a deferral, not a failure
		next := o.Limiter.NextWindow(now)
		if err := o.Queue.Requeue(ctx, item.ID, next, "deferred: domain cap reached"); err != nil {
			return o.failItem(ctx, item, err)
		}
		return DrainResult{ID: item.ID, Deferred: len(deferred), BlockedDomains: blockedDomains}
	}

	var sent, failed int
	if len(sendNow) > 0 {
		sub := *item
		sub.ContactIDs = sendNow
		sent, failed, err = o.Sender.Send(ctx, &sub)
		if err != nil {
			return o.failItem(ctx, item, err)
		}
		// confirmed attempts only: the limiter tracks outbound pressure,
		// not intent
		o.confirmUsage(ctx, now, contacts, sendNow)
	}

	if len(deferred) > 0 {
		overflow := *item
		overflow.ID = ""
		overflow.ContactIDs = deferred
		overflow.RunAfter = o.Limiter.NextWindow(now)
		overflow.Status = model.QueuePending
		if _, err := o.Queue.Enqueue(ctx, []*model.QueueItem{&overflow}); err != nil {
			o.Logger.Errorw("re-enqueue deferred recipients failed",
				"item_id", item.ID, "deferred", len(deferred), "error", err)
		}
	}

	res := model.SendResult{Sent: sent, Failed: failed, Deferred: len(deferred)}
	if err := o.Queue.MarkCompleted(ctx, item.ID, res); err != nil {
		o.Logger.Errorw("mark completed failed", "item_id", item.ID, "error", err)
	}

	o.checkFailureRatio(ctx, item.CampaignID, sent, failed)

	return DrainResult{
		ID:             item.ID,
		Sent:           sent,
		Failed:         failed,
		Deferred:       len(deferred),
		BlockedDomains: blockedDomains,
	}
}

// failItem applies the retry policy to a transient error: requeue with
// backoff below the ceiling, terminal failure above it.
func (o *Orchestrator) failItem(ctx context.Context, item *model.QueueItem, cause error) DrainResult {
	if item.Attempts < o.MaxAttempts {
		runAfter := o.now().Add(NextAttempt(item.Attempts))
		if err := o.Queue.Requeue(ctx, item.ID, runAfter, cause.Error()); err != nil {
			o.Logger.Errorw("requeue failed", "item_id", item.ID, "error", err)
		}
	} else {
		if err := o.Queue.MarkFailed(ctx, item.ID, cause.Error()); err != nil {
			o.Logger.Errorw("mark failed failed", "item_id", item.ID, "error", err)
		}
		o.Logger.Errorw("queue item abandoned after retry ceiling",
			"item_id", item.ID, "attempts", item.Attempts, "error", cause)
	}
	return DrainResult{ID: item.ID, Error: cause.Error()}
}

func (o *Orchestrator) confirmUsage(ctx context.Context, now time.Time, contacts []*model.Contact, sentIDs []int64) {
	attempted := make(map[int64]bool, len(sentIDs))
	for _, id := range sentIDs {
		attempted[id] = true
	}
	perDomain := map[string]int{}
	for _, c := range contacts {
		if attempted[c.ID] {
			perDomain[model.EmailDomain(c.Email)]++
		}
	}
	for domain, n := range perDomain {
		if err := o.Limiter.Confirm(ctx, now, domain, n); err != nil {
			o.Logger.Warnw("confirm domain usage failed", "domain", domain, "error", err)
		}
	}
}

// checkFailureRatio is the campaign-level circuit breaker: when one batch's
// failure ratio crosses the threshold, pause the campaign instead of
// continuing to burn the recipient list.
func (o *Orchestrator) checkFailureRatio(ctx context.Context, campaignID int64, sent, failed int) {
	attempted := sent + failed
	if attempted < minBreakerSample || failed == 0 {
		return
	}
	ratio := float64(failed)
	if sent > 0 {
		ratio = float64(failed) / float64(sent)
	}
	if ratio <= o.FailureThreshold {
		return
	}
	if err := o.Campaigns.Pause(ctx, campaignID); err != nil {
		o.Logger.Errorw("auto-pause failed", "campaign_id", campaignID, "error", err)
		return
	}
	o.Logger.Warnw("campaign auto-paused on failure ratio",
		"campaign_id", campaignID, "sent", sent, "failed", failed)
}
