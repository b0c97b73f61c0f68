// internal/service/sender.go
package service

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unclebandit/mailpress/internal/mailer"
	"github.com/unclebandit/mailpress/internal/model"
	"github.com/unclebandit/mailpress/internal/repository"
)

// Sender executes one claimed queue item.
type Sender interface {
	Send(ctx context.Context, item *model.QueueItem) (sent, failed int, err error)
}

// BatchSender performs per-recipient personalization, tracking
// instrumentation, delivery, and analytics bookkeeping for one batch.
type BatchSender struct {
	Contacts  repository.ContactRepositoryInterface
	Campaigns repository.CampaignRepositoryInterface
	Analytics repository.AnalyticsRepositoryInterface
	Mailer    mailer.Mailer
	BaseURL   string
	Logger    *zap.SugaredLogger
}

var hrefPattern = regexp.MustCompile(`href="(https?://[^"]+)"`)

// Send resolves the item's contact ids to live records, re-checks
// eligibility, and dispatches to each recipient. Per-recipient failures are
// counted, never fatal to the batch. Side effects are ordered so campaign
// progress only ever reflects confirmed, newly attributed sends: replaying a
// completed batch re-dispatches (duplicates are tolerated) but does not move
// any counter.
func (s *BatchSender) Send(ctx context.Context, item *model.QueueItem) (int, int, error) {
	contacts, err := s.Contacts.GetByIDs(ctx, item.ContactIDs)
	if err != nil {
		return 0, 0, fmt.Errorf("resolve contacts: %w", err)
	}

	now := time.Now()
	var sent, failed int
	rows := make([]model.RecipientAnalytics, 0, len(contacts))
	idByEmail := make(map[string]int64, len(contacts))

	for _, c := range contacts {
		if !c.Sendable() {
			continue
		}
		token := uuid.NewString()
		data := personalization(c)

		msg := mailer.Message{
			To:      c.Email,
			From:    item.FromEmail,
			ReplyTo: item.ReplyTo,
			Subject: RenderTemplate(item.Subject, data),
			HTML:    s.instrument(RenderTemplate(item.HTMLContent, data), item.CampaignID, token, c.Email),
			Text:    RenderTemplate(item.TextContent, data),
		}
		if err := s.Mailer.Send(ctx, msg); err != nil {
			failed++
			s.Logger.Warnw("recipient send failed",
				"campaign_id", item.CampaignID, "email", c.Email, "error", err)
			continue
		}
		sent++
		rows = append(rows, model.RecipientAnalytics{
			CampaignID: item.CampaignID,
			Email:      c.Email,
			Token:      token,
			SentAt:     now,
		})
		idByEmail[c.Email] = c.ID
	}

	// Attribution rows first: the dedup here is what makes a replayed batch
	// a no-op for the counters below.
	inserted, err := s.Analytics.RecordSends(ctx, item.CampaignID, rows)
	if err != nil {
		return sent, failed, fmt.Errorf("record analytics: %w", err)
	}

	if err := s.Campaigns.IncrementSent(ctx, item.CampaignID, len(inserted)); err != nil {
		s.Logger.Errorw("increment sent_contacts failed", "campaign_id", item.CampaignID, "error", err)
	}
	if err := s.Campaigns.IncrementFailed(ctx, item.CampaignID, failed); err != nil {
		s.Logger.Errorw("increment failed_contacts failed", "campaign_id", item.CampaignID, "error", err)
	}

	newIDs := make([]int64, 0, len(inserted))
	for _, email := range inserted {
		if id, ok := idByEmail[email]; ok {
			newIDs = append(newIDs, id)
		}
	}
	if err := s.Contacts.StampLastSent(ctx, newIDs, now); err != nil {
		s.Logger.Errorw("stamp last_sent failed", "campaign_id", item.CampaignID, "error", err)
	}

	return sent, failed, nil
}

// instrument rewrites outbound links through the click redirect, appends the
// open-tracking pixel and a per-recipient unsubscribe footer.
func (s *BatchSender) instrument(html string, campaignID int64, token, email string) string {
	html = hrefPattern.ReplaceAllStringFunc(html, func(match string) string {
		target := hrefPattern.FindStringSubmatch(match)[1]
		if strings.HasPrefix(target, s.BaseURL) {
			return match
		}
		return fmt.Sprintf(`href="%s/t/click?c=%d&r=%s&u=%s"`,
			s.BaseURL, campaignID, token, url.QueryEscape(target))
	})

	footer := fmt.Sprintf(
		`<img src="%s/t/open?c=%d&r=%s" width="1" height="1" alt="" />`+
			`<p style="font-size:12px;color:#888"><a href="%s/unsubscribe?c=%d&e=%s">Unsubscribe</a></p>`,
		s.BaseURL, campaignID, token,
		s.BaseURL, campaignID, url.QueryEscape(email))

	if idx := strings.LastIndex(html, "</body>"); idx >= 0 {
		return html[:idx] + footer + html[idx:]
	}
	return html + footer
}

var _ Sender = (*BatchSender)(nil)
