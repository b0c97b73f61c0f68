// internal/service/campaign_service.go
package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/unclebandit/mailpress/internal/model"
	"github.com/unclebandit/mailpress/internal/repository"
	"github.com/unclebandit/mailpress/internal/segment"
)

// CampaignService is the management surface the admin panel drives; the
// orchestrator does the actual sending.
type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	ContactRepo  repository.ContactRepositoryInterface
	QueueRepo    repository.SendQueueRepositoryInterface
	Analytics    repository.AnalyticsRepositoryInterface
	Logger       *zap.SugaredLogger
}

type CreateCampaignInput struct {
	Name          string                 `json:"name"`
	Subject       string                 `json:"subject"`
	FromEmail     string                 `json:"from_email"`
	ReplyTo       string                 `json:"reply_to"`
	HTMLContent   string                 `json:"html_content"`
	TextContent   string                 `json:"text_content"`
	ContactIDs    []int64                `json:"contact_ids"`
	Criteria      *model.SegmentCriteria `json:"criteria"`
	EmailsPerHour *int                   `json:"emails_per_hour"`
}

type CampaignDetails struct {
	*model.Campaign
	Stats *model.CampaignStats `json:"stats"`
}

func (s *CampaignService) CreateCampaign(ctx context.Context, in CreateCampaignInput) (*model.Campaign, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("name is required")
	}
	if strings.TrimSpace(in.Subject) == "" || strings.TrimSpace(in.FromEmail) == "" {
		return nil, fmt.Errorf("subject and from_email are required")
	}
	if strings.TrimSpace(in.HTMLContent) == "" {
		return nil, fmt.Errorf("html_content is required")
	}
	if len(in.ContactIDs) == 0 && (in.Criteria == nil || len(in.Criteria.Rules) == 0) {
		return nil, fmt.Errorf("either contact_ids or criteria is required")
	}

	c := &model.Campaign{
		Name:          in.Name,
		Status:        model.CampaignDraft,
		Subject:       in.Subject,
		FromEmail:     model.NormalizeEmail(in.FromEmail),
		ReplyTo:       in.ReplyTo,
		HTMLContent:   in.HTMLContent,
		TextContent:   in.TextContent,
		ContactIDs:    in.ContactIDs,
		Criteria:      in.Criteria,
		TotalContacts: len(in.ContactIDs),
		EmailsPerHour: in.EmailsPerHour,
	}
	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CampaignService) ListCampaigns(ctx context.Context, page, pageSize int, status string) ([]*model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	campaigns, total, err := s.CampaignRepo.List(ctx, offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
	return campaigns, pagination, nil
}

func (s *CampaignService) GetCampaignDetails(ctx context.Context, id int64) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	stats, err := s.Analytics.Stats(ctx, id)
	if err != nil {
		return nil, err
	}
	stats.Queue, err = s.QueueRepo.CountByStatus(ctx, id)
	if err != nil {
		return nil, err
	}
	return &CampaignDetails{Campaign: campaign, Stats: stats}, nil
}

// Activate moves a campaign into the orchestrator's reach. For
// criteria-selected audiences the total is computed here, at activation;
// the enqueue pass keeps it fresh afterwards.
func (s *CampaignService) Activate(ctx context.Context, id int64) error {
	campaign, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if len(campaign.ContactIDs) == 0 {
		all, err := s.ContactRepo.ListActive(ctx)
		if err != nil {
			return err
		}
		total := 0
		for _, c := range segment.Filter(all, campaign.Criteria) {
			if c.Sendable() {
				total++
			}
		}
		if err := s.CampaignRepo.UpdateTotal(ctx, id, total); err != nil {
			return err
		}
	}
	return s.CampaignRepo.Activate(ctx, id)
}

func (s *CampaignService) Pause(ctx context.Context, id int64) error {
	return s.CampaignRepo.Pause(ctx, id)
}

func (s *CampaignService) Resume(ctx context.Context, id int64) error {
	return s.CampaignRepo.Resume(ctx, id)
}

func (s *CampaignService) Cancel(ctx context.Context, id int64) error {
	return s.CampaignRepo.Cancel(ctx, id)
}

// RenderPreview personalizes the campaign subject and body for one contact
// without sending anything.
func (s *CampaignService) RenderPreview(ctx context.Context, campaignID int64, email string) (map[string]string, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	contact, err := s.ContactRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	data := personalization(contact)
	return map[string]string{
		"subject": RenderTemplate(campaign.Subject, data),
		"html":    RenderTemplate(campaign.HTMLContent, data),
		"text":    RenderTemplate(campaign.TextContent, data),
	}, nil
}
