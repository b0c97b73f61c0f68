package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unclebandit/mailpress/internal/model"
	"github.com/unclebandit/mailpress/internal/service"
)

func newCampaignService(campaigns *fakeCampaignRepo, contacts *fakeContactRepo) *service.CampaignService {
	return &service.CampaignService{
		CampaignRepo: campaigns,
		ContactRepo:  contacts,
		QueueRepo:    newFakeQueueRepo(nil),
		Analytics:    newFakeAnalyticsRepo(),
		Logger:       zap.NewNop().Sugar(),
	}
}

func validInput() service.CreateCampaignInput {
	return service.CreateCampaignInput{
		Name:        "spring launch",
		Subject:     "Hello {first_name}",
		FromEmail:   "News@Sender.example",
		HTMLContent: "<p>Hi {first_name}</p>",
		ContactIDs:  []int64{1, 2, 3},
	}
}

func TestCreateCampaign(t *testing.T) {
	ctx := context.Background()
	svc := newCampaignService(newFakeCampaignRepo(), newFakeContactRepo())

	c, err := svc.CreateCampaign(ctx, validInput())
	require.NoError(t, err)
	assert.Equal(t, model.CampaignDraft, c.Status)
	assert.Equal(t, "news@sender.example", c.FromEmail)
	assert.Equal(t, 3, c.TotalContacts)
	assert.NotZero(t, c.ID)
}

func TestCreateCampaignValidation(t *testing.T) {
	ctx := context.Background()
	svc := newCampaignService(newFakeCampaignRepo(), newFakeContactRepo())

	cases := []struct {
		name   string
		mutate func(*service.CreateCampaignInput)
	}{
		{"missing name", func(in *service.CreateCampaignInput) { in.Name = "  " }},
		{"missing subject", func(in *service.CreateCampaignInput) { in.Subject = "" }},
		{"missing from", func(in *service.CreateCampaignInput) { in.FromEmail = "" }},
		{"missing body", func(in *service.CreateCampaignInput) { in.HTMLContent = "" }},
		{"no audience", func(in *service.CreateCampaignInput) { in.ContactIDs = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := validInput()
			tc.mutate(&in)
			_, err := svc.CreateCampaign(ctx, in)
			assert.Error(t, err)
		})
	}

	t.Run("criteria instead of ids is fine", func(t *testing.T) {
		in := validInput()
		in.ContactIDs = nil
		in.Criteria = &model.SegmentCriteria{Rules: []model.SegmentRule{
			{Field: "source", Op: model.OpEquals, Value: "signup"},
		}}
		_, err := svc.CreateCampaign(ctx, in)
		assert.NoError(t, err)
	})
}

func TestListCampaignsPaginationClamps(t *testing.T) {
	ctx := context.Background()
	repo := newFakeCampaignRepo()
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, &model.Campaign{Name: "c", Status: model.CampaignDraft}))
	}
	svc := newCampaignService(repo, newFakeContactRepo())

	_, pagination, err := svc.ListCampaigns(ctx, 0, -5, "")
	require.NoError(t, err)
	assert.Equal(t, 1, pagination["page"])
	assert.Equal(t, 20, pagination["page_size"])
	assert.Equal(t, 3, pagination["total_count"])
	assert.Equal(t, 1, pagination["total_pages"])

	_, pagination, err = svc.ListCampaigns(ctx, 1, 500, "")
	require.NoError(t, err)
	assert.Equal(t, 100, pagination["page_size"])
}

func TestActivateComputesTotalForCriteriaCampaign(t *testing.T) {
	ctx := context.Background()
	contacts := newFakeContactRepo(
		verifiedContact(1, "a@example.com"),
		verifiedContact(2, "b@example.com"),
	)
	contacts.contacts[1].Source = "signup"
	contacts.contacts[2].Source = "import"

	repo := newFakeCampaignRepo(&model.Campaign{
		ID:     1,
		Status: model.CampaignDraft,
		Criteria: &model.SegmentCriteria{Rules: []model.SegmentRule{
			{Field: "source", Op: model.OpEquals, Value: "signup"},
		}},
	})
	svc := newCampaignService(repo, contacts)

	require.NoError(t, svc.Activate(ctx, 1))
	c := repo.get(1)
	assert.Equal(t, model.CampaignActive, c.Status)
	assert.Equal(t, 1, c.TotalContacts)
	assert.NotNil(t, c.StartedAt)
}

func TestRenderPreview(t *testing.T) {
	ctx := context.Background()
	contacts := newFakeContactRepo(&model.Contact{
		ID: 1, Email: "alice@example.com", FirstName: "Alice", Company: "Acme",
		Status: model.ContactVerified,
	})
	repo := newFakeCampaignRepo(&model.Campaign{
		ID:          1,
		Subject:     "Hi {first_name}",
		HTMLContent: "<p>{first_name} at {company}</p>",
		TextContent: "{first_name}",
	})
	svc := newCampaignService(repo, contacts)

	preview, err := svc.RenderPreview(ctx, 1, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Hi Alice", preview["subject"])
	assert.Equal(t, "<p>Alice at Acme</p>", preview["html"])
	assert.Equal(t, "Alice", preview["text"])
}

func TestRenderTemplateLeavesUnknownTokens(t *testing.T) {
	out := service.RenderTemplate("Hi {first_name}, {mystery}", map[string]string{"first_name": "Bo"})
	assert.Equal(t, "Hi Bo, {mystery}", out)
}
