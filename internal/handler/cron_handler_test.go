package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unclebandit/mailpress/internal/handler"
	"github.com/unclebandit/mailpress/internal/model"
	"github.com/unclebandit/mailpress/internal/service"
)

// Stub repositories: the handler tests only exercise auth and response shape,
// so empty stores are enough.

type stubCampaignRepo struct{}

func (stubCampaignRepo) Create(context.Context, *model.Campaign) error { return nil }
func (stubCampaignRepo) GetByID(context.Context, int64) (*model.Campaign, error) {
	return nil, nil
}
func (stubCampaignRepo) List(context.Context, int, int, string) ([]*model.Campaign, int, error) {
	return nil, 0, nil
}
func (stubCampaignRepo) ListRunnable(context.Context) ([]*model.Campaign, error) {
	return []*model.Campaign{}, nil
}
func (stubCampaignRepo) Activate(context.Context, int64) error               { return nil }
func (stubCampaignRepo) Pause(context.Context, int64) error                  { return nil }
func (stubCampaignRepo) Resume(context.Context, int64) error                 { return nil }
func (stubCampaignRepo) Cancel(context.Context, int64) error                 { return nil }
func (stubCampaignRepo) Complete(context.Context, int64) error               { return nil }
func (stubCampaignRepo) IncrementSent(context.Context, int64, int) error     { return nil }
func (stubCampaignRepo) IncrementFailed(context.Context, int64, int) error   { return nil }
func (stubCampaignRepo) UpdateTotal(context.Context, int64, int) error       { return nil }
func (stubCampaignRepo) SetNextSendTime(context.Context, int64, time.Time) error {
	return nil
}

type stubQueueRepo struct{}

func (stubQueueRepo) Enqueue(context.Context, []*model.QueueItem) (int, error) { return 0, nil }
func (stubQueueRepo) ClaimDue(context.Context, int) ([]*model.QueueItem, error) {
	return []*model.QueueItem{}, nil
}
func (stubQueueRepo) ClaimByID(context.Context, string) (*model.QueueItem, error) {
	return nil, nil
}
func (stubQueueRepo) MarkCompleted(context.Context, string, model.SendResult) error { return nil }
func (stubQueueRepo) Requeue(context.Context, string, time.Time, string) error      { return nil }
func (stubQueueRepo) MarkFailed(context.Context, string, string) error              { return nil }
func (stubQueueRepo) CountByStatus(context.Context, int64) (map[string]int, error) {
	return map[string]int{}, nil
}

func newCronHandler(secret string) *handler.CronHandler {
	return &handler.CronHandler{
		Orchestrator: &service.Orchestrator{
			Campaigns: stubCampaignRepo{},
			Queue:     stubQueueRepo{},
			Logger:    zap.NewNop().Sugar(),
		},
		Secret: secret,
		Logger: zap.NewNop().Sugar(),
	}
}

func TestCronRequiresBearerToken(t *testing.T) {
	h := newCronHandler("s3cret")

	req := httptest.NewRequest(http.MethodPost, "/cron/campaign-warmup", nil)
	rr := httptest.NewRecorder()
	h.Warmup(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req = httptest.NewRequest(http.MethodPost, "/cron/send-queue", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rr = httptest.NewRecorder()
	h.SendQueue(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
}

func TestCronAcceptsValidToken(t *testing.T) {
	h := newCronHandler("s3cret")

	req := httptest.NewRequest(http.MethodPost, "/cron/campaign-warmup", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rr := httptest.NewRecorder()
	h.Warmup(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(0), body["processed"])
}

func TestCronOpenWhenNoSecretConfigured(t *testing.T) {
	h := newCronHandler("")

	req := httptest.NewRequest(http.MethodPost, "/cron/send-queue", nil)
	rr := httptest.NewRecorder()
	h.SendQueue(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, true, body["success"])
}
