// internal/handler/tracking_handler.go
package handler

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/unclebandit/mailpress/internal/repository"
)

// engagement score deltas per event
const (
	openScore  = 1.0
	clickScore = 3.0
)

// 1x1 transparent gif served for the open pixel
var trackingPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// TrackingHandler serves the open pixel, the click redirect, and the
// unsubscribe link embedded in every outbound email.
type TrackingHandler struct {
	Analytics repository.AnalyticsRepositoryInterface
	Contacts  repository.ContactRepositoryInterface
	Logger    *zap.SugaredLogger
}

// Open records an open event and answers with the pixel regardless of
// bookkeeping outcome; tracking must never break email rendering.
func (h *TrackingHandler) Open(w http.ResponseWriter, r *http.Request) {
	campaignID, token := trackingParams(r)
	if campaignID > 0 && token != "" {
		email, err := h.Analytics.RecordOpen(r.Context(), campaignID, token)
		if err != nil {
			h.Logger.Warnw("record open failed", "campaign_id", campaignID, "error", err)
		} else if email != "" {
			_ = h.Contacts.AdjustEngagement(r.Context(), email, openScore)
		}
	}
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(trackingPixel)
}

// Click records a click event and redirects to the original target.
func (h *TrackingHandler) Click(w http.ResponseWriter, r *http.Request) {
	campaignID, token := trackingParams(r)
	target := r.URL.Query().Get("u")
	if campaignID > 0 && token != "" {
		email, err := h.Analytics.RecordClick(r.Context(), campaignID, token)
		if err != nil {
			h.Logger.Warnw("record click failed", "campaign_id", campaignID, "error", err)
		} else if email != "" {
			_ = h.Contacts.AdjustEngagement(r.Context(), email, clickScore)
		}
	}
	if target == "" {
		http.Error(w, "missing target", http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// Unsubscribe flips the contact's status and attributes the event to the
// campaign that carried the link.
func (h *TrackingHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("e")
	if email == "" {
		http.Error(w, "missing email", http.StatusBadRequest)
		return
	}
	if err := h.Contacts.Unsubscribe(r.Context(), email); err != nil {
		h.Logger.Errorw("unsubscribe failed", "email", email, "error", err)
		http.Error(w, "unsubscribe failed", http.StatusInternalServerError)
		return
	}
	if campaignID, _ := trackingParams(r); campaignID > 0 {
		if err := h.Analytics.MarkUnsubscribed(r.Context(), campaignID, email); err != nil {
			h.Logger.Warnw("mark unsubscribed failed", "campaign_id", campaignID, "error", err)
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte("<html><body><p>You have been unsubscribed.</p></body></html>"))
}

func trackingParams(r *http.Request) (int64, string) {
	campaignID, _ := strconv.ParseInt(r.URL.Query().Get("c"), 10, 64)
	return campaignID, r.URL.Query().Get("r")
}
