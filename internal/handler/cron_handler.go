// internal/handler/cron_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/unclebandit/mailpress/internal/service"
)

// CronHandler exposes the two pipeline passes to an external scheduler. Each
// invocation returns a structured summary; a single campaign or item failing
// never turns the whole response into an error.
type CronHandler struct {
	Orchestrator *service.Orchestrator
	Secret       string
	Logger       *zap.SugaredLogger
}

func (h *CronHandler) authorized(r *http.Request) bool {
	if h.Secret == "" {
		return true
	}
	auth := r.Header.Get("Authorization")
	return strings.TrimPrefix(auth, "Bearer ") == h.Secret
}

// Warmup runs the enqueue pass.
func (h *CronHandler) Warmup(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "unauthorized"})
		return
	}
	results, err := h.Orchestrator.RunWarmup(r.Context())
	if err != nil {
		h.Logger.Errorw("warmup pass failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"processed": len(results),
		"results":   results,
	})
}

// SendQueue runs the drain pass.
func (h *CronHandler) SendQueue(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "unauthorized"})
		return
	}
	results, err := h.Orchestrator.RunDrain(r.Context())
	if err != nil {
		h.Logger.Errorw("drain pass failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"processed": len(results),
		"results":   results,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
