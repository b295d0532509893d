package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/user/proxyservice/internal/delivery/http/request"
	"github.com/user/proxyservice/internal/delivery/http/response"
	"github.com/user/proxyservice/internal/entity"
	"github.com/user/proxyservice/internal/proxy"
	"github.com/user/proxyservice/internal/usecase"
)

// PoolManager is the part of proxy.Manager exposed over the admin API.
type PoolManager interface {
	Targets() []proxy.PoolSnapshot
	Snapshot(targetID string) (proxy.PoolSnapshot, bool)
	TargetExists(ctx context.Context, targetID string) (bool, error)
	ReportBlocked(ctx context.Context, targetID string, proxyID int64) error
}

// HealthCheck pings one backing store.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	manager  PoolManager
	feedback usecase.FeedbackRecorder
	checks   map[string]HealthCheck
	logger   *zap.Logger
}

func NewHandler(manager PoolManager, feedback usecase.FeedbackRecorder, checks map[string]HealthCheck, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		manager:  manager,
		feedback: feedback,
		checks:   checks,
		logger:   logger,
	}
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	healthStatus := map[string]string{"status": "ok"}
	healthy := true
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			healthStatus[name] = "unhealthy"
			healthy = false
			h.logger.Error("Health check failed", zap.String("store", name), zap.Error(err))
			continue
		}
		healthStatus[name] = "healthy"
	}

	if !healthy {
		healthStatus["status"] = "degraded"
		h.writeJSON(w, http.StatusServiceUnavailable, healthStatus)
		return
	}
	h.writeJSON(w, http.StatusOK, healthStatus)
}

func (h *Handler) HandleListTargets(w http.ResponseWriter, r *http.Request) {
	snapshots := h.manager.Targets()
	resp := make([]response.TargetResponse, 0, len(snapshots))
	for _, s := range snapshots {
		resp = append(resp, response.NewTargetResponse(s))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleGetTarget(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "targetID")

	snapshot, ok := h.manager.Snapshot(targetID)
	if !ok {
		h.writeJSONError(w, "No proxy pool for target", http.StatusNotFound)
		return
	}
	h.writeJSON(w, http.StatusOK, response.NewTargetResponse(snapshot))
}

func (h *Handler) HandleTargetExists(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "targetID")

	exists, err := h.manager.TargetExists(r.Context(), targetID)
	if err != nil {
		h.logger.Error("Failed to look up target", zap.String("target", targetID), zap.Error(err))
		h.writeJSONError(w, "Proxy inventory unreachable", http.StatusBadGateway)
		return
	}
	h.writeJSON(w, http.StatusOK, response.TargetExistsResponse{TargetID: targetID, Exists: exists})
}

func (h *Handler) HandleReportBlocked(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "targetID")

	var req request.ReportBlockedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ProxyID == nil {
		h.writeJSONError(w, "proxy_id is required", http.StatusBadRequest)
		return
	}

	if _, ok := h.manager.Snapshot(targetID); !ok {
		h.writeJSONError(w, "No proxy pool for target", http.StatusNotFound)
		return
	}

	if err := h.manager.ReportBlocked(r.Context(), targetID, *req.ProxyID); err != nil {
		h.logger.Error("Failed to reload pool after manual block",
			zap.String("target", targetID), zap.Int64("proxy_id", *req.ProxyID), zap.Error(err))
		h.writeJSONError(w, "Pool reload failed", http.StatusBadGateway)
		return
	}
	if h.feedback != nil {
		h.feedback.Record(r.Context(), entity.NewBlockEvent(targetID, *req.ProxyID, entity.BlockReasonManual))
	}

	h.writeJSON(w, http.StatusAccepted, response.ReportBlockedResponse{
		Status:  "success",
		Message: "Proxy excluded and pool reloaded",
	})
}

func (h *Handler) HandleBlockCounts(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "targetID")
	if h.feedback == nil {
		h.writeJSONError(w, usecase.ErrFeedbackDisabled.Error(), http.StatusServiceUnavailable)
		return
	}

	counts, err := h.feedback.BlockCounts(r.Context(), targetID)
	if err != nil {
		h.writeFeedbackError(w, targetID, err)
		return
	}

	resp := response.BlockCountsResponse{TargetID: targetID, Counts: make(map[string]int64, len(counts))}
	for id, n := range counts {
		resp.Counts[strconv.FormatInt(id, 10)] = n
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleBlockEvents(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "targetID")
	if h.feedback == nil {
		h.writeJSONError(w, usecase.ErrFeedbackDisabled.Error(), http.StatusServiceUnavailable)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.writeJSONError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := h.feedback.RecentEvents(r.Context(), targetID, limit)
	if err != nil {
		h.writeFeedbackError(w, targetID, err)
		return
	}

	resp := make([]response.BlockEventResponse, 0, len(events))
	for _, e := range events {
		resp = append(resp, response.NewBlockEventResponse(e))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) writeFeedbackError(w http.ResponseWriter, targetID string, err error) {
	if errors.Is(err, usecase.ErrFeedbackDisabled) {
		h.writeJSONError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	h.logger.Error("Failed to read block feedback", zap.String("target", targetID), zap.Error(err))
	h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
