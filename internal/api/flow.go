package api

import (
	"net/http"
	"time"

	"github.com/flowlabs/flowd/internal/analyzer"
	"github.com/flowlabs/flowd/internal/domain"
	"github.com/flowlabs/flowd/internal/flow"
	"github.com/flowlabs/flowd/internal/identity"
	"github.com/flowlabs/flowd/internal/store"
	"github.com/flowlabs/flowd/internal/tracker"
	"github.com/go-chi/chi/v5"
)

// Flow action names accepted by the dispatch endpoint.
const (
	ActionStartFlow        = "start_flow"
	ActionEndFlow          = "end_flow"
	ActionLogInterruption  = "log_interruption"
	ActionAnalyzePatterns  = "analyze_patterns"
	ActionDetectFlowEntry  = "detect_flow_entry"
	ActionInterruptionCost = "calculate_interruption_cost"
	ActionRecoveryPath     = "generate_recovery_path"
	ActionFlowStats        = "get_flow_stats"
)

// FlowHandler exposes the flow session API.
type FlowHandler struct {
	repo      store.Repository
	svc       *flow.Service
	analyzer  *analyzer.Analyzer
	trackers  *tracker.Registry
	aiEnabled bool
}

// NewFlowHandler creates the flow API handler.
func NewFlowHandler(repo store.Repository, svc *flow.Service, an *analyzer.Analyzer, trackers *tracker.Registry, aiEnabled bool) *FlowHandler {
	return &FlowHandler{
		repo:      repo,
		svc:       svc,
		analyzer:  an,
		trackers:  trackers,
		aiEnabled: aiEnabled,
	}
}

// RegisterRoutes registers flow routes.
func (h *FlowHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/me", h.GetMe)
		r.Get("/config", h.GetConfig)
		r.Get("/health", h.GetHealth)
		r.Post("/flow", h.HandleFlow)
	})
}

// GetMe returns the current user's information.
func (h *FlowHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil || user == nil {
		Error(w, http.StatusUnauthorized, "user not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":  user.UserID,
		"username": user.Username,
	})
}

// GetConfig returns the server configuration for the frontend.
func (h *FlowHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"ai_enabled": h.aiEnabled,
	})
}

// GetHealth reports storage connectivity.
func (h *FlowHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(r.Context()); err != nil {
		Error(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

// flowRequest is the dispatch envelope: {action, data}.
type flowRequest struct {
	Action string `json:"action"`

	// Per-action payload fields, flattened for the small surface this
	// endpoint has.
	Data struct {
		SessionID   string           `json:"session_id,omitempty"`
		TaskContext string           `json:"task_context,omitempty"`
		Quality     *int             `json:"quality,omitempty"`
		Triggers    []string         `json:"triggers,omitempty"`
		Breakers    []domain.Breaker `json:"breakers,omitempty"`
		Kind        string           `json:"type,omitempty"`
		Source      string           `json:"source,omitempty"`
		Depth       *float64         `json:"depth,omitempty"`
		HourlyRate  float64          `json:"hourly_rate,omitempty"`
		WindowDays  int              `json:"window_days,omitempty"`
	} `json:"data"`
}

// HandleFlow dispatches a flow action.
func (h *FlowHandler) HandleFlow(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req flowRequest
	if err := decodeBody(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch req.Action {
	case ActionStartFlow:
		h.startFlow(w, r, userID, &req)
	case ActionEndFlow:
		h.endFlow(w, r, userID, &req)
	case ActionLogInterruption:
		h.logInterruption(w, r, userID, &req)
	case ActionAnalyzePatterns:
		h.analyzePatterns(w, r, userID, &req)
	case ActionDetectFlowEntry:
		h.detectFlowEntry(w, r, userID, &req)
	case ActionInterruptionCost:
		h.interruptionCost(w, &req)
	case ActionRecoveryPath:
		h.recoveryPath(w, &req)
	case ActionFlowStats:
		h.flowStats(w, r, userID, &req)
	default:
		Error(w, http.StatusBadRequest, "unknown action: "+req.Action)
	}
}

func (h *FlowHandler) startFlow(w http.ResponseWriter, r *http.Request, userID string, req *flowRequest) {
	result, err := h.svc.Start(r.Context(), userID, req.Data.TaskContext)
	if err != nil {
		DomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"session_id":  result.SessionID,
		"started_at":  result.StartedAt.Format(time.RFC3339),
		"time_of_day": result.TimeOfDay,
		"day_of_week": result.DayOfWeek,
		"tips":        result.Tips,
	})
}

func (h *FlowHandler) endFlow(w http.ResponseWriter, r *http.Request, userID string, req *flowRequest) {
	if req.Data.Quality == nil {
		Error(w, http.StatusBadRequest, "quality is required")
		return
	}
	result, err := h.svc.End(r.Context(), userID, req.Data.SessionID, *req.Data.Quality, req.Data.Triggers, req.Data.Breakers)
	if err != nil {
		DomainError(w, err)
		return
	}

	// The session's live tracker has nothing left to measure.
	h.trackers.StopSession(userID, req.Data.SessionID)

	JSON(w, http.StatusOK, map[string]interface{}{
		"success":            true,
		"session_id":         result.SessionID,
		"duration_minutes":   result.DurationMinutes,
		"quality":            result.Quality,
		"interruption_count": result.InterruptionCount,
	})
}

func (h *FlowHandler) logInterruption(w http.ResponseWriter, r *http.Request, userID string, req *flowRequest) {
	session, err := h.svc.LogInterruption(r.Context(), userID, req.Data.SessionID, req.Data.Kind, req.Data.Source)
	if err != nil {
		DomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"success":            true,
		"logged":             true,
		"interruption_count": session.InterruptionCount,
	})
}

func (h *FlowHandler) analyzePatterns(w http.ResponseWriter, r *http.Request, userID string, req *flowRequest) {
	result, err := h.analyzer.Analyze(r.Context(), userID, req.Data.WindowDays)
	if err != nil {
		DomainError(w, err)
		return
	}
	if !result.Analyzed {
		JSON(w, http.StatusOK, map[string]interface{}{
			"success":  true,
			"patterns": nil,
			"message":  result.Message,
		})
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"patterns": result.Pattern,
	})
}

func (h *FlowHandler) detectFlowEntry(w http.ResponseWriter, r *http.Request, userID string, req *flowRequest) {
	session, err := h.svc.GetSession(r.Context(), userID, req.Data.SessionID)
	if err != nil {
		DomainError(w, err)
		return
	}

	depth, elapsed := h.gaugeFor(userID, session)
	entry, err := flow.DetectFlowEntry(depth, elapsed)
	if err != nil {
		DomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"entry":   entry,
	})
}

// gaugeFor reads the live tracker when one exists; otherwise the depth is
// estimated from elapsed session time at the reference accumulation rate.
func (h *FlowHandler) gaugeFor(userID string, session *domain.FlowSession) (float64, time.Duration) {
	if t := h.trackers.Get(userID, session.ID); t != nil {
		return t.Depth(), t.Elapsed()
	}

	elapsed := time.Since(session.StartedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	depth := elapsed.Seconds() * 0.5
	if depth > 100 {
		depth = 100
	}
	return depth, elapsed
}

func (h *FlowHandler) interruptionCost(w http.ResponseWriter, req *flowRequest) {
	if req.Data.Depth == nil {
		Error(w, http.StatusBadRequest, "depth is required")
		return
	}
	cost, err := flow.EstimateInterruptionCost(*req.Data.Depth, req.Data.HourlyRate)
	if err != nil {
		DomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"cost":    cost,
	})
}

func (h *FlowHandler) recoveryPath(w http.ResponseWriter, req *flowRequest) {
	if req.Data.Depth == nil {
		Error(w, http.StatusBadRequest, "depth is required")
		return
	}
	steps, err := flow.GenerateRecoveryPath(*req.Data.Depth)
	if err != nil {
		DomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"steps":   steps,
	})
}

func (h *FlowHandler) flowStats(w http.ResponseWriter, r *http.Request, userID string, req *flowRequest) {
	stats, err := h.svc.Stats(r.Context(), userID, req.Data.WindowDays)
	if err != nil {
		DomainError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"stats":   stats,
	})
}
