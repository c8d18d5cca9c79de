// Package alerts serves the alert run, status, history and entity action
// endpoints.
package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/staleguard/internal/alerting"
	"github.com/good-yellow-bee/staleguard/internal/dispatch"
	"github.com/good-yellow-bee/staleguard/internal/models"
)

// Response helpers
type errorResponse struct {
	Error errorBody `json:"error"`
}
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
type dataResponse struct {
	Data any `json:"data"`
}

const (
	errCodeBadRequest         = "BAD_REQUEST"
	errCodeValidationFailed   = "VALIDATION_FAILED"
	errCodeNotFound           = "NOT_FOUND"
	errCodeRunInProgress      = "RUN_IN_PROGRESS"
	errCodeSourceUnavailable  = "SOURCE_UNAVAILABLE"
	errCodeDeliveryFailed     = "DELIVERY_FAILED"
	errCodeInternalError      = "INTERNAL_ERROR"
	errCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// DefaultRunTimeout bounds a run triggered over HTTP.
const DefaultRunTimeout = 10 * time.Minute

// Service is the subset of the orchestrator the handlers use.
type Service interface {
	Run(ctx context.Context) (dispatch.Summary, error)
	SendTestAlert(ctx context.Context, recipient string) (*dispatch.TestAlertResult, error)
	Status(ctx context.Context) (*dispatch.StatusReport, error)
	Acknowledge(ctx context.Context, entityID, action string, customHours *int) (*models.CooldownState, error)
	EntityState(ctx context.Context, entityID string) (*models.CooldownState, error)
	Catalog() *alerting.Catalog
	LastRun() *dispatch.Summary
}

// HistoryLister reads the alert ledger.
type HistoryLister interface {
	List(ctx context.Context, entityID string, limit int) ([]*models.AlertHistoryEntry, error)
}

// Handler handles alert endpoints.
type Handler struct {
	service    Service
	history    HistoryLister
	runTimeout time.Duration
	logger     *zap.Logger
}

// NewHandler creates a handler. history may be nil, in which case the
// history endpoint reports the ledger as unavailable.
func NewHandler(service Service, history HistoryLister, runTimeout time.Duration, logger *zap.Logger) *Handler {
	if runTimeout <= 0 {
		runTimeout = DefaultRunTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:    service,
		history:    history,
		runTimeout: runTimeout,
		logger:     logger,
	}
}

func (h *Handler) jsonError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Code: code, Message: message}}); err != nil {
		h.logger.Debug("json encode error", zap.Error(err))
	}
}

func (h *Handler) jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dataResponse{Data: data}); err != nil {
		h.logger.Debug("json encode error", zap.Error(err))
	}
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op+" failed", zap.Error(err))
	h.jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
}

// Run triggers an alert run. The run is detached from the client connection
// so a disconnect does not abort it.
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.runTimeout)
	defer cancel()

	summary, err := h.service.Run(ctx)
	switch {
	case errors.Is(err, dispatch.ErrRunInProgress):
		h.jsonError(w, http.StatusConflict, errCodeRunInProgress, "an alert run is already in progress")
	case errors.Is(err, dispatch.ErrSourceUnavailable):
		h.logger.Error("alert run degraded", zap.Error(err))
		h.jsonError(w, http.StatusServiceUnavailable, errCodeSourceUnavailable, "record source unavailable, no alerts sent")
	case err != nil:
		h.internalError(w, "alert run", err)
	default:
		h.jsonOK(w, summary)
	}
}

// TestRequest is the body of a test alert request.
type TestRequest struct {
	Recipient string `json:"recipient"`
}

// Test sends a test alert to a single recipient.
func (h *Handler) Test(w http.ResponseWriter, r *http.Request) {
	var req TestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Recipient) == "" {
		h.jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "recipient is required")
		return
	}

	result, err := h.service.SendTestAlert(r.Context(), req.Recipient)
	switch {
	case errors.Is(err, dispatch.ErrInvalidRecipient):
		h.jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "invalid recipient address")
	case err != nil:
		h.logger.Error("test alert failed", zap.Error(err))
		h.jsonError(w, http.StatusBadGateway, errCodeDeliveryFailed, "test alert could not be delivered")
	default:
		h.jsonOK(w, result)
	}
}

// StatusResponse is the status report plus the last run summary.
type StatusResponse struct {
	*dispatch.StatusReport
	LastRun *dispatch.Summary `json:"last_run,omitempty"`
}

// Status reports the entities currently triggering a rule.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.Status(r.Context())
	switch {
	case errors.Is(err, dispatch.ErrSourceUnavailable):
		h.logger.Error("status failed", zap.Error(err))
		h.jsonError(w, http.StatusServiceUnavailable, errCodeSourceUnavailable, "record source unavailable")
	case err != nil:
		h.internalError(w, "status", err)
	default:
		h.jsonOK(w, StatusResponse{StatusReport: report, LastRun: h.service.LastRun()})
	}
}

// History lists sent alerts, newest first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		h.jsonError(w, http.StatusServiceUnavailable, errCodeServiceUnavailable, "alert history not configured")
		return
	}

	q := r.URL.Query()
	limit, err := ParseLimit(q.Get("limit"))
	if err != nil {
		h.jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}

	entries, err := h.history.List(r.Context(), strings.TrimSpace(q.Get("entity_id")), limit)
	if err != nil {
		h.internalError(w, "list history", err)
		return
	}
	if entries == nil {
		entries = []*models.AlertHistoryEntry{}
	}
	h.jsonOK(w, entries)
}

// RuleResponse describes one catalog rule.
type RuleResponse struct {
	Name           string                  `json:"name"`
	DayThreshold   int                     `json:"day_threshold"`
	Level          models.Level            `json:"level"`
	FrequencyHours int                     `json:"frequency_hours"`
	Recipients     alerting.RecipientClass `json:"recipients"`
	Subject        string                  `json:"subject"`
	Critical       bool                    `json:"critical"`
}

// Rules lists the active catalog in ascending threshold order.
func (h *Handler) Rules(w http.ResponseWriter, r *http.Request) {
	rules := h.service.Catalog().Rules()
	resp := make([]RuleResponse, len(rules))
	for i, rule := range rules {
		resp[i] = RuleResponse{
			Name:           rule.Name(),
			DayThreshold:   rule.DayThreshold,
			Level:          rule.Level,
			FrequencyHours: rule.BaseFrequencyHours,
			Recipients:     rule.Recipients,
			Subject:        rule.SubjectTemplate,
			Critical:       rule.IsCritical(),
		}
	}
	h.jsonOK(w, resp)
}

// ActionRequest records a user action against an entity.
type ActionRequest struct {
	Action        string `json:"action"`
	CooldownHours *int   `json:"cooldown_hours,omitempty"`
}

// Action records a user action and returns the resulting state.
func (h *Handler) Action(w http.ResponseWriter, r *http.Request) {
	entityID := chi.URLParam(r, "id")

	var req ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	if err := ValidateAction(entityID, req); err != nil {
		h.jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}

	state, err := h.service.Acknowledge(r.Context(), entityID, req.Action, req.CooldownHours)
	switch {
	case errors.Is(err, alerting.ErrUnknownAction):
		h.jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
	case err != nil:
		h.internalError(w, "record action", err)
	default:
		h.jsonOK(w, state)
	}
}

// State returns the cooldown state of an entity.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	state, err := h.service.EntityState(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, alerting.ErrStateNotFound):
		h.jsonError(w, http.StatusNotFound, errCodeNotFound, "no alert state for entity")
	case err != nil:
		h.internalError(w, "get state", err)
	default:
		h.jsonOK(w, state)
	}
}
