package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fraudops/kestrel/internal/alerting"
	"github.com/fraudops/kestrel/internal/domain"
	"github.com/fraudops/kestrel/internal/metrics"
	"github.com/fraudops/kestrel/internal/priority"
	"github.com/fraudops/kestrel/internal/repository"
)

// profileTTL bounds staleness of cached customer profiles.
const profileTTL = time.Minute

// Handler holds dependencies for API handlers.
type Handler struct {
	store     domain.Store
	cache     domain.Cache
	bus       domain.EventBus
	driver    *alerting.Driver
	scheduler *priority.Scheduler
	collector *metrics.Collector
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(store domain.Store, cache domain.Cache, bus domain.EventBus, driver *alerting.Driver, scheduler *priority.Scheduler, collector *metrics.Collector, version string) *Handler {
	return &Handler{
		store:     store,
		cache:     cache,
		bus:       bus,
		driver:    driver,
		scheduler: scheduler,
		collector: collector,
		version:   version,
	}
}

// IngestTransaction handles POST /transactions.
// The transaction is persisted and announced on the bus; evaluation
// happens asynchronously, so the response is 202.
func (h *Handler) IngestTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.TransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	tx := req.ToTransaction()
	if err := h.store.SaveTransaction(ctx, tx); err != nil {
		slog.Error("failed to save transaction", "transaction_id", tx.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save transaction",
		})
		return
	}

	if h.collector != nil {
		h.collector.TransactionsIngested.Inc()
	}

	if h.bus != nil {
		payload, _ := json.Marshal(tx)
		if err := h.bus.Publish(ctx, domain.TopicTransactionIngested, payload); err != nil {
			slog.Error("failed to publish transaction", "transaction_id", tx.ID, "error", err)
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"transactionId": tx.ID,
		"status":        "accepted",
	})
}

// GetTransaction handles GET /transactions/{id}.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "id")

	tx, err := h.store.GetTransaction(r.Context(), txID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "transaction not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to get transaction", "id", txID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get transaction",
		})
		return
	}

	writeJSON(w, http.StatusOK, tx)
}

// ProcessPending handles POST /process: it runs the evaluation batch
// over every transaction without an alert and reports what happened.
func (h *Handler) ProcessPending(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a non-negative integer",
			})
			return
		}
		limit = n
	}

	report, err := h.driver.ProcessPending(r.Context(), limit)
	if err != nil {
		slog.Error("batch processing failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "batch processing failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// QueueEntry is one row of the prioritized triage queue.
type QueueEntry struct {
	Alert         *domain.Alert `json:"alert"`
	PriorityScore float64       `json:"priorityScore"`
	SLAStatus     string        `json:"slaStatus"`
	MinutesToSLA  float64       `json:"minutesToSla"`
}

// AlertQueue handles GET /alerts: the triage queue, ordered by
// descending priority score at request time. Without an explicit
// status filter, terminal alerts are excluded.
func (h *Handler) AlertQueue(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := domain.AlertFilter{
		Status:   q.Get("status"),
		Severity: q.Get("severity"),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a non-negative integer",
			})
			return
		}
		filter.Limit = n
	}

	alerts, err := h.store.ListAlerts(r.Context(), filter)
	if err != nil {
		slog.Error("failed to list alerts", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list alerts",
		})
		return
	}

	if filter.Status == "" {
		live := alerts[:0]
		for _, a := range alerts {
			if !a.IsTerminal() {
				live = append(live, a)
			}
		}
		alerts = live
	}

	now := time.Now().UTC()
	h.scheduler.SortByPriority(alerts, now)

	entries := make([]QueueEntry, len(alerts))
	for i, a := range alerts {
		entries[i] = QueueEntry{
			Alert:         a,
			PriorityScore: h.scheduler.Priority(a, now),
			SLAStatus:     h.scheduler.SLAStatus(a, now),
			MinutesToSLA:  h.scheduler.TimeToSLA(a, now),
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": entries,
		"count":  len(entries),
	})
}

// GetAlert handles GET /alerts/{id}.
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "id")

	alert, err := h.store.GetAlert(r.Context(), alertID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "alert not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to get alert", "id", alertID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to get alert",
		})
		return
	}

	now := time.Now().UTC()
	writeJSON(w, http.StatusOK, QueueEntry{
		Alert:         alert,
		PriorityScore: h.scheduler.Priority(alert, now),
		SLAStatus:     h.scheduler.SLAStatus(alert, now),
		MinutesToSLA:  h.scheduler.TimeToSLA(alert, now),
	})
}

// UpdateStatusRequest is the request body for PATCH /alerts/{id}/status.
type UpdateStatusRequest struct {
	Status    string `json:"status"`
	AnalystID string `json:"analystId"`
	Notes     string `json:"notes,omitempty"`
}

var validStatuses = map[string]bool{
	domain.StatusReviewing: true,
	domain.StatusEscalated: true,
	domain.StatusDismissed: true,
	domain.StatusResolved:  true,
}

var statusActions = map[string]string{
	domain.StatusReviewing: domain.ActionReviewing,
	domain.StatusEscalated: domain.ActionEscalated,
	domain.StatusDismissed: domain.ActionDismissed,
	domain.StatusResolved:  domain.ActionResolved,
}

// UpdateAlertStatus handles PATCH /alerts/{id}/status: a triage
// workflow transition with audit logging.
func (h *Handler) UpdateAlertStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	alertID := chi.URLParam(r, "id")

	var req UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if !validStatuses[req.Status] {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "status must be one of REVIEWING, ESCALATED, DISMISSED, RESOLVED",
		})
		return
	}
	if req.AnalystID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "analystId is required",
		})
		return
	}

	alert, err := h.store.UpdateAlertStatus(ctx, alertID, req.Status, req.AnalystID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "alert not found",
		})
		return
	}
	if errors.Is(err, repository.ErrInvalidTransition) {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": err.Error(),
		})
		return
	}
	if err != nil {
		slog.Error("failed to update alert status", "id", alertID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to update alert status",
		})
		return
	}

	h.appendAudit(ctx, alertID, req.AnalystID, statusActions[req.Status], req.Notes)
	h.publishAlertUpdated(ctx, alert)

	slog.Info("alert status updated",
		"alert_id", alertID,
		"status", req.Status,
		"analyst_id", req.AnalystID,
	)
	writeJSON(w, http.StatusOK, alert)
}

// AssignRequest is the request body for POST /alerts/{id}/assign.
type AssignRequest struct {
	AnalystID string `json:"analystId"`
}

// AssignAlert handles POST /alerts/{id}/assign.
func (h *Handler) AssignAlert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	alertID := chi.URLParam(r, "id")

	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.AnalystID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "analystId is required",
		})
		return
	}

	err := h.store.AssignAlert(ctx, alertID, req.AnalystID)
	if errors.Is(err, repository.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "alert not found",
		})
		return
	}
	if err != nil {
		slog.Error("failed to assign alert", "id", alertID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to assign alert",
		})
		return
	}

	h.appendAudit(ctx, alertID, req.AnalystID, domain.ActionAssigned, "")

	writeJSON(w, http.StatusOK, map[string]string{
		"alertId":   alertID,
		"analystId": req.AnalystID,
	})
}

// BulkUpdateRequest is the request body for POST /alerts/bulk.
type BulkUpdateRequest struct {
	AlertIDs  []string `json:"alertIds"`
	Status    string   `json:"status"`
	AnalystID string   `json:"analystId"`
	Notes     string   `json:"notes,omitempty"`
}

// BulkUpdateResult reports the outcome per alert.
type BulkUpdateResult struct {
	Updated int               `json:"updated"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// BulkUpdateStatus handles POST /alerts/bulk: the same transition
// applied to many alerts, each independently. Failures are reported
// per alert and never abort the batch.
func (h *Handler) BulkUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req BulkUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if len(req.AlertIDs) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "alertIds is required",
		})
		return
	}
	if !validStatuses[req.Status] {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "status must be one of REVIEWING, ESCALATED, DISMISSED, RESOLVED",
		})
		return
	}
	if req.AnalystID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "analystId is required",
		})
		return
	}

	result := BulkUpdateResult{Failed: make(map[string]string)}
	for _, alertID := range req.AlertIDs {
		alert, err := h.store.UpdateAlertStatus(ctx, alertID, req.Status, req.AnalystID)
		if err != nil {
			result.Failed[alertID] = err.Error()
			continue
		}
		result.Updated++
		h.appendAudit(ctx, alertID, req.AnalystID, statusActions[req.Status], req.Notes)
		h.publishAlertUpdated(ctx, alert)
	}
	if len(result.Failed) == 0 {
		result.Failed = nil
	}

	writeJSON(w, http.StatusOK, result)
}

// GetAuditTrail handles GET /alerts/{id}/audit.
func (h *Handler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	alertID := chi.URLParam(r, "id")

	// 404 for unknown alerts rather than an empty trail.
	if _, err := h.store.GetAlert(r.Context(), alertID); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "alert not found",
		})
		return
	}

	entries, err := h.store.ListAudit(r.Context(), alertID)
	if err != nil {
		slog.Error("failed to list audit trail", "id", alertID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list audit trail",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alertId": alertID,
		"entries": entries,
		"count":   len(entries),
	})
}

// CustomerProfile summarizes a customer's transaction and alert history.
type CustomerProfile struct {
	CustomerID       string  `json:"customerId"`
	TransactionCount int     `json:"transactionCount"`
	TotalSpend       float64 `json:"totalSpend"`

	// RecentTransactionCount covers the last 7 days.
	RecentTransactionCount int `json:"recentTransactionCount"`
	DistinctLocations      int `json:"distinctLocations"`
	DistinctDevices        int `json:"distinctDevices"`

	AlertCount       int            `json:"alertCount"`
	OpenAlertCount   int            `json:"openAlertCount"`
	AvgRiskScore     float64        `json:"avgRiskScore"`
	MaxRiskScore     float64        `json:"maxRiskScore"`
	AlertsBySeverity map[string]int `json:"alertsBySeverity,omitempty"`
}

// GetCustomerProfile handles GET /customers/{id}/profile, with a short
// cache in front of the store.
func (h *Handler) GetCustomerProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	customerID := chi.URLParam(r, "id")

	cacheKey := "profile:" + customerID
	if h.cache != nil {
		if data, err := h.cache.Get(ctx, cacheKey); err == nil && data != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write(data)
			return
		}
	}

	transactions, err := h.store.TransactionsByCustomer(ctx, customerID)
	if err != nil {
		slog.Error("failed to load customer transactions", "customer_id", customerID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load customer profile",
		})
		return
	}

	alerts, err := h.store.AlertsByCustomer(ctx, customerID)
	if err != nil {
		slog.Error("failed to load customer alerts", "customer_id", customerID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load customer profile",
		})
		return
	}

	profile := CustomerProfile{
		CustomerID:       customerID,
		TransactionCount: len(transactions),
		AlertCount:       len(alerts),
		AlertsBySeverity: make(map[string]int),
	}

	recentCutoff := time.Now().UTC().Add(-7 * 24 * time.Hour)
	locations := make(map[string]struct{})
	devices := make(map[string]struct{})
	for _, tx := range transactions {
		profile.TotalSpend += tx.Amount
		if tx.Timestamp.After(recentCutoff) {
			profile.RecentTransactionCount++
		}
		if tx.City != "" || tx.Country != "" {
			locations[tx.City+"|"+tx.Country] = struct{}{}
		}
		if tx.DeviceID != "" {
			devices[tx.DeviceID] = struct{}{}
		}
	}
	profile.DistinctLocations = len(locations)
	profile.DistinctDevices = len(devices)

	var riskSum float64
	for _, a := range alerts {
		if !a.IsTerminal() {
			profile.OpenAlertCount++
		}
		riskSum += a.RiskScore
		if a.RiskScore > profile.MaxRiskScore {
			profile.MaxRiskScore = a.RiskScore
		}
		profile.AlertsBySeverity[a.Severity]++
	}
	if len(alerts) > 0 {
		profile.AvgRiskScore = riskSum / float64(len(alerts))
	}
	if len(profile.AlertsBySeverity) == 0 {
		profile.AlertsBySeverity = nil
	}

	if h.cache != nil {
		if data, err := json.Marshal(profile); err == nil {
			_ = h.cache.Set(ctx, cacheKey, data, profileTTL)
		}
	}

	writeJSON(w, http.StatusOK, profile)
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func (h *Handler) appendAudit(ctx context.Context, alertID, analystID, action, details string) {
	entry := &domain.AuditEntry{
		ID:        domain.NewAuditID(),
		AlertID:   alertID,
		AnalystID: analystID,
		Action:    action,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
	if err := h.store.AppendAudit(ctx, entry); err != nil {
		slog.Error("failed to append audit entry",
			"alert_id", alertID,
			"action", action,
			"error", err,
		)
	}
}

func (h *Handler) publishAlertUpdated(ctx context.Context, alert *domain.Alert) {
	if h.bus == nil {
		return
	}
	payload, _ := json.Marshal(alert)
	if err := h.bus.Publish(ctx, domain.TopicAlertUpdated, payload); err != nil {
		slog.Error("failed to publish alert update",
			"alert_id", alert.ID,
			"error", err,
		)
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
