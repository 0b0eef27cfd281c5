package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/fraudops/kestrel/internal/alerting"
	"github.com/fraudops/kestrel/internal/cache"
	"github.com/fraudops/kestrel/internal/domain"
	"github.com/fraudops/kestrel/internal/history"
	"github.com/fraudops/kestrel/internal/metrics"
	"github.com/fraudops/kestrel/internal/priority"
	"github.com/fraudops/kestrel/internal/repository"
	"github.com/fraudops/kestrel/internal/rules"
	"github.com/fraudops/kestrel/internal/scoring"
)

func newTestServer(t *testing.T) (*Server, domain.Store) {
	t.Helper()

	f, err := os.CreateTemp("", "kestrel-api-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	store, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: f.Name(),
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cacheImpl := cache.NewLRUCache(100)
	t.Cleanup(func() { cacheImpl.Close() })

	cfg := domain.DefaultEngineConfig()
	evaluator, err := rules.NewEvaluator(cfg, history.NewService(store, cacheImpl))
	if err != nil {
		t.Fatalf("failed to create evaluator: %v", err)
	}
	factory := alerting.NewFactory(store, scoring.NewScorer(cfg))
	collector := metrics.NewCollector()
	driver := alerting.NewDriver(store, evaluator, factory, nil, collector)
	scheduler := priority.NewScheduler(cfg)

	srv := NewServer(domain.ServerConfig{Host: "127.0.0.1", Port: 0}, store, cacheImpl, nil, driver, scheduler, collector, "test")
	return srv, store
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func ingestRequest(id string, amount float64) domain.TransactionRequest {
	return domain.TransactionRequest{
		ID:         id,
		CustomerID: "CUST-001",
		Merchant:   "Test Merchant",
		Amount:     amount,
		Currency:   "USD",
		Timestamp:  time.Now().UTC().Add(-time.Minute),
		Country:    "USA",
		City:       "New York",
		MCCCode:    "5411",
	}
}

// raiseAlert ingests a high-amount transaction and runs the batch,
// returning the created alert.
func raiseAlert(t *testing.T, srv *Server, store domain.Store, txID string) *domain.Alert {
	t.Helper()

	rec := doJSON(t, srv, http.MethodPost, "/transactions", ingestRequest(txID, 6000))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("ingest returned %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, srv, http.MethodPost, "/process", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("process returned %d: %s", rec.Code, rec.Body.String())
	}

	alerts, err := store.ListAlerts(t.Context(), domain.AlertFilter{})
	if err != nil {
		t.Fatalf("ListAlerts failed: %v", err)
	}
	for _, a := range alerts {
		if a.TransactionID == txID {
			return a
		}
	}
	t.Fatalf("no alert found for transaction %s", txID)
	return nil
}

func TestIngestTransaction(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("Accepted", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/transactions", ingestRequest("TXN-001", 100))
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
		}

		var resp map[string]string
		decodeBody(t, rec, &resp)
		if resp["transactionId"] != "TXN-001" || resp["status"] != "accepted" {
			t.Errorf("unexpected response: %v", resp)
		}
	})

	t.Run("ReplayAccepted", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/transactions", ingestRequest("TXN-001", 100))
		if rec.Code != http.StatusAccepted {
			t.Errorf("replayed ingest should be accepted, got %d", rec.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/transactions", bytes.NewBufferString("{not json"))
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("MissingFields", func(t *testing.T) {
		body := ingestRequest("TXN-002", 100)
		body.CustomerID = ""
		rec := doJSON(t, srv, http.MethodPost, "/transactions", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("NonPositiveAmount", func(t *testing.T) {
		body := ingestRequest("TXN-003", 0)
		rec := doJSON(t, srv, http.MethodPost, "/transactions", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("GetAfterIngest", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/transactions/TXN-001", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var tx domain.Transaction
		decodeBody(t, rec, &tx)
		if tx.ID != "TXN-001" || tx.Currency != "USD" {
			t.Errorf("unexpected transaction: %+v", tx)
		}
	})

	t.Run("GetUnknown", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/transactions/TXN-NOPE", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestProcessAndQueue(t *testing.T) {
	srv, _ := newTestServer(t)

	// One alert-worthy transaction, one quiet.
	doJSON(t, srv, http.MethodPost, "/transactions", ingestRequest("TXN-HOT", 6000))
	doJSON(t, srv, http.MethodPost, "/transactions", ingestRequest("TXN-QUIET", 50))

	t.Run("ProcessReportsBatch", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/process", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var report alerting.Report
		decodeBody(t, rec, &report)
		if report.Processed != 2 || report.AlertsGenerated != 1 || report.Failed != 0 {
			t.Errorf("unexpected report: %+v", report)
		}
	})

	t.Run("InvalidLimit", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/process?limit=banana", nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("QueueHasScoredEntry", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/alerts", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var resp struct {
			Alerts []QueueEntry `json:"alerts"`
			Count  int          `json:"count"`
		}
		decodeBody(t, rec, &resp)
		if resp.Count != 1 {
			t.Fatalf("expected 1 alert, got %d", resp.Count)
		}

		entry := resp.Alerts[0]
		if entry.Alert.TransactionID != "TXN-HOT" {
			t.Errorf("unexpected transaction: %s", entry.Alert.TransactionID)
		}
		// A lone HIGH_AMOUNT hit scores 30 -> LOW.
		if entry.Alert.Severity != domain.SeverityLow {
			t.Errorf("expected LOW, got %s", entry.Alert.Severity)
		}
		if entry.PriorityScore <= 0 {
			t.Errorf("expected positive priority, got %.2f", entry.PriorityScore)
		}
		if entry.SLAStatus != domain.SLAOK {
			t.Errorf("fresh alert should be OK, got %s", entry.SLAStatus)
		}
		if entry.MinutesToSLA <= 0 {
			t.Errorf("fresh alert should have time remaining, got %.2f", entry.MinutesToSLA)
		}
	})

	t.Run("SeverityFilterExcludes", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/alerts?severity=CRITICAL", nil)
		var resp struct {
			Count int `json:"count"`
		}
		decodeBody(t, rec, &resp)
		if resp.Count != 0 {
			t.Errorf("expected 0 CRITICAL alerts, got %d", resp.Count)
		}
	})

	t.Run("GetAlertByID", func(t *testing.T) {
		var list struct {
			Alerts []QueueEntry `json:"alerts"`
		}
		decodeBody(t, doJSON(t, srv, http.MethodGet, "/alerts", nil), &list)

		alertID := list.Alerts[0].Alert.ID
		rec := doJSON(t, srv, http.MethodGet, "/alerts/"+alertID, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var entry QueueEntry
		decodeBody(t, rec, &entry)
		if entry.Alert.ID != alertID {
			t.Errorf("expected alert %s, got %s", alertID, entry.Alert.ID)
		}
	})

	t.Run("GetUnknownAlert", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/alerts/ALT000000000000", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestAlertTriage(t *testing.T) {
	srv, store := newTestServer(t)
	alert := raiseAlert(t, srv, store, "TXN-TRIAGE")

	t.Run("InvalidStatusRejected", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPatch, "/alerts/"+alert.ID+"/status",
			UpdateStatusRequest{Status: "OPEN", AnalystID: "analyst-1"})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("MissingAnalystRejected", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPatch, "/alerts/"+alert.ID+"/status",
			UpdateStatusRequest{Status: domain.StatusReviewing})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("UnknownAlert", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPatch, "/alerts/ALT000000000000/status",
			UpdateStatusRequest{Status: domain.StatusReviewing, AnalystID: "analyst-1"})
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})

	t.Run("OpenToReviewing", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPatch, "/alerts/"+alert.ID+"/status",
			UpdateStatusRequest{Status: domain.StatusReviewing, AnalystID: "analyst-1", Notes: "taking a look"})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		var updated domain.Alert
		decodeBody(t, rec, &updated)
		if updated.Status != domain.StatusReviewing {
			t.Errorf("expected REVIEWING, got %s", updated.Status)
		}
	})

	t.Run("EscalatedThenResolved", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPatch, "/alerts/"+alert.ID+"/status",
			UpdateStatusRequest{Status: domain.StatusEscalated, AnalystID: "analyst-1"})
		if rec.Code != http.StatusOK {
			t.Fatalf("escalate returned %d", rec.Code)
		}

		rec = doJSON(t, srv, http.MethodPatch, "/alerts/"+alert.ID+"/status",
			UpdateStatusRequest{Status: domain.StatusResolved, AnalystID: "analyst-1"})
		if rec.Code != http.StatusOK {
			t.Fatalf("resolve returned %d", rec.Code)
		}
		var resolved domain.Alert
		decodeBody(t, rec, &resolved)
		if resolved.ResolvedAt == nil {
			t.Error("expected resolvedAt to be set")
		}
	})

	t.Run("TerminalTransitionConflicts", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPatch, "/alerts/"+alert.ID+"/status",
			UpdateStatusRequest{Status: domain.StatusReviewing, AnalystID: "analyst-1"})
		if rec.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d", rec.Code)
		}
	})

	t.Run("ResolvedAlertLeavesQueue", func(t *testing.T) {
		var resp struct {
			Count int `json:"count"`
		}
		decodeBody(t, doJSON(t, srv, http.MethodGet, "/alerts", nil), &resp)
		if resp.Count != 0 {
			t.Errorf("resolved alert should leave the default queue, got %d", resp.Count)
		}

		decodeBody(t, doJSON(t, srv, http.MethodGet, "/alerts?status=RESOLVED", nil), &resp)
		if resp.Count != 1 {
			t.Errorf("expected 1 resolved alert, got %d", resp.Count)
		}
	})

	t.Run("AuditTrailRecordsTransitions", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/alerts/"+alert.ID+"/audit", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var resp struct {
			Entries []domain.AuditEntry `json:"entries"`
			Count   int                 `json:"count"`
		}
		decodeBody(t, rec, &resp)
		if resp.Count != 3 {
			t.Fatalf("expected 3 audit entries, got %d", resp.Count)
		}
		want := []string{domain.ActionReviewing, domain.ActionEscalated, domain.ActionResolved}
		for i, action := range want {
			if resp.Entries[i].Action != action {
				t.Errorf("entry %d: expected %s, got %s", i, action, resp.Entries[i].Action)
			}
		}
	})

	t.Run("AuditUnknownAlert", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/alerts/ALT000000000000/audit", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestAssignAlert(t *testing.T) {
	srv, store := newTestServer(t)
	alert := raiseAlert(t, srv, store, "TXN-ASSIGN")

	t.Run("Assign", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/alerts/"+alert.ID+"/assign",
			AssignRequest{AnalystID: "analyst-2"})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		got, err := store.GetAlert(t.Context(), alert.ID)
		if err != nil {
			t.Fatalf("GetAlert failed: %v", err)
		}
		if got.AnalystID != "analyst-2" {
			t.Errorf("expected analyst-2, got %s", got.AnalystID)
		}
		if got.Status != domain.StatusOpen {
			t.Errorf("assignment must not change status, got %s", got.Status)
		}
	})

	t.Run("MissingAnalyst", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/alerts/"+alert.ID+"/assign", AssignRequest{})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("UnknownAlert", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/alerts/ALT000000000000/assign",
			AssignRequest{AnalystID: "analyst-2"})
		if rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestBulkUpdateStatus(t *testing.T) {
	srv, store := newTestServer(t)
	first := raiseAlert(t, srv, store, "TXN-BULK-1")
	second := raiseAlert(t, srv, store, "TXN-BULK-2")

	t.Run("PartialFailureReported", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/alerts/bulk", BulkUpdateRequest{
			AlertIDs:  []string{first.ID, second.ID, "ALT000000000000"},
			Status:    domain.StatusReviewing,
			AnalystID: "analyst-1",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var result BulkUpdateResult
		decodeBody(t, rec, &result)
		if result.Updated != 2 {
			t.Errorf("expected 2 updated, got %d", result.Updated)
		}
		if len(result.Failed) != 1 {
			t.Errorf("expected 1 failure, got %v", result.Failed)
		}
	})

	t.Run("EmptyIDsRejected", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/alerts/bulk", BulkUpdateRequest{
			Status:    domain.StatusReviewing,
			AnalystID: "analyst-1",
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rec.Code)
		}
	})
}

func TestCustomerProfile(t *testing.T) {
	srv, store := newTestServer(t)
	raiseAlert(t, srv, store, "TXN-PROF-1")
	doJSON(t, srv, http.MethodPost, "/transactions", ingestRequest("TXN-PROF-2", 75))

	rec := doJSON(t, srv, http.MethodGet, "/customers/CUST-001/profile", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var profile CustomerProfile
	decodeBody(t, rec, &profile)
	if profile.TransactionCount != 2 {
		t.Errorf("expected 2 transactions, got %d", profile.TransactionCount)
	}
	if profile.TotalSpend != 6075 {
		t.Errorf("expected total spend 6075, got %.2f", profile.TotalSpend)
	}
	if profile.AlertCount != 1 || profile.OpenAlertCount != 1 {
		t.Errorf("unexpected alert counts: %+v", profile)
	}
	if profile.MaxRiskScore != 30 || profile.AvgRiskScore != 30 {
		t.Errorf("expected risk 30/30, got max %.0f avg %.0f", profile.MaxRiskScore, profile.AvgRiskScore)
	}
	if profile.RecentTransactionCount != 2 {
		t.Errorf("expected 2 recent transactions, got %d", profile.RecentTransactionCount)
	}
	if profile.DistinctLocations != 1 {
		t.Errorf("expected 1 distinct location, got %d", profile.DistinctLocations)
	}
	if profile.AlertsBySeverity[domain.SeverityLow] != 1 {
		t.Errorf("expected 1 LOW alert, got %v", profile.AlertsBySeverity)
	}

	// Second read is served from cache and must agree.
	var cached CustomerProfile
	decodeBody(t, doJSON(t, srv, http.MethodGet, "/customers/CUST-001/profile", nil), &cached)
	if cached.TransactionCount != profile.TransactionCount {
		t.Errorf("cached profile disagrees: %+v vs %+v", cached, profile)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	t.Run("Health", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/health", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var resp map[string]string
		decodeBody(t, rec, &resp)
		if resp["status"] != "healthy" || resp["version"] != "test" {
			t.Errorf("unexpected health response: %v", resp)
		}
	})

	t.Run("Ready", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/ready", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("Metrics", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/metrics", nil)
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
		if !bytes.Contains(rec.Body.Bytes(), []byte("kestrel_transactions_ingested_total")) {
			t.Error("metrics output missing ingest counter")
		}
	})

	t.Run("RequestIDPropagated", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set("X-Request-ID", "req-123")
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		if got := rec.Header().Get("X-Request-ID"); got != "req-123" {
			t.Errorf("expected request id echoed, got %q", got)
		}
	})
}
