package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tablewise/tablewise-insights/internal/analytics/churn"
	"github.com/tablewise/tablewise-insights/internal/analytics/forecast"
	"github.com/tablewise/tablewise-insights/internal/analytics/inventory"
	"github.com/tablewise/tablewise-insights/internal/automation"
	"github.com/tablewise/tablewise-insights/internal/cache"
	"github.com/tablewise/tablewise-insights/internal/config"
	"github.com/tablewise/tablewise-insights/internal/db"
	"github.com/tablewise/tablewise-insights/internal/models"
)

type testEnv struct {
	server *Server
	http   *httptest.Server
	store  db.Store
}

func newTestEnv(t *testing.T, withStore bool, mutate func(*config.Config)) *testEnv {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.RequestsPerSecond = 0
	if mutate != nil {
		mutate(cfg)
	}

	rules, err := automation.NewRuleTable(automation.DefaultRules())
	require.NoError(t, err)

	hub := NewHub(cfg.Server.AllowedOrigins, nil)
	sinks := []automation.Sink{hub}
	var store db.Store
	if withStore {
		store, err = db.NewSQLiteStore(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		sinks = append(sinks, db.NewSink(store))
	}

	engine, err := automation.NewEngine(rules, automation.SimulatedExecutors(), automation.DefaultOptions(), nil, sinks...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	srv, err := NewServer(cfg, Components{
		Forecaster:    forecast.New(forecast.DefaultOptions(), nil),
		Scorer:        churn.New(churn.DefaultOptions(), nil),
		Optimizer:     inventory.New(inventory.DefaultOptions(), nil),
		Engine:        engine,
		Store:         store,
		Hub:           hub,
		ForecastCache: cache.New[*forecast.Result]("forecast_test", 16, time.Minute),
	}, nil)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})
	return &testEnv{server: srv, http: ts, store: store}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.http.URL+path, rdr)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func dailyPoints(n int, value func(i int) float64) []models.SeriesPoint {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	points := make([]models.SeriesPoint, n)
	for i := range points {
		points[i] = models.SeriesPoint{Date: start.AddDate(0, 0, i).Format(time.DateOnly), Value: value(i)}
	}
	return points
}

func TestNewServer_RequiresComponents(t *testing.T) {
	_, err := NewServer(nil, Components{}, nil)
	assert.Error(t, err)

	_, err = NewServer(config.DefaultConfig(), Components{}, nil)
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, true, nil)

	code, body := env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "ok", body["database"])
	assert.Equal(t, float64(0), body["pendingApprovals"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, false, nil)
	env.do(t, http.MethodGet, "/health", nil)

	resp, err := http.Get(env.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(b), "tablewise_insights_http_requests_total")
	assert.Contains(t, string(b), `path="GET /health"`)
}

// ─── Analytics ───────────────────────────────────────────────────────────────

func TestForecastEndpoint(t *testing.T) {
	env := newTestEnv(t, false, nil)

	code, body := env.do(t, http.MethodPost, "/api/v1/forecast", map[string]any{
		"metric":      "covers",
		"points":      dailyPoints(30, func(i int) float64 { return 100 + float64(i%7)*5 }),
		"horizonDays": 7,
	})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "covers", body["metric"])
	assert.Len(t, body["baseline"], 7)
	assert.Len(t, body["dates"], 7)
	assert.NotContains(t, body, "automation")
}

func TestForecastEndpoint_ServesRepeatsFromCache(t *testing.T) {
	env := newTestEnv(t, false, nil)
	req := map[string]any{
		"metric":      "revenue",
		"points":      dailyPoints(21, func(i int) float64 { return 900 + float64(i) }),
		"horizonDays": 5,
	}

	code, first := env.do(t, http.MethodPost, "/api/v1/forecast", req)
	require.Equal(t, http.StatusOK, code)
	code, second := env.do(t, http.MethodPost, "/api/v1/forecast", req)
	require.Equal(t, http.StatusOK, code)

	assert.Equal(t, first, second)
	stats := env.server.forecasts.Stats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, 1, stats.Entries)
}

func TestForecastEndpoint_InsufficientData(t *testing.T) {
	env := newTestEnv(t, false, nil)

	code, body := env.do(t, http.MethodPost, "/api/v1/forecast", map[string]any{
		"points": dailyPoints(5, func(int) float64 { return 10 }),
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "insufficient data")
}

func TestForecastEndpoint_HorizonTooLarge(t *testing.T) {
	env := newTestEnv(t, false, nil)
	points := dailyPoints(30, func(i int) float64 { return 100 + float64(i%7) })

	code, body := env.do(t, http.MethodPost, "/api/v1/forecast", map[string]any{
		"points":      points,
		"horizonDays": int64(1) << 40,
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "horizonDays")

	code, _ = env.do(t, http.MethodPost, "/api/v1/forecast/batch", map[string]any{
		"series":      []map[string]any{{"metric": "lunch", "points": points}},
		"horizonDays": int64(1) << 40,
	})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestForecastBatchEndpoint(t *testing.T) {
	env := newTestEnv(t, false, nil)
	flat := dailyPoints(21, func(int) float64 { return 50 })

	code, body := env.do(t, http.MethodPost, "/api/v1/forecast/batch", map[string]any{
		"series": []map[string]any{
			{"metric": "lunch", "points": flat},
			{"metric": "dinner", "points": flat},
		},
		"horizonDays": 3,
	})
	require.Equal(t, http.StatusOK, code, body)
	assert.Len(t, body["forecasts"], 2)

	code, _ = env.do(t, http.MethodPost, "/api/v1/forecast/batch", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestChurnAssessEndpoint_GeneratesInsight(t *testing.T) {
	env := newTestEnv(t, false, nil)

	code, body := env.do(t, http.MethodPost, "/api/v1/churn/assess", map[string]any{
		"customer":         map[string]any{"id": "c-42"},
		"generateInsights": true,
	})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "c-42", body["customerId"])
	assert.Equal(t, "high", body["riskLevel"])

	outcome, ok := body["automation"].(map[string]any)
	require.True(t, ok, "expected automation outcome")
	assert.NotEmpty(t, outcome["results"])
	assert.NotEmpty(t, env.server.engine.Log(0))
}

func TestChurnAssessEndpoint_ValidationError(t *testing.T) {
	env := newTestEnv(t, false, nil)

	code, body := env.do(t, http.MethodPost, "/api/v1/churn/assess", map[string]any{
		"customer": map[string]any{"id": "c-1", "joinedDate": "soon"},
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "joinedDate")
}

func TestChurnCohortsEndpoint(t *testing.T) {
	env := newTestEnv(t, false, nil)

	code, body := env.do(t, http.MethodPost, "/api/v1/churn/cohorts", map[string]any{
		"asOf": "2024-06-01",
		"customers": []map[string]any{
			{"customer": map[string]any{"id": "a", "joinedDate": "2024-01-10"}, "orders": []map[string]any{{"date": "2024-05-28", "total": 40}}},
			{"customer": map[string]any{"id": "b", "joinedDate": "2024-01-20"}},
		},
	})
	require.Equal(t, http.StatusOK, code, body)
	assert.NotEmpty(t, body["cohorts"])

	code, _ = env.do(t, http.MethodPost, "/api/v1/churn/cohorts", map[string]any{"asOf": "not-a-date"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestInventoryAnalyzeEndpoint_EscalatesEmergencyOrder(t *testing.T) {
	env := newTestEnv(t, false, nil)

	code, body := env.do(t, http.MethodPost, "/api/v1/inventory/analyze", map[string]any{
		"items":            []map[string]any{{"id": "saffron", "name": "Saffron", "quantity": 0}},
		"generateInsights": true,
	})
	require.Equal(t, http.StatusOK, code, body)

	recs, ok := body["perItemRecommendations"].([]any)
	require.True(t, ok)
	require.Len(t, recs, 1)
	assert.Equal(t, "critical", recs[0].(map[string]any)["priority"])

	pending := env.server.engine.Approvals(automation.ApprovalPending)
	require.Len(t, pending, 1)
	assert.Equal(t, automation.ActionEmergencyOrder, pending[0].Action)
}

func TestInventoryAnalyzeEndpoint_InvalidItems(t *testing.T) {
	env := newTestEnv(t, false, nil)

	code, _ := env.do(t, http.MethodPost, "/api/v1/inventory/analyze", map[string]any{
		"items": []map[string]any{{"id": "", "name": "nameless"}},
	})
	assert.Equal(t, http.StatusBadRequest, code)
}

// ─── Automation ──────────────────────────────────────────────────────────────

func inventoryInsight() map[string]any {
	return map[string]any{"id": "ins-1", "category": "inventory", "title": "Flour low", "impact": "high"}
}

func TestExecuteEndpoint(t *testing.T) {
	env := newTestEnv(t, true, nil)

	code, body := env.do(t, http.MethodPost, "/api/v1/actions/execute", map[string]any{
		"insight": inventoryInsight(),
		"action":  "place_order",
		"params":  map[string]any{"itemId": "flour", "quantity": 20},
	})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "executed", body["status"])

	code, body = env.do(t, http.MethodPost, "/api/v1/actions/execute", map[string]any{
		"insight": inventoryInsight(),
		"action":  "launch_rocket",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "launch_rocket")

	code, _ = env.do(t, http.MethodPost, "/api/v1/actions/execute", map[string]any{"insight": inventoryInsight()})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestExecuteEndpoint_InvalidBody(t *testing.T) {
	env := newTestEnv(t, false, nil)

	resp, err := http.Post(env.http.URL+"/api/v1/actions/execute", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestApprovalFlow(t *testing.T) {
	env := newTestEnv(t, true, nil)

	code, body := env.do(t, http.MethodPost, "/api/v1/actions/execute", map[string]any{
		"insight": inventoryInsight(),
		"action":  "emergency_order",
		"params":  map[string]any{"itemId": "tomato", "quantity": 40},
	})
	require.Equal(t, http.StatusAccepted, code, body)
	assert.Equal(t, "pending_approval", body["status"])
	id := body["approval"].(map[string]any)["id"].(string)

	code, body = env.do(t, http.MethodGet, "/api/v1/approvals?status=pending", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])

	code, body = env.do(t, http.MethodGet, "/api/v1/approvals/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "pending", body["status"])

	code, _ = env.do(t, http.MethodPost, "/api/v1/approvals/"+id+"/approve", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, code, "approver is required")

	code, body = env.do(t, http.MethodPost, "/api/v1/approvals/"+id+"/approve", map[string]any{"approver": "manager"})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "executed", body["status"])
	assert.Equal(t, "executed", body["approval"].(map[string]any)["status"])

	code, _ = env.do(t, http.MethodPost, "/api/v1/approvals/"+id+"/approve", map[string]any{"approver": "manager"})
	assert.Equal(t, http.StatusConflict, code)

	code, _ = env.do(t, http.MethodPost, "/api/v1/approvals/missing/approve", map[string]any{"approver": "manager"})
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = env.do(t, http.MethodGet, "/api/v1/approvals/missing", nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestRejectEndpoint(t *testing.T) {
	env := newTestEnv(t, false, nil)

	_, body := env.do(t, http.MethodPost, "/api/v1/actions/execute", map[string]any{
		"insight": inventoryInsight(),
		"action":  "emergency_order",
		"params":  map[string]any{"itemId": "tomato", "quantity": 40},
	})
	id := body["approval"].(map[string]any)["id"].(string)

	code, body := env.do(t, http.MethodPost, "/api/v1/approvals/"+id+"/reject", map[string]any{
		"approver": "owner",
		"reason":   "supplier price too high",
	})
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "rejected", body["status"])
	assert.Equal(t, "supplier price too high", body["note"])

	log := env.server.engine.Log(1)
	require.Len(t, log, 1)
	assert.Equal(t, automation.StatusRejected, log[0].Status)
}

func TestProcessInsightEndpoint(t *testing.T) {
	env := newTestEnv(t, false, nil)

	code, body := env.do(t, http.MethodPost, "/api/v1/insights/process", map[string]any{
		"category": "operations",
		"title":    "Walk-in cooler alarm",
		"impact":   "high",
		"suggestedActions": []map[string]any{
			{"action": "create_task", "params": map[string]any{"title": "Check cooler"}},
			{"action": "send_notification", "params": map[string]any{"recipient": "chef", "message": "Cooler alarm"}},
		},
	})
	require.Equal(t, http.StatusOK, code, body)
	assert.NotEmpty(t, body["insightId"])
	assert.Len(t, body["results"], 2)
}

func TestActionLogAndStatsEndpoints(t *testing.T) {
	env := newTestEnv(t, false, nil)
	for i := 0; i < 3; i++ {
		env.do(t, http.MethodPost, "/api/v1/actions/execute", map[string]any{
			"insight": inventoryInsight(),
			"action":  "send_notification",
			"params":  map[string]any{"recipient": "chef", "message": "hello"},
		})
	}

	code, body := env.do(t, http.MethodGet, "/api/v1/actions/log?limit=2", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), body["count"])

	code, _ = env.do(t, http.MethodGet, "/api/v1/actions/log?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = env.do(t, http.MethodGet, "/api/v1/actions/stats", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(3), body["total"])
	assert.Equal(t, float64(1), body["successRate"])

	code, body = env.do(t, http.MethodGet, "/api/v1/actions/rules", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["rules"], len(automation.DefaultRules()))
}

func TestActionHistoryEndpoint(t *testing.T) {
	env := newTestEnv(t, true, nil)
	env.do(t, http.MethodPost, "/api/v1/actions/execute", map[string]any{
		"insight": inventoryInsight(),
		"action":  "place_order",
		"params":  map[string]any{"itemId": "flour", "quantity": 20},
	})

	code, body := env.do(t, http.MethodGet, "/api/v1/actions/history?action=place_order", nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, float64(1), body["count"])

	code, _ = env.do(t, http.MethodGet, "/api/v1/actions/history?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestActionHistoryEndpoint_Disabled(t *testing.T) {
	env := newTestEnv(t, false, nil)

	code, _ := env.do(t, http.MethodGet, "/api/v1/actions/history", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestRateLimitedAPI(t *testing.T) {
	env := newTestEnv(t, false, func(cfg *config.Config) {
		cfg.Server.RequestsPerSecond = 0.001
		cfg.Server.Burst = 1
	})

	code, _ := env.do(t, http.MethodGet, "/api/v1/actions/stats", nil)
	assert.Equal(t, http.StatusOK, code)
	code, _ = env.do(t, http.MethodGet, "/api/v1/actions/stats", nil)
	assert.Equal(t, http.StatusTooManyRequests, code)

	code, _ = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestStartStop(t *testing.T) {
	env := newTestEnv(t, false, func(cfg *config.Config) { cfg.Server.Port = 0 })

	require.NoError(t, env.server.Start())
	assert.Error(t, env.server.Start())

	_, port, err := net.SplitHostPort(env.server.Addr())
	require.NoError(t, err)
	resp, err := http.Get("http://127.0.0.1:" + port + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, env.server.Stop(t.Context()))
	assert.Error(t, env.server.Stop(t.Context()))
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.NewValidationError("x", "bad"), http.StatusBadRequest},
		{&forecast.InsufficientDataError{Have: 1, Need: 14}, http.StatusBadRequest},
		{&automation.UnknownActionError{Action: "x"}, http.StatusBadRequest},
		{automation.ErrApprovalNotFound, http.StatusNotFound},
		{automation.ErrApprovalResolved, http.StatusConflict},
		{automation.ErrApprovalExpired, http.StatusGone},
		{automation.ErrEngineClosed, http.StatusServiceUnavailable},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
