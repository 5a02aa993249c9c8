package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/tablewise/tablewise-insights/internal/analytics/churn"
	"github.com/tablewise/tablewise-insights/internal/analytics/forecast"
	"github.com/tablewise/tablewise-insights/internal/analytics/inventory"
	"github.com/tablewise/tablewise-insights/internal/automation"
	"github.com/tablewise/tablewise-insights/internal/cache"
	"github.com/tablewise/tablewise-insights/internal/db"
	"github.com/tablewise/tablewise-insights/internal/metrics"
	"github.com/tablewise/tablewise-insights/internal/models"
)

const (
	maxBodyBytes    = 10 << 20
	defaultLogLimit = 100
)

// ─── Analytics ───────────────────────────────────────────────────────────────

type forecastRequest struct {
	Metric           string               `json:"metric"`
	Points           []models.SeriesPoint `json:"points"`
	HorizonDays      int                  `json:"horizonDays"`
	GenerateInsights bool                 `json:"generateInsights"`
}

type forecastResponse struct {
	*forecast.Result
	Automation *automation.ProcessOutcome `json:"automation,omitempty"`
}

// handleForecast handles POST /api/v1/forecast
func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	var req forecastRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := s.forecast(r.Context(), forecast.TimeSeries{Metric: req.Metric, Points: req.Points}, req.HorizonDays)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := forecastResponse{Result: res}
	if req.GenerateInsights {
		if insight, ok := automation.InsightFromForecast(res, time.Now().UTC()); ok {
			if resp.Automation, err = s.engine.ProcessInsight(r.Context(), insight); err != nil {
				s.writeError(w, err)
				return
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// forecast answers from the result cache when the same series and horizon
// were forecast recently. Cached results are shared and must not be
// modified.
func (s *Server) forecast(ctx context.Context, series forecast.TimeSeries, horizon int) (*forecast.Result, error) {
	key, err := cache.Key(series, horizon)
	if err == nil {
		if res, ok := s.forecasts.Get(key); ok {
			return res, nil
		}
	}

	start := time.Now()
	res, err := s.forecaster.Forecast(ctx, series, horizon)
	metrics.ForecastDuration.Observe(time.Since(start).Seconds())
	metrics.ForecastsTotal.WithLabelValues(forecastStatus(err)).Inc()
	if err != nil {
		return nil, err
	}
	if key != "" {
		s.forecasts.Add(key, res)
	}
	return res, nil
}

type forecastBatchRequest struct {
	Series      []forecast.TimeSeries `json:"series"`
	HorizonDays int                   `json:"horizonDays"`
}

// handleForecastBatch handles POST /api/v1/forecast/batch
func (s *Server) handleForecastBatch(w http.ResponseWriter, r *http.Request) {
	var req forecastBatchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Series) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("series is required"))
		return
	}

	start := time.Now()
	results, err := s.forecaster.ForecastMany(r.Context(), req.Series, req.HorizonDays)
	metrics.ForecastDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ForecastsTotal.WithLabelValues(forecastStatus(err)).Inc()
		s.writeError(w, err)
		return
	}
	metrics.ForecastsTotal.WithLabelValues("ok").Add(float64(len(results)))
	writeJSON(w, http.StatusOK, map[string]any{"forecasts": results})
}

func forecastStatus(err error) string {
	var insufficient *forecast.InsufficientDataError
	var invalid *models.ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &insufficient):
		return "insufficient_data"
	case errors.As(err, &invalid):
		return "invalid"
	}
	return "error"
}

type churnRequest struct {
	Customer         models.CustomerProfile `json:"customer"`
	Orders           []models.Order         `json:"orders"`
	GenerateInsights bool                   `json:"generateInsights"`
}

type churnResponse struct {
	*churn.Assessment
	Automation *automation.ProcessOutcome `json:"automation,omitempty"`
}

// handleChurnAssess handles POST /api/v1/churn/assess
func (s *Server) handleChurnAssess(w http.ResponseWriter, r *http.Request) {
	var req churnRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	a, err := s.scorer.Assess(r.Context(), req.Customer, req.Orders)
	if err != nil {
		s.writeError(w, err)
		return
	}
	metrics.ChurnAssessmentsTotal.WithLabelValues(string(a.RiskLevel)).Inc()

	resp := churnResponse{Assessment: a}
	if req.GenerateInsights {
		if insight, ok := automation.InsightFromChurn(a, time.Now().UTC()); ok {
			if resp.Automation, err = s.engine.ProcessInsight(r.Context(), insight); err != nil {
				s.writeError(w, err)
				return
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type cohortRequest struct {
	Customers []churn.CustomerHistory `json:"customers"`
	AsOf      string                  `json:"asOf,omitempty"`
}

// handleChurnCohorts handles POST /api/v1/churn/cohorts
func (s *Server) handleChurnCohorts(w http.ResponseWriter, r *http.Request) {
	var req cohortRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	asOf := time.Now().UTC()
	if req.AsOf != "" {
		t, err := models.ParseDate(req.AsOf)
		if err != nil {
			s.writeError(w, models.NewValidationError("asOf", "%v", err))
			return
		}
		asOf = t
	}

	cohorts, err := s.scorer.AnalyzeCohorts(r.Context(), req.Customers, asOf)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cohorts": cohorts})
}

type inventoryRequest struct {
	Items            []models.InventoryItem `json:"items"`
	Sales            []models.SaleRecord    `json:"sales"`
	Seasonality      *inventory.Seasonality `json:"seasonality,omitempty"`
	GenerateInsights bool                   `json:"generateInsights"`
}

type inventoryResponse struct {
	*inventory.Analysis
	Automation []*automation.ProcessOutcome `json:"automation,omitempty"`
}

// handleInventoryAnalyze handles POST /api/v1/inventory/analyze
func (s *Server) handleInventoryAnalyze(w http.ResponseWriter, r *http.Request) {
	var req inventoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	analysis, err := s.optimizer.Analyze(r.Context(), req.Items, req.Sales, req.Seasonality)
	if err != nil {
		s.writeError(w, err)
		return
	}
	for _, rec := range analysis.Recommendations {
		metrics.InventoryRecommendationsTotal.WithLabelValues(string(rec.Priority)).Inc()
	}

	resp := inventoryResponse{Analysis: analysis}
	if req.GenerateInsights {
		now := time.Now().UTC()
		for _, rec := range analysis.Recommendations {
			insight, ok := automation.InsightFromReorder(rec, now)
			if !ok {
				continue
			}
			outcome, err := s.engine.ProcessInsight(r.Context(), insight)
			if err != nil {
				s.writeError(w, err)
				return
			}
			resp.Automation = append(resp.Automation, outcome)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ─── Automation ──────────────────────────────────────────────────────────────

type executeRequest struct {
	Insight automation.Insight `json:"insight"`
	Action  string             `json:"action"`
	Params  automation.Params  `json:"params"`
}

// handleExecuteAction handles POST /api/v1/actions/execute
func (s *Server) handleExecuteAction(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Action == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("action is required"))
		return
	}

	res, err := s.engine.Execute(r.Context(), req.Insight, req.Action, req.Params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusOK
	if res.Status == automation.StatusPendingApproval {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

// handleProcessInsight handles POST /api/v1/insights/process
func (s *Server) handleProcessInsight(w http.ResponseWriter, r *http.Request) {
	var insight automation.Insight
	if !decodeJSON(w, r, &insight) {
		return
	}
	if insight.CreatedAt.IsZero() {
		insight.CreatedAt = time.Now().UTC()
	}

	outcome, err := s.engine.ProcessInsight(r.Context(), insight)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// handleActionLog handles GET /api/v1/actions/log?limit=N
func (s *Server) handleActionLog(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultLogLimit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	entries := s.engine.Log(limit)
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

// handleActionStats handles GET /api/v1/actions/stats
func (s *Server) handleActionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Stats())
}

// handleRules handles GET /api/v1/actions/rules
func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"rules": s.engine.Rules().Rules()})
}

// handleActionHistory handles GET /api/v1/actions/history. It reads the
// persisted log, which outlives the in-memory ring buffer.
func (s *Server) handleActionHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody("action history is not enabled"))
		return
	}

	q := db.ActionQuery{
		InsightID: r.URL.Query().Get("insightId"),
		Action:    r.URL.Query().Get("action"),
		Status:    r.URL.Query().Get("status"),
	}
	var err error
	if q.Limit, err = queryInt(r, "limit", defaultLogLimit); err != nil {
		s.writeError(w, err)
		return
	}
	if q.Offset, err = queryInt(r, "offset", 0); err != nil {
		s.writeError(w, err)
		return
	}
	if q.From, err = queryTime(r, "from"); err != nil {
		s.writeError(w, err)
		return
	}
	if q.To, err = queryTime(r, "to"); err != nil {
		s.writeError(w, err)
		return
	}

	records, err := s.store.QueryActions(r.Context(), q)
	if err != nil {
		s.writeError(w, fmt.Errorf("query action history: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records, "count": len(records)})
}

// handleListApprovals handles GET /api/v1/approvals?status=pending
func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	status := automation.ApprovalStatus(r.URL.Query().Get("status"))
	approvals := s.engine.Approvals(status)
	writeJSON(w, http.StatusOK, map[string]any{"approvals": approvals, "count": len(approvals)})
}

// handleGetApproval handles GET /api/v1/approvals/{id}
func (s *Server) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	req, err := s.engine.Approval(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

type resolveRequest struct {
	Approver string `json:"approver"`
	Reason   string `json:"reason,omitempty"`
}

// handleApprove handles POST /api/v1/approvals/{id}/approve
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Approver == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("approver is required"))
		return
	}

	res, err := s.engine.Approve(r.Context(), r.PathValue("id"), req.Approver)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleReject handles POST /api/v1/approvals/{id}/reject
func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Approver == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("approver is required"))
		return
	}

	approval, err := s.engine.Reject(r.Context(), r.PathValue("id"), req.Approver, req.Reason)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, approval)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// statusFor maps engine and analytics errors to HTTP status codes.
func statusFor(err error) int {
	var invalid *models.ValidationError
	var insufficient *forecast.InsufficientDataError
	var unknown *automation.UnknownActionError
	switch {
	case errors.As(err, &invalid), errors.As(err, &insufficient), errors.As(err, &unknown):
		return http.StatusBadRequest
	case errors.Is(err, automation.ErrApprovalNotFound), errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, automation.ErrApprovalResolved):
		return http.StatusConflict
	case errors.Is(err, automation.ErrApprovalExpired):
		return http.StatusGone
	case errors.Is(err, automation.ErrEngineClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Int("status", status), zap.Error(err))
	}
	writeJSON(w, status, errorBody(err.Error()))
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// decodeJSON reads a JSON body into v, answering 400 itself on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("invalid request body: %v", err)))
		return false
	}
	return true
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, models.NewValidationError(key, "must be a non-negative integer")
	}
	return n, nil
}

func queryTime(r *http.Request, key string) (time.Time, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := models.ParseDate(raw)
	if err != nil {
		return time.Time{}, models.NewValidationError(key, "%v", err)
	}
	return t, nil
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
