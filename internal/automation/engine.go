package automation

// Package automation turns insights into actions. A rule table decides
// whether an action runs immediately or waits for a human; every attempt
// lands in a bounded audit log.

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tablewise/tablewise-insights/internal/metrics"
)

// Sink receives audit entries and approval transitions as they happen.
// Implementations must be safe for concurrent use.
type Sink interface {
	Name() string
	RecordAction(ctx context.Context, entry LogEntry) error
	RecordApproval(ctx context.Context, req ApprovalRequest) error
}

// Options tunes the engine.
type Options struct {
	HandlerTimeout      time.Duration
	ApprovalTTL         time.Duration
	LogCapacity         int
	MaxPendingApprovals int
	// AutoExecPerMinute limits rule-driven executions in ProcessInsight.
	// Zero disables the limit.
	AutoExecPerMinute int
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		HandlerTimeout:      10 * time.Second,
		ApprovalTTL:         24 * time.Hour,
		LogCapacity:         DefaultLogCapacity,
		MaxPendingApprovals: DefaultMaxApprovals,
		AutoExecPerMinute:   30,
	}
}

// Engine routes actions through the rule table to the executors.
type Engine struct {
	rules     *RuleTable
	exec      Executors
	opts      Options
	log       *actionLog
	approvals *approvalStore
	limiter   *rate.Limiter
	sinks     []Sink
	logger    *zap.Logger
	now       func() time.Time
	closed    atomic.Bool
}

// NewEngine creates an Engine.
func NewEngine(rules *RuleTable, exec Executors, opts Options, logger *zap.Logger, sinks ...Sink) (*Engine, error) {
	if rules == nil {
		return nil, errors.New("rule table is required")
	}
	if err := exec.validate(); err != nil {
		return nil, err
	}
	def := DefaultOptions()
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = def.HandlerTimeout
	}
	if opts.ApprovalTTL <= 0 {
		opts.ApprovalTTL = def.ApprovalTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := newApprovalStore(opts.MaxPendingApprovals, logger)
	if err != nil {
		return nil, fmt.Errorf("create approval store: %w", err)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if opts.AutoExecPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.AutoExecPerMinute)), opts.AutoExecPerMinute)
	}

	return &Engine{
		rules:     rules,
		exec:      exec,
		opts:      opts,
		log:       newActionLog(opts.LogCapacity),
		approvals: store,
		limiter:   limiter,
		sinks:     sinks,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Rules returns the engine's rule table.
func (e *Engine) Rules() *RuleTable {
	return e.rules
}

// Execute runs action for insight, or files an approval request when the
// rule (or a missing rule) demands one and params are not approved.
// Expected outcomes, including handler failures, are reported through the
// Result status. Unknown actions and malformed params are returned as
// errors after being logged as failed attempts.
func (e *Engine) Execute(ctx context.Context, insight Insight, action string, params Params) (*Result, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	kind, err := ParseActionKind(action)
	if err != nil {
		e.recordFailure(ctx, insight.ID, action, params, err, "")
		return nil, err
	}

	rule, ok := e.rules.Lookup(insight.Category, kind)
	if (!ok || rule.RequiresApproval) && !params.Approved() {
		reason := "rule requires approval"
		if !ok {
			reason = "no rule for action"
		}
		return e.requestApproval(ctx, insight, kind, params, reason), nil
	}
	return e.run(ctx, insight.ID, kind, params, "", "")
}

// ProcessOutcome collects the results of ProcessInsight.
type ProcessOutcome struct {
	InsightID string       `json:"insightId"`
	Results   []*Result    `json:"results"`
	Skipped   []ActionKind `json:"skipped,omitempty"`
}

// ProcessInsight applies the rule table to each suggested action. Rules
// that require approval file requests; auto-execute rules run while the
// rate limit allows and are escalated to approval once it is exhausted;
// rules with neither flag are skipped.
func (e *Engine) ProcessInsight(ctx context.Context, insight Insight) (*ProcessOutcome, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	if insight.ID == "" {
		insight.ID = uuid.NewString()
	}
	out := &ProcessOutcome{InsightID: insight.ID}
	for _, sa := range insight.SuggestedActions {
		rule, ok := e.rules.Lookup(insight.Category, sa.Action)
		switch {
		case !sa.Action.Valid():
			res, err := e.Execute(ctx, insight, string(sa.Action), sa.Params)
			if err != nil {
				res = &Result{Status: StatusFailed, Action: sa.Action, InsightID: insight.ID, Error: err.Error()}
			}
			out.Results = append(out.Results, res)
		case !ok || rule.RequiresApproval:
			out.Results = append(out.Results, e.requestApproval(ctx, insight, sa.Action, sa.Params, "rule requires approval"))
		case rule.AutoExecute:
			if !e.limiter.Allow() {
				metrics.RateLimitedTotal.WithLabelValues("auto_execute").Inc()
				out.Results = append(out.Results, e.requestApproval(ctx, insight, sa.Action, sa.Params, "auto-execution rate limit reached"))
				continue
			}
			res, err := e.run(ctx, insight.ID, sa.Action, sa.Params, "", "")
			if err != nil {
				res = &Result{Status: StatusFailed, Action: sa.Action, InsightID: insight.ID, Error: err.Error()}
			}
			out.Results = append(out.Results, res)
		default:
			out.Skipped = append(out.Skipped, sa.Action)
		}
	}
	return out, nil
}

// Approve executes a pending request. An expired request is marked
// expired, logged as failed and reported with ErrApprovalExpired.
func (e *Engine) Approve(ctx context.Context, id, approver string) (*Result, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	now := e.now()
	expired := false
	req, err := e.approvals.update(id, func(r *ApprovalRequest) error {
		if r.Status != ApprovalPending {
			return ErrApprovalResolved
		}
		resolve(r, now, approver)
		if !now.Before(r.ExpiresAt) {
			r.Status = ApprovalExpired
			expired = true
			return nil
		}
		r.Status = ApprovalApproved
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("approve %s: %w", id, err)
	}
	e.notifyApproval(ctx, req)

	if expired {
		e.recordExpired(ctx, req, approver)
		return nil, fmt.Errorf("approve %s: %w", id, ErrApprovalExpired)
	}

	params := req.Params.Clone()
	params["approved"] = true
	res, runErr := e.run(ctx, req.InsightID, req.Action, params, req.ID, approver)

	final, _ := e.approvals.update(id, func(r *ApprovalRequest) error {
		switch {
		case runErr != nil:
			r.Status = ApprovalFailed
			r.Note = runErr.Error()
		case res.Success:
			r.Status = ApprovalExecuted
		default:
			r.Status = ApprovalFailed
			r.Note = res.Error
		}
		return nil
	})
	e.notifyApproval(ctx, final)

	if runErr != nil {
		return nil, runErr
	}
	res.Approval = &final
	return res, nil
}

// Reject declines a pending request and logs the rejection.
func (e *Engine) Reject(ctx context.Context, id, approver, reason string) (*ApprovalRequest, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}
	now := e.now()
	expired := false
	req, err := e.approvals.update(id, func(r *ApprovalRequest) error {
		if r.Status != ApprovalPending {
			return ErrApprovalResolved
		}
		resolve(r, now, approver)
		if !now.Before(r.ExpiresAt) {
			r.Status = ApprovalExpired
			expired = true
			return nil
		}
		r.Status = ApprovalRejected
		r.Note = reason
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reject %s: %w", id, err)
	}
	e.notifyApproval(ctx, req)

	if expired {
		e.recordExpired(ctx, req, approver)
		return nil, fmt.Errorf("reject %s: %w", id, ErrApprovalExpired)
	}

	e.record(ctx, LogEntry{
		ID:         uuid.NewString(),
		InsightID:  req.InsightID,
		Action:     string(req.Action),
		Params:     req.Params,
		Status:     StatusRejected,
		Error:      reason,
		ApprovalID: req.ID,
		Actor:      approver,
		Timestamp:  now,
	})
	return &req, nil
}

// Approval returns the request with id.
func (e *Engine) Approval(id string) (ApprovalRequest, error) {
	req, ok := e.approvals.get(id)
	if !ok {
		return ApprovalRequest{}, ErrApprovalNotFound
	}
	return req, nil
}

// Approvals lists requests with the given status, oldest first. Pending
// requests past their expiry are still listed as pending until someone
// acts on them.
func (e *Engine) Approvals(status ApprovalStatus) []ApprovalRequest {
	return e.approvals.list(status)
}

// Log returns up to limit audit entries, newest first.
func (e *Engine) Log(limit int) []LogEntry {
	return e.log.newest(limit)
}

// Stats derives statistics from the retained audit log.
func (e *Engine) Stats() Stats {
	return computeStats(e.log.newest(0))
}

// Close drops all approval requests. Further calls fail with
// ErrEngineClosed.
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.approvals.purge()
	metrics.PendingApprovals.Set(0)
	return nil
}

func (e *Engine) requestApproval(ctx context.Context, insight Insight, kind ActionKind, params Params, reason string) *Result {
	now := e.now()
	req := &ApprovalRequest{
		ID:        uuid.NewString(),
		InsightID: insight.ID,
		Category:  insight.Category,
		Action:    kind,
		Params:    params.Clone(),
		Impact:    insight.Impact,
		Reason:    reason,
		CreatedAt: now,
		ExpiresAt: now.Add(e.opts.ApprovalTTL),
		Status:    ApprovalPending,
	}
	e.approvals.add(req)
	snapshot := *req

	metrics.ActionsTotal.WithLabelValues(string(kind), string(StatusPendingApproval)).Inc()
	metrics.PendingApprovals.Set(float64(e.approvals.countPending()))
	e.logger.Info("Action awaiting approval",
		zap.String("approval_id", req.ID),
		zap.String("insight_id", insight.ID),
		zap.String("action", string(kind)),
		zap.String("reason", reason),
	)
	e.notifyApproval(ctx, snapshot)

	return &Result{
		Success:   false,
		Status:    StatusPendingApproval,
		Action:    kind,
		InsightID: insight.ID,
		Approval:  &snapshot,
	}
}

// run validates params, calls the handler under the timeout and records
// exactly one log entry.
func (e *Engine) run(ctx context.Context, insightID string, kind ActionKind, params Params, approvalID, actor string) (*Result, error) {
	if err := validateParams(kind, params); err != nil {
		e.recordFailure(ctx, insightID, string(kind), params, err, approvalID)
		return nil, err
	}

	start := time.Now()
	out, err := e.invoke(ctx, kind, params)
	elapsed := time.Since(start)
	metrics.ActionDuration.WithLabelValues(string(kind)).Observe(elapsed.Seconds())

	entry := LogEntry{
		ID:         uuid.NewString(),
		InsightID:  insightID,
		Action:     string(kind),
		Params:     params.Clone(),
		Status:     StatusExecuted,
		Result:     out,
		ApprovalID: approvalID,
		Actor:      actor,
		Timestamp:  e.now(),
		DurationMs: elapsed.Milliseconds(),
	}
	res := &Result{
		Success:    true,
		Status:     StatusExecuted,
		Action:     kind,
		InsightID:  insightID,
		Result:     out,
		DurationMs: elapsed.Milliseconds(),
	}
	if err != nil {
		entry.Status, entry.Error, entry.Result = StatusFailed, err.Error(), nil
		res.Success, res.Status, res.Error, res.Result = false, StatusFailed, err.Error(), nil
		e.logger.Warn("Action failed",
			zap.String("insight_id", insightID),
			zap.String("action", string(kind)),
			zap.Error(err),
		)
	} else {
		e.logger.Info("Action executed",
			zap.String("insight_id", insightID),
			zap.String("action", string(kind)),
			zap.Duration("duration", elapsed),
		)
	}
	e.record(ctx, entry)
	return res, nil
}

// invoke runs the handler in its own goroutine so a handler that ignores
// its context still cannot hold the caller past the timeout.
func (e *Engine) invoke(ctx context.Context, kind ActionKind, params Params) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.HandlerTimeout)
	defer cancel()

	type outcome struct {
		out map[string]any
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("%s handler panicked: %v", kind, r)}
			}
		}()
		out, err := e.dispatch(ctx, kind, params)
		done <- outcome{out: out, err: err}
	}()

	select {
	case o := <-done:
		return o.out, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%s after %s: %w", kind, e.opts.HandlerTimeout, ErrHandlerTimeout)
		}
		return nil, ctx.Err()
	}
}

func (e *Engine) recordFailure(ctx context.Context, insightID, action string, params Params, err error, approvalID string) {
	e.logger.Warn("Action rejected before execution",
		zap.String("insight_id", insightID),
		zap.String("action", action),
		zap.Error(err),
	)
	e.record(ctx, LogEntry{
		ID:         uuid.NewString(),
		InsightID:  insightID,
		Action:     action,
		Params:     params.Clone(),
		Status:     StatusFailed,
		Error:      err.Error(),
		ApprovalID: approvalID,
		Timestamp:  e.now(),
	})
}

func (e *Engine) recordExpired(ctx context.Context, req ApprovalRequest, actor string) {
	e.record(ctx, LogEntry{
		ID:         uuid.NewString(),
		InsightID:  req.InsightID,
		Action:     string(req.Action),
		Params:     req.Params,
		Status:     StatusExpired,
		Error:      ErrApprovalExpired.Error(),
		ApprovalID: req.ID,
		Actor:      actor,
		Timestamp:  e.now(),
	})
}

// record appends to the ring buffer and forwards to sinks. Sink failures
// are logged and counted only.
func (e *Engine) record(ctx context.Context, entry LogEntry) {
	e.log.append(entry)
	metrics.ActionsTotal.WithLabelValues(entry.Action, string(entry.Status)).Inc()
	for _, s := range e.sinks {
		if err := s.RecordAction(ctx, entry); err != nil {
			metrics.SinkErrorsTotal.WithLabelValues(s.Name()).Inc()
			e.logger.Warn("Audit sink failed", zap.String("sink", s.Name()), zap.Error(err))
		}
	}
}

func (e *Engine) notifyApproval(ctx context.Context, req ApprovalRequest) {
	if req.Status != ApprovalPending {
		metrics.PendingApprovals.Set(float64(e.approvals.countPending()))
	}
	for _, s := range e.sinks {
		if err := s.RecordApproval(ctx, req); err != nil {
			metrics.SinkErrorsTotal.WithLabelValues(s.Name()).Inc()
			e.logger.Warn("Audit sink failed", zap.String("sink", s.Name()), zap.Error(err))
		}
	}
}

func resolve(r *ApprovalRequest, at time.Time, by string) {
	t := at
	r.ResolvedAt = &t
	r.ResolvedBy = by
}
