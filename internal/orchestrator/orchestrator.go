// Package orchestrator is the single entry point of the assistant: it plans a
// request, runs the plan and folds the per-action outcomes into one response.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"spokehub/internal/executor"
	"spokehub/internal/llm_client"
	"spokehub/internal/metrics"
	"spokehub/internal/planner"
	"spokehub/internal/spoke"
	"spokehub/internal/store"
)

type Planner interface {
	Analyze(ctx context.Context, prompt, principal string, history []planner.Turn) planner.ActionPlan
}

type Runner interface {
	Run(ctx context.Context, plan planner.ActionPlan, principal string) ([]executor.StepResult, error)
}

// HistoryStore keeps the conversation per principal.
type HistoryStore interface {
	Append(ctx context.Context, principal, role, content string) (store.ChatMessage, error)
	Recent(ctx context.Context, principal string, limit int) ([]store.ChatMessage, error)
}

type ActionResult = spoke.Result

type PlanSummary struct {
	Analysis       string  `json:"analysis"`
	Confidence     float64 `json:"confidence"`
	ActionsPlanned int     `json:"actions_planned"`
}

type Response struct {
	RequestID        string                  `json:"request_id"`
	Success          bool                    `json:"success"`
	Error            string                  `json:"error,omitempty"`
	Plan             *PlanSummary            `json:"operator_response"`
	ExecutionResults []ActionResult          `json:"execution_results"`
	Summary          Summary                 `json:"summary"`
	Metrics          *metrics.RequestMetrics `json:"metrics,omitempty"`
}

type Orchestrator struct {
	planner      Planner
	newRunner    func() Runner
	llm          llm_client.Provider
	history      HistoryStore
	historyLimit int
	log          *zap.Logger
	tracer       trace.Tracer
	recorder     *metrics.Recorder
}

type Option func(*Orchestrator)

func WithLogger(l *zap.Logger) Option { return func(o *Orchestrator) { o.log = l } }

func WithRecorder(r *metrics.Recorder) Option { return func(o *Orchestrator) { o.recorder = r } }

// WithSynthesis enables the natural-language answer written from the results.
func WithSynthesis(llm llm_client.Provider) Option { return func(o *Orchestrator) { o.llm = llm } }

// WithHistory records each exchange and feeds the last turns to the planner.
func WithHistory(h HistoryStore, turns int) Option {
	return func(o *Orchestrator) {
		o.history = h
		o.historyLimit = turns
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) { o.tracer = tp.Tracer("spokehub/orchestrator") }
}

// New composes a planner with a Runner factory. newRunner is called once per
// request so handler caches never outlive it.
func New(p Planner, newRunner func() Runner, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		planner:   p,
		newRunner: newRunner,
		log:       zap.NewNop(),
		tracer:    otel.Tracer("spokehub/orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Process never panics and never returns a partial success: a panic or an
// ended ctx anywhere in the pipeline yields the failure envelope.
func (o *Orchestrator) Process(ctx context.Context, prompt, principal string) (resp Response) {
	rm := &metrics.RequestMetrics{RequestID: uuid.NewString(), Start: time.Now()}

	ctx, span := o.tracer.Start(ctx, "Orchestrator.Process",
		trace.WithAttributes(
			attribute.String("request_id", rm.RequestID),
			attribute.String("principal", principal),
		))
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			o.log.Error("panic while processing request",
				zap.String("request_id", rm.RequestID), zap.Any("panic", rec), zap.Stack("stack"))
			resp = failure(rm.RequestID, fmt.Errorf("panic: %v", rec))
		}
		rm.End = time.Now()
		rm.Finalize()
		rm.Status = resp.Summary.OverallStatus
		resp.Metrics = rm
		o.recorder.ObserveRequest(*rm)

		span.SetAttributes(attribute.String("overall_status", rm.Status))
		if !resp.Success {
			span.SetStatus(codes.Error, resp.Error)
		}
		o.log.Info("request processed",
			zap.String("request_id", rm.RequestID),
			zap.String("principal", principal),
			zap.Bool("success", resp.Success),
			zap.String("overall_status", rm.Status),
			zap.Int64("duration_ms", rm.DurationMs))
	}()

	if err := ctx.Err(); err != nil {
		return failure(rm.RequestID, err)
	}

	history := o.recentTurns(ctx, principal)
	plan := o.planner.Analyze(ctx, prompt, principal, history)
	rm.Planned = len(plan.Actions)
	if err := ctx.Err(); err != nil {
		return failure(rm.RequestID, err)
	}

	steps, err := o.newRunner().Run(ctx, plan, principal)
	for _, s := range steps {
		rm.Actions = append(rm.Actions, s.Metrics)
	}
	if err != nil {
		return failure(rm.RequestID, err)
	}

	summary := Summarize(plan, steps)
	if o.llm != nil {
		summary.Text = o.synthesize(ctx, prompt, plan, summary)
	}
	if err := ctx.Err(); err != nil {
		return failure(rm.RequestID, err)
	}
	o.remember(ctx, principal, prompt, summary)

	results := make([]ActionResult, 0, len(steps))
	for _, s := range steps {
		results = append(results, s.Result)
	}
	return Response{
		RequestID: rm.RequestID,
		Success:   true,
		Plan: &PlanSummary{
			Analysis:       plan.Analysis,
			Confidence:     plan.Confidence,
			ActionsPlanned: len(plan.Actions),
		},
		ExecutionResults: results,
		Summary:          summary,
	}
}

func failure(requestID string, err error) Response {
	return Response{
		RequestID:        requestID,
		Success:          false,
		Error:            "Processing error: " + err.Error(),
		ExecutionResults: []ActionResult{},
		Summary: Summary{
			FailedActions: 1,
			OverallStatus: StatusFailed,
			Results:       []ResultData{},
		},
	}
}

func (o *Orchestrator) recentTurns(ctx context.Context, principal string) []planner.Turn {
	if o.history == nil || o.historyLimit <= 0 {
		return nil
	}
	msgs, err := o.history.Recent(ctx, principal, o.historyLimit*2)
	if err != nil {
		o.log.Warn("failed to load chat history", zap.String("principal", principal), zap.Error(err))
		return nil
	}
	turns := make([]planner.Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, planner.Turn{Role: m.Role, Content: m.Content})
	}
	return turns
}

func (o *Orchestrator) remember(ctx context.Context, principal, prompt string, summary Summary) {
	if o.history == nil {
		return
	}
	answer := summary.Text
	if answer == "" {
		answer = fmt.Sprintf("%d of %d actions succeeded (%s).",
			summary.SuccessfulActions, summary.TotalActions, summary.OverallStatus)
	}
	for _, m := range []struct{ role, content string }{
		{store.RoleUser, prompt},
		{store.RoleAssistant, answer},
	} {
		if _, err := o.history.Append(ctx, principal, m.role, m.content); err != nil {
			o.log.Warn("failed to record chat message", zap.String("principal", principal), zap.Error(err))
			return
		}
	}
}
