package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"spokehub/internal/inferencer"
	"spokehub/internal/loader"
	"spokehub/internal/metrics"
	"spokehub/internal/planner"
	"spokehub/internal/registry"
	"spokehub/internal/spoke"
)

const defaultActionTimeout = 30 * time.Second

// Inferencer predicts missing required parameters.
type Inferencer interface {
	Infer(ctx context.Context, action registry.ActionDescriptor, partial spoke.Params, contextText string) spoke.Params
}

type StepResult struct {
	Action  planner.NextAction    `json:"action"`
	Result  spoke.Result          `json:"result"`
	Metrics metrics.ActionMetrics `json:"metrics"`
}

type handlerKey struct {
	integration string
	principal   string
}

// Executor runs one request's plan. Handlers are built lazily and cached per
// (integration, principal) for the lifetime of the Executor.
type Executor struct {
	caps     *loader.Capabilities
	inf      Inferencer
	log      *zap.Logger
	tracer   trace.Tracer
	recorder *metrics.Recorder
	timeout  time.Duration
	infer    bool

	mu       sync.Mutex
	handlers map[handlerKey]spoke.Handler
}

type Option func(*Executor)

func WithLogger(l *zap.Logger) Option { return func(e *Executor) { e.log = l } }

func WithRecorder(r *metrics.Recorder) Option { return func(e *Executor) { e.recorder = r } }

func WithTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithInference toggles parameter inference for actions with missing required values.
func WithInference(on bool) Option { return func(e *Executor) { e.infer = on } }

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Executor) { e.tracer = tp.Tracer("spokehub/executor") }
}

func New(caps *loader.Capabilities, inf Inferencer, opts ...Option) *Executor {
	e := &Executor{
		caps:     caps,
		inf:      inf,
		log:      zap.NewNop(),
		tracer:   otel.Tracer("spokehub/executor"),
		timeout:  defaultActionTimeout,
		infer:    true,
		handlers: make(map[handlerKey]spoke.Handler),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run executes plan.Actions in ascending priority, keeping plan order among equals.
// A failed priority-1 action stops the run. The error is non-nil only when ctx
// ended before the run completed; the results gathered so far are returned with it.
func (e *Executor) Run(ctx context.Context, plan planner.ActionPlan, principal string) ([]StepResult, error) {
	ctx, span := e.tracer.Start(ctx, "Executor.Run",
		trace.WithAttributes(
			attribute.String("principal", principal),
			attribute.Int("plan.actions", len(plan.Actions)),
		))
	defer span.End()

	ordered := make([]planner.NextAction, len(plan.Actions))
	copy(ordered, plan.Actions)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority < ordered[j].Priority })

	results := make([]StepResult, 0, len(ordered))
	for _, action := range ordered {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return results, err
		}

		step := e.runAction(ctx, action, plan.Analysis, principal)
		results = append(results, step)

		if !step.Result.Success && action.Priority == 1 {
			e.log.Info("priority 1 action failed, stopping plan",
				zap.String("action_type", action.ActionType),
				zap.Int("skipped", len(ordered)-len(results)))
			span.AddEvent("early_stop", trace.WithAttributes(attribute.String("action_type", action.ActionType)))
			break
		}
	}
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return results, err
	}
	return results, nil
}

func (e *Executor) runAction(ctx context.Context, action planner.NextAction, analysis, principal string) (step StepResult) {
	step.Action = action
	am := metrics.ActionMetrics{ActionType: action.ActionType, Priority: action.Priority, Start: time.Now()}

	ctx, span := e.tracer.Start(ctx, "Executor.Action",
		trace.WithAttributes(
			attribute.String("action_type", action.ActionType),
			attribute.Int("priority", action.Priority),
		))

	defer func() {
		// a panicking handler fails only its own action
		if rec := recover(); rec != nil {
			step.Result = spoke.Fail(fmt.Errorf("Error executing action %s: panic: %v", action.ActionType, rec))
		}
		am.End = time.Now()
		am.Finalize()
		am.Success = step.Result.Success
		am.Err = step.Result.Error
		step.Metrics = am

		span.SetAttributes(attribute.Bool("success", am.Success))
		if !am.Success {
			span.SetStatus(codes.Error, am.Err)
		}
		span.End()

		e.recorder.ObserveAction(am)
		e.logExecution(action, principal, am)
	}()

	integration, ok := e.caps.Registry.IntegrationFor(action.ActionType)
	if !ok {
		step.Result = spoke.Fail(fmt.Errorf("no integration found for action type: %s", action.ActionType))
		return step
	}
	am.Integration = integration
	span.SetAttributes(attribute.String("integration", integration))

	handler, err := e.handler(ctx, integration, principal)
	if err != nil {
		step.Result = spoke.Fail(err)
		return step
	}

	params := action.Parameters
	if params == nil {
		params = spoke.Params{}
	}
	if e.infer && e.inf != nil {
		if desc, ok := e.caps.Registry.ActionDescriptor(action.ActionType); ok {
			params, am.Inferred = e.fillMissing(ctx, desc, params, action.Description, analysis)
		}
	}
	step.Action.Parameters = params

	actx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	res := handler.Execute(actx, action.ActionType, params)
	if !res.Success && errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		res = spoke.Fail(fmt.Errorf("action %s timed out after %s", action.ActionType, e.timeout))
	}
	step.Result = res
	return step
}

func (e *Executor) fillMissing(ctx context.Context, desc registry.ActionDescriptor, params spoke.Params, description, analysis string) (spoke.Params, []string) {
	missing := inferencer.MissingRequired(desc, params)
	if len(missing) == 0 {
		return params, nil
	}
	contextText := strings.TrimSpace(description + "\n" + analysis)
	predicted := e.inf.Infer(ctx, desc, params, contextText)
	if len(predicted) == 0 {
		return params, nil
	}

	merged := inferencer.Merge(params, predicted)
	var filled []string
	for _, name := range missing {
		if _, ok := predicted[name]; ok {
			filled = append(filled, name)
		}
	}
	e.log.Debug("parameters inferred",
		zap.String("action_type", desc.ActionType), zap.Strings("filled", filled))
	return merged, filled
}

func (e *Executor) handler(ctx context.Context, integration, principal string) (spoke.Handler, error) {
	key := handlerKey{integration: integration, principal: principal}

	e.mu.Lock()
	defer e.mu.Unlock()
	if h, ok := e.handlers[key]; ok {
		return h, nil
	}
	f, ok := e.caps.Factory(integration)
	if !ok {
		return nil, fmt.Errorf("no handler bound for integration: %s", integration)
	}
	h, err := f.New(ctx, principal)
	if err != nil {
		return nil, err
	}
	e.handlers[key] = h
	return h, nil
}

// logExecution writes the structured per-action execution record.
func (e *Executor) logExecution(action planner.NextAction, principal string, am metrics.ActionMetrics) {
	fields := []zap.Field{
		zap.String("action_type", action.ActionType),
		zap.String("integration", am.Integration),
		zap.String("principal", principal),
		zap.Int("priority", action.Priority),
		zap.Bool("success", am.Success),
		zap.Int64("duration_ms", am.DurationMs),
	}
	if len(am.Inferred) > 0 {
		fields = append(fields, zap.Strings("inferred", am.Inferred))
	}
	if !am.Success {
		e.log.Warn("action executed", append(fields, zap.String("error", am.Err))...)
		return
	}
	e.log.Info("action executed", fields...)
}
