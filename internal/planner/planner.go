// Package planner turns a natural-language request into an ordered ActionPlan
// drawn from the capability registry.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"spokehub/internal/llm_client"
	"spokehub/internal/registry"
	"spokehub/internal/spoke"
)

const (
	UnknownAction = "unknown"

	temperature = 0.2
)

type NextAction struct {
	ActionType  string       `json:"action_type"`
	Parameters  spoke.Params `json:"parameters"`
	Priority    int          `json:"priority"`
	Description string       `json:"description"`
}

type ActionPlan struct {
	Actions    []NextAction `json:"actions"`
	Analysis   string       `json:"analysis"`
	Confidence float64      `json:"confidence"`
}

// Turn is one prior message of the conversation.
type Turn struct {
	Role    string
	Content string
}

// Analysis lifecycle, recorded as span events.
const (
	stateIdle        = "idle"
	statePromptBuilt = "prompt_built"
	stateModelCalled = "model_called"
	stateParsed      = "parsed"
	stateParseFailed = "parse_failed"
	stateValidated   = "validated"
	stateDone        = "done"
)

var userIDMarker = regexp.MustCompile(`\[USER_ID:\s*(\d+)\]`)

var planSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"actions": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"action_type": map[string]any{"type": "string"},
					"parameters":  map[string]any{"type": "object"},
					"priority":    map[string]any{"type": "integer"},
					"description": map[string]any{"type": "string"},
				},
				"required": []string{"action_type", "parameters", "priority"},
			},
		},
		"analysis":   map[string]any{"type": "string"},
		"confidence": map[string]any{"type": "number"},
	},
	"required": []string{"actions", "analysis", "confidence"},
}

type Planner struct {
	reg    *registry.Registry
	llm    llm_client.Provider
	log    *zap.Logger
	tracer trace.Tracer
	now    func() time.Time
	loc    *time.Location
}

type Option func(*Planner)

func WithLogger(l *zap.Logger) Option { return func(p *Planner) { p.log = l } }

func WithClock(now func() time.Time) Option { return func(p *Planner) { p.now = now } }

func WithLocation(loc *time.Location) Option { return func(p *Planner) { p.loc = loc } }

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Planner) { p.tracer = tp.Tracer("spokehub/planner") }
}

func New(reg *registry.Registry, llm llm_client.Provider, opts ...Option) *Planner {
	p := &Planner{
		reg:    reg,
		llm:    llm,
		log:    zap.NewNop(),
		tracer: otel.Tracer("spokehub/planner"),
		now:    time.Now,
		loc:    time.UTC,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Analyze asks the model for a plan. It never returns an error: a failed call or
// an unreadable reply yields a single unknown action with zero confidence.
func (p *Planner) Analyze(ctx context.Context, prompt, principal string, history []Turn) ActionPlan {
	ctx, span := p.tracer.Start(ctx, "Planner.Analyze",
		trace.WithAttributes(attribute.String("principal", principal)))
	defer span.End()
	p.state(span, stateIdle)

	if p.reg == nil || p.reg.Len() == 0 {
		p.state(span, stateDone)
		return ActionPlan{Actions: []NextAction{}, Analysis: "No actions are available."}
	}

	principal = PrincipalFromPrompt(prompt, principal)
	system := p.systemPrompt(principal, history)
	p.state(span, statePromptBuilt)

	raw, err := p.llm.GenerateJSON(ctx, llm_client.Request{
		System:      system,
		Prompt:      prompt,
		Temperature: llm_client.Temperature(temperature),
	}, planSchema)
	p.state(span, stateModelCalled)
	if err != nil {
		p.log.Error("planner model call failed", zap.String("principal", principal), zap.Error(err))
		p.state(span, stateParseFailed)
		return degenerate(fmt.Errorf("failed to generate plan: %w", err))
	}

	plan, err := decode(raw)
	if err != nil {
		p.log.Error("planner reply is not a valid plan", zap.String("raw", raw), zap.Error(err))
		p.state(span, stateParseFailed)
		return degenerate(err)
	}
	p.state(span, stateParsed)

	p.validate(&plan)
	p.state(span, stateValidated)

	span.SetAttributes(
		attribute.Int("plan.actions", len(plan.Actions)),
		attribute.Float64("plan.confidence", plan.Confidence),
	)
	p.state(span, stateDone)
	return plan
}

func (p *Planner) state(span trace.Span, s string) {
	span.AddEvent(s)
	p.log.Debug("planner state", zap.String("state", s))
}

// PrincipalFromPrompt returns the id of a [USER_ID: n] marker in prompt, or fallback.
func PrincipalFromPrompt(prompt, fallback string) string {
	if m := userIDMarker.FindStringSubmatch(prompt); m != nil {
		return m[1]
	}
	return fallback
}

func degenerate(err error) ActionPlan {
	return ActionPlan{
		Actions:    []NextAction{{ActionType: UnknownAction, Parameters: spoke.Params{}, Priority: 1}},
		Analysis:   err.Error(),
		Confidence: 0,
	}
}

// wirePlan tolerates numbers where integers are expected and absent fields.
type wirePlan struct {
	Actions []struct {
		ActionType  string         `json:"action_type"`
		Parameters  map[string]any `json:"parameters"`
		Priority    *float64       `json:"priority"`
		Description string         `json:"description"`
	} `json:"actions"`
	Analysis   string   `json:"analysis"`
	Confidence *float64 `json:"confidence"`
}

func decode(raw string) (ActionPlan, error) {
	clean := llm_client.StripCodeFence(raw)
	if clean == "" {
		return ActionPlan{}, fmt.Errorf("error parsing generated plan JSON: empty response")
	}
	var w wirePlan
	if err := json.Unmarshal([]byte(clean), &w); err != nil {
		return ActionPlan{}, fmt.Errorf("error parsing generated plan JSON: %w", err)
	}

	plan := ActionPlan{Actions: make([]NextAction, 0, len(w.Actions)), Analysis: w.Analysis}
	if w.Confidence != nil {
		plan.Confidence = *w.Confidence
	}
	for _, a := range w.Actions {
		na := NextAction{
			ActionType:  strings.TrimSpace(a.ActionType),
			Parameters:  a.Parameters,
			Description: a.Description,
		}
		if a.Priority != nil {
			na.Priority = priorityOf(*a.Priority)
		}
		plan.Actions = append(plan.Actions, na)
	}
	return plan, nil
}

// priorityOf truncates a wire priority, capping huge values at math.MaxInt32.
// NaN and anything below 1 are left for validate to raise to 1.
func priorityOf(f float64) int {
	switch {
	case math.IsNaN(f) || f < 1:
		return 0
	case f > math.MaxInt32:
		return math.MaxInt32
	}
	return int(f)
}

func (p *Planner) validate(plan *ActionPlan) {
	for i := range plan.Actions {
		a := &plan.Actions[i]
		if a.Parameters == nil {
			a.Parameters = spoke.Params{}
		}
		if a.Priority < 1 {
			a.Priority = 1
		}
		if a.ActionType != UnknownAction && !p.reg.Has(a.ActionType) {
			p.log.Warn("planner produced an unknown action type",
				zap.String("action_type", a.ActionType), zap.Any("parameters", a.Parameters))
			a.ActionType = UnknownAction
		}
	}
	switch {
	case plan.Confidence < 0:
		plan.Confidence = 0
	case plan.Confidence > 1:
		plan.Confidence = 1
	}
}

func (p *Planner) systemPrompt(principal string, history []Turn) string {
	var sb strings.Builder

	sb.WriteString("You are the operator of a personal assistant. Convert the user's request into a STRICT JSON action plan.\n")
	sb.WriteString("Respond ONLY with JSON. No extra text.\n\n")

	sb.WriteString("OUTPUT JSON SCHEMA:\n")
	sb.WriteString("{\"actions\": [{\"action_type\": \"<one of the available actions>\", \"parameters\": {}, \"priority\": <int, 1 = most important>, \"description\": \"<string>\"}], \"analysis\": \"<string>\", \"confidence\": <number 0..1>}\n\n")

	sb.WriteString("RULES:\n")
	sb.WriteString("- Use ONLY the action types listed below. If nothing fits, return an empty actions array and explain in analysis.\n")
	sb.WriteString("- Actions run in priority order. Priority 1 actions are essential: if one fails the rest are skipped.\n")
	sb.WriteString("- Datetimes use ISO 8601 without offset (YYYY-MM-DDTHH:MM:SS) in the user's time zone.\n")
	sb.WriteString("- Fill every parameter you can infer from the request. Do NOT invent IDs that were not mentioned.\n")
	sb.WriteString("- confidence reflects how sure you are that the plan matches the request.\n\n")

	sb.WriteString(p.reg.PromptSection(principal))
	sb.WriteString("\n")

	now := p.now().In(p.loc)
	sb.WriteString(fmt.Sprintf("CURRENT TIME: %s (%s, %s)\n", now.Format("2006-01-02T15:04:05"), now.Weekday(), p.loc))
	sb.WriteString(fmt.Sprintf("USER ID: %s\n", principal))

	if len(history) > 0 {
		sb.WriteString("\nCONVERSATION HISTORY (context):\n")
		for _, t := range history {
			sb.WriteString(fmt.Sprintf("%s: %s\n", strings.ToUpper(t.Role), t.Content))
		}
	}
	return sb.String()
}
