// Package inferencer fills gaps in sparse action parameters with the help of
// the reasoning engine. It never fails a request: any problem yields no predictions.
package inferencer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"spokehub/internal/llm_client"
	"spokehub/internal/registry"
	"spokehub/internal/spoke"
)

const (
	defaultTimeout = 20 * time.Second
	temperature    = 0.3
)

var responseSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"predicted_parameters": map[string]any{"type": "object"},
	},
	"required": []string{"predicted_parameters"},
}

type Inferencer struct {
	llm     llm_client.Provider
	log     *zap.Logger
	now     func() time.Time
	loc     *time.Location
	timeout time.Duration
}

type Option func(*Inferencer)

func WithLogger(l *zap.Logger) Option { return func(i *Inferencer) { i.log = l } }

func WithClock(now func() time.Time) Option { return func(i *Inferencer) { i.now = now } }

func WithLocation(loc *time.Location) Option { return func(i *Inferencer) { i.loc = loc } }

func WithTimeout(d time.Duration) Option { return func(i *Inferencer) { i.timeout = d } }

func New(llm llm_client.Provider, opts ...Option) *Inferencer {
	i := &Inferencer{
		llm:     llm,
		log:     zap.NewNop(),
		now:     time.Now,
		loc:     time.UTC,
		timeout: defaultTimeout,
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Infer asks for the required parameters missing from partial. The result holds
// only declared required names that partial lacks; it is empty on any failure.
func (i *Inferencer) Infer(ctx context.Context, action registry.ActionDescriptor, partial spoke.Params, contextText string) spoke.Params {
	missing := MissingRequired(action, partial)
	if len(missing) == 0 || i.llm == nil {
		return spoke.Params{}
	}

	ictx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	raw, err := i.llm.GenerateJSON(ictx, llm_client.Request{
		System:      i.systemPrompt(),
		Prompt:      i.buildPrompt(action, partial, missing, contextText),
		Temperature: llm_client.Temperature(temperature),
	}, responseSchema)
	if err != nil {
		i.log.Warn("parameter inference failed", zap.String("action_type", action.ActionType), zap.Error(err))
		return spoke.Params{}
	}

	var reply struct {
		Predicted map[string]any `json:"predicted_parameters"`
	}
	if err := json.Unmarshal([]byte(llm_client.StripCodeFence(raw)), &reply); err != nil {
		i.log.Warn("parameter inference returned malformed JSON",
			zap.String("action_type", action.ActionType), zap.String("raw", raw), zap.Error(err))
		return spoke.Params{}
	}

	out := spoke.Params{}
	for _, name := range missing {
		v, ok := reply.Predicted[name]
		if !ok || isEmpty(v) {
			continue
		}
		out[name] = v
	}
	i.log.Debug("parameters inferred",
		zap.String("action_type", action.ActionType),
		zap.Strings("missing", missing),
		zap.Int("filled", len(out)))
	return out
}

func (i *Inferencer) systemPrompt() string {
	return "You complete parameters for an assistant action. Respond ONLY with JSON of the form " +
		`{"predicted_parameters": {...}}. Use ISO 8601 datetimes (YYYY-MM-DDTHH:MM:SS). ` +
		"Use null for any value you cannot determine, such as IDs that were not mentioned. Never invent parameter names."
}

func (i *Inferencer) buildPrompt(action registry.ActionDescriptor, partial spoke.Params, missing []string, contextText string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Current time: %s\n", i.now().In(i.loc).Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Action: %s: %s\n", action.ActionType, action.Description))

	sb.WriteString("Parameter schema:\n")
	for _, name := range action.ParameterNames() {
		p := action.Parameters[name]
		req := "optional"
		if p.Required {
			req = "required"
		}
		line := fmt.Sprintf("- %s (%s, %s)", name, p.Type, req)
		if p.Format != "" {
			line += " format " + p.Format
		}
		if p.Description != "" {
			line += ": " + p.Description
		}
		sb.WriteString(line + "\n")
	}

	known, _ := json.Marshal(partial)
	sb.WriteString(fmt.Sprintf("Known parameters: %s\n", known))
	sb.WriteString(fmt.Sprintf("Predict only: %s\n", strings.Join(missing, ", ")))
	if strings.TrimSpace(contextText) != "" {
		sb.WriteString(fmt.Sprintf("User request: %q\n", contextText))
	}
	return sb.String()
}

// MissingRequired lists required parameters that are absent, null or blank.
func MissingRequired(action registry.ActionDescriptor, params spoke.Params) []string {
	var out []string
	for _, name := range action.RequiredParameters() {
		if v, ok := params[name]; !ok || isEmpty(v) {
			out = append(out, name)
		}
	}
	return out
}

// Merge returns original with gaps filled from predicted. Known values always win.
func Merge(original, predicted spoke.Params) spoke.Params {
	out := make(spoke.Params, len(original)+len(predicted))
	for k, v := range predicted {
		out[k] = v
	}
	for k, v := range original {
		if isEmpty(v) {
			if _, ok := out[k]; ok {
				continue
			}
		}
		out[k] = v
	}
	return out
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}
