package planner

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"spokehub/internal/llm_client/llmtest"
	"spokehub/internal/registry"
	"spokehub/internal/spoke"
)

func testRegistry() *registry.Registry {
	return registry.New([]registry.IntegrationDescriptor{
		{
			IntegrationName: "google_calendar",
			DisplayName:     "Google Calendar",
			Actions: []registry.ActionDescriptor{
				{
					ActionType:  "get_calendar_events",
					Description: "List events in a period.",
					Keywords:    []string{"schedule", "events"},
					Parameters: map[string]registry.ParameterSchema{
						"start_date": {Type: "string", Required: true, Format: "datetime"},
						"end_date":   {Type: "string", Required: true, Format: "datetime"},
					},
				},
			},
		},
		{
			IntegrationName: "todo_list",
			Actions: []registry.ActionDescriptor{
				{ActionType: "add_todo", Description: "Add a todo."},
			},
		},
	})
}

var tokyo = time.FixedZone("Asia/Tokyo", 9*60*60)

func clock() time.Time { return time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC) }

func TestAnalyzeTomorrowsEvents(t *testing.T) {
	fake := llmtest.New(llmtest.Text(`{
		"actions": [{
			"action_type": "get_calendar_events",
			"parameters": {"start_date": "2024-01-02T00:00:00", "end_date": "2024-01-02T23:59:59"},
			"priority": 1,
			"description": "Fetch tomorrow's events"
		}],
		"analysis": "User wants tomorrow's schedule.",
		"confidence": 0.9
	}`))
	p := New(testRegistry(), fake, WithClock(clock), WithLocation(tokyo))

	plan := p.Analyze(context.Background(), "show me tomorrow's events", "42", []Turn{{Role: "user", Content: "hi"}})

	require.Len(t, plan.Actions, 1)
	a := plan.Actions[0]
	assert.Equal(t, "get_calendar_events", a.ActionType)
	assert.Equal(t, 1, a.Priority)
	assert.Equal(t, "2024-01-02T00:00:00", a.Parameters["start_date"])
	assert.InDelta(t, 0.9, plan.Confidence, 1e-9)

	require.Equal(t, 1, fake.CallCount())
	call := fake.Calls[0]
	assert.True(t, call.JSON)
	assert.Equal(t, "show me tomorrow's events", call.Request.Prompt)
	assert.Contains(t, call.Request.System, "AVAILABLE ACTIONS:")
	assert.Contains(t, call.Request.System, "get_calendar_events")
	assert.Contains(t, call.Request.System, "CURRENT TIME: 2024-01-01T10:00:00 (Monday, Asia/Tokyo)")
	assert.Contains(t, call.Request.System, "USER ID: 42")
	assert.Contains(t, call.Request.System, "USER: hi")
}

func TestAnalyzeValidation(t *testing.T) {
	testCases := []struct {
		name  string
		reply string
		check func(t *testing.T, plan ActionPlan)
	}{
		{
			name:  "unknown action coerced",
			reply: `{"actions":[{"action_type":"launch_rocket","parameters":{"x":1},"priority":1}],"analysis":"a","confidence":0.5}`,
			check: func(t *testing.T, plan ActionPlan) {
				require.Len(t, plan.Actions, 1)
				assert.Equal(t, UnknownAction, plan.Actions[0].ActionType)
				assert.Equal(t, spoke.Params{"x": float64(1)}, plan.Actions[0].Parameters)
			},
		},
		{
			name:  "priority defaulted",
			reply: `{"actions":[{"action_type":"add_todo","parameters":null},{"action_type":"add_todo","parameters":{},"priority":-3}],"analysis":"a","confidence":0.5}`,
			check: func(t *testing.T, plan ActionPlan) {
				require.Len(t, plan.Actions, 2)
				for _, a := range plan.Actions {
					assert.Equal(t, 1, a.Priority)
					assert.NotNil(t, a.Parameters)
				}
			},
		},
		{
			name:  "huge priority stays least important",
			reply: `{"actions":[{"action_type":"add_todo","parameters":{},"priority":1e20},{"action_type":"add_todo","parameters":{},"priority":2.9}],"analysis":"a","confidence":0.5}`,
			check: func(t *testing.T, plan ActionPlan) {
				require.Len(t, plan.Actions, 2)
				assert.Equal(t, math.MaxInt32, plan.Actions[0].Priority)
				assert.Equal(t, 2, plan.Actions[1].Priority)
			},
		},
		{
			name:  "confidence clamped high",
			reply: `{"actions":[],"analysis":"a","confidence":7}`,
			check: func(t *testing.T, plan ActionPlan) {
				assert.Equal(t, 1.0, plan.Confidence)
				assert.Empty(t, plan.Actions)
			},
		},
		{
			name:  "confidence clamped low",
			reply: `{"actions":[],"analysis":"a","confidence":-0.4}`,
			check: func(t *testing.T, plan ActionPlan) {
				assert.Equal(t, 0.0, plan.Confidence)
			},
		},
		{
			name:  "code fence stripped",
			reply: "```json\n{\"actions\":[{\"action_type\":\"add_todo\",\"parameters\":{\"title\":\"milk\"},\"priority\":2}],\"analysis\":\"a\",\"confidence\":0.8}\n```",
			check: func(t *testing.T, plan ActionPlan) {
				require.Len(t, plan.Actions, 1)
				assert.Equal(t, 2, plan.Actions[0].Priority)
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := New(testRegistry(), llmtest.New(llmtest.Text(tc.reply)))
			tc.check(t, p.Analyze(context.Background(), "do it", "1", nil))
		})
	}
}

func TestAnalyzeDegenerates(t *testing.T) {
	testCases := []struct {
		name     string
		reply    llmtest.Reply
		contains string
	}{
		{"malformed json", llmtest.Text(`{"actions": [`), "error parsing generated plan JSON"},
		{"empty reply", llmtest.Text("  "), "empty response"},
		{"model error", llmtest.Fail(errors.New("quota exceeded")), "quota exceeded"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := New(testRegistry(), llmtest.New(tc.reply))
			plan := p.Analyze(context.Background(), "??", "1", nil)

			require.Len(t, plan.Actions, 1)
			assert.Equal(t, UnknownAction, plan.Actions[0].ActionType)
			assert.Equal(t, 1, plan.Actions[0].Priority)
			assert.Zero(t, plan.Confidence)
			assert.Contains(t, plan.Analysis, tc.contains)
		})
	}
}

func TestAnalyzeEmptyRegistrySkipsModel(t *testing.T) {
	fake := llmtest.New()
	p := New(registry.New(nil), fake)

	plan := p.Analyze(context.Background(), "show me tomorrow's events", "1", nil)
	assert.Empty(t, plan.Actions)
	assert.Zero(t, fake.CallCount())
}

func TestPrincipalFromPrompt(t *testing.T) {
	testCases := []struct {
		prompt string
		want   string
	}{
		{"[USER_ID: 7] list my todos", "7"},
		{"list my todos [USER_ID:12]", "12"},
		{"list my todos", "fallback"},
		{"[USER_ID: abc] nope", "fallback"},
	}
	for _, tc := range testCases {
		t.Run(tc.prompt, func(t *testing.T) {
			assert.Equal(t, tc.want, PrincipalFromPrompt(tc.prompt, "fallback"))
		})
	}
}

func TestAnalyzeUsesMarkedPrincipal(t *testing.T) {
	fake := llmtest.New(llmtest.Text(`{"actions":[],"analysis":"a","confidence":1}`))
	p := New(testRegistry(), fake)

	p.Analyze(context.Background(), "[USER_ID: 99] what's up", "1", nil)
	require.Equal(t, 1, fake.CallCount())
	assert.Contains(t, fake.Calls[0].Request.System, "USER ID: 99")
}

func TestAnalyzeRecordsStates(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	testCases := []struct {
		name  string
		reply llmtest.Reply
		want  []string
	}{
		{
			name:  "parsed",
			reply: llmtest.Text(`{"actions":[],"analysis":"a","confidence":1}`),
			want:  []string{stateIdle, statePromptBuilt, stateModelCalled, stateParsed, stateValidated, stateDone},
		},
		{
			name:  "parse failed",
			reply: llmtest.Text(`not json`),
			want:  []string{stateIdle, statePromptBuilt, stateModelCalled, stateParseFailed},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p := New(testRegistry(), llmtest.New(tc.reply), WithTracerProvider(tp))
			p.Analyze(context.Background(), "x", "1", nil)

			spans := sr.Ended()
			require.NotEmpty(t, spans)
			last := spans[len(spans)-1]
			assert.Equal(t, "Planner.Analyze", last.Name())

			var got []string
			for _, e := range last.Events() {
				got = append(got, e.Name)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}
