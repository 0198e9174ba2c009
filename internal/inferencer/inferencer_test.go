package inferencer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spokehub/internal/llm_client"
	"spokehub/internal/llm_client/llmtest"
	"spokehub/internal/registry"
	"spokehub/internal/spoke"
)

var getEvents = registry.ActionDescriptor{
	ActionType:  "get_events",
	Description: "List events in a period.",
	Parameters: map[string]registry.ParameterSchema{
		"start_date":  {Type: "string", Required: true, Format: "datetime"},
		"end_date":    {Type: "string", Required: true, Format: "datetime"},
		"calendar_id": {Type: "string"},
	},
}

func fixedClock() time.Time { return time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC) }

func TestInferFillsOnlyMissingRequired(t *testing.T) {
	fake := llmtest.New(llmtest.Text(`{"predicted_parameters": {
		"start_date": "2024-01-02T00:00:00",
		"end_date": "2024-01-02T23:59:59",
		"calendar_id": "work",
		"colour": "blue"
	}}`))
	inf := New(fake, WithClock(fixedClock))

	got := inf.Infer(context.Background(), getEvents, spoke.Params{"end_date": "2024-01-03T00:00:00"}, "tomorrow's events")

	assert.Equal(t, spoke.Params{"start_date": "2024-01-02T00:00:00"}, got)
	require.Equal(t, 1, fake.CallCount())
	call := fake.Calls[0]
	assert.True(t, call.JSON)
	assert.Contains(t, call.Request.Prompt, "Predict only: start_date")
	assert.Contains(t, call.Request.Prompt, "Current time: 2024-01-01T08:00:00Z")
	assert.Contains(t, call.Request.Prompt, `User request: "tomorrow's events"`)
	require.NotNil(t, call.Request.Temperature)
	assert.InDelta(t, 0.3, *call.Request.Temperature, 1e-6)
}

func TestInferSkipsModelWhenNothingMissing(t *testing.T) {
	fake := llmtest.New()
	inf := New(fake)

	complete := spoke.Params{"start_date": "2024-01-02T00:00:00", "end_date": "2024-01-03T00:00:00"}
	got := inf.Infer(context.Background(), getEvents, complete, "")

	assert.Empty(t, got)
	assert.Zero(t, fake.CallCount())
	assert.Equal(t, complete, Merge(complete, got))
}

func TestInferFailuresYieldNothing(t *testing.T) {
	testCases := []struct {
		name  string
		reply llmtest.Reply
	}{
		{"model error", llmtest.Fail(errors.New("503 unavailable"))},
		{"malformed json", llmtest.Text(`{"predicted_parameters": {`)},
		{"empty reply", llmtest.Text("")},
		{"wrong shape", llmtest.Text(`{"predicted_parameters": ["start_date"]}`)},
		{"nulls only", llmtest.Text(`{"predicted_parameters": {"start_date": null, "end_date": ""}}`)},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			inf := New(llmtest.New(tc.reply))
			got := inf.Infer(context.Background(), getEvents, spoke.Params{}, "")
			assert.Empty(t, got)
		})
	}
}

func TestInferTimeout(t *testing.T) {
	fake := llmtest.New()
	fake.Hook = func(ctx context.Context, _ llm_client.Request, _ bool) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	inf := New(fake, WithTimeout(10*time.Millisecond))

	got := inf.Infer(context.Background(), getEvents, spoke.Params{}, "")
	assert.Empty(t, got)
}

func TestInferStripsCodeFence(t *testing.T) {
	fake := llmtest.New(llmtest.Text("```json\n{\"predicted_parameters\": {\"start_date\": \"2024-01-02T00:00:00\", \"end_date\": \"2024-01-03T00:00:00\"}}\n```"))
	got := New(fake).Infer(context.Background(), getEvents, nil, "")
	assert.Len(t, got, 2)
}

func TestMissingRequired(t *testing.T) {
	testCases := []struct {
		name   string
		params spoke.Params
		want   []string
	}{
		{"all missing", spoke.Params{}, []string{"end_date", "start_date"}},
		{"null and blank count as missing", spoke.Params{"start_date": nil, "end_date": " "}, []string{"end_date", "start_date"}},
		{"optional ignored", spoke.Params{"start_date": "a", "end_date": "b"}, nil},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, MissingRequired(getEvents, tc.params))
		})
	}
}

func TestMergePrefersOriginal(t *testing.T) {
	original := spoke.Params{"start_date": "2024-01-02T00:00:00", "end_date": nil, "calendar_id": "work"}
	predicted := spoke.Params{"start_date": "2030-01-01T00:00:00", "end_date": "2024-01-03T00:00:00"}

	got := Merge(original, predicted)
	assert.Equal(t, spoke.Params{
		"start_date":  "2024-01-02T00:00:00",
		"end_date":    "2024-01-03T00:00:00",
		"calendar_id": "work",
	}, got)
	// inputs untouched
	assert.Nil(t, original["end_date"])
}
