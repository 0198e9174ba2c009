package display

import (
	"strings"
	"testing"

	"spokehub/internal/metrics"
	"spokehub/internal/orchestrator"
	"spokehub/internal/planner"
	"spokehub/internal/registry"
	"spokehub/internal/spoke"
)

func TestFormatPlan(t *testing.T) {
	plan := planner.ActionPlan{
		Analysis:   "Look up tomorrow and add a reminder.",
		Confidence: 0.85,
		Actions: []planner.NextAction{
			{
				ActionType:  "get_calendar_events",
				Priority:    1,
				Description: "Fetch tomorrow's events",
				Parameters:  spoke.Params{"start_date": "2024-01-02T00:00:00", "end_date": "2024-01-02T23:59:59"},
			},
			{
				ActionType: "add_todo",
				Priority:   2,
				Parameters: spoke.Params{"title": "Buy milk"},
			},
		},
	}

	resultString := FormatPlan(plan)

	if !strings.Contains(resultString, "Proposed action plan") {
		t.Errorf("The plan output is missing the main header.")
	}
	if !strings.Contains(resultString, "Confidence: 0.85") {
		t.Errorf("The plan output is missing the confidence.")
	}
	if !strings.Contains(resultString, "1. [P1] get_calendar_events - Fetch tomorrow's events") {
		t.Errorf("The plan output is missing the first action.")
	}
	if !strings.Contains(resultString, "2. [P2] add_todo\n") {
		t.Errorf("The plan output is missing the second action.")
	}
	if !strings.Contains(resultString, "title: Buy milk") {
		t.Errorf("The plan output is missing a parameter detail.")
	}
	if strings.Index(resultString, "end_date") > strings.Index(resultString, "start_date") {
		t.Errorf("Expected parameters to be listed in key order.")
	}
}

func TestFormatPlan_WithLongParameter(t *testing.T) {
	longContent := strings.Repeat("a", 200)
	plan := planner.ActionPlan{Actions: []planner.NextAction{
		{ActionType: "send_email", Priority: 1, Parameters: spoke.Params{"body": longContent}},
	}}

	resultString := FormatPlan(plan)

	if !strings.Contains(resultString, "...") {
		t.Errorf("Expected long parameter content to be truncated with '...', but it wasn't.")
	}
	if strings.Contains(resultString, longContent) {
		t.Errorf("Expected long parameter content to be truncated, but the full string was found.")
	}
	if !strings.Contains(FormatPlanFull(plan), longContent) {
		t.Errorf("Expected the full plan to keep the whole parameter.")
	}
}

func TestFormatPlan_Empty(t *testing.T) {
	if !strings.Contains(FormatPlan(planner.ActionPlan{}), "(no actions)") {
		t.Errorf("Expected an empty plan to say so.")
	}
}

func TestFormatResponse(t *testing.T) {
	testCases := []struct {
		name     string
		resp     orchestrator.Response
		contains []string
		excludes []string
	}{
		{
			name:     "failure",
			resp:     orchestrator.Response{Success: false, Error: "Processing error: context canceled"},
			contains: []string{"Request failed: Processing error: context canceled"},
			excludes: []string{"Status:"},
		},
		{
			name: "synthesized answer",
			resp: orchestrator.Response{Success: true, Summary: orchestrator.Summary{
				TotalActions: 1, SuccessfulActions: 1, OverallStatus: "completed", Confidence: 0.9,
				Text:    "You have a standup at 10.",
				Results: []orchestrator.ResultData{{ActionType: "get_calendar_events", Success: true, Data: []string{"standup"}}},
			}},
			contains: []string{"You have a standup at 10.", "Status: completed (1/1 actions succeeded, confidence 0.90)", "✓ get_calendar_events"},
			excludes: []string{`["standup"]`},
		},
		{
			name: "raw data without answer",
			resp: orchestrator.Response{Success: true, Summary: orchestrator.Summary{
				TotalActions: 2, SuccessfulActions: 1, OverallStatus: "mostly_failed",
				Results: []orchestrator.ResultData{
					{ActionType: "list_incomplete_todos", Success: true, Data: []string{"milk"}},
					{ActionType: "add_todo", Error: "title is required"},
				},
			}},
			contains: []string{`["milk"]`, "✗ add_todo (title is required)"},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out := FormatResponse(tc.resp)
			for _, want := range tc.contains {
				if !strings.Contains(out, want) {
					t.Errorf("Expected %q in output:\n%s", want, out)
				}
			}
			for _, unwanted := range tc.excludes {
				if strings.Contains(out, unwanted) {
					t.Errorf("Did not expect %q in output:\n%s", unwanted, out)
				}
			}
		})
	}
}

func TestFormatRequestMetrics(t *testing.T) {
	if FormatRequestMetrics(nil) != "No metrics available." {
		t.Errorf("Expected a placeholder for missing metrics.")
	}
	out := FormatRequestMetrics(&metrics.RequestMetrics{
		DurationMs: 1200,
		Status:     "completed",
		Planned:    1,
		Actions: []metrics.ActionMetrics{
			{ActionType: "add_todo", Integration: "todo_list", Priority: 1, DurationMs: 12, Success: true, Inferred: []string{"title"}},
		},
	})
	if !strings.Contains(out, "Total: 1200 ms  (status=completed, planned=1)") {
		t.Errorf("Missing total line:\n%s", out)
	}
	if !strings.Contains(out, "[ok]  inferred: title") {
		t.Errorf("Missing action line:\n%s", out)
	}
}

func TestFormatActions(t *testing.T) {
	reg := registry.New([]registry.IntegrationDescriptor{{
		IntegrationName: "todo_list",
		DisplayName:     "Todo list",
		Actions: []registry.ActionDescriptor{{
			ActionType:  "add_todo",
			Description: "Add a todo.",
			Parameters:  map[string]registry.ParameterSchema{"title": {Type: "string", Required: true}},
		}},
	}})

	out := FormatActions(reg)
	if !strings.Contains(out, "Todo list (todo_list):") || !strings.Contains(out, "requires: title") {
		t.Errorf("Unexpected action listing:\n%s", out)
	}
	if FormatActions(registry.New(nil)) != "No actions available." {
		t.Errorf("Expected a placeholder for an empty registry.")
	}
}
