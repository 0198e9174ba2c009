package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"spokehub/internal/executor"
	"spokehub/internal/llm_client"
	"spokehub/internal/planner"
)

const (
	StatusCompleted          = "completed"
	StatusPartiallyCompleted = "partially_completed"
	StatusMostlyFailed       = "mostly_failed"
	StatusFailed             = "failed"

	synthesisTemperature = 0.7
	maxDataChars         = 4000
)

type ResultData struct {
	ActionType    string `json:"action_type"`
	Success       bool   `json:"success"`
	Description   string `json:"description"`
	DataAvailable bool   `json:"data_available"`
	Error         string `json:"error,omitempty"`
	Data          any    `json:"data"`
}

type Summary struct {
	TotalActions      int          `json:"total_actions"`
	SuccessfulActions int          `json:"successful_actions"`
	FailedActions     int          `json:"failed_actions"`
	SuccessRate       float64      `json:"success_rate"`
	OverallStatus     string       `json:"overall_status"`
	Confidence        float64      `json:"confidence"`
	Results           []ResultData `json:"results_data"`
	Text              string       `json:"results_text,omitempty"`
}

// Status buckets a success rate. No actions at all counts as failed.
func Status(rate float64, total int) string {
	switch {
	case total == 0:
		return StatusFailed
	case rate == 1.0:
		return StatusCompleted
	case rate > 0.5:
		return StatusPartiallyCompleted
	case rate > 0:
		return StatusMostlyFailed
	default:
		return StatusFailed
	}
}

// Summarize derives the execution summary from the executed steps.
func Summarize(plan planner.ActionPlan, steps []executor.StepResult) Summary {
	s := Summary{
		TotalActions: len(steps),
		Confidence:   plan.Confidence,
		Results:      make([]ResultData, 0, len(steps)),
	}
	for _, step := range steps {
		if step.Result.Success {
			s.SuccessfulActions++
		}
		rd := ResultData{
			ActionType:    step.Action.ActionType,
			Success:       step.Result.Success,
			Description:   step.Action.Description,
			DataAvailable: step.Result.Data != nil,
			Error:         step.Result.Error,
		}
		if step.Result.Success {
			rd.Data = step.Result.Data
		}
		s.Results = append(s.Results, rd)
	}
	s.FailedActions = s.TotalActions - s.SuccessfulActions

	var rate float64
	if s.TotalActions > 0 {
		rate = float64(s.SuccessfulActions) / float64(s.TotalActions)
	}
	s.SuccessRate = math.Round(rate*100) / 100
	s.OverallStatus = Status(rate, s.TotalActions)
	return s
}

const synthesisSystem = "You are a helpful, knowledgeable personal assistant. Using the results of the actions " +
	"run for the user's request, answer the request directly in natural, clear language.\n\n" +
	"Guidelines:\n" +
	"- Give a clear, specific answer to the user's original request.\n" +
	"- Organise the information obtained from the results so it is easy to read.\n" +
	"- On success show the concrete results; on failure explain why and what the user can do.\n" +
	"- Leave out technical details that do not help the user.\n" +
	"- Answer in plain prose, never JSON."

func (o *Orchestrator) synthesize(ctx context.Context, prompt string, plan planner.ActionPlan, s Summary) string {
	text, err := o.llm.Generate(ctx, llm_client.Request{
		System:      synthesisSystem,
		Prompt:      synthesisPrompt(prompt, plan, s),
		Temperature: llm_client.Temperature(synthesisTemperature),
	})
	if err != nil {
		o.log.Warn("answer synthesis failed", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(text)
}

func synthesisPrompt(prompt string, plan planner.ActionPlan, s Summary) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("User request: %q\n\n", prompt))
	sb.WriteString("Results of the actions run:\n")
	sb.WriteString(fmt.Sprintf("- Actions run: %d\n", s.TotalActions))
	sb.WriteString(fmt.Sprintf("- Succeeded: %d\n", s.SuccessfulActions))
	sb.WriteString(fmt.Sprintf("- Failed: %d\n", s.FailedActions))
	sb.WriteString(fmt.Sprintf("- Overall status: %s\n", s.OverallStatus))
	sb.WriteString(fmt.Sprintf("- Confidence: %.2f\n\n", s.Confidence))
	sb.WriteString(fmt.Sprintf("Operator analysis: %s\n\n", plan.Analysis))

	sb.WriteString("Per-action results:\n")
	for _, r := range s.Results {
		outcome := "succeeded"
		if !r.Success {
			outcome = "failed"
		}
		line := fmt.Sprintf("- %s: %s - %s", r.ActionType, outcome, r.Description)
		if r.Error != "" {
			line += fmt.Sprintf(" (error: %s)", r.Error)
		}
		sb.WriteString(line + "\n")
	}

	sb.WriteString("\nData retrieved:\n")
	for _, r := range s.Results {
		if !r.Success || r.Data == nil {
			continue
		}
		sb.WriteString(fmt.Sprintf("- %s: %s\n", r.Description, compact(r.Data)))
	}

	sb.WriteString(fmt.Sprintf("\nUsing this information, answer the request %q. Focus on what the user actually asked for.\n", prompt))
	return sb.String()
}

func compact(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	if len(b) > maxDataChars {
		return string(b[:maxDataChars]) + "...(truncated)"
	}
	return string(b)
}
