package display

import (
	"encoding/json"
	"fmt"
	"strings"

	"spokehub/internal/orchestrator"
)

// FormatResponse renders a processed request for the terminal.
func FormatResponse(resp orchestrator.Response) string {
	var sb strings.Builder
	if !resp.Success {
		sb.WriteString("Request failed: " + resp.Error + "\n")
		return sb.String()
	}

	s := resp.Summary
	if s.Text != "" {
		sb.WriteString(s.Text + "\n\n")
	}
	sb.WriteString(fmt.Sprintf("Status: %s (%d/%d actions succeeded, confidence %.2f)\n",
		s.OverallStatus, s.SuccessfulActions, s.TotalActions, s.Confidence))
	for _, r := range s.Results {
		mark := "✓"
		if !r.Success {
			mark = "✗"
		}
		line := fmt.Sprintf("  %s %s", mark, r.ActionType)
		if r.Description != "" {
			line += ": " + r.Description
		}
		if r.Error != "" {
			line += " (" + r.Error + ")"
		}
		sb.WriteString(line + "\n")
		if s.Text == "" && r.Data != nil {
			sb.WriteString("    " + formatValueForDisplay(compactJSON(r.Data), 4*maxPayloadValueLength) + "\n")
		}
	}
	return sb.String()
}

func compactJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
