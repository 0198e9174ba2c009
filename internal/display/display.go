package display

import (
	"fmt"
	"sort"
	"strings"

	"spokehub/internal/planner"
	"spokehub/internal/registry"
)

const maxPayloadValueLength = 100

// stdout plan (truncated)
func FormatPlan(plan planner.ActionPlan) string {
	return formatPlanInternal(plan, maxPayloadValueLength)
}

// full plan (no truncation), used for logs
func FormatPlanFull(plan planner.ActionPlan) string {
	return formatPlanInternal(plan, -1)
}

func formatPlanInternal(plan planner.ActionPlan, limit int) string {
	var sb strings.Builder
	sb.WriteString("Proposed action plan:\n")
	sb.WriteString("--------------------------------------------------\n")
	if plan.Analysis != "" {
		sb.WriteString(fmt.Sprintf("Analysis: %s\n", formatValueForDisplay(plan.Analysis, limit)))
	}
	sb.WriteString(fmt.Sprintf("Confidence: %.2f\n", plan.Confidence))

	for i, action := range plan.Actions {
		sb.WriteString(fmt.Sprintf("%d. [P%d] %s", i+1, action.Priority, action.ActionType))
		if action.Description != "" {
			sb.WriteString(" - " + action.Description)
		}
		sb.WriteString("\n")
		if len(action.Parameters) > 0 {
			sb.WriteString("    Parameters:\n")
			for _, key := range sortedKeys(action.Parameters) {
				sb.WriteString(fmt.Sprintf("      %s: %s\n", key, formatValueForDisplay(action.Parameters[key], limit)))
			}
		}
	}
	if len(plan.Actions) == 0 {
		sb.WriteString("(no actions)\n")
	}
	sb.WriteString("--------------------------------------------------")
	return sb.String()
}

// FormatActions lists every bound action grouped by integration.
func FormatActions(reg *registry.Registry) string {
	if reg == nil || reg.Len() == 0 {
		return "No actions available."
	}
	var sb strings.Builder
	for _, name := range reg.IntegrationNames() {
		d, _ := reg.Integration(name)
		sb.WriteString(fmt.Sprintf("%s (%s):\n", d.DisplayName, d.IntegrationName))
		for _, a := range d.Actions {
			sb.WriteString(fmt.Sprintf("  - %-28s %s\n", a.ActionType, a.Description))
			if req := a.RequiredParameters(); len(req) > 0 {
				sb.WriteString(fmt.Sprintf("    %-28s requires: %s\n", "", strings.Join(req, ", ")))
			}
		}
	}
	return sb.String()
}

// Limit a value's stdout length (limit < 0 means no limit)
func formatValueForDisplay(value any, limit int) string {
	s := fmt.Sprintf("%v", value)
	s = strings.ReplaceAll(s, "\n", "\\n")
	if limit >= 0 && len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
