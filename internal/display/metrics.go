package display

import (
	"fmt"
	"strings"

	"spokehub/internal/metrics"
)

func FormatRequestMetrics(rm *metrics.RequestMetrics) string {
	if rm == nil {
		return "No metrics available."
	}
	var sb strings.Builder
	sb.WriteString("Execution metrics:\n")
	sb.WriteString(fmt.Sprintf("- Total: %d ms  (status=%s, planned=%d)\n", rm.DurationMs, rm.Status, rm.Planned))
	for _, a := range rm.Actions {
		status := "ok"
		if !a.Success {
			status = "err"
		}
		line := fmt.Sprintf("    • P%d %-28s %-18s %5d ms  [%s]", a.Priority, a.ActionType, "("+a.Integration+")", a.DurationMs, status)
		if len(a.Inferred) > 0 {
			line += "  inferred: " + strings.Join(a.Inferred, ",")
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}
