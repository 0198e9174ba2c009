package registry

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const exampleDatetime = "2024-01-01T10:00:00"

// PromptSection renders the capability block of the planner prompt.
func (r *Registry) PromptSection(principal string) string {
	var sb strings.Builder
	sb.WriteString("AVAILABLE ACTIONS:\n")
	for _, name := range r.order {
		d := r.integrations[name]
		title := d.DisplayName
		if title == "" {
			title = d.IntegrationName
		}
		sb.WriteString(fmt.Sprintf("\n## %s (%s)\n", title, d.IntegrationName))
		if d.Description != "" {
			sb.WriteString(d.Description + "\n")
		}
		for _, a := range d.Actions {
			writeAction(&sb, a, principal)
		}
	}

	if hints := r.keywordHints(); hints != "" {
		sb.WriteString("\nKEYWORD HINTS:\n")
		sb.WriteString(hints)
	}
	if rules := r.datetimeRules(); rules != "" {
		sb.WriteString("\n")
		sb.WriteString(rules)
	}
	return sb.String()
}

func writeAction(sb *strings.Builder, a ActionDescriptor, principal string) {
	sb.WriteString(fmt.Sprintf("- `%s`: %s\n", a.ActionType, a.Description))
	if len(a.Parameters) > 0 {
		sb.WriteString("  Parameters:\n")
		for _, pname := range a.ParameterNames() {
			p := a.Parameters[pname]
			attrs := []string{p.Type}
			if p.Required {
				attrs = append(attrs, "required")
			} else {
				attrs = append(attrs, "optional")
			}
			if p.Format != "" {
				attrs = append(attrs, "format: "+p.Format)
			}
			if p.Default != nil {
				attrs = append(attrs, fmt.Sprintf("default: %v", p.Default))
			}
			sb.WriteString(fmt.Sprintf("    - %s (%s): %s\n", pname, strings.Join(attrs, ", "), p.Description))
		}
	}
	if ex := exampleParameters(a, principal); ex != "" {
		sb.WriteString("  Example parameters: " + ex + "\n")
	}
	for _, e := range a.Examples {
		sb.WriteString(fmt.Sprintf("  Example request: %q\n", e))
	}
}

// exampleParameters builds a sample object holding the required parameters.
func exampleParameters(a ActionDescriptor, principal string) string {
	required := a.RequiredParameters()
	if len(required) == 0 {
		return ""
	}
	ex := make(map[string]any, len(required))
	for _, name := range required {
		ex[name] = exampleValue(name, a.Parameters[name], principal)
	}
	b, err := json.Marshal(ex)
	if err != nil {
		return ""
	}
	return string(b)
}

func exampleValue(name string, p ParameterSchema, principal string) any {
	switch {
	case name == "user_id":
		return principal
	case p.Default != nil:
		return p.Default
	case p.Format == "datetime" || p.Format == "date-time":
		return exampleDatetime
	case p.Type == "integer" || p.Type == "number":
		return 123
	case p.Type == "boolean":
		return true
	case p.Type == "array":
		return []string{}
	default:
		return "<" + name + ">"
	}
}

func (r *Registry) keywordHints() string {
	var sb strings.Builder
	for _, name := range r.order {
		for _, a := range r.integrations[name].Actions {
			if len(a.Keywords) == 0 {
				continue
			}
			sb.WriteString(fmt.Sprintf("- \"%s\" -> %s\n", strings.Join(a.Keywords, "\", \""), a.ActionType))
		}
	}
	return sb.String()
}

func (r *Registry) datetimeRules() string {
	relative := make(map[string]string)
	defaults := make(map[string]string)
	for _, name := range r.order {
		rules := r.integrations[name].DatetimeRules
		if rules == nil {
			continue
		}
		for k, v := range rules.RelativeExpressions {
			relative[k] = v
		}
		for k, v := range rules.DefaultTimes {
			defaults[k] = v
		}
	}

	var sb strings.Builder
	if len(relative) > 0 {
		sb.WriteString("DATETIME CONVERSION:\n")
		for _, expr := range sortedKeys(relative) {
			sb.WriteString(fmt.Sprintf("- \"%s\" -> %s\n", expr, describeRelative(relative[expr])))
		}
	}
	if len(defaults) > 0 {
		sb.WriteString("DEFAULT TIMES:\n")
		for _, k := range sortedKeys(defaults) {
			sb.WriteString(fmt.Sprintf("- \"%s\" -> %s\n", k, defaults[k]))
		}
	}
	return sb.String()
}

func describeRelative(v string) string {
	switch v {
	case "today":
		return "today's date"
	case "tomorrow":
		return "the day after today"
	case "next_week":
		return "next Monday through Sunday"
	default:
		return v
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
