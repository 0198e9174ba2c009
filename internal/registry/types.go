package registry

import "sort"

// ParameterSchema describes one named parameter of an action.
type ParameterSchema struct {
	Type        string `json:"type" yaml:"type"`
	Required    bool   `json:"required" yaml:"required"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Format      string `json:"format,omitempty" yaml:"format,omitempty"`
	Default     any    `json:"default,omitempty" yaml:"default,omitempty"`
}

type ActionDescriptor struct {
	ActionType  string                     `json:"action_type" yaml:"action_type"`
	DisplayName string                     `json:"display_name" yaml:"display_name"`
	Description string                     `json:"description" yaml:"description"`
	Keywords    []string                   `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Parameters  map[string]ParameterSchema `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Examples    []string                   `json:"examples,omitempty" yaml:"examples,omitempty"`
}

// RequiredParameters returns the names of required parameters, sorted.
func (a ActionDescriptor) RequiredParameters() []string {
	var out []string
	for name, p := range a.Parameters {
		if p.Required {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// ParameterNames returns every declared parameter name, sorted.
func (a ActionDescriptor) ParameterNames() []string {
	out := make([]string, 0, len(a.Parameters))
	for name := range a.Parameters {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// DatetimeRules are prompt-only hints for turning relative expressions into dates.
type DatetimeRules struct {
	RelativeExpressions map[string]string `json:"relative_expressions,omitempty" yaml:"relative_expressions,omitempty"`
	DefaultTimes        map[string]string `json:"default_times,omitempty" yaml:"default_times,omitempty"`
}

type IntegrationDescriptor struct {
	IntegrationName string             `json:"integration_name" yaml:"integration_name"`
	DisplayName     string             `json:"display_name" yaml:"display_name"`
	Description     string             `json:"description" yaml:"description"`
	Actions         []ActionDescriptor `json:"actions" yaml:"actions"`
	DatetimeRules   *DatetimeRules     `json:"datetime_conversion_rules,omitempty" yaml:"datetime_conversion_rules,omitempty"`
}

var parameterTypes = map[string]bool{
	"string":  true,
	"integer": true,
	"number":  true,
	"boolean": true,
	"array":   true,
	"object":  true,
}
