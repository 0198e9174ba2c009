package registry

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Registry answers which actions exist and which integration owns each.
// It is never mutated after construction and is safe for concurrent reads.
type Registry struct {
	integrations map[string]IntegrationDescriptor
	order        []string
	actions      map[string]ActionDescriptor
	owner        map[string]string
}

type options struct {
	log *zap.Logger
}

type Option func(*options)

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{log: zap.NewNop()}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// New builds a Registry from descriptors in the given order. Invalid descriptors
// are skipped; on an action_type collision the earlier integration keeps it.
func New(descs []IntegrationDescriptor, opts ...Option) *Registry {
	o := buildOptions(opts)
	r := &Registry{
		integrations: make(map[string]IntegrationDescriptor),
		actions:      make(map[string]ActionDescriptor),
		owner:        make(map[string]string),
	}

	for _, d := range descs {
		if err := Validate(d); err != nil {
			o.log.Warn("skipping invalid integration descriptor",
				zap.String("integration", d.IntegrationName), zap.Error(err))
			continue
		}
		if _, dup := r.integrations[d.IntegrationName]; dup {
			o.log.Warn("duplicate integration name, keeping first",
				zap.String("integration", d.IntegrationName))
			continue
		}

		kept := make([]ActionDescriptor, 0, len(d.Actions))
		for _, a := range d.Actions {
			if prev, taken := r.owner[a.ActionType]; taken {
				o.log.Warn("action_type already registered, dropping later declaration",
					zap.String("action_type", a.ActionType),
					zap.String("owner", prev),
					zap.String("integration", d.IntegrationName))
				continue
			}
			r.owner[a.ActionType] = d.IntegrationName
			r.actions[a.ActionType] = a
			kept = append(kept, a)
		}
		d.Actions = kept
		r.integrations[d.IntegrationName] = d
		r.order = append(r.order, d.IntegrationName)
	}
	return r
}

// Validate checks the fields every descriptor must carry.
func Validate(d IntegrationDescriptor) error {
	if strings.TrimSpace(d.IntegrationName) == "" {
		return fmt.Errorf("integration_name is required")
	}
	seen := make(map[string]bool, len(d.Actions))
	for i, a := range d.Actions {
		if strings.TrimSpace(a.ActionType) == "" {
			return fmt.Errorf("action #%d: action_type is required", i)
		}
		if seen[a.ActionType] {
			return fmt.Errorf("action '%s' declared twice", a.ActionType)
		}
		seen[a.ActionType] = true
		for name, p := range a.Parameters {
			if !parameterTypes[p.Type] {
				return fmt.Errorf("action '%s' parameter '%s': unknown type %q", a.ActionType, name, p.Type)
			}
		}
	}
	return nil
}

// Integrations returns a copy of the loaded descriptors keyed by integration name.
func (r *Registry) Integrations() map[string]IntegrationDescriptor {
	out := make(map[string]IntegrationDescriptor, len(r.integrations))
	for k, v := range r.integrations {
		out[k] = v
	}
	return out
}

func (r *Registry) Integration(name string) (IntegrationDescriptor, bool) {
	d, ok := r.integrations[name]
	return d, ok
}

// IntegrationNames returns integration names in load order.
func (r *Registry) IntegrationNames() []string {
	return append([]string(nil), r.order...)
}

// ActionToIntegration returns a copy of the action_type -> integration mapping.
func (r *Registry) ActionToIntegration() map[string]string {
	out := make(map[string]string, len(r.owner))
	for k, v := range r.owner {
		out[k] = v
	}
	return out
}

func (r *Registry) IntegrationFor(actionType string) (string, bool) {
	name, ok := r.owner[actionType]
	return name, ok
}

func (r *Registry) ActionDescriptor(actionType string) (ActionDescriptor, bool) {
	a, ok := r.actions[actionType]
	return a, ok
}

func (r *Registry) Has(actionType string) bool {
	_, ok := r.actions[actionType]
	return ok
}

func (r *Registry) ActionTypes() []string {
	out := make([]string, 0, len(r.actions))
	for k := range r.actions {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Len() int { return len(r.actions) }

// MatchKeywords returns action types with a keyword contained in text, in registry order.
func (r *Registry) MatchKeywords(text string) []string {
	text = strings.ToLower(text)
	var out []string
	for _, name := range r.order {
		for _, a := range r.integrations[name].Actions {
			for _, kw := range a.Keywords {
				kw = strings.ToLower(strings.TrimSpace(kw))
				if kw != "" && strings.Contains(text, kw) {
					out = append(out, a.ActionType)
					break
				}
			}
		}
	}
	return out
}
