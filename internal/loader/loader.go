// Package loader binds integration descriptors found on disk to the handler
// factories compiled into the binary.
package loader

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"spokehub/internal/registry"
	"spokehub/internal/spoke"
)

// BindingError reports an integration whose handler could not be bound.
type BindingError struct {
	Integration string
	Reason      string
}

func (e *BindingError) Error() string {
	return fmt.Sprintf("bind integration %s: %s", e.Integration, e.Reason)
}

// Capabilities is the bound result: a registry of bound integrations plus their factories.
// Read-only after DiscoverAndBind returns.
type Capabilities struct {
	Registry  *registry.Registry
	factories map[string]spoke.Factory
	// Skipped lists integrations that failed to load or bind, for diagnostics.
	Skipped []error
}

func (c *Capabilities) Factory(integration string) (spoke.Factory, bool) {
	f, ok := c.factories[integration]
	return f, ok
}

// DiscoverAndBind reads every integration directory under dir and binds it to
// catalog[integration_name]. The directory name must equal integration_name.
// Failures are logged per integration and never abort the whole load.
func DiscoverAndBind(ctx context.Context, dir string, catalog spoke.Catalog, log *zap.Logger) (*Capabilities, error) {
	if log == nil {
		log = zap.NewNop()
	}
	dirs, descs, errs, err := registry.ReadAll(ctx, dir)
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		log.Warn("no integrations found", zap.String("dir", dir))
	}

	caps := &Capabilities{factories: make(map[string]spoke.Factory)}
	var bound []registry.IntegrationDescriptor
	for i, d := range descs {
		if errs[i] != nil {
			log.Error("failed to load integration descriptor", zap.String("dir", dirs[i]), zap.Error(errs[i]))
			caps.Skipped = append(caps.Skipped, errs[i])
			continue
		}
		bd, f, berr := bind(filepath.Base(dirs[i]), d, catalog, log)
		if berr != nil {
			log.Error("failed to bind integration", zap.Error(berr))
			caps.Skipped = append(caps.Skipped, berr)
			continue
		}
		bound = append(bound, bd)
		caps.factories[bd.IntegrationName] = f
	}

	caps.finish(bound, log)
	log.Info("integrations bound",
		zap.Strings("integrations", caps.Registry.IntegrationNames()),
		zap.Int("actions", caps.Registry.Len()),
		zap.Int("skipped", len(caps.Skipped)))
	return caps, nil
}

// Bind is DiscoverAndBind for descriptors already in memory, in the given order.
func Bind(descs []registry.IntegrationDescriptor, catalog spoke.Catalog, log *zap.Logger) *Capabilities {
	if log == nil {
		log = zap.NewNop()
	}
	caps := &Capabilities{factories: make(map[string]spoke.Factory)}
	var bound []registry.IntegrationDescriptor
	for _, d := range descs {
		bd, f, err := bind(d.IntegrationName, d, catalog, log)
		if err != nil {
			log.Error("failed to bind integration", zap.Error(err))
			caps.Skipped = append(caps.Skipped, err)
			continue
		}
		bound = append(bound, bd)
		caps.factories[bd.IntegrationName] = f
	}
	caps.finish(bound, log)
	return caps
}

// finish builds the registry and drops factories whose integration lost every
// action to collisions.
func (c *Capabilities) finish(bound []registry.IntegrationDescriptor, log *zap.Logger) {
	c.Registry = registry.New(bound, registry.WithLogger(log))
	for name := range c.factories {
		if d, ok := c.Registry.Integration(name); !ok || len(d.Actions) == 0 {
			delete(c.factories, name)
		}
	}
}

func bind(dirName string, d registry.IntegrationDescriptor, catalog spoke.Catalog, log *zap.Logger) (registry.IntegrationDescriptor, spoke.Factory, error) {
	if d.IntegrationName != dirName {
		return d, spoke.Factory{}, &BindingError{
			Integration: d.IntegrationName,
			Reason:      fmt.Sprintf("integration_name does not match directory %q", dirName),
		}
	}
	f, ok := catalog[d.IntegrationName]
	if !ok {
		return d, spoke.Factory{}, &BindingError{Integration: d.IntegrationName, Reason: "no handler implementation registered"}
	}
	if f.New == nil {
		return d, spoke.Factory{}, &BindingError{Integration: d.IntegrationName, Reason: "handler factory has no constructor"}
	}

	implemented := make(map[string]bool, len(f.Actions))
	for _, a := range f.Actions {
		implemented[a] = true
	}
	kept := make([]registry.ActionDescriptor, 0, len(d.Actions))
	var missing []string
	for _, a := range d.Actions {
		if !implemented[a.ActionType] {
			missing = append(missing, a.ActionType)
			continue
		}
		kept = append(kept, a)
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		log.Warn("handler does not implement declared actions, dropping them",
			zap.String("integration", d.IntegrationName), zap.Strings("actions", missing))
	}
	if len(kept) == 0 {
		return d, spoke.Factory{}, &BindingError{Integration: d.IntegrationName, Reason: "handler implements none of the declared actions"}
	}
	d.Actions = kept
	return d, f, nil
}
