package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

const loadConcurrency = 8

// Descriptor file names tried in each integration directory, in order.
var descriptorFiles = []string{"actions.json", "actions.yaml", "actions.yml"}

var ErrNoDescriptor = errors.New("no actions descriptor")

// LoadError reports a descriptor that could not be read or parsed.
type LoadError struct {
	Dir string
	Err error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load descriptor %s: %v", e.Dir, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// IntegrationDirs lists the immediate subdirectories of root, sorted.
// A missing root yields no directories and no error.
func IntegrationDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read integrations dir: %w", err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(root, e.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// ReadDescriptor parses the descriptor file found in dir.
func ReadDescriptor(dir string) (IntegrationDescriptor, error) {
	var d IntegrationDescriptor
	for _, name := range descriptorFiles {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return d, &LoadError{Dir: dir, Err: err}
		}
		if filepath.Ext(name) == ".json" {
			err = json.Unmarshal(data, &d)
		} else {
			err = yaml.Unmarshal(data, &d)
		}
		if err != nil {
			return d, &LoadError{Dir: dir, Err: fmt.Errorf("parse %s: %w", name, err)}
		}
		if err := Validate(d); err != nil {
			return d, &LoadError{Dir: dir, Err: err}
		}
		return d, nil
	}
	return d, &LoadError{Dir: dir, Err: ErrNoDescriptor}
}

// ReadAll reads every descriptor under root concurrently. The returned slices are
// aligned with the sorted directory list; failed entries carry a non-nil error.
func ReadAll(ctx context.Context, root string) ([]string, []IntegrationDescriptor, []error, error) {
	dirs, err := IntegrationDirs(root)
	if err != nil {
		return nil, nil, nil, err
	}
	descs := make([]IntegrationDescriptor, len(dirs))
	errs := make([]error, len(dirs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)
	for i, dir := range dirs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			descs[i], errs[i] = ReadDescriptor(dir)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return dirs, descs, errs, nil
}

// Load builds a Registry from every integration directory under root.
// Broken descriptors are logged and skipped.
func Load(ctx context.Context, root string, opts ...Option) (*Registry, error) {
	o := buildOptions(opts)
	dirs, descs, errs, err := ReadAll(ctx, root)
	if err != nil {
		return nil, err
	}
	if len(dirs) == 0 {
		o.log.Warn("no integrations found", zap.String("dir", root))
	}

	valid := make([]IntegrationDescriptor, 0, len(descs))
	for i, d := range descs {
		if errs[i] != nil {
			o.log.Error("failed to load integration descriptor",
				zap.String("dir", dirs[i]), zap.Error(errs[i]))
			continue
		}
		valid = append(valid, d)
	}
	r := New(valid, opts...)
	o.log.Info("capability registry loaded",
		zap.Int("integrations", len(r.order)), zap.Int("actions", r.Len()))
	return r, nil
}
