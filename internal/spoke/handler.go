package spoke

import (
	"context"
	"fmt"
	"sort"
)

// Handler executes the actions of one integration on behalf of one principal.
type Handler interface {
	SupportedActions() []string
	Execute(ctx context.Context, actionType string, params Params) Result
}

// ActionFunc is one entry of a handler's registration table.
type ActionFunc[H any] func(h H, ctx context.Context, params Params) (data any, meta map[string]any, err error)

// Table maps action types to the functions implementing them.
type Table[H any] map[string]ActionFunc[H]

func (t Table[H]) Actions() []string {
	out := make([]string, 0, len(t))
	for name := range t {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Dispatch runs the action named actionType. Errors and panics come back as a failed Result.
func (t Table[H]) Dispatch(h H, ctx context.Context, actionType string, params Params) (res Result) {
	fn, ok := t[actionType]
	if !ok {
		return Fail(fmt.Errorf("%w: %s", ErrUnsupportedAction, actionType))
	}
	defer func() {
		if rec := recover(); rec != nil {
			res = Fail(fmt.Errorf("Error executing action %s: panic: %v", actionType, rec))
		}
	}()
	if params == nil {
		params = Params{}
	}
	data, meta, err := fn(h, ctx, params)
	if err != nil {
		return Failf(err, meta)
	}
	return OK(data, meta)
}

// Factory builds a Handler for one principal. Actions lists what the handler implements.
type Factory struct {
	Actions []string
	New     func(ctx context.Context, principal string) (Handler, error)
}

// Catalog is the explicit integration_name -> Factory table assembled at startup.
type Catalog map[string]Factory
