// Package todo is the todo_list integration.
package todo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spokehub/internal/spoke"
	"spokehub/internal/store"
	"spokehub/internal/utils"
)

const Integration = "todo_list"

// Repository is the persistence the handler needs; *store.Todos satisfies it.
type Repository interface {
	List(ctx context.Context, principal string, f store.TodoFilter) ([]store.Todo, error)
	Get(ctx context.Context, principal string, id int64) (store.Todo, error)
	Create(ctx context.Context, principal, title, description string, expiresAt *time.Time) (store.Todo, error)
	SetCompleted(ctx context.Context, principal string, id int64, completed bool) (store.Todo, error)
	Update(ctx context.Context, principal string, id int64, u store.TodoUpdate) (store.Todo, error)
	Delete(ctx context.Context, principal string, id int64) error
}

// Handler runs todo actions for a single principal.
type Handler struct {
	repo      Repository
	principal string
	loc       *time.Location
}

var table = spoke.Table[*Handler]{
	"list_incomplete_todos":       (*Handler).listIncomplete,
	"list_completed_todos":        (*Handler).listCompleted,
	"search_todos_expiring_after": (*Handler).searchExpiringAfter,
	"add_todo":                    (*Handler).add,
	"complete_todo":               (*Handler).complete,
	"reopen_todo":                 (*Handler).reopen,
	"update_todo":                 (*Handler).update,
	"delete_todo":                 (*Handler).delete,
}

func NewFactory(repo Repository, loc *time.Location) spoke.Factory {
	if loc == nil {
		loc = time.UTC
	}
	return spoke.Factory{
		Actions: table.Actions(),
		New: func(_ context.Context, principal string) (spoke.Handler, error) {
			if principal == "" {
				return nil, spoke.WithKind(spoke.ErrAuthentication, "Authentication error: no user for todo list")
			}
			return &Handler{repo: repo, principal: principal, loc: loc}, nil
		},
	}
}

func (h *Handler) SupportedActions() []string { return table.Actions() }

func (h *Handler) Execute(ctx context.Context, actionType string, params spoke.Params) spoke.Result {
	return table.Dispatch(h, ctx, actionType, params)
}

func (h *Handler) listIncomplete(ctx context.Context, _ spoke.Params) (any, map[string]any, error) {
	return h.list(ctx, store.TodoFilter{Completed: ptr(false)})
}

func (h *Handler) listCompleted(ctx context.Context, _ spoke.Params) (any, map[string]any, error) {
	return h.list(ctx, store.TodoFilter{Completed: ptr(true)})
}

func (h *Handler) searchExpiringAfter(ctx context.Context, p spoke.Params) (any, map[string]any, error) {
	after, ok, err := utils.GetOptionalTime(p, "expires_at", h.loc)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, spoke.Invalid("payload is missing required key: 'expires_at'")
	}
	return h.list(ctx, store.TodoFilter{Completed: ptr(false), ExpiresAfter: &after})
}

func (h *Handler) list(ctx context.Context, f store.TodoFilter) (any, map[string]any, error) {
	todos, err := h.repo.List(ctx, h.principal, f)
	if err != nil {
		return nil, nil, err
	}
	return todos, map[string]any{"total": len(todos)}, nil
}

func (h *Handler) add(ctx context.Context, p spoke.Params) (any, map[string]any, error) {
	title, err := utils.GetStringPayload(p, "title")
	if err != nil {
		return nil, nil, err
	}
	description, err := utils.GetOptionalString(p, "description", "")
	if err != nil {
		return nil, nil, err
	}
	expires, ok, err := utils.GetOptionalTime(p, "expires_at", h.loc)
	if err != nil {
		return nil, nil, err
	}
	var expiresAt *time.Time
	if ok {
		expiresAt = &expires
	}
	t, err := h.repo.Create(ctx, h.principal, title, description, expiresAt)
	if err != nil {
		return nil, nil, err
	}
	return t, nil, nil
}

func (h *Handler) complete(ctx context.Context, p spoke.Params) (any, map[string]any, error) {
	return h.setCompleted(ctx, p, true)
}

func (h *Handler) reopen(ctx context.Context, p spoke.Params) (any, map[string]any, error) {
	return h.setCompleted(ctx, p, false)
}

func (h *Handler) setCompleted(ctx context.Context, p spoke.Params, completed bool) (any, map[string]any, error) {
	id, err := utils.GetIntPayload(p, "todo_id")
	if err != nil {
		return nil, nil, err
	}
	t, err := h.repo.SetCompleted(ctx, h.principal, int64(id), completed)
	if err != nil {
		return nil, idMeta(id), notFound(err, id)
	}
	return t, nil, nil
}

func (h *Handler) update(ctx context.Context, p spoke.Params) (any, map[string]any, error) {
	id, err := utils.GetIntPayload(p, "todo_id")
	if err != nil {
		return nil, nil, err
	}
	var u store.TodoUpdate
	if _, ok := p["title"]; ok {
		title, err := utils.GetStringPayload(p, "title")
		if err != nil {
			return nil, nil, err
		}
		u.Title = &title
	}
	if _, ok := p["description"]; ok {
		d, err := utils.GetOptionalString(p, "description", "")
		if err != nil {
			return nil, nil, err
		}
		u.Description = &d
	}
	expires, ok, err := utils.GetOptionalTime(p, "expires_at", h.loc)
	if err != nil {
		return nil, nil, err
	}
	if ok {
		u.ExpiresAt = &expires
	}
	if u.Title == nil && u.Description == nil && u.ExpiresAt == nil {
		return nil, nil, spoke.Invalid("nothing to update: provide title, description or expires_at")
	}

	t, err := h.repo.Update(ctx, h.principal, int64(id), u)
	if err != nil {
		return nil, idMeta(id), notFound(err, id)
	}
	return t, nil, nil
}

func (h *Handler) delete(ctx context.Context, p spoke.Params) (any, map[string]any, error) {
	id, err := utils.GetIntPayload(p, "todo_id")
	if err != nil {
		return nil, nil, err
	}
	if err := h.repo.Delete(ctx, h.principal, int64(id)); err != nil {
		return nil, idMeta(id), notFound(err, id)
	}
	return map[string]any{"deleted_todo_id": id}, nil, nil
}

func notFound(err error, id int) error {
	if errors.Is(err, store.ErrNotFound) {
		return spoke.WithKind(spoke.ErrNotFound, fmt.Sprintf("Todo %d not found", id))
	}
	return err
}

func idMeta(id int) map[string]any {
	return map[string]any{"todo_id": id}
}

func ptr[T any](v T) *T { return &v }
