package todo

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spokehub/internal/spoke"
	"spokehub/internal/store"
)

func newHandler(t *testing.T, principal string) (spoke.Handler, *store.Todos) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "todo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repo := db.Todos()
	h, err := NewFactory(repo, time.UTC).New(context.Background(), principal)
	require.NoError(t, err)
	return h, repo
}

func TestAddAndList(t *testing.T) {
	ctx := context.Background()
	h, _ := newHandler(t, "7")

	res := h.Execute(ctx, "add_todo", spoke.Params{"title": "Buy milk"})
	require.True(t, res.Success, res.Error)
	added := res.Data.(store.Todo)
	assert.Equal(t, "Buy milk", added.Title)

	res = h.Execute(ctx, "add_todo", spoke.Params{"title": "File taxes", "expires_at": "2099-04-15T00:00:00"})
	require.True(t, res.Success, res.Error)

	res = h.Execute(ctx, "complete_todo", spoke.Params{"todo_id": float64(added.ID)})
	require.True(t, res.Success, res.Error)
	assert.True(t, res.Data.(store.Todo).Completed)

	res = h.Execute(ctx, "list_incomplete_todos", nil)
	require.True(t, res.Success, res.Error)
	incomplete := res.Data.([]store.Todo)
	require.Len(t, incomplete, 1)
	assert.Equal(t, "File taxes", incomplete[0].Title)

	res = h.Execute(ctx, "list_completed_todos", spoke.Params{})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, 1, res.Metadata["total"])

	res = h.Execute(ctx, "search_todos_expiring_after", spoke.Params{"expires_at": "2099-01-01"})
	require.True(t, res.Success, res.Error)
	assert.Len(t, res.Data.([]store.Todo), 1)

	res = h.Execute(ctx, "reopen_todo", spoke.Params{"todo_id": added.ID})
	require.True(t, res.Success, res.Error)
	assert.False(t, res.Data.(store.Todo).Completed)
}

func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	h, repo := newHandler(t, "7")

	todo, err := repo.Create(ctx, "7", "Draft", "", nil)
	require.NoError(t, err)

	res := h.Execute(ctx, "update_todo", spoke.Params{"todo_id": "1", "title": "Final"})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "Final", res.Data.(store.Todo).Title)

	res = h.Execute(ctx, "delete_todo", spoke.Params{"todo_id": todo.ID})
	require.True(t, res.Success, res.Error)

	res = h.Execute(ctx, "delete_todo", spoke.Params{"todo_id": todo.ID})
	require.False(t, res.Success)
	assert.Equal(t, "Todo 1 not found", res.Error)
	assert.Equal(t, spoke.KindNotFound, res.Metadata["error_kind"])
}

func TestOtherPrincipalsTodosAreInvisible(t *testing.T) {
	ctx := context.Background()
	h, repo := newHandler(t, "7")

	theirs, err := repo.Create(ctx, "8", "Secret", "", nil)
	require.NoError(t, err)

	res := h.Execute(ctx, "complete_todo", spoke.Params{"todo_id": theirs.ID})
	assert.False(t, res.Success)
	assert.Equal(t, spoke.KindNotFound, res.Metadata["error_kind"])

	res = h.Execute(ctx, "list_incomplete_todos", nil)
	require.True(t, res.Success)
	assert.Empty(t, res.Data.([]store.Todo))
}

func TestParameterValidation(t *testing.T) {
	testCases := []struct {
		name    string
		action  string
		params  spoke.Params
		wantErr string
	}{
		{"add without title", "add_todo", spoke.Params{}, "payload is missing required key: 'title'"},
		{"complete without id", "complete_todo", spoke.Params{}, "payload is missing required key: 'todo_id'"},
		{"bad id", "delete_todo", spoke.Params{"todo_id": "abc"}, "invalid int"},
		{"update with nothing", "update_todo", spoke.Params{"todo_id": 1}, "nothing to update"},
		{"search without date", "search_todos_expiring_after", spoke.Params{}, "'expires_at'"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h, _ := newHandler(t, "7")
			res := h.Execute(context.Background(), tc.action, tc.params)
			require.False(t, res.Success)
			assert.Contains(t, res.Error, tc.wantErr)
			assert.Equal(t, spoke.KindInvalidParameter, res.Metadata["error_kind"])
		})
	}
}

func TestFactoryRequiresPrincipal(t *testing.T) {
	_, err := NewFactory(nil, nil).New(context.Background(), "")
	assert.Equal(t, spoke.KindAuthentication, spoke.Kind(err))
}
