package actions

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spokehub/internal/actions/google"
	"spokehub/internal/loader"
	"spokehub/internal/store"
)

func spokesDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), "..", "..", "spokes")
}

func TestCatalogBindsShippedDescriptors(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "a.db"))
	require.NoError(t, err)
	defer db.Close()

	catalog := Catalog(Deps{
		Todos:    db.Todos(),
		Google:   google.StaticClient{},
		Location: time.UTC,
	})
	caps, err := loader.DiscoverAndBind(context.Background(), spokesDir(t), catalog, nil)
	require.NoError(t, err)

	assert.Empty(t, caps.Skipped)
	assert.Equal(t, []string{"gmail", "google_calendar", "todo_list"}, caps.Registry.IntegrationNames())

	// every declared action is implemented by its handler
	for name, d := range caps.Registry.Integrations() {
		f, ok := caps.Factory(name)
		require.True(t, ok)
		assert.Len(t, d.Actions, len(f.Actions), "integration %s", name)
	}
}

func TestCatalogWithoutGoogle(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "a.db"))
	require.NoError(t, err)
	defer db.Close()

	c := Catalog(Deps{Todos: db.Todos()})
	assert.Len(t, c, 1)
	_, ok := c["todo_list"]
	assert.True(t, ok)
}
